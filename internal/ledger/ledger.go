// Package ledger owns account balances. It is the only component allowed to
// mutate a balance; everything else goes through its atomic primitives.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
)

// AccountStore is the durable backing for account records. The ledger calls
// it write-through while still holding the affected account locks, so the
// persisted order matches the committed order. UpdateBalancesPair must write
// both rows atomically or not at all; a settle's two-sided movement relies
// on it.
type AccountStore interface {
	LoadAccounts(ctx context.Context) ([]models.Account, error)
	InsertAccount(ctx context.Context, account *models.Account) error
	UpdateBalances(ctx context.Context, id uuid.UUID, availableMicros, escrowedMicros int64, updatedAt time.Time) error
	UpdateBalancesPair(ctx context.Context, first, second models.BalanceUpdate) error
}

type account struct {
	mu  sync.Mutex
	rec models.Account
}

// Totals carries per-currency audit sums for reconciliation.
type Totals struct {
	CommittedMicros int64 // sum of available + escrowed across accounts
	DepositedMicros int64 // cumulative external deposits
}

// Ledger is the authoritative in-process balance table. Each account has its
// own exclusive section; operations touching two accounts acquire both locks
// in ascending account-id order so they cannot deadlock.
type Ledger struct {
	store AccountStore

	mu       sync.RWMutex
	accounts map[uuid.UUID]*account

	depositsMu sync.Mutex
	deposits   map[string]int64 // currency -> cumulative deposited micros
}

// Open loads the account table from the store and returns a ready ledger.
func Open(ctx context.Context, store AccountStore) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		accounts: make(map[uuid.UUID]*account),
		deposits: make(map[string]int64),
	}

	recs, err := store.LoadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, rec := range recs {
		l.accounts[rec.ID] = &account{rec: rec}
		// Funds that predate this process count as deposits for
		// conservation purposes.
		l.deposits[rec.Currency] += rec.AvailableMicros + rec.EscrowedMicros
	}
	return l, nil
}

// CreateAccount registers a new empty account owned by ownerID.
func (l *Ledger) CreateAccount(ctx context.Context, ownerID uuid.UUID, currency string) (models.Account, error) {
	now := time.Now().UTC()
	rec := models.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.store.InsertAccount(ctx, &rec); err != nil {
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}

	l.mu.Lock()
	l.accounts[rec.ID] = &account{rec: rec}
	l.mu.Unlock()
	return rec, nil
}

// Deposit credits available funds from outside the ledger. This is the only
// way total committed funds grow.
func (l *Ledger) Deposit(ctx context.Context, accountID uuid.UUID, amountMicros int64) error {
	if amountMicros <= 0 {
		return domain.ErrInvalidAmount
	}
	acc, err := l.lookup(accountID)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.rec.AvailableMicros > math.MaxInt64-amountMicros {
		return domain.ErrInvalidAmount
	}
	acc.rec.AvailableMicros += amountMicros
	if err := l.persist(ctx, acc); err != nil {
		acc.rec.AvailableMicros -= amountMicros
		return err
	}

	l.depositsMu.Lock()
	l.deposits[acc.rec.Currency] += amountMicros
	l.depositsMu.Unlock()
	return nil
}

// Escrow atomically moves amount from available to escrowed, failing with
// ErrInsufficientFunds when available cannot cover it. Funds committed to a
// pending transfer leave available immediately, so a concurrent proposal
// against the same account cannot oversubscribe the balance.
func (l *Ledger) Escrow(ctx context.Context, accountID uuid.UUID, amountMicros int64) error {
	if amountMicros <= 0 {
		return domain.ErrInvalidAmount
	}
	acc, err := l.lookup(accountID)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.rec.AvailableMicros < amountMicros {
		return domain.ErrInsufficientFunds
	}
	acc.rec.AvailableMicros -= amountMicros
	acc.rec.EscrowedMicros += amountMicros
	if err := l.persist(ctx, acc); err != nil {
		acc.rec.AvailableMicros += amountMicros
		acc.rec.EscrowedMicros -= amountMicros
		return err
	}
	return nil
}

// Settle moves previously escrowed funds from sender to receiver as one
// indivisible operation relative to anything else touching either account.
// Settling more than is escrowed is an invariant violation, not a user
// error; the offending mutation is aborted and nothing else is touched.
func (l *Ledger) Settle(ctx context.Context, senderID, receiverID uuid.UUID, amountMicros int64) error {
	if amountMicros <= 0 {
		return domain.ErrInvalidAmount
	}
	// A self-settle is a caller bug; locking the same account twice would
	// deadlock.
	if senderID == receiverID {
		return domain.ErrInternalInconsistency
	}
	sender, err := l.lookup(senderID)
	if err != nil {
		return err
	}
	receiver, err := l.lookup(receiverID)
	if err != nil {
		return err
	}

	unlock := lockPair(sender, receiver)
	defer unlock()

	if sender.rec.EscrowedMicros < amountMicros {
		zap.L().Error("settle exceeds escrowed funds",
			zap.String("sender_account", senderID.String()),
			zap.Int64("escrowed_micros", sender.rec.EscrowedMicros),
			zap.Int64("amount_micros", amountMicros),
		)
		return domain.ErrInternalInconsistency
	}

	sender.rec.EscrowedMicros -= amountMicros
	receiver.rec.AvailableMicros += amountMicros
	if err := l.persistPair(ctx, sender, receiver); err != nil {
		sender.rec.EscrowedMicros += amountMicros
		receiver.rec.AvailableMicros -= amountMicros
		return err
	}
	return nil
}

// Release returns escrowed funds to the account's available balance, used
// when a pending transfer is rejected or canceled.
func (l *Ledger) Release(ctx context.Context, accountID uuid.UUID, amountMicros int64) error {
	if amountMicros <= 0 {
		return domain.ErrInvalidAmount
	}
	acc, err := l.lookup(accountID)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.rec.EscrowedMicros < amountMicros {
		zap.L().Error("release exceeds escrowed funds",
			zap.String("account", accountID.String()),
			zap.Int64("escrowed_micros", acc.rec.EscrowedMicros),
			zap.Int64("amount_micros", amountMicros),
		)
		return domain.ErrInternalInconsistency
	}

	acc.rec.EscrowedMicros -= amountMicros
	acc.rec.AvailableMicros += amountMicros
	if err := l.persist(ctx, acc); err != nil {
		acc.rec.EscrowedMicros += amountMicros
		acc.rec.AvailableMicros -= amountMicros
		return err
	}
	return nil
}

// Snapshot returns a view of one account's balances that was consistent at a
// single instant. The account lock guarantees no torn read across the two
// fields.
func (l *Ledger) Snapshot(accountID uuid.UUID) (models.BalanceSnapshot, error) {
	acc, err := l.lookup(accountID)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return models.NewBalanceSnapshot(acc.rec.ID, acc.rec.Currency, acc.rec.AvailableMicros, acc.rec.EscrowedMicros), nil
}

// Account returns a copy of the account record.
func (l *Ledger) Account(accountID uuid.UUID) (models.Account, error) {
	acc, err := l.lookup(accountID)
	if err != nil {
		return models.Account{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.rec, nil
}

// Owner resolves the identity that owns the account.
func (l *Ledger) Owner(accountID uuid.UUID) (uuid.UUID, error) {
	acc, err := l.lookup(accountID)
	if err != nil {
		return uuid.Nil, err
	}
	// Ownership never changes after creation, no lock needed.
	return acc.rec.OwnerID, nil
}

// AccountsForOwner returns copies of all accounts owned by ownerID.
func (l *Ledger) AccountsForOwner(ownerID uuid.UUID) []models.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.Account
	for _, acc := range l.accounts {
		if acc.rec.OwnerID != ownerID {
			continue
		}
		acc.mu.Lock()
		out = append(out, acc.rec)
		acc.mu.Unlock()
	}
	return out
}

// AuditTotals sums committed funds per currency against cumulative deposits.
// Conservation holds when the two figures match for every currency.
func (l *Ledger) AuditTotals() map[string]Totals {
	l.depositsMu.Lock()
	totals := make(map[string]Totals, len(l.deposits))
	for currency, deposited := range l.deposits {
		totals[currency] = Totals{DepositedMicros: deposited}
	}
	l.depositsMu.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, acc := range l.accounts {
		acc.mu.Lock()
		t := totals[acc.rec.Currency]
		t.CommittedMicros += acc.rec.AvailableMicros + acc.rec.EscrowedMicros
		totals[acc.rec.Currency] = t
		acc.mu.Unlock()
	}
	return totals
}

func (l *Ledger) lookup(accountID uuid.UUID) (*account, error) {
	l.mu.RLock()
	acc, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

// persist writes the account's balances through to the store. Callers hold
// the account lock.
func (l *Ledger) persist(ctx context.Context, acc *account) error {
	acc.rec.UpdatedAt = time.Now().UTC()
	if err := l.store.UpdateBalances(ctx, acc.rec.ID, acc.rec.AvailableMicros, acc.rec.EscrowedMicros, acc.rec.UpdatedAt); err != nil {
		return fmt.Errorf("persist account %s: %w", acc.rec.ID, err)
	}
	return nil
}

// persistPair writes both accounts through the store as one atomic update, so
// the durable copy never holds half of a two-sided movement. Callers hold
// both account locks.
func (l *Ledger) persistPair(ctx context.Context, a, b *account) error {
	now := time.Now().UTC()
	a.rec.UpdatedAt = now
	b.rec.UpdatedAt = now
	err := l.store.UpdateBalancesPair(ctx,
		models.BalanceUpdate{AccountID: a.rec.ID, AvailableMicros: a.rec.AvailableMicros, EscrowedMicros: a.rec.EscrowedMicros, UpdatedAt: now},
		models.BalanceUpdate{AccountID: b.rec.ID, AvailableMicros: b.rec.AvailableMicros, EscrowedMicros: b.rec.EscrowedMicros, UpdatedAt: now},
	)
	if err != nil {
		return fmt.Errorf("persist accounts %s, %s: %w", a.rec.ID, b.rec.ID, err)
	}
	return nil
}

// lockPair locks two accounts in ascending id order and returns the unlock.
func lockPair(a, b *account) func() {
	if bytes.Compare(a.rec.ID[:], b.rec.ID[:]) > 0 {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}
