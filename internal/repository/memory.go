package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
)

// MemoryStore implements the same store contracts as Repository without a
// database. It is the reference implementation of the abstract durable store
// and what the unit and property tests run against.
type MemoryStore struct {
	mu            sync.Mutex
	identities    map[uuid.UUID]models.Identity
	usernames     map[string]uuid.UUID
	accounts      map[uuid.UUID]models.Account
	transfers     map[uuid.UUID]models.Transfer
	notifications map[uuid.UUID][]models.Notification
	notifSeen     map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:    make(map[uuid.UUID]models.Identity),
		usernames:     make(map[string]uuid.UUID),
		accounts:      make(map[uuid.UUID]models.Account),
		transfers:     make(map[uuid.UUID]models.Transfer),
		notifications: make(map[uuid.UUID][]models.Notification),
		notifSeen:     make(map[string]struct{}),
	}
}

func (s *MemoryStore) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[identity.Username]; ok {
		return fmt.Errorf("username %q already exists", identity.Username)
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	s.identities[identity.ID] = *identity
	s.usernames[identity.Username] = identity.ID
	return nil
}

func (s *MemoryStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %s not found", id)
	}
	return &identity, nil
}

func (s *MemoryStore) GetIdentityByUsername(ctx context.Context, username string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, fmt.Errorf("identity %q not found", username)
	}
	identity := s.identities[id]
	return &identity, nil
}

func (s *MemoryStore) LoadAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *MemoryStore) InsertAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *MemoryStore) UpdateBalances(ctx context.Context, id uuid.UUID, availableMicros, escrowedMicros int64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s not found", id)
	}
	account.AvailableMicros = availableMicros
	account.EscrowedMicros = escrowedMicros
	account.UpdatedAt = updatedAt
	s.accounts[id] = account
	return nil
}

// UpdateBalancesPair applies both updates under one critical section; either
// both accounts change or neither does.
func (s *MemoryStore) UpdateBalancesPair(ctx context.Context, first, second models.BalanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range []models.BalanceUpdate{first, second} {
		if _, ok := s.accounts[u.AccountID]; !ok {
			return fmt.Errorf("account %s not found", u.AccountID)
		}
	}
	for _, u := range []models.BalanceUpdate{first, second} {
		account := s.accounts[u.AccountID]
		account.AvailableMicros = u.AvailableMicros
		account.EscrowedMicros = u.EscrowedMicros
		account.UpdatedAt = u.UpdatedAt
		s.accounts[u.AccountID] = account
	}
	return nil
}

func (s *MemoryStore) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfers[transfer.ID]; ok {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}
	s.transfers[transfer.ID] = *transfer
	return nil
}

func (s *MemoryStore) GetTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[id]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return &transfer, nil
}

func (s *MemoryStore) FinalizeTransfer(ctx context.Context, id uuid.UUID, status domain.TransferStatus, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[id]
	if !ok {
		return domain.ErrTransferNotFound
	}
	if transfer.Status != domain.TransferPending {
		return domain.ErrAlreadyFinalized
	}
	transfer.Status = status
	transfer.DecidedAt = &decidedAt
	s.transfers[id] = transfer
	return nil
}

func (s *MemoryStore) ListTransfersByAccounts(ctx context.Context, accountIDs []uuid.UUID, limit, offset int) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make(map[uuid.UUID]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		members[id] = struct{}{}
	}

	var matched []models.Transfer
	for _, t := range s.transfers {
		_, sender := members[t.SenderAccountID]
		_, receiver := members[t.ReceiverAccountID]
		if sender || receiver {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same dedup key as the unique index in Postgres.
	seenKey := fmt.Sprintf("%s|%s|%s", n.TransferID, n.Kind, n.IdentityID)
	if _, ok := s.notifSeen[seenKey]; ok {
		return nil
	}
	s.notifSeen[seenKey] = struct{}{}
	s.notifications[n.IdentityID] = append(s.notifications[n.IdentityID], *n)
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.notifications[identityID]
	out := make([]models.Notification, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, identityID, notificationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[identityID]
	for i := range list {
		if list[i].ID == notificationID {
			list[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s not found for identity %s", notificationID, identityID)
}
