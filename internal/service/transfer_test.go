package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/ledger"
	"github.com/peerpay/ledgercore/internal/repository"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []domain.TransferEvent
}

func (s *captureSink) Publish(ctx context.Context, event domain.TransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	store       *repository.MemoryStore
	ledger      *ledger.Ledger
	coordinator *TransferCoordinator
	sink        *captureSink

	alice, bob       uuid.UUID // identities
	aliceAcc, bobAcc uuid.UUID // USD accounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	l, err := ledger.Open(ctx, store)
	require.NoError(t, err)

	f := &fixture{
		store:  store,
		ledger: l,
		sink:   &captureSink{},
		alice:  uuid.New(),
		bob:    uuid.New(),
	}
	f.coordinator = NewTransferCoordinator(l, store, NewOwnershipGuard(l), f.sink)

	aliceAcc, err := l.CreateAccount(ctx, f.alice, "USD")
	require.NoError(t, err)
	bobAcc, err := l.CreateAccount(ctx, f.bob, "USD")
	require.NoError(t, err)
	f.aliceAcc = aliceAcc.ID
	f.bobAcc = bobAcc.ID

	require.NoError(t, l.Deposit(ctx, f.aliceAcc, 100_000_000))
	return f
}

func (f *fixture) available(t *testing.T, accID uuid.UUID) int64 {
	t.Helper()
	acc, err := f.ledger.Account(accID)
	require.NoError(t, err)
	return acc.AvailableMicros
}

func (f *fixture) escrowed(t *testing.T, accID uuid.UUID) int64 {
	t.Helper()
	acc, err := f.ledger.Account(accID)
	require.NoError(t, err)
	return acc.EscrowedMicros
}

// Scenario: Alice proposes 60 to Bob, Bob accepts.
func TestProposeThenAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 60_000_000, "rent")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, transfer.Status)
	assert.Equal(t, int64(40_000_000), f.available(t, f.aliceAcc))
	assert.Equal(t, int64(60_000_000), f.escrowed(t, f.aliceAcc))

	decided, err := f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferAccepted, decided.Status)
	require.NotNil(t, decided.DecidedAt)

	assert.Equal(t, int64(40_000_000), f.available(t, f.aliceAcc))
	assert.Equal(t, int64(0), f.escrowed(t, f.aliceAcc))
	assert.Equal(t, int64(60_000_000), f.available(t, f.bobAcc))

	assert.Equal(t, []domain.EventKind{domain.EventProposed, domain.EventAccepted}, f.sink.kinds())
}

// Scenario: Bob rejects; Alice's escrow returns in full.
func TestProposeThenReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 60_000_000, "")
	require.NoError(t, err)

	decided, err := f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeReject)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferRejected, decided.Status)

	assert.Equal(t, int64(100_000_000), f.available(t, f.aliceAcc))
	assert.Equal(t, int64(0), f.escrowed(t, f.aliceAcc))
	assert.Equal(t, int64(0), f.available(t, f.bobAcc))
}

// Scenario: Alice cancels her own pending transfer before Bob decides.
func TestSenderCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 30_000_000, "")
	require.NoError(t, err)

	canceled, err := f.coordinator.Cancel(ctx, f.alice, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferRejected, canceled.Status)
	assert.Equal(t, int64(100_000_000), f.available(t, f.aliceAcc))

	// Bob cannot decide a transfer that is already canceled.
	_, err = f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeAccept)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, -1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.aliceAcc, 1_000_000, "")
	assert.ErrorIs(t, err, domain.ErrSameAccount)

	// Bob cannot spend from Alice's account.
	_, err = f.coordinator.Propose(ctx, f.bob, f.aliceAcc, f.bobAcc, 1_000_000, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.coordinator.Propose(ctx, f.alice, f.aliceAcc, uuid.New(), 1_000_000, "")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 200_000_000, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Validation failures leave no residue.
	assert.Equal(t, int64(100_000_000), f.available(t, f.aliceAcc))
	assert.Equal(t, int64(0), f.escrowed(t, f.aliceAcc))
	assert.Empty(t, f.sink.kinds())
}

func TestProposeCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eurAcc, err := f.ledger.CreateAccount(ctx, f.bob, "EUR")
	require.NoError(t, err)

	_, err = f.coordinator.Propose(ctx, f.alice, f.aliceAcc, eurAcc.ID, 1_000_000, "")
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestDecideAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 10_000_000, "")
	require.NoError(t, err)

	// Only the receiver may decide; the sender must cancel instead.
	_, err = f.coordinator.Decide(ctx, f.alice, transfer.ID, domain.OutcomeAccept)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Only the sender may cancel.
	_, err = f.coordinator.Cancel(ctx, f.bob, transfer.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.coordinator.Decide(ctx, f.bob, uuid.New(), domain.OutcomeAccept)
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
}

// N concurrent decides on one transfer: exactly one commits, the rest see
// AlreadyFinalized, and funds move exactly once.
func TestConcurrentDecidesSettleAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 60_000_000, "")
	require.NoError(t, err)

	const n = 16
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := domain.OutcomeAccept
			if i%2 == 1 {
				outcome = domain.OutcomeReject
			}
			_, err := f.coordinator.Decide(ctx, f.bob, transfer.ID, outcome)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var committed, finalized int
	for err := range results {
		switch {
		case err == nil:
			committed++
		case assert.ErrorIs(t, err, domain.ErrAlreadyFinalized):
			finalized++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, n-1, finalized)

	// Whatever the winning verdict, conservation holds and nothing settled
	// twice.
	total := f.available(t, f.aliceAcc) + f.escrowed(t, f.aliceAcc) + f.available(t, f.bobAcc)
	assert.Equal(t, int64(100_000_000), total)
	assert.Equal(t, int64(0), f.escrowed(t, f.aliceAcc))

	final, err := f.coordinator.GetTransfer(ctx, f.bob, transfer.ID)
	require.NoError(t, err)
	assert.True(t, final.Status.Terminal())
}

// Replaying a decision against a terminal transfer is a no-op with a
// distinguishable error, never a second settlement.
func TestDecideIdempotentOnTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 60_000_000, "")
	require.NoError(t, err)

	_, err = f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeAccept)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeAccept)
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
		_, err = f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeReject)
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
		_, err = f.coordinator.Cancel(ctx, f.alice, transfer.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	}

	assert.Equal(t, int64(60_000_000), f.available(t, f.bobAcc))
	assert.Equal(t, int64(40_000_000), f.available(t, f.aliceAcc))
}

func TestGetTransferVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 10_000_000, "")
	require.NoError(t, err)

	// Both parties can see it.
	_, err = f.coordinator.GetTransfer(ctx, f.alice, transfer.ID)
	assert.NoError(t, err)
	_, err = f.coordinator.GetTransfer(ctx, f.bob, transfer.ID)
	assert.NoError(t, err)

	// A stranger cannot.
	_, err = f.coordinator.GetTransfer(ctx, uuid.New(), transfer.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 1_000_000, "")
		require.NoError(t, err)
	}

	transfers, err := f.coordinator.ListTransfersForAccount(ctx, f.alice, f.aliceAcc, 10, 0)
	require.NoError(t, err)
	assert.Len(t, transfers, 3)

	// Bob sees the same transfers through his own account.
	transfers, err = f.coordinator.ListTransfersForIdentity(ctx, f.bob, 10, 0)
	require.NoError(t, err)
	assert.Len(t, transfers, 3)

	// But cannot list Alice's account directly.
	_, err = f.coordinator.ListTransfersForAccount(ctx, f.bob, f.aliceAcc, 10, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
