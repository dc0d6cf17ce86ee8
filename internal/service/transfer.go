package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/ledger"
	"github.com/peerpay/ledgercore/internal/models"
	"github.com/peerpay/ledgercore/internal/observability"
)

// TransferCoordinator orchestrates a transfer end to end: ownership and
// funds validation, escrow, the transfer record's lifecycle, and settlement
// or release on the terminal decision. It holds no balance state of its own.
type TransferCoordinator struct {
	ledger *ledger.Ledger
	store  TransferStore
	guard  *OwnershipGuard
	sink   domain.EventSink
	locks  transferLocks
}

func NewTransferCoordinator(l *ledger.Ledger, store TransferStore, guard *OwnershipGuard, sink domain.EventSink) *TransferCoordinator {
	return &TransferCoordinator{
		ledger: l,
		store:  store,
		guard:  guard,
		sink:   sink,
	}
}

// Propose escrows the amount on the sender account and creates a Pending
// transfer awaiting the receiver's decision. The funds check and the
// reservation are one atomic escrow, so two concurrent proposals cannot both
// pass a stale balance check.
func (c *TransferCoordinator) Propose(ctx context.Context, senderIdentity, senderAccountID, receiverAccountID uuid.UUID, amountMicros int64, description string) (*models.Transfer, error) {
	if amountMicros <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if senderAccountID == receiverAccountID {
		return nil, domain.ErrSameAccount
	}
	if err := c.guard.Authorize(senderIdentity, senderAccountID); err != nil {
		return nil, err
	}

	sender, err := c.ledger.Account(senderAccountID)
	if err != nil {
		return nil, err
	}
	receiver, err := c.ledger.Account(receiverAccountID)
	if err != nil {
		return nil, err
	}
	if sender.Currency != receiver.Currency {
		return nil, domain.ErrCurrencyMismatch
	}

	if err := c.ledger.Escrow(ctx, senderAccountID, amountMicros); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			observability.IncrementTransferOutcome("propose", "insufficient_funds")
		}
		return nil, err
	}

	transfer := &models.Transfer{
		ID:                uuid.New(),
		SenderAccountID:   senderAccountID,
		ReceiverAccountID: receiverAccountID,
		AmountMicros:      amountMicros,
		Currency:          sender.Currency,
		Description:       description,
		Status:            domain.TransferPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := c.store.CreateTransfer(ctx, transfer); err != nil {
		// The escrow must not outlive a transfer that was never recorded.
		if releaseErr := c.ledger.Release(ctx, senderAccountID, amountMicros); releaseErr != nil {
			zap.L().Error("escrow release after failed create",
				zap.String("sender_account", senderAccountID.String()),
				zap.Error(releaseErr),
			)
		}
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	observability.IncrementTransferOutcome("propose", "ok")
	c.emit(ctx, transfer, domain.EventProposed)
	return transfer, nil
}

// Decide applies the receiver's accept or reject verdict. Exactly one
// decision ever commits; later calls return AlreadyFinalized with zero side
// effects.
func (c *TransferCoordinator) Decide(ctx context.Context, decidingIdentity, transferID uuid.UUID, outcome domain.DecisionOutcome) (*models.Transfer, error) {
	unlock := c.locks.lock(transferID)
	defer unlock()

	transfer, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := c.guard.Authorize(decidingIdentity, transfer.ReceiverAccountID); err != nil {
		return nil, err
	}

	var next domain.TransferStatus
	var kind domain.EventKind
	switch outcome {
	case domain.OutcomeAccept:
		next, kind = domain.TransferAccepted, domain.EventAccepted
	case domain.OutcomeReject:
		next, kind = domain.TransferRejected, domain.EventRejected
	default:
		return nil, fmt.Errorf("unknown decision outcome: %q", outcome)
	}

	if err := c.transition(ctx, transfer, next); err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			observability.IncrementTransferOutcome("decide", "already_finalized")
		}
		return nil, err
	}

	observability.IncrementTransferOutcome("decide", string(outcome))
	c.emit(ctx, transfer, kind)
	return transfer, nil
}

// Cancel is the sender-initiated withdrawal of a pending transfer. It reuses
// the Pending -> Rejected transition and the escrow release, but authorizes
// against the sender account instead of the receiver.
func (c *TransferCoordinator) Cancel(ctx context.Context, cancelingIdentity, transferID uuid.UUID) (*models.Transfer, error) {
	unlock := c.locks.lock(transferID)
	defer unlock()

	transfer, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := c.guard.Authorize(cancelingIdentity, transfer.SenderAccountID); err != nil {
		return nil, err
	}

	if err := c.transition(ctx, transfer, domain.TransferRejected); err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			observability.IncrementTransferOutcome("cancel", "already_finalized")
		}
		return nil, err
	}

	observability.IncrementTransferOutcome("cancel", "ok")
	c.emit(ctx, transfer, domain.EventRejected)
	return transfer, nil
}

// GetTransfer returns a transfer visible to the identity (a party on either
// side).
func (c *TransferCoordinator) GetTransfer(ctx context.Context, identityID, transferID uuid.UUID) (*models.Transfer, error) {
	transfer, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}

	senderOwns, err := c.guard.Owns(identityID, transfer.SenderAccountID)
	if err != nil {
		return nil, err
	}
	receiverOwns, err := c.guard.Owns(identityID, transfer.ReceiverAccountID)
	if err != nil {
		return nil, err
	}
	if !senderOwns && !receiverOwns {
		return nil, domain.ErrUnauthorized
	}
	return transfer, nil
}

// ListTransfersForAccount lists transfers where the account is sender or
// receiver, newest first.
func (c *TransferCoordinator) ListTransfersForAccount(ctx context.Context, identityID, accountID uuid.UUID, limit, offset int) ([]models.Transfer, error) {
	if err := c.guard.Authorize(identityID, accountID); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	return c.store.ListTransfersByAccounts(ctx, []uuid.UUID{accountID}, limit, offset)
}

// ListTransfersForIdentity lists transfers touching any account the identity
// owns.
func (c *TransferCoordinator) ListTransfersForIdentity(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]models.Transfer, error) {
	accounts := c.ledger.AccountsForOwner(identityID)
	if len(accounts) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	limit, offset = normalizePage(limit, offset)
	return c.store.ListTransfersByAccounts(ctx, ids, limit, offset)
}

func (c *TransferCoordinator) emit(ctx context.Context, transfer *models.Transfer, kind domain.EventKind) {
	if c.sink == nil {
		return
	}

	senderIdentity, err := c.ledger.Owner(transfer.SenderAccountID)
	if err != nil {
		zap.L().Warn("event sender owner lookup failed", zap.Error(err))
		return
	}
	receiverIdentity, err := c.ledger.Owner(transfer.ReceiverAccountID)
	if err != nil {
		zap.L().Warn("event receiver owner lookup failed", zap.Error(err))
		return
	}

	event := domain.TransferEvent{
		TransferID:       transfer.ID,
		Kind:             kind,
		SenderIdentity:   senderIdentity,
		ReceiverIdentity: receiverIdentity,
		Amount:           transfer.Amount(),
		OccurredAt:       time.Now().UTC(),
	}
	if err := c.sink.Publish(ctx, event); err != nil {
		zap.L().Warn("transfer event publish failed",
			zap.String("transfer_id", transfer.ID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
