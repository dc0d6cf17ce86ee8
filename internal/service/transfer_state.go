package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
)

// transferLocks serializes decisions per transfer. Concurrent decide calls
// on the same transfer race for the stripe; the winner performs the ledger
// side effect and finalizes, the loser observes AlreadyFinalized.
type transferLocks struct {
	stripes [64]sync.Mutex
}

func (l *transferLocks) lock(id uuid.UUID) func() {
	h := fnv.New32a()
	h.Write(id[:])
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

// transition drives a pending transfer to a terminal status. The ledger side
// effect must succeed before the status is durably recorded; if it fails the
// transfer stays Pending and the fault is surfaced to the caller. Callers
// hold the transfer's stripe lock.
func (c *TransferCoordinator) transition(ctx context.Context, transfer *models.Transfer, next domain.TransferStatus) error {
	if transfer.Status.Terminal() {
		return domain.ErrAlreadyFinalized
	}
	if !transfer.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInternalInconsistency, transfer.Status, next)
	}

	switch next {
	case domain.TransferAccepted:
		if err := c.ledger.Settle(ctx, transfer.SenderAccountID, transfer.ReceiverAccountID, transfer.AmountMicros); err != nil {
			return err
		}
	case domain.TransferRejected:
		if err := c.ledger.Release(ctx, transfer.SenderAccountID, transfer.AmountMicros); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unexpected terminal status %s", domain.ErrInternalInconsistency, next)
	}

	decidedAt := time.Now().UTC()
	if err := c.store.FinalizeTransfer(ctx, transfer.ID, next, decidedAt); err != nil {
		// Funds already moved; this must never pass silently.
		zap.L().Error("transfer finalize failed after ledger mutation",
			zap.String("transfer_id", transfer.ID.String()),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return fmt.Errorf("finalize transfer %s: %w", transfer.ID, err)
	}

	transfer.Status = next
	transfer.DecidedAt = &decidedAt
	return nil
}
