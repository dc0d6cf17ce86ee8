package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
	"github.com/peerpay/ledgercore/internal/observability"
)

// Service turns transfer events into stored notifications and pushes them
// out. Events may arrive more than once; the store dedups, so HandleEvent is
// safe to retry.
type Service struct {
	store     Store
	deliverer Deliverer
}

func NewService(store Store, deliverer Deliverer) *Service {
	return &Service{store: store, deliverer: deliverer}
}

// HandleEvent consumes one transfer event. A proposal notifies the receiver
// (they have a decision to make); a terminal decision notifies the sender.
func (s *Service) HandleEvent(ctx context.Context, event domain.TransferEvent) error {
	var target uuid.UUID
	var title, body string

	amount := event.Amount.String()
	switch event.Kind {
	case domain.EventProposed:
		target = event.ReceiverIdentity
		title = "Incoming transfer"
		body = fmt.Sprintf("You have a pending transfer of %s awaiting your decision.", amount)
	case domain.EventAccepted:
		target = event.SenderIdentity
		title = "Transfer accepted"
		body = fmt.Sprintf("Your transfer of %s was accepted.", amount)
	case domain.EventRejected:
		target = event.SenderIdentity
		title = "Transfer rejected"
		body = fmt.Sprintf("Your transfer of %s was rejected and the funds returned.", amount)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	n := &models.Notification{
		ID:         uuid.New(),
		IdentityID: target,
		TransferID: event.TransferID,
		Kind:       event.Kind,
		Title:      title,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	channel, err := s.deliverer.Deliver(ctx, *n)
	if err != nil {
		// The row is stored; push delivery is best effort.
		observability.IncrementDelivery(channel, "error")
		zap.L().Warn("notification delivery failed",
			zap.String("transfer_id", event.TransferID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return nil
	}
	observability.IncrementDelivery(channel, "ok")
	return nil
}

// List returns an identity's notifications, newest first.
func (s *Service) List(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListNotifications(ctx, identityID, limit, offset)
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, identityID, notificationID uuid.UUID) error {
	return s.store.MarkNotificationRead(ctx, identityID, notificationID)
}
