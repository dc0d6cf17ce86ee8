package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/models"
)

// Store persists notifications. Inserts are idempotent on
// (transfer, kind, identity) so re-delivered events never duplicate rows.
type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, identityID, notificationID uuid.UUID) error
}
