package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind labels a transfer lifecycle event.
type EventKind string

const (
	EventProposed EventKind = "transfer.proposed"
	EventAccepted EventKind = "transfer.accepted"
	EventRejected EventKind = "transfer.rejected"
)

// TransferEvent is handed to the notification collaborator whenever a
// transfer changes state. Delivery is best-effort; consumers deduplicate
// replays by (TransferID, Kind).
type TransferEvent struct {
	TransferID       uuid.UUID `json:"transfer_id"`
	Kind             EventKind `json:"kind"`
	SenderIdentity   uuid.UUID `json:"sender_identity"`
	ReceiverIdentity uuid.UUID `json:"receiver_identity"`
	Amount           Money     `json:"amount"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// EventSink consumes transfer lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event TransferEvent) error
}
