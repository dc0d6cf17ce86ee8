package notification

import (
	"context"
	"fmt"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/observability"
)

// Dispatcher is the in-process event sink. Publish enqueues; the dispatch
// worker drains Events and hands each event to the notification service.
// The buffer gives at-least-once delivery within the process; a full buffer
// rejects the publish rather than blocking the transfer path.
type Dispatcher struct {
	events chan domain.TransferEvent
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 256
	}
	return &Dispatcher{events: make(chan domain.TransferEvent, buffer)}
}

// Publish implements domain.EventSink.
func (d *Dispatcher) Publish(ctx context.Context, event domain.TransferEvent) error {
	select {
	case d.events <- event:
		observability.SetEventQueueSize(len(d.events))
		return nil
	default:
		return fmt.Errorf("event queue full, dropping %s for transfer %s", event.Kind, event.TransferID)
	}
}

// Events exposes the queue to the dispatch worker.
func (d *Dispatcher) Events() <-chan domain.TransferEvent {
	return d.events
}
