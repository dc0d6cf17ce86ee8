package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/notification"
	"github.com/peerpay/ledgercore/internal/observability"
)

// DispatchWorker drains the transfer event queue and hands each event to the
// notification service. One consumer keeps per-identity notification order
// matching event order.
type DispatchWorker struct {
	dispatcher *notification.Dispatcher
	svc        *notification.Service
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewDispatchWorker(dispatcher *notification.Dispatcher, svc *notification.Service) *DispatchWorker {
	return &DispatchWorker{
		dispatcher: dispatcher,
		svc:        svc,
		stopCh:     make(chan struct{}),
	}
}

// Start blocks and consumes events until stopped.
func (w *DispatchWorker) Start(ctx context.Context) {
	zap.L().Info("event dispatch worker starting")

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("event dispatch worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("event dispatch worker stop signal received")
			return
		case event := <-w.dispatcher.Events():
			observability.SetEventQueueSize(len(w.dispatcher.Events()))
			if err := w.svc.HandleEvent(ctx, event); err != nil {
				observability.IncrementWorkerRun("dispatch", "failed")
				zap.L().Error("event handling failed",
					zap.String("transfer_id", event.TransferID.String()),
					zap.String("kind", string(event.Kind)),
					zap.Error(err),
				)
				continue
			}
			observability.IncrementWorkerRun("dispatch", "success")
		}
	}
}

// Stop stops the running worker loop.
func (w *DispatchWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *DispatchWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
