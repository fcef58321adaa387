package audit

import (
	"context"
	"log/slog"
	"time"
)

// Worker drains the recorder inbox and persists entries. Persistence failure
// is logged and counted, never retried synchronously and never surfaced to
// the request that produced the entry; the worker keeps running.
type Worker struct {
	store   Store
	inbox   <-chan Entry
	metrics *Metrics
	logger  *slog.Logger

	// drainTimeout bounds the final flush on shutdown.
	drainTimeout time.Duration
}

func NewWorker(store Store, inbox <-chan Entry, metrics *Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		store:        store,
		inbox:        inbox,
		metrics:      metrics,
		logger:       logger,
		drainTimeout: 5 * time.Second,
	}
}

// Run consumes entries until ctx is cancelled, then drains whatever is still
// queued so a clean shutdown loses as little as possible.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case entry := <-w.inbox:
			w.persist(ctx, entry)
		}
	}
}

func (w *Worker) persist(ctx context.Context, entry Entry) {
	if err := w.store.Append(ctx, entry); err != nil {
		w.metrics.PersistFailures.Inc()
		w.logger.ErrorContext(ctx, "audit entry persistence failed",
			"entry_id", entry.ID,
			"action", entry.Action,
			"target_entity", entry.TargetEntity,
			"error", err,
		)
	}
	w.metrics.QueueDepth.Set(float64(len(w.inbox)))
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()
	for {
		select {
		case entry := <-w.inbox:
			w.persist(ctx, entry)
		case <-ctx.Done():
			return
		default:
			return
		}
	}
}
