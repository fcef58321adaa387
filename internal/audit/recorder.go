package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"caretrail/internal/ids"
)

var tracer = otel.Tracer("caretrail/internal/audit")

// Recorder assembles, redacts, and enqueues immutable audit entries. Record
// never returns an error and never blocks: entries go into a bounded inbox
// drained by the Worker, so a slow or failing store cannot affect the
// operation being audited. When the inbox is full the entry is dropped and
// counted rather than stalling the request path.
type Recorder struct {
	inbox   chan Entry
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewRecorder(queueSize int, metrics *Metrics, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &Recorder{
		inbox:   make(chan Entry, queueSize),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Inbox exposes the receive side for the Worker.
func (r *Recorder) Inbox() <-chan Entry {
	return r.inbox
}

// Record validates the draft, redacts both snapshots, assigns the id and
// server-side timestamp, and enqueues the entry. It returns the assigned id,
// or "" when the draft was rejected or dropped. It never blocks the caller.
func (r *Recorder) Record(ctx context.Context, draft Draft) string {
	_, span := tracer.Start(ctx, "audit.Record")
	defer span.End()

	if !r.validate(ctx, draft) {
		r.metrics.Rejected.Inc()
		return ""
	}

	entry := r.seal(draft)
	span.SetAttributes(
		attribute.String("audit.action", string(entry.Action)),
		attribute.String("audit.target_entity", entry.TargetEntity),
	)

	select {
	case r.inbox <- entry:
		r.metrics.Recorded.Inc()
		r.metrics.QueueDepth.Set(float64(len(r.inbox)))
		return entry.ID
	default:
		r.metrics.Dropped.Inc()
		r.logger.WarnContext(ctx, "audit inbox full, entry dropped",
			"action", entry.Action,
			"target_entity", entry.TargetEntity,
		)
		return ""
	}
}

// RecordAll enqueues one independent entry per draft. The drafts belong to
// one logical business event (fan-out), but each is redacted, sealed, and
// persisted on its own: a failure writing one entry does not block another.
func (r *Recorder) RecordAll(ctx context.Context, drafts ...Draft) []string {
	entryIDs := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		if id := r.Record(ctx, draft); id != "" {
			entryIDs = append(entryIDs, id)
		}
	}
	return entryIDs
}

// seal turns a validated draft into the immutable entry that will be
// persisted. Snapshots are redacted here, before the entry ever leaves the
// request's scope; any client-supplied timestamp is ignored.
func (r *Recorder) seal(draft Draft) Entry {
	entry := Entry{
		ID:           ids.New(),
		ActorID:      draft.ActorID,
		Action:       draft.Action,
		TargetEntity: draft.TargetEntity,
		TargetID:     draft.TargetID,
		BeforeState:  Redact(draft.Before),
		AfterState:   Redact(draft.After),
		IPAddress:    draft.IPAddress,
		UserAgent:    draft.UserAgent,
		Device:       draft.Device,
		Timestamp:    r.now().UTC(),
	}
	entry.ContentHash = ContentHash(entry)
	return entry
}

func (r *Recorder) validate(ctx context.Context, draft Draft) bool {
	switch {
	case draft.ActorID == uuid.Nil:
		r.logger.WarnContext(ctx, "audit draft missing actor id", "action", draft.Action)
		return false
	case !draft.Action.Valid():
		r.logger.WarnContext(ctx, "audit draft has invalid action", "action", draft.Action)
		return false
	case draft.TargetEntity == "":
		r.logger.WarnContext(ctx, "audit draft missing target entity", "action", draft.Action)
		return false
	}
	return true
}
