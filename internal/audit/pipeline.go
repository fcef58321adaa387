package audit

import (
	"context"
	"log/slog"

	"caretrail/internal/policy"
	"caretrail/internal/principal"
	"caretrail/pkg/platform/middleware/metadata"
)

// Operation describes one protected mutation for the pipeline: what it
// demands, what it touches, and the opaque mutating call itself.
type Operation struct {
	Requirement  policy.Requirement
	Action       Action
	TargetEntity string
	TargetID     string
	// CaptureBefore reads the target's current state ahead of the mutation.
	// Leave false for creations, where there is no prior state.
	CaptureBefore bool
	// Mutate performs the business operation. Its return value becomes the
	// after-state snapshot when it carries full entity state.
	Mutate func(ctx context.Context) (any, error)
	// TargetIDFrom supplies the target id from the mutation result, for
	// creations where no id exists up front. Ignored when TargetID is set.
	TargetIDFrom func(result any) string
	// FanOut, when set, maps the mutation result to additional drafts so one
	// business event yields an independent entry per affected party.
	FanOut func(result any) []Draft
}

// Pipeline is the glue every protected handler goes through:
// authorize, capture before-state, mutate, capture after-state, record.
// The recording tail is asynchronous; only authorization and the mutation
// itself can fail the request.
type Pipeline struct {
	engine   *policy.Engine
	capture  *Capture
	recorder *Recorder
	metrics  *Metrics
	logger   *slog.Logger
}

func NewPipeline(engine *policy.Engine, capture *Capture, recorder *Recorder, metrics *Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		engine:   engine,
		capture:  capture,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Do runs the operation through the full pipeline. If the mutation fails,
// any captured before-state is discarded and nothing is recorded; a failed
// operation leaves no trail claiming it happened.
func (p *Pipeline) Do(ctx context.Context, pc *principal.Context, op Operation) (any, error) {
	decision, err := p.engine.Authorize(ctx, pc, op.Requirement)
	if err != nil {
		p.metrics.AuthzDenied.Inc()
		p.logger.WarnContext(ctx, "authorization denied",
			"reason", decision.Reason,
			"action", op.Action,
			"target_entity", op.TargetEntity,
		)
		return nil, err
	}

	var before Snapshot
	if op.CaptureBefore {
		before = p.capture.Before(ctx, op.TargetEntity, op.TargetID)
	}

	result, err := op.Mutate(ctx)
	if err != nil {
		return nil, err
	}

	after := p.capture.After(result)

	targetID := op.TargetID
	if targetID == "" && op.TargetIDFrom != nil {
		targetID = op.TargetIDFrom(result)
	}

	draft := Draft{
		ActorID:      pc.Principal().ID,
		Action:       op.Action,
		TargetEntity: op.TargetEntity,
		TargetID:     targetID,
		Before:       before,
		After:        after,
		IPAddress:    metadata.GetClientIP(ctx),
		UserAgent:    metadata.GetUserAgent(ctx),
		Device:       metadata.GetDevice(ctx),
	}

	drafts := []Draft{draft}
	if op.FanOut != nil {
		for _, extra := range op.FanOut(result) {
			if extra.IPAddress == "" {
				extra.IPAddress = draft.IPAddress
			}
			if extra.UserAgent == "" {
				extra.UserAgent = draft.UserAgent
			}
			if extra.Device == "" {
				extra.Device = draft.Device
			}
			drafts = append(drafts, extra)
		}
	}
	p.recorder.RecordAll(ctx, drafts...)

	return result, nil
}
