package audit

import (
	"context"
	"log/slog"
)

// EntityReader is the external read collaborator change capture depends on.
// Implementations live with the entity storage, outside this subsystem.
type EntityReader interface {
	ReadEntity(ctx context.Context, entityType, entityID string) (Snapshot, error)
}

// Capture takes best-effort before/after snapshots of a target entity around
// an opaque mutation. Lookup failures degrade to a nil snapshot; they never
// abort the operation being audited.
type Capture struct {
	reader EntityReader
	logger *slog.Logger
}

func NewCapture(reader EntityReader, logger *slog.Logger) *Capture {
	return &Capture{reader: reader, logger: logger}
}

// Before reads the entity's current state. Call it strictly before the
// mutation executes; the mutation may alter or delete the row.
func (c *Capture) Before(ctx context.Context, entityType, entityID string) Snapshot {
	if c.reader == nil || entityType == "" || entityID == "" {
		return nil
	}
	snap, err := c.reader.ReadEntity(ctx, entityType, entityID)
	if err != nil {
		c.logger.DebugContext(ctx, "before-capture lookup failed",
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
		return nil
	}
	return snap
}

// After derives the post-mutation snapshot from the mutation's own return
// value. Results that cannot be represented as a snapshot yield nil.
func (c *Capture) After(result any) Snapshot {
	return NormalizeSnapshot(result)
}

// AfterRead re-reads the entity when the mutation does not return full state.
func (c *Capture) AfterRead(ctx context.Context, entityType, entityID string) Snapshot {
	return c.Before(ctx, entityType, entityID)
}
