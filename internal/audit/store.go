package audit

import (
	"context"
	"time"

	dErrors "caretrail/pkg/domain-errors"
)

// ErrEntryNotFound is returned by stores when no entry matches the id.
var ErrEntryNotFound = dErrors.New(dErrors.CodeNotFound, "audit entry not found")

// Store is the durable append-only sink for audit entries. Deliberately no
// update or delete method exists; persisted entries are immutable.
// Appends are independent inserts per entry, safe under concurrency.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	GetByID(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
	Statistics(ctx context.Context, from, to time.Time) (Stats, error)
	VerifyIntegrity(ctx context.Context, limit int) (IntegrityReport, error)
}
