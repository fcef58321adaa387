package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
)

func parseActorID(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// sortFields is the explicit allow-list for the sort parameter. Anything
// else is rejected before it can reach a query builder.
var sortFields = map[string]struct{}{
	"timestamp":     {},
	"action":        {},
	"target_entity": {},
	"actor_id":      {},
}

// QueryService is the read side of the audit trail. Every operation is
// scoped by the caller's privilege: non-privileged principals only ever see
// their own entries, no matter what filter they supply. There is no write
// operation here by construction.
type QueryService struct {
	store         Store
	exportMaxRows int
}

func NewQueryService(store Store, exportMaxRows int) *QueryService {
	if exportMaxRows <= 0 {
		exportMaxRows = 50000
	}
	return &QueryService{store: store, exportMaxRows: exportMaxRows}
}

// List returns a page of entries matching the filter, scoped to the caller.
func (s *QueryService) List(ctx context.Context, pc *principal.Context, filter Filter) (Page, error) {
	ctx, span := tracer.Start(ctx, "audit.List")
	defer span.End()

	filter, err := s.prepare(pc, filter)
	if err != nil {
		return Page{}, err
	}
	return s.page(ctx, filter)
}

// GetByID returns one entry. Non-privileged callers may only fetch entries
// they produced; anything else reads as not found so ids cannot be probed.
func (s *QueryService) GetByID(ctx context.Context, pc *principal.Context, id string) (Entry, error) {
	if strings.TrimSpace(id) == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "id is required")
	}
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if !pc.Principal().Role.Privileged() && entry.ActorID != pc.Principal().ID {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// GetByActor returns the trail for one actor. For non-privileged callers the
// actor filter is silently forced to self regardless of the supplied value.
func (s *QueryService) GetByActor(ctx context.Context, pc *principal.Context, actorID string, filter Filter) (Page, error) {
	if id, err := parseActorID(actorID); err == nil {
		filter.ActorID = &id
	} else if pc.Principal().Role.Privileged() {
		return Page{}, dErrors.New(dErrors.CodeValidation, "actorId must be a valid UUID")
	}

	filter, err := s.prepare(pc, filter)
	if err != nil {
		return Page{}, err
	}
	return s.page(ctx, filter)
}

// GetByEntity returns every recorded event touching one entity instance.
func (s *QueryService) GetByEntity(ctx context.Context, pc *principal.Context, entityType, entityID string, filter Filter) (Page, error) {
	if strings.TrimSpace(entityType) == "" {
		return Page{}, dErrors.New(dErrors.CodeValidation, "entityType is required")
	}
	filter.Entities = []string{entityType}
	filter.TargetID = strings.TrimSpace(entityID)

	filter, err := s.prepare(pc, filter)
	if err != nil {
		return Page{}, err
	}
	return s.page(ctx, filter)
}

// Search matches query case-insensitively against a bounded column set on
// top of the regular filter.
func (s *QueryService) Search(ctx context.Context, pc *principal.Context, query string, filter Filter) (Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Page{}, dErrors.New(dErrors.CodeValidation, "query is required")
	}
	if len(query) > 256 {
		return Page{}, dErrors.New(dErrors.CodeValidation, "query must be 256 characters or less")
	}
	filter.Search = query

	filter, err := s.prepare(pc, filter)
	if err != nil {
		return Page{}, err
	}
	return s.page(ctx, filter)
}

// Statistics summarizes the trail over a date range. Admin tier only.
func (s *QueryService) Statistics(ctx context.Context, pc *principal.Context, from, to time.Time) (Stats, error) {
	if !pc.Principal().Role.Privileged() {
		return Stats{}, dErrors.New(dErrors.CodeForbidden, "you do not have permission to perform this action")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if from.After(to) {
		return Stats{}, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	return s.store.Statistics(ctx, from, to)
}

// Export returns the full (capped) result set for offline retention review.
// Restricted to the highest privilege tier.
func (s *QueryService) Export(ctx context.Context, pc *principal.Context, filter Filter) ([]Entry, error) {
	if pc.Principal().Role != principal.RoleSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "you do not have permission to perform this action")
	}
	filter.Page = 1
	filter.PageSize = s.exportMaxRows

	filter, err := s.prepare(pc, filter)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.store.List(ctx, filter)
	return entries, err
}

// VerifyIntegrity re-hashes stored entries. Admin tier only.
func (s *QueryService) VerifyIntegrity(ctx context.Context, pc *principal.Context, limit int) (IntegrityReport, error) {
	if !pc.Principal().Role.Privileged() {
		return IntegrityReport{}, dErrors.New(dErrors.CodeForbidden, "you do not have permission to perform this action")
	}
	if limit <= 0 || limit > s.exportMaxRows {
		limit = 1000
	}
	return s.store.VerifyIntegrity(ctx, limit)
}

// prepare validates and normalizes the filter, then applies privilege
// scoping. Scoping happens last so nothing a caller supplies can widen it.
func (s *QueryService) prepare(pc *principal.Context, filter Filter) (Filter, error) {
	p := pc.Principal()
	if !p.Authenticated() {
		return Filter{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize && filter.PageSize != s.exportMaxRows {
		return Filter{}, dErrors.Newf(dErrors.CodeValidation, "pageSize must be %d or less", maxPageSize)
	}

	for _, a := range filter.Actions {
		if !a.Valid() {
			return Filter{}, dErrors.Newf(dErrors.CodeValidation, "unknown action %q", string(a))
		}
	}

	if filter.SortField == "" {
		filter.SortField = "timestamp"
	}
	if _, ok := sortFields[filter.SortField]; !ok {
		return Filter{}, dErrors.Newf(dErrors.CodeValidation, "sort field %q is not allowed", filter.SortField)
	}
	switch filter.SortOrder {
	case "":
		filter.SortOrder = "desc"
	case "asc", "desc":
	default:
		return Filter{}, dErrors.New(dErrors.CodeValidation, "sortOrder must be asc or desc")
	}

	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return Filter{}, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}

	if !p.Role.Privileged() {
		self := p.ID
		filter.ActorID = &self
	}
	return filter, nil
}

func (s *QueryService) page(ctx context.Context, filter Filter) (Page, error) {
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Entry{}
	}
	totalPages := total / filter.PageSize
	if total%filter.PageSize != 0 {
		totalPages++
	}
	return Page{
		Items: items,
		Pagination: Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}
