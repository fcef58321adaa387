// Package handler exposes the audit trail read API. There are deliberately
// no write routes here: entries enter the system only through the recorder,
// and nothing in the HTTP surface can update or delete one.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"caretrail/internal/audit"
	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
	"caretrail/pkg/platform/httputil"
	pstrings "caretrail/pkg/platform/strings"
)

// Service is the read side of the audit trail as the transport sees it.
type Service interface {
	List(ctx context.Context, pc *principal.Context, filter audit.Filter) (audit.Page, error)
	GetByID(ctx context.Context, pc *principal.Context, id string) (audit.Entry, error)
	GetByActor(ctx context.Context, pc *principal.Context, actorID string, filter audit.Filter) (audit.Page, error)
	GetByEntity(ctx context.Context, pc *principal.Context, entityType, entityID string, filter audit.Filter) (audit.Page, error)
	Search(ctx context.Context, pc *principal.Context, query string, filter audit.Filter) (audit.Page, error)
	Statistics(ctx context.Context, pc *principal.Context, from, to time.Time) (audit.Stats, error)
	Export(ctx context.Context, pc *principal.Context, filter audit.Filter) ([]audit.Entry, error)
	VerifyIntegrity(ctx context.Context, pc *principal.Context, limit int) (audit.IntegrityReport, error)
}

// Handler serves the audit query endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the audit routes. The caller is expected to have the
// identity middleware installed already; every route requires a principal.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/me", h.handleMe)
		r.Get("/search", h.handleSearch)
		r.Get("/statistics", h.handleStatistics)
		r.Get("/export", h.handleExport)
		r.Get("/integrity", h.handleIntegrity)
		r.Get("/actor/{actorID}", h.handleGetByActor)
		r.Get("/entity/{entityType}/{entityID}", h.handleGetByEntity)
		r.Get("/{id}", h.handleGetByID)

		// The trail is append-only; reject mutation verbs explicitly rather
		// than falling through to a 404.
		r.MethodFunc(http.MethodPost, "/", h.methodNotSupported)
		for _, m := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
			r.MethodFunc(m, "/{id}", h.methodNotSupported)
		}
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), pc, filter)
	if err != nil {
		h.writeServiceError(w, r, "list audit entries", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// handleMe returns the caller's own trail regardless of privilege.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.GetByActor(r.Context(), pc, pc.Principal().ID.String(), filter)
	if err != nil {
		h.writeServiceError(w, r, "list own audit entries", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetByID(r.Context(), pc, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get audit entry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleGetByActor(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.GetByActor(r.Context(), pc, chi.URLParam(r, "actorID"), filter)
	if err != nil {
		h.writeServiceError(w, r, "list audit entries by actor", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetByEntity(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.GetByEntity(r.Context(), pc,
		chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"), filter)
	if err != nil {
		h.writeServiceError(w, r, "list audit entries by entity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.Search(r.Context(), pc, r.URL.Query().Get("q"), filter)
	if err != nil {
		h.writeServiceError(w, r, "search audit entries", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stats, err := h.service.Statistics(r.Context(), pc, from, to)
	if err != nil {
		h.writeServiceError(w, r, "audit statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), pc, filter)
	if err != nil {
		h.writeServiceError(w, r, "export audit entries", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.principalContext(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	report, err := h.service.VerifyIntegrity(r.Context(), pc, limit)
	if err != nil {
		h.writeServiceError(w, r, "verify audit integrity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) methodNotSupported(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotSupported, "audit entries are immutable"))
}

func (h *Handler) principalContext(w http.ResponseWriter, r *http.Request) (*principal.Context, bool) {
	pc := principal.From(r.Context())
	if pc == nil {
		// Unreachable when the identity middleware is installed.
		h.logger.ErrorContext(r.Context(), "principal missing from context",
			"request_id", chimw.GetReqID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return nil, false
	}
	return pc, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "audit query failed",
			"operation", op,
			"error", err,
			"request_id", chimw.GetReqID(r.Context()),
		)
	}
	httputil.WriteError(w, err)
}

// filterFromQuery maps the supported query parameters onto an audit filter.
// Validation beyond basic parsing belongs to the query service.
func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var filter audit.Filter

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "page must be an integer")
		}
		filter.Page = n
	}
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "pageSize must be an integer")
		}
		filter.PageSize = n
	}
	if raw := q.Get("action"); raw != "" {
		for _, a := range pstrings.DedupeAndTrimLower(strings.Split(raw, ",")) {
			filter.Actions = append(filter.Actions, audit.Action(a))
		}
	}
	if raw := q.Get("entity"); raw != "" {
		filter.Entities = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	filter.TargetID = strings.TrimSpace(q.Get("targetId"))
	filter.SortField = q.Get("sort")
	filter.SortOrder = q.Get("order")

	from, err := parseTimeParam(r, "from")
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		return audit.Filter{}, err
	}
	filter.From = from
	filter.To = to
	return filter, nil
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be an RFC 3339 timestamp or YYYY-MM-DD date", name)
}
