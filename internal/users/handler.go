package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/policy"
	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
	"caretrail/pkg/platform/httputil"
)

// Handler exposes the directory's protected mutations. Every mutation runs
// through the audit pipeline; the read path is unaudited.
type Handler struct {
	service  *Service
	pipeline *audit.Pipeline
	logger   *slog.Logger
}

func NewHandler(service *Service, pipeline *audit.Pipeline, logger *slog.Logger) *Handler {
	return &Handler{service: service, pipeline: pipeline, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/deactivate", h.handleDeactivate)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pc := principal.From(r.Context())
	if pc == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "id must be a UUID"))
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u.PasswordHash = ""
	httputil.WriteJSON(w, http.StatusOK, u)
}

// handleDeactivate disables an account. Admin tier only, and never against
// the caller's own account.
func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	pc := principal.From(r.Context())
	if pc == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "id must be a UUID"))
		return
	}

	// Deactivation is a soft delete: the row survives but the account is
	// gone from the product's point of view, so the trail says delete.
	result, err := h.pipeline.Do(r.Context(), pc, audit.Operation{
		Requirement: policy.AnyOf(
			policy.MinimumRole(principal.RoleAdmin),
			policy.OwnedBy(id).NoSelf(),
		),
		Action:        audit.ActionDelete,
		TargetEntity:  EntityUsers,
		TargetID:      id.String(),
		CaptureBefore: true,
		Mutate: func(ctx context.Context) (any, error) {
			return h.service.Deactivate(ctx, id)
		},
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	u := result.(User)
	u.PasswordHash = ""
	httputil.WriteJSON(w, http.StatusOK, u)
}
