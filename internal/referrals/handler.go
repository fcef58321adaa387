package referrals

import (
	"context"
	"encoding/json"
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

type createRequest struct {
	PatientID       uuid.UUID `json:"patientId"`
	ToPartnerID     uuid.UUID `json:"toPartnerId"`
	Reason          string    `json:"reason"`
	CommissionCents int64     `json:"commissionCents"`
}

// Handler exposes referral creation through the audit pipeline.
type Handler struct {
	service  *Service
	pipeline *audit.Pipeline
	logger   *slog.Logger
}

func NewHandler(service *Service, pipeline *audit.Pipeline, logger *slog.Logger) *Handler {
	return &Handler{service: service, pipeline: pipeline, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/referrals", h.handleCreate)
}

// handleCreate records a referral. One business event, two audit entries:
// the referral itself and the patient it concerns.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	pc := principal.From(r.Context())
	if pc == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	actorID := pc.Principal().ID
	result, err := h.pipeline.Do(r.Context(), pc, audit.Operation{
		Requirement:  policy.OneOfPermissions("referrals:create"),
		Action:       audit.ActionCreate,
		TargetEntity: "referral",
		Mutate: func(ctx context.Context) (any, error) {
			return h.service.Create(ctx, req.PatientID, req.ToPartnerID, actorID, req.Reason, req.CommissionCents)
		},
		TargetIDFrom: func(result any) string {
			return result.(Referral).ID
		},
		FanOut: func(result any) []audit.Draft {
			ref := result.(Referral)
			return []audit.Draft{{
				ActorID:      actorID,
				Action:       audit.ActionCreate,
				TargetEntity: "patient",
				TargetID:     ref.PatientID.String(),
				After:        audit.NormalizeSnapshot(ref),
			}}
		},
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}
