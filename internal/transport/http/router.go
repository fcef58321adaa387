// Package httptransport composes the HTTP surface: platform middleware,
// identity extraction, and the per-domain route groups.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditHandler "caretrail/internal/audit/handler"
	"caretrail/internal/referrals"
	"caretrail/internal/users"
	"caretrail/pkg/platform/middleware"
	"caretrail/pkg/platform/middleware/identity"
	"caretrail/pkg/platform/middleware/metadata"
)

// Deps carries everything the router mounts. All fields are required.
type Deps struct {
	Logger    *slog.Logger
	Identity  *identity.Extractor
	Audit     *auditHandler.Handler
	Users     *users.Handler
	Referrals *referrals.Handler
	Health    func() error
}

// NewRouter wires the full route tree. Health and metrics are unauthenticated;
// everything else sits behind the identity extractor.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unhealthy"))
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(metadata.ClientMetadata)
		r.Use(d.Identity.RequireAuth)

		d.Audit.Register(r)
		d.Users.Register(r)
		d.Referrals.Register(r)
	})

	return r
}
