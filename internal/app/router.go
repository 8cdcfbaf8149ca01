package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newsline/newsline/internal/auth"
	"github.com/newsline/newsline/internal/billing"
	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/notifications"
	"github.com/newsline/newsline/internal/observability"
	"github.com/newsline/newsline/internal/shared"
	"github.com/newsline/newsline/jobs"
	"github.com/newsline/newsline/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	Verifier             *auth.Verifier
	BillingHandler       *billing.Handler
	NotificationsHandler *notifications.Handler
	CatalogHandler       *catalog.Handler
	JobHandler           *jobs.Handler
	ReportHandler        *report.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything except /healthz and
// /metrics requires a bearer token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Verifier.Middleware)

		if params.BillingHandler != nil {
			r.Route("/billing", params.BillingHandler.MountRoutes)
		}
		if params.NotificationsHandler != nil {
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(shared.RoleAdmin))
			if params.CatalogHandler != nil {
				r.Route("/catalog", params.CatalogHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
			if params.ReportHandler != nil {
				r.Route("/reports", params.ReportHandler.MountRoutes)
			}
		})
	})

	return r
}
