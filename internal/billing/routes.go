package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/newsline/newsline/internal/auth"
	"github.com/newsline/newsline/internal/shared"
)

// Limits caps per-caller request rates on the aggregation endpoints. Zero
// disables the limit.
type Limits struct {
	PreviewPerMinute  int
	GeneratePerMinute int
}

// MountRoutes registers billing routes. The caller identity must already be
// in the request context.
func (h *Handler) MountRoutes(r chi.Router) {
	agentOnly := auth.RequireRole(shared.RoleAgent)
	agentOrAdmin := auth.RequireRole(shared.RoleAgent, shared.RoleAdmin)
	customerOnly := auth.RequireRole(shared.RoleCustomer)

	r.With(perCaller(h.limits.PreviewPerMinute)).Get("/preview", h.preview)
	r.With(agentOrAdmin, perCaller(h.limits.GeneratePerMinute)).Post("/generate", h.generate)

	r.Route("/bills", func(r chi.Router) {
		r.Get("/", h.listBills)
		r.Get("/{billId}", h.viewBill)
		r.With(agentOnly).Post("/{billId}/pay", h.markPaid)
		for ext, renderer := range h.renderers {
			r.Get("/{billId}/export."+ext, h.exportBill(ext, renderer))
		}
	})

	r.Route("/pay-requests", func(r chi.Router) {
		r.Get("/", h.listRequests)
		// {id} is the bill id here and the request id under /resolve.
		r.With(customerOnly).Post("/{id}", h.requestPayment)
		r.With(agentOnly).Post("/{id}/resolve", h.resolveRequest)
	})
}

func perCaller(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if id, ok := shared.IdentityFromContext(r.Context()); ok {
			return id.String(), nil
		}
		return httprate.KeyByIP(r)
	}))
}
