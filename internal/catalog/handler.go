package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newsline/newsline/internal/platform/httpx"
)

// Handler exposes catalog cache administration.
type Handler struct {
	cache  *Cache
	logger *slog.Logger
}

// NewHandler builds the handler.
func NewHandler(cache *Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: cache, logger: logger}
}

// MountRoutes registers the catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cache/bump", h.bump)
}

func (h *Handler) bump(w http.ResponseWriter, r *http.Request) {
	ver, err := h.cache.Bump(r.Context())
	if err != nil {
		h.logger.Error("bump catalog cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("catalog cache bumped", slog.Int64("version", ver))
	httpx.JSON(w, http.StatusOK, map[string]int64{"version": ver})
}
