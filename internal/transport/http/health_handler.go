package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store  *cache.Store
	logger *slog.Logger
	start  time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(store *cache.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "health")),
		start:  time.Now(),
	}
}

// Healthz handles GET /healthz. The process is alive if it can answer.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(h.start).String(),
	})
}

// Readyz handles GET /readyz. The primary cache tier being down does
// not fail readiness: the engine serves from the fallback tier.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	primary := "ok"
	if err := h.store.Connect(r.Context()); err != nil {
		primary = "degraded"
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "ok",
		"checks": map[string]string{
			"cache_primary": primary,
		},
	})
}
