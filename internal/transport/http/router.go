package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/config"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/middleware"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/notify"
)

// RouterDeps carries the wired engine components the API exposes.
type RouterDeps struct {
	Config      *config.Config
	Store       *cache.Store
	Invalidator *cache.Invalidator
	Validator   *license.Validator
	Tracker     *license.Tracker
	Hub         *notify.Hub
	Metrics     http.Handler
	Logger      *slog.Logger
}

// NewRouter assembles the middleware chain and mounts all API routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(middleware.Timeout(30*time.Second, deps.Logger))

	if deps.Config != nil && deps.Config.Server.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(deps.Config.Server.RateLimit.RPS, deps.Config.Server.RateLimit.Burst, deps.Logger)
		r.Use(rl.Handler)
	}

	health := NewHealthHandler(deps.Store, deps.Logger)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	if deps.Hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			notify.ServeWS(deps.Hub, w, req)
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Mount("/entitlements", NewEntitlementHandler(deps.Validator, deps.Logger).Routes())
		api.Mount("/usage", NewUsageHandler(deps.Tracker, deps.Logger).Routes())
		api.Mount("/cache", NewCacheHandler(deps.Store, deps.Invalidator, deps.Logger).Routes())
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		render.Render(w, req, license.NewErrResponse(http.StatusNotFound, "NOT_FOUND", "resource not found"))
	})

	return r
}
