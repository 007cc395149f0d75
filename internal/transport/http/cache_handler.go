package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/infrastructure"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

// CacheHandler serves cache invalidation and statistics requests.
type CacheHandler struct {
	store       *cache.Store
	invalidator *cache.Invalidator
	logger      *slog.Logger
}

// NewCacheHandler creates a cache handler.
func NewCacheHandler(store *cache.Store, invalidator *cache.Invalidator, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{
		store:       store,
		invalidator: invalidator,
		logger:      logger.With(slog.String("handler", "cache")),
	}
}

// InvalidateRequest is the payload for POST /api/cache/invalidate.
type InvalidateRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id" validate:"required"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// Bind implements render.Binder.
func (i *InvalidateRequest) Bind(r *http.Request) error {
	return validate.Struct(i)
}

// InvalidateResponse reports how many keys an invalidation removed.
type InvalidateResponse struct {
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	KeysRemoved int       `json:"keys_removed"`
	TraceID     string    `json:"trace_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Routes returns a chi router for cache endpoints.
func (h *CacheHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/invalidate", h.Invalidate)
	r.Get("/stats", h.Stats)
	return r
}

// Invalidate handles POST /api/cache/invalidate. Unknown entity types
// remove nothing and still succeed.
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &InvalidateRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, license.ErrInvalidRequest(err.Error()))
		return
	}

	removed := h.invalidator.InvalidateEntity(ctx, req.EntityType, req.EntityID, req.TenantID)

	h.logger.InfoContext(ctx, "cache invalidated",
		slog.String("entity_type", req.EntityType),
		slog.String("entity_id", req.EntityID),
		slog.String("tenant_id", req.TenantID),
		slog.Int("keys_removed", removed),
	)

	render.JSON(w, r, InvalidateResponse{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		KeysRemoved: removed,
		TraceID:     infrastructure.GetTraceID(ctx),
		Timestamp:   time.Now().UTC(),
	})
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.store.Stats())
}
