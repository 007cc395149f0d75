package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/infrastructure"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

// UsageHandler serves usage limit checks and counter updates.
type UsageHandler struct {
	tracker *license.Tracker
	logger  *slog.Logger
}

// NewUsageHandler creates a usage handler.
func NewUsageHandler(tracker *license.Tracker, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		tracker: tracker,
		logger:  logger.With(slog.String("handler", "usage")),
	}
}

// UsageRequest is the payload for usage check and increment calls.
type UsageRequest struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	ModuleKey string `json:"module_key" validate:"required"`
	LimitType string `json:"limit_type" validate:"required"`
	Amount    int    `json:"amount,omitempty" validate:"omitempty,min=1"`
	UserID    string `json:"user_id,omitempty"`
}

// Bind implements render.Binder. A missing amount defaults to one unit.
func (u *UsageRequest) Bind(r *http.Request) error {
	if err := validate.Struct(u); err != nil {
		return err
	}
	if u.Amount == 0 {
		u.Amount = 1
	}
	return nil
}

// UsageCheckResponse wraps a limit decision with correlation metadata.
type UsageCheckResponse struct {
	license.LimitDecision
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UsageIncrementResponse reports the counter value after an increment.
type UsageIncrementResponse struct {
	TenantID  string    `json:"tenant_id"`
	ModuleKey string    `json:"module_key"`
	LimitType string    `json:"limit_type"`
	Usage     int       `json:"usage"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns a chi router for usage endpoints.
func (h *UsageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.Check)
	r.Post("/increment", h.Increment)
	r.Get("/{tenantID}/{moduleKey}", h.Current)
	return r
}

// Check handles POST /api/usage/check.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &UsageRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, license.ErrInvalidRequest(err.Error()))
		return
	}

	decision := h.tracker.CheckLimit(ctx, req.TenantID, req.ModuleKey, req.LimitType, req.Amount, requestInfo(r, req.UserID))

	h.logger.InfoContext(ctx, "usage limit checked",
		slog.String("tenant_id", req.TenantID),
		slog.String("module_key", req.ModuleKey),
		slog.String("limit_type", req.LimitType),
		slog.Bool("allowed", decision.Allowed),
		slog.Int("percentage", decision.Percentage),
	)

	render.JSON(w, r, UsageCheckResponse{
		LimitDecision: decision,
		TraceID:       infrastructure.GetTraceID(ctx),
		Timestamp:     time.Now().UTC(),
	})
}

// Increment handles POST /api/usage/increment.
func (h *UsageHandler) Increment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &UsageRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, license.ErrInvalidRequest(err.Error()))
		return
	}

	usage, err := h.tracker.IncrementUsage(ctx, req.TenantID, req.ModuleKey, req.LimitType, req.Amount)
	if err != nil {
		h.logger.ErrorContext(ctx, "usage increment failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("module_key", req.ModuleKey),
			slog.String("limit_type", req.LimitType),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, license.ErrInternal(err))
		return
	}

	render.JSON(w, r, UsageIncrementResponse{
		TenantID:  req.TenantID,
		ModuleKey: req.ModuleKey,
		LimitType: req.LimitType,
		Usage:     usage,
		TraceID:   infrastructure.GetTraceID(ctx),
		Timestamp: time.Now().UTC(),
	})
}

// Current handles GET /api/usage/{tenantID}/{moduleKey} and returns the
// current period record.
func (h *UsageHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")
	moduleKey := chi.URLParam(r, "moduleKey")

	record, err := h.tracker.CurrentRecord(ctx, tenantID, moduleKey)
	if err != nil {
		render.Render(w, r, license.ErrInternal(err))
		return
	}
	if record == nil {
		render.Render(w, r, license.NewErrResponse(http.StatusNotFound, "USAGE_RECORD_NOT_FOUND", "no usage recorded for this period"))
		return
	}

	render.JSON(w, r, record)
}
