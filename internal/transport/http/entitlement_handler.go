package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/infrastructure"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

var validate = validator.New()

// EntitlementHandler serves module access validation requests.
type EntitlementHandler struct {
	validator *license.Validator
	logger    *slog.Logger
}

// NewEntitlementHandler creates an entitlement handler.
func NewEntitlementHandler(v *license.Validator, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		validator: v,
		logger:    logger.With(slog.String("handler", "entitlement")),
	}
}

// ValidateRequest is the payload for POST /api/entitlements/validate.
type ValidateRequest struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	ModuleKey string `json:"module_key" validate:"required"`
	SkipCache bool   `json:"skip_cache,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Bind implements render.Binder.
func (v *ValidateRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// ValidateResponse wraps a verdict with request correlation metadata.
type ValidateResponse struct {
	license.Verdict
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns a chi router for entitlement endpoints.
func (h *EntitlementHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	return r
}

// Validate handles POST /api/entitlements/validate.
func (h *EntitlementHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &ValidateRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, license.ErrInvalidRequest(err.Error()))
		return
	}

	verdict := h.validator.ValidateModuleAccess(ctx, req.TenantID, req.ModuleKey, &license.ValidateOptions{
		SkipCache: req.SkipCache,
		Request:   requestInfo(r, req.UserID),
	})

	h.logger.InfoContext(ctx, "entitlement validated",
		slog.String("tenant_id", req.TenantID),
		slog.String("module_key", req.ModuleKey),
		slog.Bool("valid", verdict.Valid),
		slog.String("reason", verdict.Reason),
	)

	render.JSON(w, r, ValidateResponse{
		Verdict:   verdict,
		TraceID:   infrastructure.GetTraceID(ctx),
		Timestamp: time.Now().UTC(),
	})
}

// requestInfo collects caller metadata recorded with the audit trail.
func requestInfo(r *http.Request, userID string) *license.RequestInfo {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}
	return &license.RequestInfo{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		UserID:    userID,
	}
}
