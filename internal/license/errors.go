package license

import (
	"net/http"

	"github.com/go-chi/render"
)

// Verdict reason codes. These are business outcomes, returned as values,
// never raised as errors.
const (
	ReasonModuleNotLicensed = "MODULE_NOT_LICENSED"
	ReasonLicenseExpired    = "LICENSE_EXPIRED"
	ReasonLimitExceeded     = "LIMIT_EXCEEDED"
)

// ErrCodeValidationFailed marks an infrastructure fault encountered
// during validation. The verdict still denies: access denied is the safe
// default under uncertainty.
const ErrCodeValidationFailed = "LICENSE_VALIDATION_FAILED"

// ErrResponse implements the render.Renderer interface for API errors
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	AppCode        string `json:"code,omitempty"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements the render.Renderer interface
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// Common error responses
var (
	ErrModuleNotLicensed = &ErrResponse{
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "Module not licensed",
		AppCode:        ReasonModuleNotLicensed,
		ErrorText:      "This module is not included in your subscription",
	}

	ErrLicenseExpired = &ErrResponse{
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "License expired",
		AppCode:        ReasonLicenseExpired,
		ErrorText:      "Your license has expired. Please renew to continue",
	}

	ErrLimitExceeded = &ErrResponse{
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "Usage limit exceeded",
		AppCode:        ReasonLimitExceeded,
		ErrorText:      "Your plan's usage limit for this module has been reached",
	}
)

// NewErrResponse creates a custom error response
func NewErrResponse(status int, code, message string) *ErrResponse {
	return &ErrResponse{
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
		AppCode:        code,
		ErrorText:      message,
	}
}

// ErrInvalidRequest creates a bad request error
func ErrInvalidRequest(message string) *ErrResponse {
	return &ErrResponse{
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request",
		ErrorText:      message,
	}
}

// ErrInternal creates an internal server error
func ErrInternal(err error) *ErrResponse {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "Internal server error",
		ErrorText:      "An unexpected error occurred. Please try again later",
	}
}
