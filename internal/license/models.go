package license

import "time"

// AlwaysOnModule is the baseline capability every tenant must always
// have; validation bypasses all checks for it.
const AlwaysOnModule = "core"

// License statuses.
const (
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusSuspended = "suspended"
)

// ModuleLicense is a single licensable feature area within a license.
// A nil limit value means unlimited.
type ModuleLicense struct {
	ModuleKey   string          `json:"module_key"`
	Enabled     bool            `json:"enabled"`
	Tier        string          `json:"tier"`
	Limits      map[string]*int `json:"limits,omitempty"`
	ActivatedAt time.Time       `json:"activated_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the module entry itself has expired at the
// given instant. Modules without an expiry never expire on their own.
func (m *ModuleLicense) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// License is a tenant's entitlement record, resolved from the database
// or from a signed license file. Both sources produce this same shape.
type License struct {
	TenantID string          `json:"tenant_id"`
	Status   string          `json:"status"`
	Modules  []ModuleLicense `json:"modules"`
}

// Module returns the entry for moduleKey, or nil when not licensed.
func (l *License) Module(moduleKey string) *ModuleLicense {
	for i := range l.Modules {
		if l.Modules[i].ModuleKey == moduleKey {
			return &l.Modules[i]
		}
	}
	return nil
}

// ExpiryStatus describes how close a granted module is to expiry.
type ExpiryStatus struct {
	DaysLeft     int  `json:"days_left"`
	NeedsRenewal bool `json:"needs_renewal"`
}

// Verdict is the structured result of an entitlement check. Business
// denials (not licensed, expired) are valid verdicts, not errors; Error
// is set only for infrastructure faults, and even then Valid is false.
type Verdict struct {
	Valid     bool            `json:"valid"`
	Reason    string          `json:"reason,omitempty"`
	Tier      string          `json:"tier,omitempty"`
	Limits    map[string]*int `json:"limits,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Expiry    *ExpiryStatus   `json:"expiry,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ValidateOptions modify a single validation call.
type ValidateOptions struct {
	// SkipCache forces a source-of-truth read.
	SkipCache bool
	// Request carries caller metadata passed through into audit details.
	Request *RequestInfo
}

// RequestInfo is optional caller metadata recorded verbatim in audit
// entries when present.
type RequestInfo struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// WarningEvent records a usage level crossing the warning threshold.
type WarningEvent struct {
	LimitType  string    `json:"limit_type"`
	Usage      int       `json:"usage"`
	Limit      int       `json:"limit"`
	Percentage int       `json:"percentage"`
	At         time.Time `json:"at"`
}

// ViolationEvent records a denied attempt to exceed a hard limit.
type ViolationEvent struct {
	LimitType string    `json:"limit_type"`
	Attempted int       `json:"attempted"`
	Limit     int       `json:"limit"`
	At        time.Time `json:"at"`
}

// UsagePeriodRecord holds one calendar period's consumption for a
// (tenant, module) pair. Records are created lazily on the first check
// of a new period and never mutated across periods; counters reset by
// period key.
type UsagePeriodRecord struct {
	TenantID   string           `json:"tenant_id"`
	ModuleKey  string           `json:"module_key"`
	Period     string           `json:"period"`
	Usage      map[string]int   `json:"usage"`
	Limits     map[string]*int  `json:"limits"`
	Warnings   []WarningEvent   `json:"warnings,omitempty"`
	Violations []ViolationEvent `json:"violations,omitempty"`
}

// LimitDecision is the structured result of a usage limit check.
type LimitDecision struct {
	Allowed            bool   `json:"allowed"`
	Reason             string `json:"reason,omitempty"`
	CurrentUsage       int    `json:"current_usage"`
	Limit              *int   `json:"limit,omitempty"`
	Percentage         int    `json:"percentage"`
	IsApproachingLimit bool   `json:"is_approaching_limit"`
}

// PeriodKey formats the calendar-month bucket used to scope usage
// counters.
func PeriodKey(t time.Time) string {
	return t.Format("2006-01")
}
