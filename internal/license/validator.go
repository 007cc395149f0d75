// Package license implements the entitlement engine: verdict validation
// against a database- or file-backed source of truth, period-scoped
// usage enforcement, and the audit trail both produce.
package license

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
)

// renewalWarningWindow is how close to expiry a granted module starts
// carrying a needs-renewal flag and triggers expiry notifications.
const renewalWarningWindow = 30 * 24 * time.Hour

// Validator is the entitlement decision engine.
type Validator struct {
	cache    *cache.Store
	resolver Resolver
	audit    AuditLogger
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger

	validTTL  time.Duration
	deniedTTL time.Duration
	now       func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock overrides the validator's clock. Used by tests.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithNotifier attaches the optional notification sink.
func WithNotifier(n Notifier) ValidatorOption {
	return func(v *Validator) { v.notifier = n }
}

// WithValidatorMetrics attaches OpenTelemetry counters.
func WithValidatorMetrics(m *Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator creates the decision engine. Allowed verdicts are cached
// for validTTL, denials for deniedTTL; deniedTTL should be the shorter
// of the two so that re-enabling a module is observed promptly, while a
// grant is trusted longer because revocation arrives with an explicit
// invalidation call.
func NewValidator(store *cache.Store, resolver Resolver, audit AuditLogger, validTTL, deniedTTL time.Duration, logger *slog.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		cache:     store,
		resolver:  resolver,
		audit:     audit,
		notifier:  NopNotifier{},
		logger:    logger.With(slog.String("component", "license.validator")),
		validTTL:  validTTL,
		deniedTTL: deniedTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateModuleAccess decides whether tenantID may use moduleKey.
// Business denials are verdicts, not errors; the method never fails.
// Exactly one audit entry is written per call, before the verdict is
// returned.
func (v *Validator) ValidateModuleAccess(ctx context.Context, tenantID, moduleKey string, opts *ValidateOptions) Verdict {
	if opts == nil {
		opts = &ValidateOptions{}
	}
	if v.metrics != nil {
		v.metrics.ValidationAttempts.Add(ctx, 1)
	}

	// The always-on module bypasses every check.
	if moduleKey == AlwaysOnModule {
		verdict := Verdict{Valid: true, Tier: "core"}
		return v.finish(ctx, verdict, newAuditEntry(v.now(), tenantID, moduleKey,
			EventValidationSuccess, SeverityInfo,
			map[string]interface{}{"always_on": true}, opts.Request))
	}

	cacheKey := cache.ValidationKey(tenantID, moduleKey)
	if !opts.SkipCache {
		if raw, ok := v.cache.Get(ctx, cacheKey); ok {
			var verdict Verdict
			if err := json.Unmarshal([]byte(raw), &verdict); err == nil {
				if v.metrics != nil {
					v.metrics.ValidationCacheHits.Add(ctx, 1)
				}
				entry := v.entryForVerdict(tenantID, moduleKey, verdict, opts.Request)
				entry.Details["cache_hit"] = true
				return v.finish(ctx, verdict, entry)
			}
			// A malformed cached verdict is dropped and re-validated.
			v.cache.Delete(ctx, cacheKey)
		}
		if v.metrics != nil {
			v.metrics.ValidationCacheMisses.Add(ctx, 1)
		}
	}

	lic, err := v.resolver.Resolve(ctx, tenantID)
	if err != nil {
		// Infrastructure fault: deny without caching so the next call
		// re-checks as soon as the source of truth recovers.
		if v.metrics != nil {
			v.metrics.ValidationFaults.Add(ctx, 1)
		}
		verdict := Verdict{Valid: false, Reason: ReasonModuleNotLicensed, Error: ErrCodeValidationFailed}
		return v.finish(ctx, verdict, newAuditEntry(v.now(), tenantID, moduleKey,
			EventValidationFailure, SeverityError,
			map[string]interface{}{
				"reason": ErrCodeValidationFailed,
				"cause":  err.Error(),
			}, opts.Request))
	}

	verdict, entry := v.decide(lic, tenantID, moduleKey, opts.Request)
	v.cacheVerdict(ctx, cacheKey, verdict)
	return v.finish(ctx, verdict, entry)
}

// decide computes the verdict for a resolved license.
func (v *Validator) decide(lic *License, tenantID, moduleKey string, req *RequestInfo) (Verdict, AuditEntry) {
	now := v.now()

	var module *ModuleLicense
	if lic != nil {
		module = lic.Module(moduleKey)
	}
	if lic == nil || module == nil || !module.Enabled || lic.Status == StatusSuspended {
		verdict := Verdict{Valid: false, Reason: ReasonModuleNotLicensed}
		return verdict, newAuditEntry(now, tenantID, moduleKey,
			EventValidationFailure, SeverityWarning,
			map[string]interface{}{"reason": ReasonModuleNotLicensed}, req)
	}

	if lic.Status == StatusExpired || module.Expired(now) {
		verdict := Verdict{Valid: false, Reason: ReasonLicenseExpired, ExpiresAt: module.ExpiresAt}
		details := map[string]interface{}{"reason": ReasonLicenseExpired}
		if module.ExpiresAt != nil {
			details["expired_at"] = module.ExpiresAt.Format(time.RFC3339)
		}
		return verdict, newAuditEntry(now, tenantID, moduleKey,
			EventLicenseExpired, SeverityError, details, req)
	}

	verdict := Verdict{
		Valid:     true,
		Tier:      module.Tier,
		Limits:    module.Limits,
		ExpiresAt: module.ExpiresAt,
	}
	if module.ExpiresAt != nil {
		remaining := module.ExpiresAt.Sub(now)
		status := ExpiryStatus{
			DaysLeft:     int(remaining.Hours() / 24),
			NeedsRenewal: remaining <= renewalWarningWindow,
		}
		verdict.Expiry = &status
	}

	return verdict, newAuditEntry(now, tenantID, moduleKey,
		EventValidationSuccess, SeverityInfo,
		map[string]interface{}{"tier": module.Tier}, req)
}

// cacheVerdict writes the verdict through the cache store with the TTL
// matching its outcome.
func (v *Validator) cacheVerdict(ctx context.Context, key string, verdict Verdict) {
	ttl := v.deniedTTL
	if verdict.Valid {
		ttl = v.validTTL
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	v.cache.Set(ctx, key, string(data), ttl)
}

// finish writes the audit entry and returns the verdict. The write is
// awaited so the entry exists before the caller can act on the verdict,
// but its failure never alters the verdict.
func (v *Validator) finish(ctx context.Context, verdict Verdict, entry AuditEntry) Verdict {
	if err := v.audit.Log(ctx, entry); err != nil {
		v.logger.Warn("audit write failed",
			slog.String("tenant_id", entry.TenantID),
			slog.String("module_key", entry.ModuleKey),
			slog.String("error", err.Error()))
		if v.metrics != nil {
			v.metrics.AuditWriteFailures.Add(ctx, 1)
		}
	}

	if v.metrics != nil {
		if verdict.Valid {
			v.metrics.ValidationAllowed.Add(ctx, 1)
		} else {
			v.metrics.ValidationDenied.Add(ctx, 1)
		}
	}

	if verdict.Valid && verdict.Expiry != nil && verdict.Expiry.NeedsRenewal {
		v.notifier.NotifyExpiryWarning(ctx, entry.TenantID, entry.ModuleKey, *verdict.Expiry)
	}
	return verdict
}

// entryForVerdict rebuilds the audit entry matching an already-computed
// (cached) verdict.
func (v *Validator) entryForVerdict(tenantID, moduleKey string, verdict Verdict, req *RequestInfo) AuditEntry {
	now := v.now()
	switch {
	case verdict.Valid:
		return newAuditEntry(now, tenantID, moduleKey, EventValidationSuccess, SeverityInfo,
			map[string]interface{}{"tier": verdict.Tier}, req)
	case verdict.Reason == ReasonLicenseExpired:
		return newAuditEntry(now, tenantID, moduleKey, EventLicenseExpired, SeverityError,
			map[string]interface{}{"reason": verdict.Reason}, req)
	default:
		reason := verdict.Reason
		if reason == "" {
			reason = ReasonModuleNotLicensed
		}
		return newAuditEntry(now, tenantID, moduleKey, EventValidationFailure, SeverityWarning,
			map[string]interface{}{"reason": reason}, req)
	}
}
