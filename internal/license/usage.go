package license

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// UsageRepository is the persistence boundary for usage counters.
// IncrementUsage must be atomic: two concurrent increments for the same
// (tenant, module, period, limitType) must not lose an update.
type UsageRepository interface {
	// FindPeriodRecord returns the record, or nil when none exists yet.
	FindPeriodRecord(ctx context.Context, tenantID, moduleKey, period string) (*UsagePeriodRecord, error)
	// CreatePeriodRecord stores a fresh record. Creating a record that
	// already exists is not an error; the existing record wins.
	CreatePeriodRecord(ctx context.Context, record *UsagePeriodRecord) error
	// IncrementUsage atomically adds amount to a counter and returns the
	// new value.
	IncrementUsage(ctx context.Context, tenantID, moduleKey, period, limitType string, amount int) (int, error)
	// SetUsage overwrites a counter.
	SetUsage(ctx context.Context, tenantID, moduleKey, period, limitType string, value int) error
	// AppendWarning records a warning event on the period record.
	AppendWarning(ctx context.Context, tenantID, moduleKey, period string, event WarningEvent) error
	// AppendViolation records a violation event on the period record.
	AppendViolation(ctx context.Context, tenantID, moduleKey, period string, event ViolationEvent) error
}

// Tracker enforces per-period usage limits against the licensed module
// configuration. Callers check before consuming and increment after the
// consuming operation succeeds; the check-then-act window is acceptable
// under the single-writer-per-tenant-module assumption.
type Tracker struct {
	repo     UsageRepository
	resolver Resolver
	audit    AuditLogger
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger

	warningThreshold int
	dedupWindow      time.Duration
	now              func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the tracker's clock. Used by tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithTrackerNotifier attaches the optional notification sink.
func WithTrackerNotifier(n Notifier) TrackerOption {
	return func(t *Tracker) { t.notifier = n }
}

// WithTrackerMetrics attaches OpenTelemetry counters.
func WithTrackerMetrics(m *Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a usage tracker. warningThreshold is the usage
// percentage at which warnings start (80 per the product contract);
// dedupWindow suppresses repeat warnings for the same limit type.
func NewTracker(repo UsageRepository, resolver Resolver, audit AuditLogger, warningThreshold int, dedupWindow time.Duration, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		repo:             repo,
		resolver:         resolver,
		audit:            audit,
		notifier:         NopNotifier{},
		logger:           logger.With(slog.String("component", "license.usage")),
		warningThreshold: warningThreshold,
		dedupWindow:      dedupWindow,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CheckLimit decides whether tenantID may consume amount units of
// limitType under moduleKey in the current period. Like validation,
// denials are verdicts: the method never fails.
func (t *Tracker) CheckLimit(ctx context.Context, tenantID, moduleKey, limitType string, amount int, req *RequestInfo) LimitDecision {
	if t.metrics != nil {
		t.metrics.LimitChecks.Add(ctx, 1)
	}

	module, ok := t.licensedModule(ctx, tenantID, moduleKey)
	if !ok {
		// Usage limits never apply to an unlicensed module; the check
		// itself denies.
		decision := LimitDecision{Allowed: false, Reason: ReasonModuleNotLicensed}
		t.writeAudit(ctx, newAuditEntry(t.now(), tenantID, moduleKey,
			EventValidationFailure, SeverityWarning,
			map[string]interface{}{
				"reason":     ReasonModuleNotLicensed,
				"limit_type": limitType,
			}, req))
		if t.metrics != nil {
			t.metrics.LimitDenials.Add(ctx, 1)
		}
		return decision
	}

	period := PeriodKey(t.now())
	record, err := t.findOrCreateRecord(ctx, tenantID, moduleKey, period, module)
	if err != nil {
		// Infrastructure fault: deny, the safe default under uncertainty.
		t.logger.Error("usage record lookup failed",
			slog.String("tenant_id", tenantID),
			slog.String("module_key", moduleKey),
			slog.String("error", err.Error()))
		decision := LimitDecision{Allowed: false, Reason: ErrCodeValidationFailed}
		t.writeAudit(ctx, newAuditEntry(t.now(), tenantID, moduleKey,
			EventValidationFailure, SeverityError,
			map[string]interface{}{
				"reason": ErrCodeValidationFailed,
				"cause":  err.Error(),
			}, req))
		if t.metrics != nil {
			t.metrics.LimitDenials.Add(ctx, 1)
		}
		return decision
	}

	limit := record.Limits[limitType]
	current := record.Usage[limitType]

	// A nil or zero limit means the limit type is unconstrained.
	if limit == nil || *limit <= 0 {
		return LimitDecision{Allowed: true, CurrentUsage: current}
	}

	if current+amount > *limit {
		event := ViolationEvent{
			LimitType: limitType,
			Attempted: current + amount,
			Limit:     *limit,
			At:        t.now(),
		}
		if err := t.repo.AppendViolation(ctx, tenantID, moduleKey, period, event); err != nil {
			t.logger.Warn("failed to record violation event", slog.String("error", err.Error()))
		}
		t.writeAudit(ctx, newAuditEntry(t.now(), tenantID, moduleKey,
			EventLimitExceeded, SeverityCritical,
			map[string]interface{}{
				"reason":     ReasonLimitExceeded,
				"limit_type": limitType,
				"attempted":  event.Attempted,
				"limit":      event.Limit,
			}, req))
		t.notifier.NotifyLimitViolation(ctx, tenantID, moduleKey, event)
		if t.metrics != nil {
			t.metrics.LimitDenials.Add(ctx, 1)
		}
		return LimitDecision{
			Allowed:            false,
			Reason:             ReasonLimitExceeded,
			CurrentUsage:       current,
			Limit:              limit,
			Percentage:         percentage(current, *limit),
			IsApproachingLimit: true,
		}
	}

	pct := percentage(current, *limit)
	approaching := pct >= t.warningThreshold
	if approaching && !t.recentWarning(record, limitType) {
		event := WarningEvent{
			LimitType:  limitType,
			Usage:      current,
			Limit:      *limit,
			Percentage: pct,
			At:         t.now(),
		}
		if err := t.repo.AppendWarning(ctx, tenantID, moduleKey, period, event); err != nil {
			t.logger.Warn("failed to record warning event", slog.String("error", err.Error()))
		}
		t.writeAudit(ctx, newAuditEntry(t.now(), tenantID, moduleKey,
			EventLimitWarning, SeverityWarning,
			map[string]interface{}{
				"limit_type": limitType,
				"usage":      current,
				"limit":      *limit,
				"percentage": pct,
			}, req))
		t.notifier.NotifyLimitWarning(ctx, tenantID, moduleKey, event)
		if t.metrics != nil {
			t.metrics.LimitWarnings.Add(ctx, 1)
		}
	}

	return LimitDecision{
		Allowed:            true,
		CurrentUsage:       current,
		Limit:              limit,
		Percentage:         pct,
		IsApproachingLimit: approaching,
	}
}

// IncrementUsage atomically adds amount to the counter for the current
// period, creating the period record if needed. Returns the new value.
func (t *Tracker) IncrementUsage(ctx context.Context, tenantID, moduleKey, limitType string, amount int) (int, error) {
	module, ok := t.licensedModule(ctx, tenantID, moduleKey)
	if !ok {
		return 0, nil
	}
	period := PeriodKey(t.now())
	if _, err := t.findOrCreateRecord(ctx, tenantID, moduleKey, period, module); err != nil {
		return 0, err
	}
	return t.repo.IncrementUsage(ctx, tenantID, moduleKey, period, limitType, amount)
}

// SetUsage overwrites the counter for the current period. Used by
// reconciliation jobs that recount consumption from the domain store.
func (t *Tracker) SetUsage(ctx context.Context, tenantID, moduleKey, limitType string, value int) error {
	module, ok := t.licensedModule(ctx, tenantID, moduleKey)
	if !ok {
		return nil
	}
	period := PeriodKey(t.now())
	if _, err := t.findOrCreateRecord(ctx, tenantID, moduleKey, period, module); err != nil {
		return err
	}
	return t.repo.SetUsage(ctx, tenantID, moduleKey, period, limitType, value)
}

// CurrentRecord returns the period record for the current period, or
// nil when nothing has been tracked yet.
func (t *Tracker) CurrentRecord(ctx context.Context, tenantID, moduleKey string) (*UsagePeriodRecord, error) {
	return t.repo.FindPeriodRecord(ctx, tenantID, moduleKey, PeriodKey(t.now()))
}

// licensedModule resolves the module and reports whether usage limits
// apply to it at all.
func (t *Tracker) licensedModule(ctx context.Context, tenantID, moduleKey string) (*ModuleLicense, bool) {
	lic, err := t.resolver.Resolve(ctx, tenantID)
	if err != nil || lic == nil {
		return nil, false
	}
	if lic.Status == StatusExpired || lic.Status == StatusSuspended {
		return nil, false
	}
	module := lic.Module(moduleKey)
	if module == nil || !module.Enabled || module.Expired(t.now()) {
		return nil, false
	}
	return module, true
}

// findOrCreateRecord returns the period record, creating a fresh one
// with a snapshot of the module's current limits on first use.
func (t *Tracker) findOrCreateRecord(ctx context.Context, tenantID, moduleKey, period string, module *ModuleLicense) (*UsagePeriodRecord, error) {
	record, err := t.repo.FindPeriodRecord(ctx, tenantID, moduleKey, period)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	limits := make(map[string]*int, len(module.Limits))
	for k, v := range module.Limits {
		limits[k] = v
	}
	record = &UsagePeriodRecord{
		TenantID:  tenantID,
		ModuleKey: moduleKey,
		Period:    period,
		Usage:     make(map[string]int),
		Limits:    limits,
	}
	if err := t.repo.CreatePeriodRecord(ctx, record); err != nil {
		return nil, err
	}
	// Re-read in case a concurrent creator won.
	if existing, err := t.repo.FindPeriodRecord(ctx, tenantID, moduleKey, period); err == nil && existing != nil {
		return existing, nil
	}
	return record, nil
}

// recentWarning reports whether a warning for limitType was already
// recorded within the dedup window.
func (t *Tracker) recentWarning(record *UsagePeriodRecord, limitType string) bool {
	cutoff := t.now().Add(-t.dedupWindow)
	for _, w := range record.Warnings {
		if w.LimitType == limitType && w.At.After(cutoff) {
			return true
		}
	}
	return false
}

func (t *Tracker) writeAudit(ctx context.Context, entry AuditEntry) {
	if err := t.audit.Log(ctx, entry); err != nil {
		t.logger.Warn("audit write failed",
			slog.String("tenant_id", entry.TenantID),
			slog.String("error", err.Error()))
		if t.metrics != nil {
			t.metrics.AuditWriteFailures.Add(ctx, 1)
		}
	}
}

func percentage(usage, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Round(float64(usage) / float64(limit) * 100))
}
