package license

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the entitlement-engine OpenTelemetry counters.
type Metrics struct {
	ValidationAttempts    metric.Int64Counter
	ValidationAllowed     metric.Int64Counter
	ValidationDenied      metric.Int64Counter
	ValidationCacheHits   metric.Int64Counter
	ValidationCacheMisses metric.Int64Counter
	ValidationFaults      metric.Int64Counter
	LimitChecks           metric.Int64Counter
	LimitDenials          metric.Int64Counter
	LimitWarnings         metric.Int64Counter
	AuditWriteFailures    metric.Int64Counter
}

// NewMetrics registers the engine counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ValidationAttempts, "hrsm_validation_attempts_total", "Module access validations attempted"},
		{&m.ValidationAllowed, "hrsm_validation_allowed_total", "Module access validations allowed"},
		{&m.ValidationDenied, "hrsm_validation_denied_total", "Module access validations denied"},
		{&m.ValidationCacheHits, "hrsm_validation_cache_hits_total", "Validations served from the verdict cache"},
		{&m.ValidationCacheMisses, "hrsm_validation_cache_misses_total", "Validations that read the source of truth"},
		{&m.ValidationFaults, "hrsm_validation_faults_total", "Validations degraded by infrastructure faults"},
		{&m.LimitChecks, "hrsm_limit_checks_total", "Usage limit checks performed"},
		{&m.LimitDenials, "hrsm_limit_denials_total", "Usage limit checks denied"},
		{&m.LimitWarnings, "hrsm_limit_warnings_total", "Usage warning events emitted"},
		{&m.AuditWriteFailures, "hrsm_audit_write_failures_total", "Audit log writes that failed"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}
