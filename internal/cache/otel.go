package cache

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the cache-specific OpenTelemetry counters.
type Metrics struct {
	Hits               metric.Int64Counter
	Misses             metric.Int64Counter
	Errors             metric.Int64Counter
	InvalidationSweeps metric.Int64Counter
	KeysInvalidated    metric.Int64Counter
}

// NewMetrics registers the cache counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.Hits, err = meter.Int64Counter("hrsm_cache_hits_total",
		metric.WithDescription("Cache lookups served from either tier")); err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}
	if m.Misses, err = meter.Int64Counter("hrsm_cache_misses_total",
		metric.WithDescription("Cache lookups that found no entry")); err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}
	if m.Errors, err = meter.Int64Counter("hrsm_cache_errors_total",
		metric.WithDescription("Cache lookups degraded by a primary tier failure")); err != nil {
		return nil, fmt.Errorf("failed to create cache errors counter: %w", err)
	}
	if m.InvalidationSweeps, err = meter.Int64Counter("hrsm_cache_invalidation_sweeps_total",
		metric.WithDescription("Entity invalidation requests processed")); err != nil {
		return nil, fmt.Errorf("failed to create invalidation sweeps counter: %w", err)
	}
	if m.KeysInvalidated, err = meter.Int64Counter("hrsm_cache_keys_invalidated_total",
		metric.WithDescription("Cache keys removed by entity invalidation")); err != nil {
		return nil, fmt.Errorf("failed to create keys invalidated counter: %w", err)
	}
	return m, nil
}
