// Package cache implements the two-tier entitlement cache: a remote
// primary tier (Redis) with an in-process fallback tier that keeps the
// engine serving during primary outages. Primary-tier failures never
// propagate to callers.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store is the two-tier cache store. All methods are safe for
// concurrent use.
type Store struct {
	primary  RedisClient
	fallback *fallbackCache
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's clock. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches OpenTelemetry counters to the store.
func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a two-tier store over the given primary client.
// fallbackMaxSize bounds the in-process tier; when exceeded, expired
// entries are swept on the next write.
func NewStore(primary RedisClient, fallbackMaxSize int, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		primary: primary,
		logger:  logger.With(slog.String("component", "cache.store")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fallback = newFallbackCache(fallbackMaxSize, s.now)
	return s
}

// Connect verifies connectivity to the primary tier. A failed ping is
// logged but not fatal: the store degrades to fallback-only behavior.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.primary.Ping(ctx); err != nil {
		s.logger.Warn("primary cache tier unreachable, serving from fallback tier",
			slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("primary cache tier connected")
	return nil
}

// Close releases the primary-tier connection.
func (s *Store) Close() error {
	return s.primary.Close()
}

// Get retrieves a value. The primary tier is tried first; on primary
// error the fallback tier is consulted. Exactly one of the hit, miss,
// or error counters is incremented per call: a hit on either tier
// counts as a hit, a clean absence as a miss, and a primary failure the
// fallback could not cover as an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.primary.Get(ctx, key)
	if err == nil {
		s.recordHit(ctx)
		return val, true
	}
	if errors.Is(err, ErrCacheMiss) {
		// Authoritative miss from the primary tier.
		s.recordMiss(ctx)
		return "", false
	}

	s.logger.Warn("primary cache get failed, consulting fallback tier",
		slog.String("key", key),
		slog.String("error", err.Error()))

	if val, ok := s.fallback.get(key); ok {
		s.recordHit(ctx)
		return val, true
	}
	s.recordError(ctx)
	return "", false
}

// Set writes to both tiers. The primary write is best-effort; the
// fallback write always happens so the fallback stays useful if the
// primary later becomes unavailable. Returns true if at least the
// fallback write succeeded.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("primary cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
	s.fallback.set(key, value, ttl)
	return true
}

// Delete removes a key from both tiers. Returns true if either tier
// held the key.
func (s *Store) Delete(ctx context.Context, key string) bool {
	var removed bool
	n, err := s.primary.Del(ctx, key)
	if err != nil {
		s.logger.Warn("primary cache delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	} else if n > 0 {
		removed = true
	}
	if s.fallback.delete(key) {
		removed = true
	}
	return removed
}

// DeletePattern removes every key matching the glob pattern from both
// tiers and returns the larger of the two per-tier counts, which is the
// number of logical keys cleared.
func (s *Store) DeletePattern(ctx context.Context, pattern string) int {
	primaryCount := s.deletePatternPrimary(ctx, pattern)
	fallbackCount := s.fallback.deletePattern(pattern)
	if fallbackCount > primaryCount {
		return fallbackCount
	}
	return primaryCount
}

func (s *Store) deletePatternPrimary(ctx context.Context, pattern string) int {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := s.primary.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			s.logger.Warn("primary cache pattern scan failed",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))
			return int(removed)
		}
		if len(keys) > 0 {
			n, err := s.primary.Del(ctx, keys...)
			if err != nil {
				s.logger.Warn("primary cache pattern delete failed",
					slog.String("pattern", pattern),
					slog.String("error", err.Error()))
				return int(removed)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return int(removed)
		}
	}
}

// Stats returns cache statistics.
func (s *Store) Stats() map[string]interface{} {
	hits := s.hits.Load()
	misses := s.misses.Load()
	errs := s.errors.Load()

	total := hits + misses + errs
	hitRatio := float64(0)
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":          hits,
		"misses":        misses,
		"errors":        errs,
		"hit_ratio":     hitRatio,
		"fallback_size": s.fallback.len(),
	}
}

func (s *Store) recordHit(ctx context.Context) {
	s.hits.Add(1)
	if s.metrics != nil {
		s.metrics.Hits.Add(ctx, 1)
	}
}

func (s *Store) recordMiss(ctx context.Context) {
	s.misses.Add(1)
	if s.metrics != nil {
		s.metrics.Misses.Add(ctx, 1)
	}
}

func (s *Store) recordError(ctx context.Context) {
	s.errors.Add(1)
	if s.metrics != nil {
		s.metrics.Errors.Add(ctx, 1)
	}
}
