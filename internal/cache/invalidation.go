package cache

import (
	"context"
	"log/slog"
	"strings"
)

// Entity types known to the invalidation engine.
const (
	EntityLicense      = "license"
	EntityModule       = "module"
	EntityTenant       = "tenant"
	EntityUsage        = "usage"
	EntitySubscription = "subscription"
)

// Rule declares which key patterns an entity change clears and which
// dependent entity types the change cascades into. Pattern templates may
// reference {tenantId} and {entityId} placeholders.
type Rule struct {
	Patterns     []string
	Dependencies []string
}

// defaultRules is the static invalidation graph, loaded once at startup
// and read-only thereafter.
var defaultRules = map[string]Rule{
	EntityLicense: {
		Patterns: []string{
			Root + ":license:tenant:{tenantId}:*",
		},
		Dependencies: []string{EntityModule, EntityUsage},
	},
	EntityModule: {
		Patterns: []string{
			Root + ":license:tenant:{tenantId}:validation:*",
			Root + ":module:tenant:{tenantId}:*",
		},
		Dependencies: []string{EntityUsage},
	},
	EntityUsage: {
		Patterns: []string{
			Root + ":usage:tenant:{tenantId}:*",
		},
	},
	EntitySubscription: {
		Patterns: []string{
			Root + ":license:tenant:{tenantId}:*",
		},
		Dependencies: []string{EntityLicense},
	},
	EntityTenant: {
		Patterns: []string{
			Root + ":license:tenant:{tenantId}:*",
			Root + ":module:tenant:{tenantId}:*",
			Root + ":usage:tenant:{tenantId}:*",
		},
	},
}

// Invalidator clears cached entries when an entity changes. Invalidation
// is advisory cache hygiene: a failed sweep degrades to a stale-but-correct
// cache bounded by entry TTLs, because every reader re-validates a miss
// against the source of truth.
type Invalidator struct {
	store   *Store
	rules   map[string]Rule
	logger  *slog.Logger
	metrics *Metrics
}

// NewInvalidator creates an invalidator over the default rule graph.
func NewInvalidator(store *Store, logger *slog.Logger) *Invalidator {
	return NewInvalidatorWithRules(store, defaultRules, logger)
}

// NewInvalidatorWithRules creates an invalidator with a custom rule graph.
func NewInvalidatorWithRules(store *Store, rules map[string]Rule, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		store:   store,
		rules:   rules,
		logger:  logger.With(slog.String("component", "cache.invalidator")),
		metrics: store.metrics,
	}
}

// InvalidateEntity clears every cached key the entity's rule declares and
// cascades one hop into dependent entity types. Unknown entity types are a
// no-op. Returns the total number of keys removed; never returns an error.
func (iv *Invalidator) InvalidateEntity(ctx context.Context, entityType, entityID, tenantID string) int {
	rule, ok := iv.rules[entityType]
	if !ok {
		return 0
	}

	if iv.metrics != nil {
		iv.metrics.InvalidationSweeps.Add(ctx, 1)
	}

	total := iv.applyPatterns(ctx, rule.Patterns, entityID, tenantID)

	// Dependencies cascade exactly one hop: a dependent rule's own
	// dependencies are not followed, which keeps cyclic rule graphs from
	// recursing unboundedly.
	for _, dep := range rule.Dependencies {
		depRule, ok := iv.rules[dep]
		if !ok {
			continue
		}
		total += iv.applyPatterns(ctx, depRule.Patterns, entityID, tenantID)
	}

	iv.logger.Debug("entity invalidated",
		slog.String("entity_type", entityType),
		slog.String("entity_id", entityID),
		slog.String("tenant_id", tenantID),
		slog.Int("keys_removed", total),
	)
	if iv.metrics != nil && total > 0 {
		iv.metrics.KeysInvalidated.Add(ctx, int64(total))
	}
	return total
}

func (iv *Invalidator) applyPatterns(ctx context.Context, patterns []string, entityID, tenantID string) int {
	total := 0
	for _, tmpl := range patterns {
		pattern := expandPattern(tmpl, entityID, tenantID)
		total += iv.store.DeletePattern(ctx, pattern)
	}
	return total
}

func expandPattern(tmpl, entityID, tenantID string) string {
	pattern := strings.ReplaceAll(tmpl, "{entityId}", entityID)
	return strings.ReplaceAll(pattern, "{tenantId}", tenantID)
}
