package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) (*Store, *fakeRedis) {
	t.Helper()
	primary := newFakeRedis()
	store := NewStore(primary, 100, testLogger())
	ctx := context.Background()

	store.Set(ctx, ValidationKey("T1", "payroll"), "allow", time.Hour)
	store.Set(ctx, LicenseKey("T1"), "record", time.Hour)
	store.Set(ctx, ModuleKey("T1", "payroll"), "module", time.Hour)
	store.Set(ctx, UsageKey("T1", "payroll", "2026-08"), "5", time.Hour)
	store.Set(ctx, ValidationKey("T2", "payroll"), "allow", time.Hour)
	return store, primary
}

func TestInvalidateLicenseCascades(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)
	iv := NewInvalidator(store, testLogger())

	removed := iv.InvalidateEntity(ctx, EntityLicense, "lic1", "T1")
	// license keys (validation + record), module key, usage key.
	assert.Equal(t, 4, removed)

	for _, key := range []string{
		ValidationKey("T1", "payroll"),
		LicenseKey("T1"),
		ModuleKey("T1", "payroll"),
		UsageKey("T1", "payroll", "2026-08"),
	} {
		_, ok := store.Get(ctx, key)
		assert.False(t, ok, "key %s should have been invalidated", key)
	}

	_, ok := store.Get(ctx, ValidationKey("T2", "payroll"))
	assert.True(t, ok, "other tenants must be unaffected")
}

func TestInvalidateUnknownTypeIsNoop(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)
	iv := NewInvalidator(store, testLogger())

	assert.Equal(t, 0, iv.InvalidateEntity(ctx, "leave_request", "lr1", "T1"))

	_, ok := store.Get(ctx, ValidationKey("T1", "payroll"))
	assert.True(t, ok)
}

func TestInvalidateCascadeIsOneHop(t *testing.T) {
	// a depends on b, b depends on c: invalidating a must clear a and b
	// patterns but never follow b's dependency into c.
	rules := map[string]Rule{
		"a": {Patterns: []string{"a:{tenantId}:*"}, Dependencies: []string{"b"}},
		"b": {Patterns: []string{"b:{tenantId}:*"}, Dependencies: []string{"c"}},
		"c": {Patterns: []string{"c:{tenantId}:*"}},
	}

	ctx := context.Background()
	primary := newFakeRedis()
	store := NewStore(primary, 100, testLogger())
	store.Set(ctx, "a:T1:x", "1", time.Hour)
	store.Set(ctx, "b:T1:x", "2", time.Hour)
	store.Set(ctx, "c:T1:x", "3", time.Hour)

	iv := NewInvalidatorWithRules(store, rules, testLogger())
	removed := iv.InvalidateEntity(ctx, "a", "id", "T1")
	assert.Equal(t, 2, removed)

	_, ok := store.Get(ctx, "c:T1:x")
	assert.True(t, ok, "transitive dependency must not be invalidated")
}

func TestInvalidateCyclicRulesTerminate(t *testing.T) {
	rules := map[string]Rule{
		"a": {Patterns: []string{"a:{tenantId}:*"}, Dependencies: []string{"b"}},
		"b": {Patterns: []string{"b:{tenantId}:*"}, Dependencies: []string{"a"}},
	}

	ctx := context.Background()
	store := NewStore(newFakeRedis(), 100, testLogger())
	store.Set(ctx, "a:T1:x", "1", time.Hour)
	store.Set(ctx, "b:T1:x", "2", time.Hour)

	iv := NewInvalidatorWithRules(store, rules, testLogger())
	assert.Equal(t, 2, iv.InvalidateEntity(ctx, "a", "id", "T1"))
}

func TestInvalidateSurvivesPrimaryOutage(t *testing.T) {
	ctx := context.Background()
	store, primary := seedStore(t)
	iv := NewInvalidator(store, testLogger())

	primary.setFailing(true)

	// The fallback tier is still swept; the primary keys stay stale but
	// bounded by their TTL.
	removed := iv.InvalidateEntity(ctx, EntityModule, "payroll", "T1")
	assert.GreaterOrEqual(t, removed, 1)
}

func TestExpandPattern(t *testing.T) {
	got := expandPattern("hrsm:module:tenant:{tenantId}:{entityId}:*", "payroll", "T1")
	require.Equal(t, "hrsm:module:tenant:T1:payroll:*", got)
}
