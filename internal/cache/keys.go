package cache

import "strings"

// Root is the prefix shared by every key this application writes, so that
// pattern sweeps never touch other tenants of a shared Redis instance.
const Root = "hrsm"

// Key builds a namespaced cache key of the form
// {root}:{namespace}:[tenant:{tenantID}:]{part...}.
// The tenant segment is included whenever tenantID is non-empty; callers
// that need tenant isolation must pass it.
func Key(namespace, tenantID string, parts ...string) string {
	segs := make([]string, 0, len(parts)+3)
	segs = append(segs, Root, namespace)
	if tenantID != "" {
		segs = append(segs, "tenant:"+tenantID)
	}
	segs = append(segs, parts...)
	return strings.Join(segs, ":")
}

// Key constructors are centralized here so key shapes cannot drift
// between writers and the invalidation rules.

// ValidationKey is the cache key for a module validation verdict.
func ValidationKey(tenantID, moduleKey string) string {
	return Key("license", tenantID, "validation", moduleKey)
}

// LicenseKey is the cache key for a tenant's resolved license record.
func LicenseKey(tenantID string) string {
	return Key("license", tenantID, "record")
}

// ModuleKey is the cache key for a single module's license entry.
func ModuleKey(tenantID, moduleKey string) string {
	return Key("module", tenantID, moduleKey)
}

// UsageKey is the cache key for a usage period record.
func UsageKey(tenantID, moduleKey, period string) string {
	return Key("usage", tenantID, moduleKey, period)
}
