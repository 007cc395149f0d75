package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRedis is an in-memory primary tier for handler tests.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string)}
}

func (m *memRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return val, nil
}

func (m *memRedis) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memRedis) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memRedis) Scan(_ context.Context, _ uint64, match string, _ int64) ([]string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, 0, nil
}

func (m *memRedis) Ping(context.Context) error { return nil }
func (m *memRedis) Close() error               { return nil }

type apiFixture struct {
	server  *httptest.Server
	backing *store.MemoryStore
	audit   *license.MemoryAuditLogger
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := testLogger()

	limit := 50
	backing := store.NewMemoryStore()
	backing.PutLicense(&license.License{
		TenantID: "tenant-1",
		Status:   license.StatusActive,
		Modules: []license.ModuleLicense{
			{
				ModuleKey: "payroll",
				Enabled:   true,
				Tier:      "business",
				Limits:    map[string]*int{"employees": &limit},
			},
		},
	})

	cacheStore := cache.NewStore(newMemRedis(), 1000, logger)
	resolver := license.NewDatabaseResolver(backing, logger)
	audit := license.NewMemoryAuditLogger()
	validator := license.NewValidator(cacheStore, resolver, audit, 10*time.Minute, time.Minute, logger)
	tracker := license.NewTracker(backing, resolver, audit, 80, 24*time.Hour, logger)
	invalidator := cache.NewInvalidator(cacheStore, logger)

	router := NewRouter(RouterDeps{
		Store:       cacheStore,
		Invalidator: invalidator,
		Validator:   validator,
		Tracker:     tracker,
		Logger:      logger,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, backing: backing, audit: audit}
}

func (f *apiFixture) post(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestValidateEndpointAllowsLicensedModule(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/entitlements/validate", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "payroll",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body ValidateResponse
	decode(t, resp, &body)
	assert.True(t, body.Valid)
	assert.Equal(t, "business", body.Tier)
	assert.NotEmpty(t, body.TraceID)
}

func TestValidateEndpointDeniesUnlicensedModule(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/entitlements/validate", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "recruiting",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ValidateResponse
	decode(t, resp, &body)
	assert.False(t, body.Valid)
	assert.Equal(t, license.ReasonModuleNotLicensed, body.Reason)
}

func TestValidateEndpointRejectsMissingFields(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/entitlements/validate", map[string]interface{}{
		"tenant_id": "tenant-1",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsageCheckEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/usage/check", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "payroll",
		"limit_type": "employees",
		"amount":     5,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body UsageCheckResponse
	decode(t, resp, &body)
	assert.True(t, body.Allowed)
	require.NotNil(t, body.Limit)
	assert.Equal(t, 50, *body.Limit)
}

func TestUsageIncrementEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	for want := 1; want <= 3; want++ {
		resp := f.post(t, "/api/usage/increment", map[string]interface{}{
			"tenant_id":  "tenant-1",
			"module_key": "payroll",
			"limit_type": "employees",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body UsageIncrementResponse
		decode(t, resp, &body)
		assert.Equal(t, want, body.Usage)
	}
}

func TestUsageCurrentEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/usage/increment", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "payroll",
		"limit_type": "employees",
		"amount":     7,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(f.server.URL + "/api/usage/tenant-1/payroll")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var record license.UsagePeriodRecord
	decode(t, getResp, &record)
	assert.Equal(t, 7, record.Usage["employees"])
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	// Warm the verdict cache, then invalidate the tenant's license.
	resp := f.post(t, "/api/entitlements/validate", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "payroll",
	})
	resp.Body.Close()

	resp = f.post(t, "/api/cache/invalidate", map[string]interface{}{
		"entity_type": "license",
		"entity_id":   "lic-1",
		"tenant_id":   "tenant-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body InvalidateResponse
	decode(t, resp, &body)
	assert.GreaterOrEqual(t, body.KeysRemoved, 1)
}

func TestCacheInvalidateUnknownEntityType(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/cache/invalidate", map[string]interface{}{
		"entity_type": "mystery",
		"entity_id":   "x",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body InvalidateResponse
	decode(t, resp, &body)
	assert.Zero(t, body.KeysRemoved)
}

func TestCacheStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/entitlements/validate", map[string]interface{}{
		"tenant_id":  "tenant-1",
		"module_key": "payroll",
	})
	resp.Body.Close()

	statsResp, err := http.Get(f.server.URL + "/api/cache/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var stats map[string]interface{}
	decode(t, statsResp, &stats)
	assert.Contains(t, stats, "hits")
	assert.Contains(t, stats, "misses")
	assert.Contains(t, stats, "hit_ratio")
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		var body map[string]interface{}
		decode(t, resp, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", body["status"], path)
	}
}

func TestNotFoundReturnsJSON(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}
