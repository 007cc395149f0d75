package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditEntryFields(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	entry := newAuditEntry(now, "T1", "payroll", EventValidationFailure, SeverityWarning,
		map[string]interface{}{"reason": ReasonModuleNotLicensed},
		&RequestInfo{IPAddress: "192.0.2.1"})

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, now, entry.Timestamp)
	assert.Equal(t, "T1", entry.TenantID)
	assert.Equal(t, "payroll", entry.ModuleKey)
	assert.Equal(t, EventValidationFailure, entry.EventType)
	assert.Equal(t, SeverityWarning, entry.Severity)
	assert.Equal(t, ReasonModuleNotLicensed, entry.Details["reason"])
	assert.Equal(t, "192.0.2.1", entry.Details["ip_address"])
}

func TestNewAuditEntryNilDetails(t *testing.T) {
	entry := newAuditEntry(time.Now(), "T1", "payroll", EventValidationSuccess, SeverityInfo, nil, nil)
	require.NotNil(t, entry.Details)
}

func TestSlogAuditLoggerNeverFails(t *testing.T) {
	sink := NewSlogAuditLogger(discardLogger())
	entry := newAuditEntry(time.Now(), "T1", "payroll", EventLimitExceeded, SeverityCritical,
		map[string]interface{}{"reason": ReasonLimitExceeded}, nil)
	assert.NoError(t, sink.Log(context.Background(), entry))
}

func TestMultiAuditLoggerFansOut(t *testing.T) {
	a := NewMemoryAuditLogger()
	b := NewMemoryAuditLogger()
	multi := NewMultiAuditLogger(failingAudit{}, a, b)

	entry := newAuditEntry(time.Now(), "T1", "payroll", EventValidationSuccess, SeverityInfo,
		map[string]interface{}{"tier": "business"}, nil)

	err := multi.Log(context.Background(), entry)
	assert.Error(t, err, "the first sink error is surfaced for metrics")
	assert.Len(t, a.Entries(), 1, "a failing sink must not stop the others")
	assert.Len(t, b.Entries(), 1)
}

func TestMemoryAuditLoggerCopies(t *testing.T) {
	sink := NewMemoryAuditLogger()
	entry := newAuditEntry(time.Now(), "T1", "payroll", EventValidationSuccess, SeverityInfo,
		map[string]interface{}{"tier": "business"}, nil)
	require.NoError(t, sink.Log(context.Background(), entry))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	entries[0].TenantID = "mutated"
	assert.Equal(t, "T1", sink.Entries()[0].TenantID)
}
