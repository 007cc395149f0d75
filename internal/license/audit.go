package license

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit entry.
type EventType string

const (
	EventValidationSuccess EventType = "VALIDATION_SUCCESS"
	EventValidationFailure EventType = "VALIDATION_FAILURE"
	EventLicenseExpired    EventType = "LICENSE_EXPIRED"
	EventLimitWarning      EventType = "LIMIT_WARNING"
	EventLimitExceeded     EventType = "LIMIT_EXCEEDED"
)

// Severity grades an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuditEntry is one append-only record of a validation or limit check.
// Every entry carries a timestamp, tenant, module, event type, severity
// and a non-empty details map; failure entries additionally carry a
// non-empty details["reason"].
type AuditEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	TenantID  string                 `json:"tenant_id"`
	ModuleKey string                 `json:"module_key"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Details   map[string]interface{} `json:"details"`
}

// AuditLogger appends audit entries. Implementations must be safe for
// concurrent use. A returned error is inspected only for metrics and
// logging; it never alters a verdict already computed.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry) error
}

// newAuditEntry builds a complete entry. Optional request metadata is
// copied into the details verbatim.
func newAuditEntry(now time.Time, tenantID, moduleKey string, eventType EventType, severity Severity, details map[string]interface{}, req *RequestInfo) AuditEntry {
	if details == nil {
		details = make(map[string]interface{})
	}
	if req != nil {
		if req.IPAddress != "" {
			details["ip_address"] = req.IPAddress
		}
		if req.UserAgent != "" {
			details["user_agent"] = req.UserAgent
		}
		if req.UserID != "" {
			details["user_id"] = req.UserID
		}
	}
	return AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		TenantID:  tenantID,
		ModuleKey: moduleKey,
		EventType: eventType,
		Severity:  severity,
		Details:   details,
	}
}

// SlogAuditLogger writes audit entries as structured log records. This
// sink is always present; persistent sinks are layered on top of it via
// MultiAuditLogger.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit sink over the given logger.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	return &SlogAuditLogger{
		logger: logger.With(slog.String("component", "license.audit")),
	}
}

// Log writes one entry. It never fails.
func (s *SlogAuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	level := slog.LevelInfo
	switch entry.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityCritical:
		level = slog.LevelError
	}

	s.logger.LogAttrs(ctx, level, "audit",
		slog.String("audit_id", entry.ID),
		slog.Time("ts", entry.Timestamp),
		slog.String("tenant_id", entry.TenantID),
		slog.String("module_key", entry.ModuleKey),
		slog.String("event_type", string(entry.EventType)),
		slog.String("severity", string(entry.Severity)),
		slog.Any("details", entry.Details),
	)
	return nil
}

// MultiAuditLogger fans an entry out to several sinks. A failing sink
// does not stop the others; the first error is returned for metrics.
type MultiAuditLogger struct {
	sinks []AuditLogger
}

// NewMultiAuditLogger combines the given sinks.
func NewMultiAuditLogger(sinks ...AuditLogger) *MultiAuditLogger {
	return &MultiAuditLogger{sinks: sinks}
}

// Log appends the entry to every sink.
func (m *MultiAuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemoryAuditLogger records entries in memory. Used by tests and as a
// bounded recent-events buffer.
type MemoryAuditLogger struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLogger creates an empty in-memory sink.
func NewMemoryAuditLogger() *MemoryAuditLogger {
	return &MemoryAuditLogger{}
}

// Log appends the entry.
func (m *MemoryAuditLogger) Log(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *MemoryAuditLogger) Entries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
