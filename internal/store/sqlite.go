package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

const schema = `
CREATE TABLE IF NOT EXISTS licenses (
	tenant_id TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	modules   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_periods (
	tenant_id  TEXT NOT NULL,
	module_key TEXT NOT NULL,
	period     TEXT NOT NULL,
	limits     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant_id, module_key, period)
);

CREATE TABLE IF NOT EXISTS usage_counters (
	tenant_id  TEXT NOT NULL,
	module_key TEXT NOT NULL,
	period     TEXT NOT NULL,
	limit_type TEXT NOT NULL,
	usage      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, module_key, period, limit_type)
);

CREATE TABLE IF NOT EXISTS usage_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id   TEXT NOT NULL,
	module_key  TEXT NOT NULL,
	period      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	limit_type  TEXT NOT NULL,
	usage       INTEGER NOT NULL,
	attempted   INTEGER NOT NULL,
	limit_value INTEGER NOT NULL,
	percentage  INTEGER NOT NULL,
	at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMP NOT NULL,
	tenant_id  TEXT NOT NULL,
	module_key TEXT NOT NULL,
	event_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	details    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_ts ON audit_log(tenant_id, ts);
`

// SQLiteStore persists licenses, usage counters, and the audit trail in
// a SQLite database. It implements license.LicenseRepository,
// license.UsageRepository, and license.AuditLogger.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent increments.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutLicense stores or replaces a tenant's license.
func (s *SQLiteStore) PutLicense(ctx context.Context, lic *license.License) error {
	modules, err := json.Marshal(lic.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO licenses (tenant_id, status, modules) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET status = excluded.status, modules = excluded.modules`,
		lic.TenantID, lic.Status, string(modules))
	return err
}

// FindLicenseByTenant implements license.LicenseRepository.
func (s *SQLiteStore) FindLicenseByTenant(ctx context.Context, tenantID string) (*license.License, error) {
	var (
		status  string
		modules string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, modules FROM licenses WHERE tenant_id = ?`, tenantID).
		Scan(&status, &modules)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query license: %w", err)
	}

	lic := &license.License{TenantID: tenantID, Status: status}
	if err := json.Unmarshal([]byte(modules), &lic.Modules); err != nil {
		return nil, fmt.Errorf("malformed modules for tenant %s: %w", tenantID, err)
	}
	return lic, nil
}

// FindPeriodRecord implements license.UsageRepository.
func (s *SQLiteStore) FindPeriodRecord(ctx context.Context, tenantID, moduleKey, period string) (*license.UsagePeriodRecord, error) {
	var limits string
	err := s.db.QueryRowContext(ctx,
		`SELECT limits FROM usage_periods WHERE tenant_id = ? AND module_key = ? AND period = ?`,
		tenantID, moduleKey, period).Scan(&limits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query usage period: %w", err)
	}

	record := &license.UsagePeriodRecord{
		TenantID:  tenantID,
		ModuleKey: moduleKey,
		Period:    period,
		Usage:     make(map[string]int),
	}
	if err := json.Unmarshal([]byte(limits), &record.Limits); err != nil {
		return nil, fmt.Errorf("malformed limits snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT limit_type, usage FROM usage_counters WHERE tenant_id = ? AND module_key = ? AND period = ?`,
		tenantID, moduleKey, period)
	if err != nil {
		return nil, fmt.Errorf("query usage counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			limitType string
			usage     int
		)
		if err := rows.Scan(&limitType, &usage); err != nil {
			return nil, err
		}
		record.Usage[limitType] = usage
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadEvents(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SQLiteStore) loadEvents(ctx context.Context, record *license.UsagePeriodRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, limit_type, usage, attempted, limit_value, percentage, at
		 FROM usage_events WHERE tenant_id = ? AND module_key = ? AND period = ? ORDER BY id`,
		record.TenantID, record.ModuleKey, record.Period)
	if err != nil {
		return fmt.Errorf("query usage events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind, limitType                     string
			usage, attempted, limitVal, percent int
			at                                  time.Time
		)
		if err := rows.Scan(&kind, &limitType, &usage, &attempted, &limitVal, &percent, &at); err != nil {
			return err
		}
		switch kind {
		case "warning":
			record.Warnings = append(record.Warnings, license.WarningEvent{
				LimitType: limitType, Usage: usage, Limit: limitVal, Percentage: percent, At: at,
			})
		case "violation":
			record.Violations = append(record.Violations, license.ViolationEvent{
				LimitType: limitType, Attempted: attempted, Limit: limitVal, At: at,
			})
		}
	}
	return rows.Err()
}

// CreatePeriodRecord implements license.UsageRepository. An existing
// record wins.
func (s *SQLiteStore) CreatePeriodRecord(ctx context.Context, record *license.UsagePeriodRecord) error {
	limits, err := json.Marshal(record.Limits)
	if err != nil {
		return fmt.Errorf("marshal limits snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_periods (tenant_id, module_key, period, limits, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		record.TenantID, record.ModuleKey, record.Period, string(limits), time.Now().UTC())
	return err
}

// IncrementUsage implements license.UsageRepository. The upsert makes
// the increment a single atomic statement.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, tenantID, moduleKey, period, limitType string, amount int) (int, error) {
	var usage int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_counters (tenant_id, module_key, period, limit_type, usage)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, module_key, period, limit_type)
		 DO UPDATE SET usage = usage + excluded.usage
		 RETURNING usage`,
		tenantID, moduleKey, period, limitType, amount).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return usage, nil
}

// SetUsage implements license.UsageRepository.
func (s *SQLiteStore) SetUsage(ctx context.Context, tenantID, moduleKey, period, limitType string, value int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_counters (tenant_id, module_key, period, limit_type, usage)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, module_key, period, limit_type)
		 DO UPDATE SET usage = excluded.usage`,
		tenantID, moduleKey, period, limitType, value)
	return err
}

// AppendWarning implements license.UsageRepository.
func (s *SQLiteStore) AppendWarning(ctx context.Context, tenantID, moduleKey, period string, event license.WarningEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (tenant_id, module_key, period, kind, limit_type, usage, attempted, limit_value, percentage, at)
		 VALUES (?, ?, ?, 'warning', ?, ?, 0, ?, ?, ?)`,
		tenantID, moduleKey, period, event.LimitType, event.Usage, event.Limit, event.Percentage, event.At.UTC())
	return err
}

// AppendViolation implements license.UsageRepository.
func (s *SQLiteStore) AppendViolation(ctx context.Context, tenantID, moduleKey, period string, event license.ViolationEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (tenant_id, module_key, period, kind, limit_type, usage, attempted, limit_value, percentage, at)
		 VALUES (?, ?, ?, 'violation', ?, 0, ?, ?, 0, ?)`,
		tenantID, moduleKey, period, event.LimitType, event.Attempted, event.Limit, event.At.UTC())
	return err
}

// Log implements license.AuditLogger, persisting the entry.
func (s *SQLiteStore) Log(ctx context.Context, entry license.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, tenant_id, module_key, event_type, severity, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC(), entry.TenantID, entry.ModuleKey,
		string(entry.EventType), string(entry.Severity), string(details))
	return err
}

// RecentAuditEntries returns up to limit entries for a tenant, newest
// first. Used by the admin surface.
func (s *SQLiteStore) RecentAuditEntries(ctx context.Context, tenantID string, limit int) ([]license.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, tenant_id, module_key, event_type, severity, details
		 FROM audit_log WHERE tenant_id = ? ORDER BY ts DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []license.AuditEntry
	for rows.Next() {
		var entry license.AuditEntry
		var eventType, sev, details string
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.TenantID, &entry.ModuleKey, &eventType, &sev, &details); err != nil {
			return nil, err
		}
		entry.EventType = license.EventType(eventType)
		entry.Severity = license.Severity(sev)
		if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
			return nil, fmt.Errorf("malformed audit details: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
