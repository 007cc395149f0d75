// Package store provides the persistence implementations behind the
// entitlement engine: an in-memory store for file-mode deployments and
// tests, and a SQLite store for database-mode deployments.
package store

import (
	"context"
	"sync"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

// MemoryStore is a mutex-guarded in-memory implementation of the
// license and usage repositories.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]*license.License
	records  map[string]*license.UsagePeriodRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*license.License),
		records:  make(map[string]*license.UsagePeriodRecord),
	}
}

// PutLicense stores or replaces a tenant's license.
func (s *MemoryStore) PutLicense(lic *license.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[lic.TenantID] = lic
}

// FindLicenseByTenant implements license.LicenseRepository.
func (s *MemoryStore) FindLicenseByTenant(_ context.Context, tenantID string) (*license.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lic, ok := s.licenses[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *lic
	return &cp, nil
}

func recordKey(tenantID, moduleKey, period string) string {
	return tenantID + "|" + moduleKey + "|" + period
}

// FindPeriodRecord implements license.UsageRepository.
func (s *MemoryStore) FindPeriodRecord(_ context.Context, tenantID, moduleKey, period string) (*license.UsagePeriodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordKey(tenantID, moduleKey, period)]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

// CreatePeriodRecord implements license.UsageRepository. An existing
// record wins.
func (s *MemoryStore) CreatePeriodRecord(_ context.Context, record *license.UsagePeriodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(record.TenantID, record.ModuleKey, record.Period)
	if _, ok := s.records[key]; ok {
		return nil
	}
	s.records[key] = copyRecord(record)
	return nil
}

// IncrementUsage implements license.UsageRepository. The store mutex
// serializes increments, so no update is ever lost.
func (s *MemoryStore) IncrementUsage(_ context.Context, tenantID, moduleKey, period, limitType string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.ensureRecordLocked(tenantID, moduleKey, period)
	record.Usage[limitType] += amount
	return record.Usage[limitType], nil
}

// SetUsage implements license.UsageRepository.
func (s *MemoryStore) SetUsage(_ context.Context, tenantID, moduleKey, period, limitType string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.ensureRecordLocked(tenantID, moduleKey, period)
	record.Usage[limitType] = value
	return nil
}

// AppendWarning implements license.UsageRepository.
func (s *MemoryStore) AppendWarning(_ context.Context, tenantID, moduleKey, period string, event license.WarningEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.ensureRecordLocked(tenantID, moduleKey, period)
	record.Warnings = append(record.Warnings, event)
	return nil
}

// AppendViolation implements license.UsageRepository.
func (s *MemoryStore) AppendViolation(_ context.Context, tenantID, moduleKey, period string, event license.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.ensureRecordLocked(tenantID, moduleKey, period)
	record.Violations = append(record.Violations, event)
	return nil
}

func (s *MemoryStore) ensureRecordLocked(tenantID, moduleKey, period string) *license.UsagePeriodRecord {
	key := recordKey(tenantID, moduleKey, period)
	record, ok := s.records[key]
	if !ok {
		record = &license.UsagePeriodRecord{
			TenantID:  tenantID,
			ModuleKey: moduleKey,
			Period:    period,
			Usage:     make(map[string]int),
			Limits:    make(map[string]*int),
		}
		s.records[key] = record
	}
	return record
}

func copyRecord(record *license.UsagePeriodRecord) *license.UsagePeriodRecord {
	cp := *record
	cp.Usage = make(map[string]int, len(record.Usage))
	for k, v := range record.Usage {
		cp.Usage[k] = v
	}
	cp.Limits = make(map[string]*int, len(record.Limits))
	for k, v := range record.Limits {
		cp.Limits[k] = v
	}
	cp.Warnings = append([]license.WarningEvent(nil), record.Warnings...)
	cp.Violations = append([]license.ViolationEvent(nil), record.Violations...)
	return &cp
}
