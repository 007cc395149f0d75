package license

import (
	"context"
	"fmt"
	"log/slog"
)

// Resolver resolves a tenant's license from a source of truth. Both
// variants (database and file) return the same License shape so callers
// never branch on deployment mode. A nil license with a nil error means
// the tenant has no license.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (*License, error)
}

// LicenseRepository is the persistence boundary for database mode. The
// document store behind it is an external collaborator.
type LicenseRepository interface {
	FindLicenseByTenant(ctx context.Context, tenantID string) (*License, error)
}

// DatabaseResolver resolves licenses from a repository, one license per
// tenant.
type DatabaseResolver struct {
	repo   LicenseRepository
	logger *slog.Logger
}

// NewDatabaseResolver creates the database-mode resolver.
func NewDatabaseResolver(repo LicenseRepository, logger *slog.Logger) *DatabaseResolver {
	return &DatabaseResolver{
		repo:   repo,
		logger: logger.With(slog.String("component", "license.resolver.database")),
	}
}

// Resolve looks up the tenant's license record.
func (r *DatabaseResolver) Resolve(ctx context.Context, tenantID string) (*License, error) {
	lic, err := r.repo.FindLicenseByTenant(ctx, tenantID)
	if err != nil {
		r.logger.Error("license lookup failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("find license for tenant %s: %w", tenantID, err)
	}
	return lic, nil
}
