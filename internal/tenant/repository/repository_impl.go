package repository

import (
	"context"
	"fmt"
	"time"

	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
	"gorm.io/gorm"
)

type analyticsRepo struct {
	db *gorm.DB
}

// New returns an AnalyticsSource backed by the analytics database. The
// tables are owned by the analytics pipeline; this repository only reads.
func New(db *gorm.DB) tenantdomain.AnalyticsSource {
	return &analyticsRepo{db: db}
}

func (r *analyticsRepo) ListActiveTenants(ctx context.Context) ([]tenantdomain.TenantIdentity, error) {
	var tenants []tenantdomain.TenantIdentity
	err := r.db.WithContext(ctx).Raw(
		`SELECT tenant_key, access_credential, registered_at, updated_at
		 FROM tenants
		 WHERE tenant_key <> '' AND access_credential <> ''
		 ORDER BY tenant_key`,
	).Scan(&tenants).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tenantdomain.ErrSourceUnavailable, err)
	}
	return tenants, nil
}

func (r *analyticsRepo) GetUsageCounts(ctx context.Context, date time.Time) ([]tenantdomain.UsageCount, error) {
	var counts []tenantdomain.UsageCount
	err := r.db.WithContext(ctx).Raw(
		`SELECT tenant_key, unit_count
		 FROM usage_counts
		 WHERE usage_date = ?`,
		date,
	).Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tenantdomain.ErrSourceUnavailable, err)
	}
	return counts, nil
}
