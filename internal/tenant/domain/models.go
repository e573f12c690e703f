// Package domain defines the read-only analytics/identity port.
package domain

import (
	"context"
	"errors"
	"time"
)

var ErrSourceUnavailable = errors.New("analytics source unavailable")

// TenantIdentity is one billed account as the analytics source knows it.
// Records with an empty key or credential are filtered out upstream; this
// service treats the snapshot as trusted input and never mutates it.
type TenantIdentity struct {
	TenantKey        string    `gorm:"column:tenant_key"`
	AccessCredential string    `gorm:"column:access_credential"`
	RegisteredAt     time.Time `gorm:"column:registered_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

// UsageCount is the metered unit total for one tenant on one date.
type UsageCount struct {
	TenantKey string `gorm:"column:tenant_key"`
	UnitCount int64  `gorm:"column:unit_count"`
}

// AnalyticsSource reads tenant identities and usage counts. Both calls
// return the full result set; there is no pagination contract.
type AnalyticsSource interface {
	ListActiveTenants(ctx context.Context) ([]TenantIdentity, error)
	GetUsageCounts(ctx context.Context, date time.Time) ([]UsageCount, error)
}
