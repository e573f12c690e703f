// Package domain defines the usage aggregation stage.
package domain

import (
	"time"

	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
)

// Service joins tenant identities with usage counts for one date and
// produces one pending BillingRecord per tenant. Tenants without a usage
// row get a zero count and a zero amount; the transform is pure and
// total over its inputs.
type Service interface {
	BuildRecords(
		date time.Time,
		tenants []tenantdomain.TenantIdentity,
		usage []tenantdomain.UsageCount,
		ratePerMillionCents int64,
	) []ledgerdomain.BillingRecord
}
