package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
	"go.uber.org/fx"
)

type ServiceParam struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
}

type ratingService struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &ratingService{genID: p.GenID, clock: p.Clock}
}

func (s *ratingService) BuildRecords(
	date time.Time,
	tenants []tenantdomain.TenantIdentity,
	usage []tenantdomain.UsageCount,
	ratePerMillionCents int64,
) []ledgerdomain.BillingRecord {
	billingDate := ledgerdomain.DateOf(date)
	now := s.clock.Now()

	countByTenant := make(map[string]int64, len(usage))
	for _, u := range usage {
		countByTenant[u.TenantKey] += u.UnitCount
	}

	records := make([]ledgerdomain.BillingRecord, 0, len(tenants))
	for _, t := range tenants {
		units := countByTenant[t.TenantKey]
		records = append(records, ledgerdomain.BillingRecord{
			ID:                  s.genID.Generate(),
			TenantKey:           t.TenantKey,
			BillingDate:         billingDate,
			UnitCount:           units,
			AmountCents:         ratingdomain.AmountCents(units, ratePerMillionCents),
			RatePerMillionCents: ratePerMillionCents,
			ChargeStatus:        ledgerdomain.ChargeStatusPending,
			InsertedAt:          now,
		})
	}
	return records
}
