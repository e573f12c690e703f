package service

import (
	"context"
	"time"

	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Repo    ledgerdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type ledgerService struct {
	log     *zap.Logger
	repo    ledgerdomain.Repository
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &ledgerService{
		log:     p.Log.Named("ledger"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *ledgerService) Insert(ctx context.Context, records []ledgerdomain.BillingRecord) error {
	if err := s.repo.Insert(ctx, records); err != nil {
		return err
	}
	phase := "reconciliation"
	if len(records) > 0 && records[0].ChargeStatus == ledgerdomain.ChargeStatusPending && records[0].ChargeID == nil {
		phase = "pending"
	}
	s.metrics.RecordLedgerInserts(ctx, phase, len(records))
	s.log.Debug("ledger.batch.inserted",
		zap.String("phase", phase),
		zap.Int("record_count", len(records)),
	)
	return nil
}

func (s *ledgerService) ListByDate(ctx context.Context, date time.Time) ([]ledgerdomain.BillingRecord, error) {
	return s.repo.ListByDate(ctx, date)
}
