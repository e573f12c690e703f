package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/providers/slack"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	reconciledomain "github.com/smallbiznis/tollgate/internal/reconcile/domain"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Holder     *config.BillingConfigHolder
	GenID      *snowflake.Node
	Clock      clock.Clock
	Analytics  tenantdomain.AnalyticsSource
	RatingSvc  ratingdomain.Service
	LedgerSvc  ledgerdomain.Service
	Dispatcher dispatchdomain.Service
	Reconciler reconciledomain.Writer
	Notifier   slack.Provider
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Orchestrator drives the daily billing pipeline: aggregate usage, write
// the pending ledger snapshot, dispatch charges, write the reconciliation
// snapshot, notify.
type Orchestrator struct {
	log        *zap.Logger
	cfg        config.Config
	holder     *config.BillingConfigHolder
	genID      *snowflake.Node
	clock      clock.Clock
	analytics  tenantdomain.AnalyticsSource
	ratingSvc  ratingdomain.Service
	ledgerSvc  ledgerdomain.Service
	dispatcher dispatchdomain.Service
	reconciler reconciledomain.Writer
	notifier   slack.Provider
	metrics    *obsmetrics.Metrics
}

func New(p Params) (*Orchestrator, error) {
	if p.Log == nil || p.Holder == nil || p.GenID == nil || p.Clock == nil ||
		p.Analytics == nil || p.RatingSvc == nil || p.LedgerSvc == nil ||
		p.Dispatcher == nil || p.Reconciler == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Orchestrator{
		log:        p.Log.Named("scheduler").With(zap.String("component", "billing_run")),
		cfg:        p.Config,
		holder:     p.Holder,
		genID:      p.GenID,
		clock:      p.Clock,
		analytics:  p.Analytics,
		ratingSvc:  p.RatingSvc,
		ledgerSvc:  p.LedgerSvc,
		dispatcher: p.Dispatcher,
		reconciler: p.Reconciler,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}, nil
}

// Run executes one billing run for the given date. The returned report
// always describes what happened; the error is non-nil only when the run
// ended in the failed state.
func (s *Orchestrator) Run(ctx context.Context, date time.Time) (*RunReport, error) {
	billing := s.holder.Get()

	report := &RunReport{
		RunID:      s.genID.Generate().String(),
		TargetDate: ledgerdomain.DateOf(date),
		StartedAt:  s.clock.Now(),
	}
	log := s.log.With(
		zap.String("run_id", report.RunID),
		zap.String("billing_date", report.TargetDate.Format("2006-01-02")),
	)
	log.Info("billing.run.start")

	tenants, err := s.analytics.ListActiveTenants(ctx)
	if err != nil {
		return s.fail(ctx, log, report, StageAggregate, err)
	}
	report.TenantCount = len(tenants)

	if len(tenants) == 0 {
		report.State = RunStateSkipped
		report.Success = true
		report.FinishedAt = s.clock.Now()
		log.Info("billing.run.skipped", zap.String("reason", "no active tenants"))
		s.metrics.RecordRunCompleted(ctx, string(report.State), report.Elapsed())
		s.notify(ctx, log, report)
		return report, nil
	}

	usage, err := s.analytics.GetUsageCounts(ctx, report.TargetDate)
	if err != nil {
		return s.fail(ctx, log, report, StageAggregate, err)
	}

	records := s.ratingSvc.BuildRecords(report.TargetDate, tenants, usage, billing.RatePerMillionCents)
	report.RecordCount = len(records)
	for _, record := range records {
		report.TotalAmountCents += record.AmountCents
	}

	s.warnOnRerun(ctx, log, report.TargetDate)

	if err := s.ledgerSvc.Insert(ctx, records); err != nil {
		return s.fail(ctx, log, report, StageLedger, err)
	}
	log.Info("billing.run.pending_written", zap.Int("record_count", len(records)))

	work := pairWork(tenants, records)
	outcomes := s.dispatcher.Dispatch(ctx, work, dispatchdomain.Options{
		MaxConcurrent: billing.MaxConcurrentCharges,
		MaxAttempts:   billing.MaxChargeAttempts,
		BackoffBase:   billing.RetryBackoffBase,
		CallTimeout:   billing.ChargeCallTimeout,
	})
	report.Outcomes = outcomes
	for _, outcome := range outcomes {
		switch outcome.Status {
		case dispatchdomain.OutcomeSuccess:
			report.ChargedCount++
		case dispatchdomain.OutcomeFailed:
			report.FailedCount++
		case dispatchdomain.OutcomeSkipped:
			report.SkippedCount++
		}
	}

	// Charges already went out; a reconciliation failure is reported but
	// must not fail the run.
	if err := s.reconciler.Write(ctx, records, outcomes); err != nil {
		report.ReconcileError = err.Error()
		log.Error("billing.run.reconcile_failed", zap.Error(err))
	}

	report.State = RunStateDone
	report.Success = true
	report.FinishedAt = s.clock.Now()
	log.Info("billing.run.finish",
		zap.Int("tenant_count", report.TenantCount),
		zap.Int("charged_count", report.ChargedCount),
		zap.Int("failed_count", report.FailedCount),
		zap.Int("skipped_count", report.SkippedCount),
		zap.Int64("total_amount_cents", report.TotalAmountCents),
		zap.Int64("duration_ms", report.Elapsed().Milliseconds()),
	)
	s.metrics.RecordRunCompleted(ctx, string(report.State), report.Elapsed())
	s.notify(ctx, log, report)
	return report, nil
}

// RunForever triggers a run on every interval tick, billing the previous
// UTC day. Interval changes from a config reload apply on the next tick.
func (s *Orchestrator) RunForever(ctx context.Context) {
	interval := s.holder.Get().RunInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		target := s.clock.Now().AddDate(0, 0, -1)
		if _, err := s.Run(ctx, target); err != nil {
			s.log.Warn("scheduled billing run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if next := s.holder.Get().RunInterval; next != interval {
			interval = next
			ticker.Reset(interval)
			s.log.Info("run interval updated", zap.Duration("interval", interval))
		}
	}
}

func (s *Orchestrator) fail(ctx context.Context, log *zap.Logger, report *RunReport, stage string, err error) (*RunReport, error) {
	report.State = RunStateFailed
	report.FinishedAt = s.clock.Now()
	report.Error = &RunError{
		Stage:      stage,
		Message:    err.Error(),
		OccurredAt: report.FinishedAt,
	}
	log.Error("billing.run.failed", zap.String("stage", stage), zap.Error(err))
	s.metrics.RecordRunCompleted(ctx, string(report.State), report.Elapsed())
	s.notify(ctx, log, report)
	return report, err
}

// warnOnRerun flags duplicate runs for a date without blocking them.
// Re-running a day is legitimate after a partial failure; the ledger is
// append-only and readers resolve the latest row per tenant.
func (s *Orchestrator) warnOnRerun(ctx context.Context, log *zap.Logger, date time.Time) {
	existing, err := s.ledgerSvc.ListByDate(ctx, date)
	if err != nil {
		log.Warn("billing.run.rerun_check_failed", zap.Error(err))
		return
	}
	if len(existing) > 0 {
		log.Warn("billing.run.rerun_detected",
			zap.Int("existing_records", len(existing)),
		)
	}
}

func (s *Orchestrator) notify(ctx context.Context, log *zap.Logger, report *RunReport) {
	if err := s.notifier.PostMessage(ctx, s.cfg.SlackChannel, report.RenderSlack()); err != nil {
		log.Warn("billing.run.notify_failed", zap.Error(err))
		s.metrics.RecordNotifyFailure(ctx, "slack")
	}
}

func pairWork(tenants []tenantdomain.TenantIdentity, records []ledgerdomain.BillingRecord) []dispatchdomain.Work {
	byKey := make(map[string]tenantdomain.TenantIdentity, len(tenants))
	for _, tenant := range tenants {
		byKey[tenant.TenantKey] = tenant
	}

	work := make([]dispatchdomain.Work, 0, len(records))
	for _, record := range records {
		tenant, ok := byKey[record.TenantKey]
		if !ok {
			continue
		}
		work = append(work, dispatchdomain.Work{Tenant: tenant, Record: record})
	}
	return work
}
