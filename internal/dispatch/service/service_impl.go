package service

import (
	"context"
	"fmt"
	"time"

	chargedomain "github.com/smallbiznis/tollgate/internal/charge/domain"
	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const reasonNoBillableLine = "no active billable subscription"

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Provider chargedomain.Provider
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type dispatcher struct {
	log      *zap.Logger
	provider chargedomain.Provider
	metrics  *obsmetrics.Metrics

	// sleep is swapped out by tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration)
}

func NewService(p ServiceParam) dispatchdomain.Service {
	return &dispatcher{
		log:      p.Log.Named("dispatch"),
		provider: p.Provider,
		metrics:  p.Metrics,
		sleep:    sleepCtx,
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, work []dispatchdomain.Work, opts dispatchdomain.Options) []dispatchdomain.ChargeOutcome {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	outcomes := make([]dispatchdomain.ChargeOutcome, len(work))

	// Each goroutine owns exactly one result slot; the group limit is the
	// only shared state. Workers never return an error, so one tenant's
	// failure cannot cancel siblings.
	var g errgroup.Group
	g.SetLimit(opts.MaxConcurrent)
	for i, item := range work {
		g.Go(func() error {
			outcomes[i] = d.chargeTenant(ctx, item, opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		d.metrics.RecordChargeOutcome(ctx, string(outcome.Status))
	}
	return outcomes
}

func (d *dispatcher) chargeTenant(ctx context.Context, item dispatchdomain.Work, opts dispatchdomain.Options) dispatchdomain.ChargeOutcome {
	record := item.Record
	outcome := dispatchdomain.ChargeOutcome{
		TenantKey:   record.TenantKey,
		AmountCents: record.AmountCents,
	}

	if record.AmountCents <= 0 {
		outcome.Status = dispatchdomain.OutcomeSkipped
		return outcome
	}

	description := fmt.Sprintf("Metered usage for %s (%d units)",
		record.BillingDate.Format("2006-01-02"), record.UnitCount)

	chargeID, err := d.attemptWithRetry(ctx, item, description, opts)
	if err != nil {
		message := err.Error()
		outcome.Status = dispatchdomain.OutcomeFailed
		outcome.ErrorMessage = &message
		d.log.Warn("dispatch.charge.failed",
			zap.String("tenant_key", record.TenantKey),
			zap.Int64("amount_cents", record.AmountCents),
			zap.String("category", string(chargedomain.Classify(err))),
			zap.Error(err),
		)
		return outcome
	}

	outcome.Status = dispatchdomain.OutcomeSuccess
	outcome.ChargeID = &chargeID
	d.log.Info("dispatch.charge.succeeded",
		zap.String("tenant_key", record.TenantKey),
		zap.String("charge_id", chargeID),
		zap.Int64("amount_cents", record.AmountCents),
	)
	return outcome
}

// attemptWithRetry runs the per-tenant procedure as a small
// {attempt, delay} state machine: try, classify, then either stop or
// sleep and double the delay. The attempt budget covers the whole
// procedure; the retry table lives in the charge domain.
func (d *dispatcher) attemptWithRetry(
	ctx context.Context,
	item dispatchdomain.Work,
	description string,
	opts dispatchdomain.Options,
) (string, error) {
	delay := opts.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.metrics.RecordChargeRetry(ctx)
			d.sleep(ctx, delay)
			delay *= 2
		}

		chargeID, err := d.attemptOnce(ctx, item, description, opts.CallTimeout)
		if err == nil {
			return chargeID, nil
		}
		lastErr = err

		if !chargedomain.Retryable(err) {
			return "", err
		}
		d.log.Debug("dispatch.charge.retrying",
			zap.String("tenant_key", item.Record.TenantKey),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err),
		)
	}
	return "", lastErr
}

func (d *dispatcher) attemptOnce(
	ctx context.Context,
	item dispatchdomain.Work,
	description string,
	callTimeout time.Duration,
) (string, error) {
	var line *chargedomain.LineRef
	err := withCallTimeout(ctx, callTimeout, func(callCtx context.Context) error {
		var findErr error
		line, findErr = d.provider.FindBillableLine(callCtx, item.Tenant)
		return findErr
	})
	if err != nil {
		return "", err
	}
	if line == nil {
		return "", fmt.Errorf("%w: %s", chargedomain.ErrNotFound, reasonNoBillableLine)
	}

	var chargeID string
	err = withCallTimeout(ctx, callTimeout, func(callCtx context.Context) error {
		var createErr error
		chargeID, createErr = d.provider.CreateCharge(callCtx, item.Tenant, *line, item.Record.AmountCents, description)
		return createErr
	})
	if err != nil {
		return "", err
	}
	return chargeID, nil
}

func withCallTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
