package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	reconciledomain "github.com/smallbiznis/tollgate/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	Ledger ledgerdomain.Service
	GenID  *snowflake.Node
	Clock  clock.Clock
}

type writer struct {
	log    *zap.Logger
	ledger ledgerdomain.Service
	genID  *snowflake.Node
	clock  clock.Clock
}

func NewWriter(p ServiceParam) reconciledomain.Writer {
	return &writer{
		log:    p.Log.Named("reconcile"),
		ledger: p.Ledger,
		genID:  p.GenID,
		clock:  p.Clock,
	}
}

func (w *writer) Write(ctx context.Context, records []ledgerdomain.BillingRecord, outcomes []dispatchdomain.ChargeOutcome) error {
	outcomeByTenant := make(map[string]dispatchdomain.ChargeOutcome, len(outcomes))
	for _, outcome := range outcomes {
		outcomeByTenant[outcome.TenantKey] = outcome
	}

	now := w.clock.Now()
	reconciled := make([]ledgerdomain.BillingRecord, 0, len(records))
	for _, rec := range records {
		next := rec
		next.ID = w.genID.Generate()
		next.InsertedAt = now

		outcome, ok := outcomeByTenant[rec.TenantKey]
		if !ok {
			// Dispatcher preserves the input set, so this is a programming
			// error; record it rather than dropping the tenant.
			message := "no dispatch outcome recorded"
			next.ChargeStatus = ledgerdomain.ChargeStatusFailed
			next.ChargeErrorMessage = &message
			reconciled = append(reconciled, next)
			continue
		}

		switch outcome.Status {
		case dispatchdomain.OutcomeSuccess:
			next.ChargeStatus = ledgerdomain.ChargeStatusSuccess
			next.ChargeID = outcome.ChargeID
			processedAt := now
			next.ChargeProcessedAt = &processedAt
		case dispatchdomain.OutcomeFailed:
			next.ChargeStatus = ledgerdomain.ChargeStatusFailed
			next.ChargeErrorMessage = outcome.ErrorMessage
		case dispatchdomain.OutcomeSkipped:
			// Nothing was charged; the tenant stays pending rather than
			// entering a terminal billing state.
			next.ChargeStatus = ledgerdomain.ChargeStatusPending
		}
		reconciled = append(reconciled, next)
	}

	if len(reconciled) == 0 {
		return nil
	}
	if err := w.ledger.Insert(ctx, reconciled); err != nil {
		// Completed charges are real-world side effects; a storage failure
		// here is logged and surfaced, never rolled back.
		w.log.Error("reconcile.insert.failed",
			zap.Int("record_count", len(reconciled)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
