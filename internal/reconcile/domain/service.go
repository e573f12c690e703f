// Package domain defines the reconciliation write stage.
package domain

import (
	"context"

	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
)

// Writer appends one outcome-annotated ledger record per original
// record, joined by tenant key. It never mutates the pending rows and
// never undoes a completed charge: its own insert failure is reported,
// not rolled back.
type Writer interface {
	Write(ctx context.Context, records []ledgerdomain.BillingRecord, outcomes []dispatchdomain.ChargeOutcome) error
}
