package scheduler

import (
	"fmt"
	"strings"
	"time"

	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
)

// RunState is the terminal state of a billing run.
type RunState string

const (
	RunStateDone    RunState = "done"
	RunStateSkipped RunState = "skipped"
	RunStateFailed  RunState = "failed"
)

// Stage names reported when a run fails.
const (
	StageAggregate = "aggregate"
	StageLedger    = "ledger"
	StageDispatch  = "dispatch"
	StageReconcile = "reconcile"
)

// RunError captures the fatal error that ended a failed run.
type RunError struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RunReport is the structured result of a single billing run. It is
// returned to the trigger surface and rendered into the run notification.
type RunReport struct {
	RunID      string   `json:"run_id"`
	State      RunState `json:"state"`
	Success    bool     `json:"success"`
	TargetDate time.Time `json:"target_date"`

	TenantCount      int   `json:"tenant_count"`
	RecordCount      int   `json:"record_count"`
	ChargedCount     int   `json:"charged_count"`
	FailedCount      int   `json:"failed_count"`
	SkippedCount     int   `json:"skipped_count"`
	TotalAmountCents int64 `json:"total_amount_cents"`

	Outcomes []dispatchdomain.ChargeOutcome `json:"outcomes,omitempty"`

	// ReconcileError is set when the reconciliation write failed after
	// charges already went out. The run still counts as done; the ledger
	// is missing its second write and needs operator attention.
	ReconcileError string    `json:"reconcile_error,omitempty"`
	Error          *RunError `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RenderSlack formats the report as a plain-text notification message.
func (r *RunReport) RenderSlack() string {
	date := r.TargetDate.Format("2006-01-02")

	var b strings.Builder
	switch r.State {
	case RunStateSkipped:
		fmt.Fprintf(&b, ":zzz: Billing run for %s skipped: no active tenants", date)
		return b.String()
	case RunStateFailed:
		fmt.Fprintf(&b, ":rotating_light: Billing run for %s FAILED", date)
		if r.Error != nil {
			fmt.Fprintf(&b, " at stage %s: %s", r.Error.Stage, r.Error.Message)
		}
		return b.String()
	}

	fmt.Fprintf(&b, ":moneybag: Billing run for %s complete\n", date)
	fmt.Fprintf(&b, "Tenants: %d, records: %d, total: $%d.%02d\n",
		r.TenantCount, r.RecordCount, r.TotalAmountCents/100, r.TotalAmountCents%100)
	fmt.Fprintf(&b, "Charged: %d, failed: %d, skipped: %d (took %s)",
		r.ChargedCount, r.FailedCount, r.SkippedCount, r.Elapsed().Round(time.Millisecond))
	if r.ReconcileError != "" {
		fmt.Fprintf(&b, "\n:warning: reconciliation write failed: %s", r.ReconcileError)
	}
	return b.String()
}
