package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderSlackDone(t *testing.T) {
	report := &RunReport{
		State:            RunStateDone,
		TargetDate:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TenantCount:      3,
		RecordCount:      3,
		ChargedCount:     1,
		FailedCount:      1,
		SkippedCount:     1,
		TotalAmountCents: 2550,
		StartedAt:        time.Date(2024, 3, 16, 2, 0, 0, 0, time.UTC),
		FinishedAt:       time.Date(2024, 3, 16, 2, 0, 3, 0, time.UTC),
	}

	msg := report.RenderSlack()
	assert.Contains(t, msg, "2024-03-15")
	assert.Contains(t, msg, "$25.50")
	assert.Contains(t, msg, "Charged: 1, failed: 1, skipped: 1")
}

func TestRenderSlackSkipped(t *testing.T) {
	report := &RunReport{
		State:      RunStateSkipped,
		TargetDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	assert.Contains(t, report.RenderSlack(), "skipped: no active tenants")
}

func TestRenderSlackFailed(t *testing.T) {
	report := &RunReport{
		State:      RunStateFailed,
		TargetDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Error:      &RunError{Stage: StageLedger, Message: "insert failed"},
	}
	msg := report.RenderSlack()
	assert.Contains(t, msg, "FAILED")
	assert.Contains(t, msg, "stage ledger")
	assert.Contains(t, msg, "insert failed")
}

func TestRenderSlackReconcileWarning(t *testing.T) {
	report := &RunReport{
		State:          RunStateDone,
		TargetDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ReconcileError: "ledger store down",
	}
	assert.Contains(t, report.RenderSlack(), "reconciliation write failed: ledger store down")
}
