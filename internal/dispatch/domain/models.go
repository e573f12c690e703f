// Package domain defines the bounded-concurrency charge dispatch stage.
package domain

import (
	"context"
	"time"

	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
)

// OutcomeStatus classifies a dispatch result per tenant.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// ChargeOutcome is the transient per-tenant dispatch result. It is never
// persisted directly; the reconciliation writer maps it into a ledger row.
type ChargeOutcome struct {
	TenantKey    string        `json:"tenant_key"`
	ChargeID     *string       `json:"charge_id,omitempty"`
	Status       OutcomeStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	AmountCents  int64         `json:"amount_cents"`
}

// Work pairs a pending ledger record with the identity that authenticates
// its charge.
type Work struct {
	Tenant tenantdomain.TenantIdentity
	Record ledgerdomain.BillingRecord
}

// Options are the per-run dispatch knobs, built once from the billing
// config when a run starts and passed down explicitly.
type Options struct {
	MaxConcurrent int
	MaxAttempts   int
	BackoffBase   time.Duration
	CallTimeout   time.Duration
}

// Service dispatches charges for every work item with a positive amount,
// at most Options.MaxConcurrent in flight. It returns exactly one outcome
// per input item, in input order; failures are isolated per tenant and
// never abort the batch.
type Service interface {
	Dispatch(ctx context.Context, work []Work, opts Options) []ChargeOutcome
}
