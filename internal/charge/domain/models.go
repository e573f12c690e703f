// Package domain defines the charge provider port and its error taxonomy.
package domain

import (
	"context"
	"errors"

	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
)

// LineRef identifies the billable line a charge attaches to, as the
// provider models it.
type LineRef struct {
	SubscriptionID string
	ItemID         string
}

// Provider is the remote charge-creation API. FindBillableLine returns
// (nil, nil) when the tenant has no active billable line. Errors from
// either call are categorized via Classify.
type Provider interface {
	FindBillableLine(ctx context.Context, tenant tenantdomain.TenantIdentity) (*LineRef, error)
	CreateCharge(ctx context.Context, tenant tenantdomain.TenantIdentity, line LineRef, amountCents int64, description string) (string, error)
}

// Sentinel errors for categorized provider failures. The HTTP client
// wraps these so callers classify with errors.Is.
var (
	ErrAuth        = errors.New("charge provider: authentication failed")
	ErrRateLimited = errors.New("charge provider: rate limited")
	ErrServer      = errors.New("charge provider: server error")
	ErrNotFound    = errors.New("charge provider: not found")
	ErrInvalid     = errors.New("charge provider: invalid request")
)
