package domain

import (
	"context"
	"time"
)

// Repository is the raw store. Insert appends; it is deliberately not
// idempotent — inserting the same batch twice yields two sets of rows.
type Repository interface {
	Insert(ctx context.Context, records []BillingRecord) error
	ListByDate(ctx context.Context, date time.Time) ([]BillingRecord, error)
}

// Service is the ledger surface used by the pipeline.
type Service interface {
	Insert(ctx context.Context, records []BillingRecord) error
	ListByDate(ctx context.Context, date time.Time) ([]BillingRecord, error)
}
