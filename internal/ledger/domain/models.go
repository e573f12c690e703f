// Package domain defines the append-only billing ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInsertFailed = errors.New("ledger insert failed")
	ErrEmptyBatch   = errors.New("ledger batch is empty")
)

// ChargeStatus is the billing state recorded on a ledger row.
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "pending"
	ChargeStatusSuccess ChargeStatus = "success"
	ChargeStatusFailed  ChargeStatus = "failed"
)

// BillingRecord is one immutable ledger row. The backing store does not
// support update shortly after insert, so billing history is an ordered
// sequence of rows per (tenant, date): a pending row written before any
// charge, then a reconciliation row carrying the outcome. Readers take
// the latest row per key.
type BillingRecord struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantKey           string       `gorm:"index:idx_billing_records_tenant_date;not null" json:"tenant_key"`
	BillingDate         time.Time    `gorm:"index:idx_billing_records_tenant_date;not null" json:"billing_date"`
	UnitCount           int64        `gorm:"not null" json:"unit_count"`
	AmountCents         int64        `gorm:"not null" json:"amount_cents"`
	RatePerMillionCents int64        `gorm:"not null" json:"rate_per_million_cents"`
	ChargeID            *string      `json:"charge_id,omitempty"`
	ChargeStatus        ChargeStatus `gorm:"not null" json:"charge_status"`
	ChargeErrorMessage  *string      `json:"charge_error_message,omitempty"`
	ChargeProcessedAt   *time.Time   `json:"charge_processed_at,omitempty"`
	InsertedAt          time.Time    `gorm:"not null" json:"inserted_at"`
}

func (BillingRecord) TableName() string { return "billing_records" }

// DateOf truncates t to the UTC day used as a billing date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LatestByTenant reduces a date-scoped scan to the most recent row per
// tenant. Ties on InsertedAt fall to the higher (later) snowflake ID.
func LatestByTenant(records []BillingRecord) map[string]BillingRecord {
	latest := make(map[string]BillingRecord, len(records))
	for _, rec := range records {
		current, ok := latest[rec.TenantKey]
		if !ok {
			latest[rec.TenantKey] = rec
			continue
		}
		if rec.InsertedAt.After(current.InsertedAt) ||
			(rec.InsertedAt.Equal(current.InsertedAt) && rec.ID > current.ID) {
			latest[rec.TenantKey] = rec
		}
	}
	return latest
}
