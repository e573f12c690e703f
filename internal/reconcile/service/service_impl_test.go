package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLedger struct {
	inserted  [][]ledgerdomain.BillingRecord
	insertErr error
}

func (f *fakeLedger) Insert(ctx context.Context, records []ledgerdomain.BillingRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, records)
	return nil
}

func (f *fakeLedger) ListByDate(ctx context.Context, date time.Time) ([]ledgerdomain.BillingRecord, error) {
	return nil, nil
}

func newTestWriter(t *testing.T, ledger ledgerdomain.Service, now time.Time) *writer {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return &writer{
		log:    zap.NewNop(),
		ledger: ledger,
		genID:  node,
		clock:  clock.NewFakeClock(now),
	}
}

func strPtr(s string) *string { return &s }

func pendingRecords(t *testing.T) []ledgerdomain.BillingRecord {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	mk := func(key string, amount int64) ledgerdomain.BillingRecord {
		return ledgerdomain.BillingRecord{
			ID:                  node.Generate(),
			TenantKey:           key,
			BillingDate:         date,
			UnitCount:           amount * 1000,
			AmountCents:         amount,
			RatePerMillionCents: 1000,
			ChargeStatus:        ledgerdomain.ChargeStatusPending,
			InsertedAt:          date,
		}
	}
	return []ledgerdomain.BillingRecord{mk("tnt_a", 2000), mk("tnt_b", 0), mk("tnt_c", 500)}
}

func TestWriteMapsOutcomesToLedgerRows(t *testing.T) {
	ledger := &fakeLedger{}
	now := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	w := newTestWriter(t, ledger, now)

	records := pendingRecords(t)
	outcomes := []dispatchdomain.ChargeOutcome{
		{TenantKey: "tnt_a", Status: dispatchdomain.OutcomeSuccess, ChargeID: strPtr("ch_a"), AmountCents: 2000},
		{TenantKey: "tnt_b", Status: dispatchdomain.OutcomeSkipped, AmountCents: 0},
		{TenantKey: "tnt_c", Status: dispatchdomain.OutcomeFailed, ErrorMessage: strPtr("auth failed"), AmountCents: 500},
	}

	require.NoError(t, w.Write(context.Background(), records, outcomes))
	require.Len(t, ledger.inserted, 1)
	rows := ledger.inserted[0]
	require.Len(t, rows, 3)

	byKey := map[string]ledgerdomain.BillingRecord{}
	for _, row := range rows {
		byKey[row.TenantKey] = row
	}

	success := byKey["tnt_a"]
	assert.Equal(t, ledgerdomain.ChargeStatusSuccess, success.ChargeStatus)
	require.NotNil(t, success.ChargeID)
	assert.Equal(t, "ch_a", *success.ChargeID)
	require.NotNil(t, success.ChargeProcessedAt)
	assert.Equal(t, now, *success.ChargeProcessedAt)

	// A skipped tenant stays pending; nothing was charged.
	skipped := byKey["tnt_b"]
	assert.Equal(t, ledgerdomain.ChargeStatusPending, skipped.ChargeStatus)
	assert.Nil(t, skipped.ChargeID)
	assert.Nil(t, skipped.ChargeProcessedAt)

	failed := byKey["tnt_c"]
	assert.Equal(t, ledgerdomain.ChargeStatusFailed, failed.ChargeStatus)
	require.NotNil(t, failed.ChargeErrorMessage)
	assert.Equal(t, "auth failed", *failed.ChargeErrorMessage)
	assert.Nil(t, failed.ChargeID)

	// Rows are appended with fresh identity, never updated in place.
	for _, row := range rows {
		assert.Equal(t, now, row.InsertedAt)
		for _, original := range records {
			assert.NotEqual(t, original.ID, row.ID)
		}
	}
}

func TestWritePreservesAmountsFromPendingRows(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWriter(t, ledger, time.Now().UTC())

	records := pendingRecords(t)
	outcomes := []dispatchdomain.ChargeOutcome{
		{TenantKey: "tnt_a", Status: dispatchdomain.OutcomeSuccess, ChargeID: strPtr("ch_a")},
		{TenantKey: "tnt_b", Status: dispatchdomain.OutcomeSkipped},
		{TenantKey: "tnt_c", Status: dispatchdomain.OutcomeFailed, ErrorMessage: strPtr("x")},
	}
	require.NoError(t, w.Write(context.Background(), records, outcomes))

	rows := ledger.inserted[0]
	for i, row := range rows {
		assert.Equal(t, records[i].AmountCents, row.AmountCents)
		assert.Equal(t, records[i].UnitCount, row.UnitCount)
		assert.Equal(t, records[i].BillingDate, row.BillingDate)
	}
}

func TestWriteMissingOutcomeRecordsFailure(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWriter(t, ledger, time.Now().UTC())

	records := pendingRecords(t)[:1]
	require.NoError(t, w.Write(context.Background(), records, nil))

	rows := ledger.inserted[0]
	require.Len(t, rows, 1)
	assert.Equal(t, ledgerdomain.ChargeStatusFailed, rows[0].ChargeStatus)
	require.NotNil(t, rows[0].ChargeErrorMessage)
	assert.Contains(t, *rows[0].ChargeErrorMessage, "no dispatch outcome")
}

func TestWriteSurfacesInsertFailure(t *testing.T) {
	ledger := &fakeLedger{insertErr: errors.New("disk full")}
	w := newTestWriter(t, ledger, time.Now().UTC())

	err := w.Write(context.Background(), pendingRecords(t), []dispatchdomain.ChargeOutcome{
		{TenantKey: "tnt_a", Status: dispatchdomain.OutcomeSuccess, ChargeID: strPtr("ch_a")},
		{TenantKey: "tnt_b", Status: dispatchdomain.OutcomeSkipped},
		{TenantKey: "tnt_c", Status: dispatchdomain.OutcomeFailed, ErrorMessage: strPtr("x")},
	})
	assert.EqualError(t, err, "disk full")
}

func TestWriteNoRecordsIsNoOp(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWriter(t, ledger, time.Now().UTC())
	require.NoError(t, w.Write(context.Background(), nil, nil))
	assert.Empty(t, ledger.inserted)
}
