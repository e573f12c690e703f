package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (ledgerdomain.Repository, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.BillingRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(db), node
}

func pendingRecord(node *snowflake.Node, tenantKey string, date time.Time, amount int64) ledgerdomain.BillingRecord {
	return ledgerdomain.BillingRecord{
		ID:                  node.Generate(),
		TenantKey:           tenantKey,
		BillingDate:         ledgerdomain.DateOf(date),
		UnitCount:           amount * 1000,
		AmountCents:         amount,
		RatePerMillionCents: 1000,
		ChargeStatus:        ledgerdomain.ChargeStatusPending,
		InsertedAt:          date,
	}
}

func TestInsertIsAppendOnly(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	first := []ledgerdomain.BillingRecord{
		pendingRecord(node, "tnt_a", date, 2000),
		pendingRecord(node, "tnt_b", date, 0),
	}
	require.NoError(t, repo.Insert(ctx, first))

	// Re-inserting rows for the same (tenant, date) must add rows, not
	// replace them.
	second := []ledgerdomain.BillingRecord{
		pendingRecord(node, "tnt_a", date.Add(time.Minute), 2000),
	}
	second[0].ChargeStatus = ledgerdomain.ChargeStatusSuccess
	require.NoError(t, repo.Insert(ctx, second))

	records, err := repo.ListByDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestInsertEmptyBatch(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Insert(context.Background(), nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrEmptyBatch)
}

func TestListByDateOrdersByInsertion(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	older := pendingRecord(node, "tnt_a", date.Add(time.Hour), 100)
	newer := pendingRecord(node, "tnt_a", date.Add(2*time.Hour), 100)
	require.NoError(t, repo.Insert(ctx, []ledgerdomain.BillingRecord{newer}))
	require.NoError(t, repo.Insert(ctx, []ledgerdomain.BillingRecord{older}))

	records, err := repo.ListByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, older.ID, records[0].ID)
	assert.Equal(t, newer.ID, records[1].ID)
}

func TestListByDateScopesToDay(t *testing.T) {
	repo, node := newTestRepo(t)
	ctx := context.Background()

	mar15 := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	mar16 := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, []ledgerdomain.BillingRecord{
		pendingRecord(node, "tnt_a", mar15, 100),
		pendingRecord(node, "tnt_a", mar16, 200),
	}))

	records, err := repo.ListByDate(ctx, mar15)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(100), records[0].AmountCents)

	records, err = repo.ListByDate(ctx, time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, records)
}
