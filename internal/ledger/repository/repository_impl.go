package repository

import (
	"context"
	"fmt"
	"time"

	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	"gorm.io/gorm"
)

type ledgerRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) ledgerdomain.Repository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Insert(ctx context.Context, records []ledgerdomain.BillingRecord) error {
	if len(records) == 0 {
		return ledgerdomain.ErrEmptyBatch
	}
	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("%w: %v", ledgerdomain.ErrInsertFailed, err)
	}
	return nil
}

func (r *ledgerRepo) ListByDate(ctx context.Context, date time.Time) ([]ledgerdomain.BillingRecord, error) {
	var records []ledgerdomain.BillingRecord
	err := r.db.WithContext(ctx).
		Where("billing_date = ?", ledgerdomain.DateOf(date)).
		Order("inserted_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
