package db

import (
	"context"
	"time"

	"github.com/smallbiznis/tollgate/internal/config"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(New),
	fx.Invoke(Migrate),
)

func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialect, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := gdb.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(cfg.DBName),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("closing database connection")
				return sqlDB.Close()
			},
		})
	}

	log.Info("database connected",
		zap.String("type", cfg.DBType),
		zap.String("name", cfg.DBName),
	)
	return gdb, nil
}

// devTenant mirrors the analytics-owned tenants table. Migrated only in
// development so local runs have somewhere to seed fixture tenants.
type devTenant struct {
	TenantKey        string    `gorm:"column:tenant_key;primaryKey"`
	AccessCredential string    `gorm:"column:access_credential"`
	RegisteredAt     time.Time `gorm:"column:registered_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (devTenant) TableName() string { return "tenants" }

type devUsageCount struct {
	TenantKey string    `gorm:"column:tenant_key;primaryKey"`
	UsageDate time.Time `gorm:"column:usage_date;primaryKey"`
	UnitCount int64     `gorm:"column:unit_count"`
}

func (devUsageCount) TableName() string { return "usage_counts" }

func Migrate(cfg config.Config, gdb *gorm.DB, log *zap.Logger) error {
	models := []any{&ledgerdomain.BillingRecord{}}
	if cfg.Environment == "development" {
		models = append(models, &devTenant{}, &devUsageCount{})
	}
	if err := gdb.AutoMigrate(models...); err != nil {
		return err
	}
	log.Info("database migrated", zap.Int("model_count", len(models)))
	return nil
}
