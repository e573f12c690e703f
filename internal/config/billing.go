package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds the billing knobs applied to every run. It is read
// once per run and passed down through the pipeline; components never
// reach back into the holder mid-run.
type BillingConfig struct {
	// RatePerMillionCents is the price of one million usage units in cents.
	RatePerMillionCents int64 `mapstructure:"ratePerMillionCents"`

	// MaxConcurrentCharges bounds in-flight charge procedures per run.
	MaxConcurrentCharges int `mapstructure:"maxConcurrentCharges"`

	// MaxChargeAttempts is the total attempt budget per tenant, first try
	// included.
	MaxChargeAttempts int `mapstructure:"maxChargeAttempts"`

	// RetryBackoffBase is the delay before the first retry; it doubles on
	// each subsequent retry.
	RetryBackoffBase time.Duration `mapstructure:"retryBackoffBase"`

	// ChargeCallTimeout caps each individual call to the charge provider.
	ChargeCallTimeout time.Duration `mapstructure:"chargeCallTimeout"`

	// RunInterval is the pause between scheduled runs in daemon mode.
	RunInterval time.Duration `mapstructure:"runInterval"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		RatePerMillionCents:  1000, // $10.00 per million units
		MaxConcurrentCharges: 5,
		MaxChargeAttempts:    3,
		RetryBackoffBase:     time.Second,
		ChargeCallTimeout:    30 * time.Second,
		RunInterval:          24 * time.Hour,
	}
}

func (c BillingConfig) WithDefaults() BillingConfig {
	defaults := DefaultBillingConfig()
	if c.RatePerMillionCents <= 0 {
		c.RatePerMillionCents = defaults.RatePerMillionCents
	}
	if c.MaxConcurrentCharges <= 0 {
		c.MaxConcurrentCharges = defaults.MaxConcurrentCharges
	}
	if c.MaxChargeAttempts <= 0 {
		c.MaxChargeAttempts = defaults.MaxChargeAttempts
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = defaults.RetryBackoffBase
	}
	if c.ChargeCallTimeout <= 0 {
		c.ChargeCallTimeout = defaults.ChargeCallTimeout
	}
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	return c
}

// BillingConfigHolder exposes the current billing config and hot-reloads
// it when the config file changes on disk.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tollgate/config") // Volume-mounted config
	v.AddConfigPath("/etc/tollgate")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("TOLLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		updated = updated.WithDefaults()
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg, with no
// file watching. Used by tests and one-shot tools.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg.WithDefaults())
	return holder
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.RatePerMillionCents <= 0 {
		return errors.New("billing.ratePerMillionCents must be positive")
	}
	if cfg.MaxConcurrentCharges <= 0 {
		return errors.New("billing.maxConcurrentCharges must be positive")
	}
	if cfg.MaxChargeAttempts <= 0 {
		return errors.New("billing.maxChargeAttempts must be positive")
	}
	return nil
}
