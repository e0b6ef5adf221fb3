package config

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// VolumeTier is one step of the mailbox volume price table.
type VolumeTier struct {
	Label          string `mapstructure:"label"`
	MinQuantity    int64  `mapstructure:"minQuantity"`
	UnitPriceCents int64  `mapstructure:"unitPriceCents"`
}

// MailboxPricing configures the rule-independent mailbox volume pricing.
type MailboxPricing struct {
	BaseUnitPriceCents int64        `mapstructure:"baseUnitPriceCents"`
	Tiers              []VolumeTier `mapstructure:"tiers"`
}

// BillingConfig is the hot-reloadable billing configuration.
type BillingConfig struct {
	Mailbox MailboxPricing `mapstructure:"mailbox"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Mailbox: MailboxPricing{
			BaseUnitPriceCents: 350,
			Tiers: []VolumeTier{
				{Label: "tier_a", MinQuantity: 1000, UnitPriceCents: 250},
				{Label: "tier_b", MinQuantity: 250, UnitPriceCents: 300},
				{Label: "tier_c", MinQuantity: 100, UnitPriceCents: 325},
			},
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed configuration.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(normalizeBillingConfig(cfg))
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pricebook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRICEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.mailbox.baseUnitPriceCents", defaults.Mailbox.BaseUnitPriceCents)
	v.SetDefault("billing.mailbox.tiers", defaults.Mailbox.Tiers)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(normalizeBillingConfig(updated))
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.Mailbox.BaseUnitPriceCents < 0 {
		return errors.New("billing.mailbox.baseUnitPriceCents must not be negative")
	}
	for _, tier := range cfg.Mailbox.Tiers {
		if tier.MinQuantity <= 0 {
			return errors.New("billing.mailbox.tiers minQuantity must be positive")
		}
		if tier.UnitPriceCents < 0 {
			return errors.New("billing.mailbox.tiers unitPriceCents must not be negative")
		}
	}
	return nil
}

// normalizeBillingConfig orders tiers by descending threshold.
func normalizeBillingConfig(cfg BillingConfig) BillingConfig {
	tiers := make([]VolumeTier, len(cfg.Mailbox.Tiers))
	copy(tiers, cfg.Mailbox.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinQuantity > tiers[j].MinQuantity
	})
	cfg.Mailbox.Tiers = tiers
	return cfg
}
