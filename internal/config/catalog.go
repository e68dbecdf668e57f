package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanSpec describes one well-known subscription plan. The catalog seeds
// missing plans from these specs and uses them to re-create plans that were
// removed by hand.
type PlanSpec struct {
	Code          string   `mapstructure:"code"`
	Role          string   `mapstructure:"role"`
	Tier          string   `mapstructure:"tier"`
	DisplayName   string   `mapstructure:"displayName"`
	Amount        float64  `mapstructure:"amount"`
	Currency      string   `mapstructure:"currency"`
	DurationDays  int      `mapstructure:"durationDays"`
	CapacityLimit *int     `mapstructure:"capacityLimit"`
	Features      []string `mapstructure:"features"`
}

// CatalogConfig is the set of plan specs the catalog treats as defaults.
type CatalogConfig struct {
	Plans []PlanSpec `mapstructure:"plans"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Plans: []PlanSpec{
			{
				Code:        "standard_user",
				Role:        "user",
				Tier:        "standard",
				DisplayName: "Standard User",
				Amount:      50, Currency: "ETB", DurationDays: 30,
				Features: []string{"Priority support", "Early access to new listings"},
			},
			{
				Code:        "premium_user",
				Role:        "user",
				Tier:        "premium",
				DisplayName: "Premium User",
				Amount:      200, Currency: "ETB", DurationDays: 30,
				Features: []string{"Priority support", "Early access to new listings", "Exclusive deals"},
			},
			{
				Code:        "standard_owner",
				Role:        "seller",
				Tier:        "standard",
				DisplayName: "Standard Seller",
				Amount:      200, Currency: "ETB", DurationDays: 30,
				CapacityLimit: intPtr(10),
				Features:      []string{"Up to 10 active listings", "Sales dashboard"},
			},
			{
				Code:        "premium_owner",
				Role:        "seller",
				Tier:        "premium",
				DisplayName: "Premium Seller",
				Amount:      500, Currency: "ETB", DurationDays: 30,
				Features: []string{"Unlimited listings", "Sales dashboard", "Featured placement"},
			},
		},
	}
}

func intPtr(v int) *int { return &v }

// CatalogConfigHolder serves the current plan catalog config and hot-reloads
// it when the backing plans.yml changes.
type CatalogConfigHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogConfigHolder() (*CatalogConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/conmart/config")
	v.AddConfigPath("/etc/conmart")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := DefaultCatalogConfig()
	if v.IsSet("catalog") {
		if err := v.UnmarshalKey("catalog", &cfg); err != nil {
			return nil, err
		}
		if err := validateCatalogConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &CatalogConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Printf("[plan-catalog] reload failed: %v", err)
			return
		}
		if err := validateCatalogConfig(updated); err != nil {
			log.Printf("[plan-catalog] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CatalogConfigHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

func validateCatalogConfig(cfg CatalogConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, p := range cfg.Plans {
		if p.Code == "" {
			return errors.New("catalog.plans entries require a code")
		}
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("catalog.plans duplicate code %q", p.Code)
		}
		seen[p.Code] = struct{}{}
		if p.Amount < 0 {
			return fmt.Errorf("catalog.plans[%s] has negative amount", p.Code)
		}
		if p.DurationDays <= 0 {
			return fmt.Errorf("catalog.plans[%s] requires a positive durationDays", p.Code)
		}
	}
	return nil
}
