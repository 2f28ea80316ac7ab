package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TableConfig declares one derived rollup table.
type TableConfig struct {
	Name         string   `mapstructure:"name"`
	Dimensions   []string `mapstructure:"dimensions"`
	Granularity  string   `mapstructure:"granularity"`
	TrackHistory bool     `mapstructure:"track_history"`
	SeedPeriod   string   `mapstructure:"seed_period"`
	Disabled     bool     `mapstructure:"disabled"`
}

type RollupConfig struct {
	Tables      []TableConfig `mapstructure:"tables"`
	Parallelism int           `mapstructure:"parallelism"`
}

var knownDimensions = map[string]struct{}{
	"customer": {},
	"category": {},
	"region":   {},
	"product":  {},
}

func DefaultRollupConfig() RollupConfig {
	return RollupConfig{
		Parallelism: 4,
		Tables: []TableConfig{
			{Name: "category_daily", Dimensions: []string{"category"}, Granularity: "day"},
			{Name: "region_category_daily", Dimensions: []string{"region", "category"}, Granularity: "day"},
			{Name: "customer_category_daily", Dimensions: []string{"customer", "category"}, Granularity: "day"},
			{Name: "customer_yearly", Dimensions: []string{"customer"}, Granularity: "year", TrackHistory: true},
		},
	}
}

type RollupConfigHolder struct {
	current atomic.Value // holds RollupConfig
}

// NewRollupConfigHolder reads rollup.yml from the usual config locations and
// keeps it current while the process runs. Invalid edits are ignored.
func NewRollupConfigHolder(log *zap.Logger) (*RollupConfigHolder, error) {
	return newRollupConfigHolder(log, "/var/lib/retailsales/config", "/etc/retailsales", ".")
}

func newRollupConfigHolder(log *zap.Logger, paths ...string) (*RollupConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.rollup")

	v := viper.New()
	v.SetConfigName("rollup")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("RETAILSALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &RollupConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		defaults := DefaultRollupConfig()
		if parallelism := v.GetInt("rollup.parallelism"); parallelism > 0 {
			defaults.Parallelism = parallelism
		}
		holder.current.Store(defaults)
		return holder, nil
	}

	cfg, err := decodeRollupConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRollupConfig(v)
		if err != nil {
			log.Warn("rollup config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rollup config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticRollupConfigHolder wraps a fixed config, mostly for tests and CLI overrides.
func NewStaticRollupConfigHolder(cfg RollupConfig) (*RollupConfigHolder, error) {
	if err := ValidateRollupConfig(cfg); err != nil {
		return nil, err
	}
	holder := &RollupConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *RollupConfigHolder) Get() RollupConfig {
	return h.current.Load().(RollupConfig)
}

func decodeRollupConfig(v *viper.Viper) (RollupConfig, error) {
	cfg := RollupConfig{Parallelism: DefaultRollupConfig().Parallelism}
	if err := v.UnmarshalKey("rollup", &cfg); err != nil {
		return RollupConfig{}, err
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = DefaultRollupConfig().Tables
	}
	if err := ValidateRollupConfig(cfg); err != nil {
		return RollupConfig{}, err
	}
	return cfg, nil
}

func ValidateRollupConfig(cfg RollupConfig) error {
	if len(cfg.Tables) == 0 {
		return errors.New("rollup.tables cannot be empty")
	}
	if cfg.Parallelism < 0 {
		return errors.New("rollup.parallelism cannot be negative")
	}

	seen := make(map[string]struct{}, len(cfg.Tables))
	for i, table := range cfg.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return fmt.Errorf("rollup.tables[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("rollup table %q declared twice", name)
		}
		seen[name] = struct{}{}

		if len(table.Dimensions) == 0 {
			return fmt.Errorf("rollup table %q needs at least one dimension", name)
		}
		dims := make(map[string]struct{}, len(table.Dimensions))
		for _, dim := range table.Dimensions {
			dim = strings.ToLower(strings.TrimSpace(dim))
			if _, ok := knownDimensions[dim]; !ok {
				return fmt.Errorf("rollup table %q: unknown dimension %q", name, dim)
			}
			if _, ok := dims[dim]; ok {
				return fmt.Errorf("rollup table %q: dimension %q repeated", name, dim)
			}
			dims[dim] = struct{}{}
		}

		grain, err := period.ParseGranularity(table.Granularity)
		if err != nil {
			return fmt.Errorf("rollup table %q: %w", name, err)
		}
		if seed := strings.TrimSpace(table.SeedPeriod); seed != "" {
			if _, err := period.Parse(grain, seed); err != nil {
				return fmt.Errorf("rollup table %q seed_period: %w", name, err)
			}
		}
	}
	return nil
}
