package backfill

import (
	"time"

	"github.com/smallbiznis/retailsales/internal/config"
)

// Config controls the catch-up worker loop.
type Config struct {
	Enabled          bool
	PollInterval     time.Duration
	RunTimeout       time.Duration
	MaxPeriodsPerRun int
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		PollInterval:     5 * time.Minute,
		RunTimeout:       10 * time.Minute,
		MaxPeriodsPerRun: 31,
	}
}

func NewConfig(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Worker.Enabled,
		PollInterval:     cfg.Worker.PollInterval,
		RunTimeout:       cfg.Worker.RunTimeout,
		MaxPeriodsPerRun: cfg.Worker.MaxPeriodsPerRun,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.MaxPeriodsPerRun <= 0 {
		c.MaxPeriodsPerRun = defaults.MaxPeriodsPerRun
	}
	return c
}
