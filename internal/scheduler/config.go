package scheduler

import (
	"time"

	"github.com/zutali/conmart/internal/config"
)

// Config controls sweep cadence, batch sizing and the reminder window.
type Config struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	BatchSize      int
	ReminderWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Hour,
		JobTimeout:     5 * time.Minute,
		BatchSize:      200,
		ReminderWindow: 5 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = defaults.ReminderWindow
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.Sweep.RunInterval,
		JobTimeout:     cfg.Sweep.JobTimeout,
		BatchSize:      cfg.Sweep.BatchSize,
		ReminderWindow: cfg.Sweep.ReminderWindow,
	}.withDefaults()
}
