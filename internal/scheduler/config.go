package scheduler

import (
	"time"

	appconfig "github.com/smallbiznis/fidelio/internal/config"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		BatchSize:   200,
		JobTimeout:  10 * time.Minute,
	}
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		BatchSize:   cfg.SweepBatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
