// Package config defines service configuration and how it is loaded.
//
// Ranking constants (tier bands, the new-user threshold, the tolerance cap)
// are compiled into the domain packages and are not configurable here.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"loglevel"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the reclassification job queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// WorkerCount sets the number of reclassification workers.
	WorkerCount int `koanf:"worker_count" validate:"min=1"`

	// DedupeSize bounds how many choice request ids are remembered.
	DedupeSize int `koanf:"dedupe_size" validate:"min=0"`

	// SessionTTLSeconds is how long an idle insertion session survives.
	SessionTTLSeconds int `koanf:"session_ttl_seconds" validate:"min=1"`

	// SessionSweepIntervalSeconds is how often idle sessions are swept.
	SessionSweepIntervalSeconds int `koanf:"session_sweep_interval_seconds" validate:"min=1"`

	// MaxRankingsLimit caps GET /rankings?limit.
	MaxRankingsLimit int `koanf:"max_rankings_limit" validate:"min=1"`

	// ReclassifyOnChange queues a reclassification after every insert, move
	// and removal.
	ReclassifyOnChange bool `koanf:"reclassify_on_change"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:                    "info",
		LogFormat:                   "text",
		Addr:                        ":9080",
		QueueSize:                   10_000,
		WorkerCount:                 runtime.NumCPU(),
		DedupeSize:                  100_000,
		SessionTTLSeconds:           1800,
		SessionSweepIntervalSeconds: 60,
		MaxRankingsLimit:            500,
		ReclassifyOnChange:          true,
	}
}

// SessionTTL returns SessionTTLSeconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// SessionSweepInterval returns SessionSweepIntervalSeconds as a duration.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalSeconds) * time.Second
}
