// Package config loads the engine's tunables from the environment,
// following the explicit os.Getenv-plus-typed-default style this
// codebase uses elsewhere rather than a reflection-driven decoder.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/orbitpay/switchboard/internal/apperrors"
)

// Config holds every environment-tunable setting for the fallback
// engine, its circuit breakers, backoff controller, HTTP surface, and
// the ambient stats/metrics/logging stack.
type Config struct {
	// Circuit breaker (CB_* keys)
	RollingWindowSize    int           // CB_ROLLING_WINDOW_SIZE
	RollingWindowSeconds time.Duration // CB_ROLLING_WINDOW_SECONDS
	TripThreshold        float64       // CB_TRIP_THRESHOLD
	CooldownSeconds      time.Duration // CB_COOLDOWN_SECONDS
	MinSamples           int           // CB_MIN_SAMPLES

	// Backoff
	BackoffBase    time.Duration // BACKOFF_BASE_SECONDS
	BackoffMax     time.Duration // BACKOFF_MAX_SECONDS
	BackoffRetries int           // BACKOFF_MAX_RETRIES

	// Engine
	ProcessorTimeout time.Duration // PROCESSOR_TIMEOUT_SECONDS

	// Ambient stack
	HTTPPort          int    // HTTP_PORT
	LogLevel          string // LOG_LEVEL
	LogFormat         string // LOG_FORMAT
	StatsSinkBackend  string // STATS_SINK_BACKEND
	RedisURL          string // REDIS_URL
	MetricsEnabled    bool   // METRICS_ENABLED
}

// Default returns the configuration with every value set to its
// documented default.
func Default() *Config {
	return &Config{
		RollingWindowSize:    50,
		RollingWindowSeconds: 300 * time.Second,
		TripThreshold:        0.20,
		CooldownSeconds:      120 * time.Second,
		MinSamples:           5,

		BackoffBase:    500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		BackoffRetries: 2,

		ProcessorTimeout: 3 * time.Second,

		HTTPPort:         8080,
		LogLevel:         "info",
		LogFormat:        "json",
		StatsSinkBackend: "memory",
		MetricsEnabled:   true,
	}
}

// Load reads Default() and overlays any environment variables that are
// set, validating the result before returning it.
func Load() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("CB_ROLLING_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RollingWindowSize = n
		}
	}
	if v := os.Getenv("CB_ROLLING_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RollingWindowSeconds = secondsToDuration(n)
		}
	}
	if v := os.Getenv("CB_TRIP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TripThreshold = f
		}
	}
	if v := os.Getenv("CB_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CooldownSeconds = secondsToDuration(n)
		}
	}
	if v := os.Getenv("CB_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinSamples = n
		}
	}

	if v := os.Getenv("BACKOFF_BASE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BackoffBase = secondsToDuration(f)
		}
	}
	if v := os.Getenv("BACKOFF_MAX_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BackoffMax = secondsToDuration(f)
		}
	}
	if v := os.Getenv("BACKOFF_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BackoffRetries = n
		}
	}

	if v := os.Getenv("PROCESSOR_TIMEOUT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ProcessorTimeout = secondsToDuration(f)
		}
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STATS_SINK_BACKEND"); v != "" {
		cfg.StatsSinkBackend = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled = parseBool(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the engine's
// invariants unsatisfiable.
func (c *Config) Validate() error {
	if c.RollingWindowSize <= 0 {
		return fmt.Errorf("%w: CB_ROLLING_WINDOW_SIZE must be positive", apperrors.ErrInvalidConfiguration)
	}
	if c.TripThreshold < 0 || c.TripThreshold > 1 {
		return fmt.Errorf("%w: CB_TRIP_THRESHOLD must be in [0,1]", apperrors.ErrInvalidConfiguration)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("%w: CB_MIN_SAMPLES must be non-negative", apperrors.ErrInvalidConfiguration)
	}
	if c.BackoffRetries < 0 {
		return fmt.Errorf("%w: BACKOFF_MAX_RETRIES must be non-negative", apperrors.ErrInvalidConfiguration)
	}
	if c.StatsSinkBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("%w: REDIS_URL is required when STATS_SINK_BACKEND=redis", apperrors.ErrInvalidConfiguration)
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
