// Package config defines service configuration structures and loading hooks.
//
// Keys are flat snake_case so that env vars map onto them directly
// (TASTEGRAPH_NEIGHBOR_TOP_K -> neighbor_top_k).
package config

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron"
)

var metricNamePart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory affinity event queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of affinity workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many submitted event ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// RetryMaxAttempts bounds worker attempts for transient store failures.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	// RetryBaseDelayMS is the first backoff delay; it doubles per attempt.
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`

	// DatabaseDriver is postgres or sqlite.
	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`
	// DatabaseAutoMigrate creates missing tables and indexes at startup.
	DatabaseAutoMigrate bool `koanf:"database_auto_migrate"`

	// RedisAddr enables the redis cache backend; empty selects the in-memory one.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	CacheTTLSeconds         int `koanf:"cache_ttl_seconds"`
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerOpenSeconds      int `koanf:"breaker_open_seconds"`

	// Rating constants.
	GlobalKFactor      float64 `koanf:"global_k_factor"`
	DuelKFactor        float64 `koanf:"duel_k_factor"`
	DefaultGlobalScore int     `koanf:"default_global_score"`
	NeutralScore       int     `koanf:"neutral_score"`
	DislikeScore       int     `koanf:"dislike_score"`
	BonusBanger        int     `koanf:"bonus_banger"`
	BonusGood          int     `koanf:"bonus_good"`

	// Chart replay.
	ChartKFactor      float64 `koanf:"chart_k_factor"`
	ChartSeedBanger   int     `koanf:"chart_seed_banger"`
	ChartSeedLike     int     `koanf:"chart_seed_like"`
	ChartSeedWishlist int     `koanf:"chart_seed_wishlist"`
	ChartDefaultScore int     `koanf:"chart_default_score"`
	ChartDuelWindowMS int     `koanf:"chart_duel_window_ms"`

	// Metrics naming. Labels are attached to every series; buckets apply to
	// histograms that do not set their own.
	MetricsNamespace        string            `koanf:"metrics_namespace"`
	MetricsSubsystem        string            `koanf:"metrics_subsystem"`
	MetricsLabels           map[string]string `koanf:"metrics_labels"`
	MetricsHistogramBuckets []float64         `koanf:"metrics_histogram_buckets"`

	// Neighbor job.
	NeighborMinShared         int    `koanf:"neighbor_min_shared"`
	NeighborMinScore          int    `koanf:"neighbor_min_score"`
	NeighborTopK              int    `koanf:"neighbor_top_k"`
	NeighborWorkers           int    `koanf:"neighbor_workers"`
	NeighborPageSize          int    `koanf:"neighbor_page_size"`
	NeighborSchedule          string `koanf:"neighbor_schedule"`
	NeighborRunTimeoutMinutes int    `koanf:"neighbor_run_timeout_minutes"`

	// Read path limits.
	MaxFeedLimit  int `koanf:"max_feed_limit"`
	MaxChartLimit int `koanf:"max_chart_limit"`
	MaxTopLimit   int `koanf:"max_top_limit"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		EventQueueSize:            10_000,
		WorkerCount:               runtime.NumCPU() * 2,
		DedupeSize:                100_000,
		RetryMaxAttempts:          3,
		RetryBaseDelayMS:          50,
		DatabaseDriver:            "sqlite",
		DatabaseDSN:               "file:tastegraph.db?_busy_timeout=5000",
		DatabaseAutoMigrate:       true,
		CacheTTLSeconds:           300,
		BreakerFailureThreshold:   5,
		BreakerOpenSeconds:        30,
		GlobalKFactor:             20,
		DuelKFactor:               80,
		DefaultGlobalScore:        1500,
		NeutralScore:              1200,
		DislikeScore:              800,
		BonusBanger:               400,
		BonusGood:                 200,
		ChartKFactor:              32,
		ChartSeedBanger:           1600,
		ChartSeedLike:             1400,
		ChartSeedWishlist:         1200,
		ChartDefaultScore:         1400,
		ChartDuelWindowMS:         5000,
		MetricsNamespace:          "tastegraph",
		MetricsSubsystem:          "ranking",
		NeighborMinShared:         3,
		NeighborMinScore:          1200,
		NeighborTopK:              20,
		NeighborWorkers:           4,
		NeighborPageSize:          500,
		NeighborSchedule:          "@daily",
		NeighborRunTimeoutMinutes: 60,
		MaxFeedLimit:              100,
		MaxChartLimit:             100,
		MaxTopLimit:               100,
	}
}

// CacheTTL returns the read-through cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RetryBaseDelay returns the first worker backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// ChartDuelWindow is the maximum gap between the halves of a replayed duel.
func (c *Config) ChartDuelWindow() time.Duration {
	return time.Duration(c.ChartDuelWindowMS) * time.Millisecond
}

// NeighborRunTimeout bounds a single neighbor job run.
func (c *Config) NeighborRunTimeout() time.Duration {
	return time.Duration(c.NeighborRunTimeoutMinutes) * time.Minute
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	}
	positive := map[string]int{
		"queue_size":           c.EventQueueSize,
		"worker_count":         c.WorkerCount,
		"dedupe_size":          c.DedupeSize,
		"retry_max_attempts":   c.RetryMaxAttempts,
		"neighbor_min_shared":  c.NeighborMinShared,
		"neighbor_top_k":       c.NeighborTopK,
		"neighbor_workers":     c.NeighborWorkers,
		"neighbor_page_size":   c.NeighborPageSize,
		"max_feed_limit":       c.MaxFeedLimit,
		"max_chart_limit":      c.MaxChartLimit,
		"max_top_limit":        c.MaxTopLimit,
		"chart_duel_window_ms": c.ChartDuelWindowMS,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, key, v)
		}
	}
	if c.GlobalKFactor <= 0 || c.DuelKFactor <= 0 || c.ChartKFactor <= 0 {
		return fmt.Errorf("%w: k factors must be positive", ErrInvalidConfig)
	}
	for key, name := range map[string]string{"metrics_namespace": c.MetricsNamespace, "metrics_subsystem": c.MetricsSubsystem} {
		if name != "" && !metricNamePart.MatchString(name) {
			return fmt.Errorf("%w: %s %q is not a valid metric name part", ErrInvalidConfig, key, name)
		}
	}
	for i := 1; i < len(c.MetricsHistogramBuckets); i++ {
		if c.MetricsHistogramBuckets[i] <= c.MetricsHistogramBuckets[i-1] {
			return fmt.Errorf("%w: metrics_histogram_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	if c.NeighborSchedule != "" {
		if _, err := cron.Parse(c.NeighborSchedule); err != nil {
			return fmt.Errorf("%w: neighbor_schedule: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
