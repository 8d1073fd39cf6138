// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers defaults, an optional YAML file and COSMIC_ env vars.
//   - Validation failures are *FieldError values matching ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers.
const (
	DriverMemory     = "memory"
	DriverSQLite     = "sqlite"
	DriverPocketBase = "pocketbase"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	Store       StoreConfig       `koanf:"store"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Progression ProgressionConfig `koanf:"progression"`
	Auth        AuthConfig        `koanf:"auth"`
	Mutations   MutationConfig    `koanf:"mutations"`

	// DedupeSize bounds the number of remembered progress request ids.
	DedupeSize int `koanf:"dedupe_size"`

	// StatsRefreshIntervalMS is how often store-derived gauges are refreshed.
	StatsRefreshIntervalMS int `koanf:"stats_refresh_interval_ms"`
}

// StoreConfig selects and tunes the document store driver.
type StoreConfig struct {
	Driver             string `koanf:"driver"`
	SQLitePath         string `koanf:"sqlite_path"`
	PocketBaseURL      string `koanf:"pocketbase_url"`
	PocketBaseToken    string `koanf:"pocketbase_token"`
	TimeoutMS          int    `koanf:"timeout_ms"`
	MaxConflictRetries int    `koanf:"max_conflict_retries"`
}

// LeaderboardConfig bounds leaderboard pagination.
type LeaderboardConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// ProgressionConfig tunes run progression rules.
type ProgressionConfig struct {
	// LegacyOnePercentRollover treats a progress value of exactly 1 as a level completion.
	LegacyOnePercentRollover bool `koanf:"legacy_one_percent_rollover"`
	// MaxLevel caps the level; 0 means unlimited.
	MaxLevel int `koanf:"max_level"`
}

// AuthConfig configures session verification.
type AuthConfig struct {
	JWTSecret          string `koanf:"jwt_secret"`
	TrustGatewayHeader bool   `koanf:"trust_gateway_header"`
	LoginRedirect      string `koanf:"login_redirect"`
}

// MutationConfig sizes the per-key mutation queue.
type MutationConfig struct {
	Shards    int `koanf:"shards"`
	QueueSize int `koanf:"queue_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":3000",
		Store: StoreConfig{
			Driver:             DriverMemory,
			SQLitePath:         "data/cosmic.db",
			PocketBaseURL:      "http://127.0.0.1:8090",
			TimeoutMS:          5000,
			MaxConflictRetries: 3,
		},
		Leaderboard: LeaderboardConfig{
			DefaultPageSize: 30,
			MaxPageSize:     100,
		},
		Auth: AuthConfig{
			JWTSecret:     "your_secret_key",
			LoginRedirect: "http://localhost:5173/auth",
		},
		Mutations: MutationConfig{
			Shards:    runtime.NumCPU(),
			QueueSize: 1024,
		},
		DedupeSize:             100_000,
		StatsRefreshIntervalMS: 10_000,
	}
}

// StoreTimeout returns the per-call store timeout.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutMS) * time.Millisecond
}

// StatsRefreshInterval returns the gauge refresh period.
func (c *Config) StatsRefreshInterval() time.Duration {
	return time.Duration(c.StatsRefreshIntervalMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr", "must not be empty")
	case c.Leaderboard.DefaultPageSize < 1 || c.Leaderboard.MaxPageSize < c.Leaderboard.DefaultPageSize:
		return invalid("leaderboard", "page sizes must satisfy 1 <= default <= max")
	case c.Progression.MaxLevel < 0:
		return invalid("progression.max_level", "must be >= 0")
	case c.Store.MaxConflictRetries < 0:
		return invalid("store.max_conflict_retries", "must be >= 0")
	case c.Mutations.Shards < 1 || c.Mutations.QueueSize < 1:
		return invalid("mutations", "shards and queue_size must be positive")
	case c.StatsRefreshIntervalMS < 1:
		return invalid("stats_refresh_interval_ms", "must be positive")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path", "is required for the sqlite driver")
		}
	case DriverPocketBase:
		if c.Store.PocketBaseURL == "" {
			return invalid("store.pocketbase_url", "is required for the pocketbase driver")
		}
	default:
		return invalid("store.driver", fmt.Sprintf("%q is unknown", c.Store.Driver))
	}

	if c.Auth.JWTSecret == "" && !c.Auth.TrustGatewayHeader {
		return invalid("auth.jwt_secret", "is required unless auth.trust_gateway_header is set")
	}
	return nil
}
