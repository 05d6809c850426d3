// Package config provides layered configuration for the market-data
// components: defaults, then an optional JSON file, then environment
// variable overrides, then validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// AppConfig is the complete application configuration.
type AppConfig struct {
	Provider ProviderConfig `json:"provider"`
	Registry RegistryConfig `json:"registry"`
	History  HistoryConfig  `json:"history"`
	Logging  LoggingConfig  `json:"logging"`
}

// ProviderConfig configures the info-endpoint client.
type ProviderConfig struct {
	// Endpoint is the info API base URL.
	Endpoint string `json:"endpoint" env:"HL_ENDPOINT"`

	// Timeout bounds one HTTP request, e.g. "30s".
	Timeout string `json:"timeout" env:"HL_TIMEOUT"`

	// RateLimit is the outbound request budget per second.
	RateLimit int `json:"rate_limit" env:"HL_RATE_LIMIT"`
}

// RegistryConfig configures asset-map refreshes.
type RegistryConfig struct {
	// RefreshInterval is how long a snapshot stays fresh, e.g. "10m".
	// Staleness inside the interval is accepted; listings change rarely.
	RefreshInterval string `json:"refresh_interval" env:"HL_REFRESH_INTERVAL"`

	// Venues optionally restricts which secondary venues are merged.
	// Empty means all deployed venues.
	Venues []string `json:"venues,omitempty" env:"HL_VENUES"`
}

// HistoryConfig tunes the candle fetcher.
type HistoryConfig struct {
	MaxRetries     int    `json:"max_retries" env:"HL_HISTORY_MAX_RETRIES"`
	InitialBackoff string `json:"initial_backoff" env:"HL_HISTORY_INITIAL_BACKOFF"`
	MaxBackoff     string `json:"max_backoff" env:"HL_HISTORY_MAX_BACKOFF"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" env:"HL_LOG_LEVEL"`

	// Format is "text" or "json".
	Format string `json:"format" env:"HL_LOG_FORMAT"`

	// File, when set, sends output to a rotated file instead of stderr.
	File string `json:"file,omitempty" env:"HL_LOG_FILE"`

	// MaxSizeMB and MaxBackups bound rotated file growth.
	MaxSizeMB  int `json:"max_size_mb,omitempty" env:"HL_LOG_MAX_SIZE_MB"`
	MaxBackups int `json:"max_backups,omitempty" env:"HL_LOG_MAX_BACKUPS"`
}

// Default returns the baseline configuration.
func Default() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{
			Endpoint:  "https://api.hyperliquid.xyz",
			Timeout:   "30s",
			RateLimit: 10,
		},
		Registry: RegistryConfig{
			RefreshInterval: "10m",
		},
		History: HistoryConfig{
			MaxRetries:     3,
			InitialBackoff: "500ms",
			MaxBackoff:     "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load builds the effective configuration: defaults, overlaid with the JSON
// file at path (skipped when path is empty or the file does not exist),
// overlaid with environment variables, then validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; env and defaults carry.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	setString(&c.Provider.Endpoint, "HL_ENDPOINT")
	setString(&c.Provider.Timeout, "HL_TIMEOUT")
	setInt(&c.Provider.RateLimit, "HL_RATE_LIMIT")

	setString(&c.Registry.RefreshInterval, "HL_REFRESH_INTERVAL")

	setInt(&c.History.MaxRetries, "HL_HISTORY_MAX_RETRIES")
	setString(&c.History.InitialBackoff, "HL_HISTORY_INITIAL_BACKOFF")
	setString(&c.History.MaxBackoff, "HL_HISTORY_MAX_BACKOFF")

	setString(&c.Logging.Level, "HL_LOG_LEVEL")
	setString(&c.Logging.Format, "HL_LOG_FORMAT")
	setString(&c.Logging.File, "HL_LOG_FILE")
	setInt(&c.Logging.MaxSizeMB, "HL_LOG_MAX_SIZE_MB")
	setInt(&c.Logging.MaxBackups, "HL_LOG_MAX_BACKUPS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks cross-field consistency and parseability of duration
// strings.
func (c *AppConfig) Validate() error {
	if c.Provider.Endpoint == "" {
		return fmt.Errorf("provider endpoint cannot be empty")
	}
	if c.Provider.RateLimit <= 0 {
		return fmt.Errorf("provider rate limit must be positive, got %d", c.Provider.RateLimit)
	}
	if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
		return fmt.Errorf("invalid provider timeout %q: %w", c.Provider.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Registry.RefreshInterval); err != nil {
		return fmt.Errorf("invalid refresh interval %q: %w", c.Registry.RefreshInterval, err)
	}
	if c.History.MaxRetries < 0 {
		return fmt.Errorf("history max retries cannot be negative")
	}
	if _, err := time.ParseDuration(c.History.InitialBackoff); err != nil {
		return fmt.Errorf("invalid initial backoff %q: %w", c.History.InitialBackoff, err)
	}
	if _, err := time.ParseDuration(c.History.MaxBackoff); err != nil {
		return fmt.Errorf("invalid max backoff %q: %w", c.History.MaxBackoff, err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	return nil
}

// ProviderTimeout returns the parsed HTTP timeout.
func (c *AppConfig) ProviderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Provider.Timeout)
	return d
}

// RefreshEvery returns the parsed registry refresh interval.
func (c *AppConfig) RefreshEvery() time.Duration {
	d, _ := time.ParseDuration(c.Registry.RefreshInterval)
	return d
}

// HistoryBackoff returns the parsed fetcher backoff bounds.
func (c *AppConfig) HistoryBackoff() (initial, max time.Duration) {
	initial, _ = time.ParseDuration(c.History.InitialBackoff)
	max, _ = time.ParseDuration(c.History.MaxBackoff)
	return initial, max
}
