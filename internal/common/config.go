package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Ingest      IngestConfig     `toml:"ingest"`
	EODHD       EODHDConfig      `toml:"eodhd"`
	Schedules   []ScheduleConfig `toml:"schedules"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// IngestConfig controls the fetch/persist loop.
type IngestConfig struct {
	ChunkDays    int `toml:"chunk_days"`    // Default date-range chunk size in days
	PersistSplit int `toml:"persist_split"` // Percent boundary between fetch and persist phases
}

// EODHDConfig configures the EODHD end-of-day price source.
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
}

// ScheduleConfig describes one recurring ingestion started by the scheduler.
type ScheduleConfig struct {
	Cron     string   `toml:"cron"` // Cron expression, e.g. "0 18 * * 1-5"
	Kind     string   `toml:"kind"`
	Name     string   `toml:"name"`
	Symbols  []string `toml:"symbols"`
	Lookback string   `toml:"lookback"` // Duration string, e.g. "720h" (30 days)
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/marketsync",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Ingest: IngestConfig{
			ChunkDays:    60,
			PersistSplit: 90,
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
		},
	}
}

// LoadFromFile loads configuration from a TOML file over defaults,
// then applies environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MARKETSYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("MARKETSYNC_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("MARKETSYNC_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("MARKETSYNC_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		config.EODHD.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Ingest.ChunkDays <= 0 {
		return fmt.Errorf("ingest chunk_days must be positive, got %d", c.Ingest.ChunkDays)
	}
	if c.Ingest.PersistSplit <= 0 || c.Ingest.PersistSplit >= 100 {
		return fmt.Errorf("ingest persist_split must be in (0, 100), got %d", c.Ingest.PersistSplit)
	}
	for i, s := range c.Schedules {
		if s.Cron == "" {
			return fmt.Errorf("schedule %d: cron expression is required", i)
		}
		if s.Lookback != "" {
			if _, err := time.ParseDuration(s.Lookback); err != nil {
				return fmt.Errorf("schedule %d: invalid lookback %q: %w", i, s.Lookback, err)
			}
		}
	}
	return nil
}
