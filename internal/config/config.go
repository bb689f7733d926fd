package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	QuoteAPI struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Exchange string `yaml:"exchange"` // namespace prefix for bare equity tickers
	} `yaml:"quote_api"`
	NAVFeed struct {
		URL string `yaml:"url"`
	} `yaml:"nav_feed"`
	Refresh struct {
		IntervalMinutes    int `yaml:"interval_minutes"`
		BatchSize          int `yaml:"batch_size"`
		BatchTimeoutSec    int `yaml:"batch_timeout_sec"`
		BatchDelayMs       int `yaml:"batch_delay_ms"`
		MaxAttempts        int `yaml:"max_attempts"`
		CleanupIntervalMin int `yaml:"cleanup_interval_min"`
	} `yaml:"refresh"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("QUOTE_API_ENDPOINT"); v != "" {
		cfg.QuoteAPI.Endpoint = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		cfg.QuoteAPI.APIKey = v
	}
	if v := os.Getenv("NAV_FEED_URL"); v != "" {
		cfg.NAVFeed.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REFRESH_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Refresh.IntervalMinutes = n
		}
	}
	if v := os.Getenv("REFRESH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Refresh.BatchSize = n
		}
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.QuoteAPI.Exchange == "" {
		cfg.QuoteAPI.Exchange = "NSE"
	}
	if cfg.Refresh.IntervalMinutes == 0 {
		cfg.Refresh.IntervalMinutes = 60
	}
	if cfg.Refresh.BatchSize == 0 {
		cfg.Refresh.BatchSize = 10
	}
	if cfg.Refresh.BatchTimeoutSec == 0 {
		cfg.Refresh.BatchTimeoutSec = 30
	}
	if cfg.Refresh.BatchDelayMs == 0 {
		cfg.Refresh.BatchDelayMs = 1000
	}
	if cfg.Refresh.MaxAttempts == 0 {
		cfg.Refresh.MaxAttempts = 3
	}
	if cfg.Refresh.CleanupIntervalMin == 0 {
		cfg.Refresh.CleanupIntervalMin = 10
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/investtrack.db"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.QuoteAPI.Endpoint == "" {
		return fmt.Errorf("quote_api.endpoint is required")
	}
	if c.Refresh.BatchSize < 1 {
		return fmt.Errorf("refresh.batch_size must be positive")
	}
	if c.Refresh.MaxAttempts < 1 {
		return fmt.Errorf("refresh.max_attempts must be positive")
	}
	return nil
}

// RefreshInterval returns the scheduled refresh cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalMinutes) * time.Minute
}

// BatchTimeout returns the per-batch fetch deadline.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Refresh.BatchTimeoutSec) * time.Second
}

// BatchDelay returns the inter-batch rate-limit pause.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Refresh.BatchDelayMs) * time.Millisecond
}
