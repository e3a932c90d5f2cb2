// Package config loads backdash settings from a YAML file, an optional .env
// file and BACKDASH_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -config nor BACKDASH_CONFIG is given.
const DefaultPath = "config/backdash.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for backdash.
type Config struct {
	API     API     `yaml:"api"`
	Polling Polling `yaml:"polling"`
	Compare Compare `yaml:"compare"`
	Storage Storage `yaml:"storage"`
	Relay   Relay   `yaml:"relay"`
	Session Session `yaml:"session"`
	Logging Logging `yaml:"logging"`
	Mock    Mock    `yaml:"mock"`
}

// API locates the backtesting backend.
type API struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	UserAgent       string        `yaml:"user_agent"`
}

// Polling controls run status polling.
type Polling struct {
	Interval time.Duration `yaml:"interval"`
}

// Compare bounds the comparison view.
type Compare struct {
	MaxSelected int `yaml:"max_selected"`
}

// Storage holds paths for local persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`
}

// Relay configures the snapshot relay listener.
type Relay struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Session names the user signed in at startup.
type Session struct {
	User string `yaml:"user"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Mock configures the local mock backend.
type Mock struct {
	Addr           string   `yaml:"addr"`
	CompleteAfter  int      `yaml:"complete_after"`
	FailStrategies []string `yaml:"fail_strategies"`
}

// Default returns the configuration used for anything the file and
// environment leave unset.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Polling: Polling{Interval: 2 * time.Second},
		Compare: Compare{MaxSelected: 5},
		Storage: Storage{
			SQLitePath: "data/backdash.db",
			ExportDir:  "data/exports",
		},
		Relay:   Relay{Addr: "127.0.0.1:50551"},
		Logging: Logging{Level: "info", Format: "json"},
		Mock:    Mock{Addr: ":8000", CompleteAfter: 3},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path picks the config file: flagValue, then BACKDASH_CONFIG, then
// DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("BACKDASH_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at path on top of Default, then
// applies environment variable overrides and validates the result. A
// missing file is not an error. Variables from ./.env are loaded first
// without overriding the real environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BACKDASH_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("BACKDASH_API_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("BACKDASH_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}
	if v := os.Getenv("BACKDASH_POLL_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("BACKDASH_POLL_INTERVAL: %w", err)
		}
		cfg.Polling.Interval = d
	}

	if v := os.Getenv("BACKDASH_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("BACKDASH_EXPORT_DIR"); v != "" {
		cfg.Storage.ExportDir = v
	}

	if v := os.Getenv("BACKDASH_RELAY_ADDR"); v != "" {
		cfg.Relay.Addr = v
		cfg.Relay.Enabled = true
	}
	if v := os.Getenv("BACKDASH_USER"); v != "" {
		cfg.Session.User = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// parseDuration accepts Go durations ("1500ms") or bare seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q: want an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive, got %s", c.Polling.Interval)
	}
	if c.Compare.MaxSelected < 1 || c.Compare.MaxSelected > 5 {
		return fmt.Errorf("compare.max_selected must be between 1 and 5, got %d", c.Compare.MaxSelected)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level)
	}
	return nil
}
