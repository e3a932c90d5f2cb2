package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BACKDASH_API_URL", "BACKDASH_API_TIMEOUT", "BACKDASH_POLL_INTERVAL",
		"BACKDASH_SQLITE_PATH", "BACKDASH_EXPORT_DIR", "BACKDASH_RELAY_ADDR",
		"BACKDASH_USER", "LOG_LEVEL", "BACKDASH_CONFIG",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backdash.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
api:
  base_url: "http://backtest.local:8000"
  timeout: 10s
  rate_limit_per_min: 120
polling:
  interval: 500ms
storage:
  sqlite_path: "/tmp/backdash/subs.db"
  export_dir: "/tmp/backdash/exports"
relay:
  enabled: true
  addr: "127.0.0.1:6000"
session:
  user: "alice"
logging:
  level: "debug"
  format: "text"
mock:
  complete_after: 2
  fail_strategies: ["30sec_1r"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", path, err)
	}

	if cfg.API.BaseURL != "http://backtest.local:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("API.Timeout = %v, want 10s", cfg.API.Timeout)
	}
	if cfg.API.RateLimitPerMin != 120 {
		t.Errorf("API.RateLimitPerMin = %d, want 120", cfg.API.RateLimitPerMin)
	}
	if cfg.Polling.Interval != 500*time.Millisecond {
		t.Errorf("Polling.Interval = %v, want 500ms", cfg.Polling.Interval)
	}
	if cfg.Compare.MaxSelected != 5 {
		t.Errorf("Compare.MaxSelected = %d, want default 5", cfg.Compare.MaxSelected)
	}
	if cfg.Storage.SQLitePath != "/tmp/backdash/subs.db" || cfg.Storage.ExportDir != "/tmp/backdash/exports" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Relay.Enabled || cfg.Relay.Addr != "127.0.0.1:6000" {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
	if cfg.Session.User != "alice" {
		t.Errorf("Session.User = %q", cfg.Session.User)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Mock.CompleteAfter != 2 || len(cfg.Mock.FailStrategies) != 1 {
		t.Errorf("Mock = %+v", cfg.Mock)
	}
	if cfg.Mock.Addr != ":8000" {
		t.Errorf("Mock.Addr = %q, want default", cfg.Mock.Addr)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.API != def.API || cfg.Polling != def.Polling || cfg.Storage != def.Storage {
		t.Errorf("Load = %+v, want defaults %+v", cfg, def)
	}
	if cfg.Polling.Interval != 2*time.Second || cfg.API.Timeout != 30*time.Second {
		t.Errorf("defaults: interval %v timeout %v", cfg.Polling.Interval, cfg.API.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "api:\n  base_url: \"http://file:8000\"\n")

	t.Setenv("BACKDASH_API_URL", "https://env.example.com")
	t.Setenv("BACKDASH_API_TIMEOUT", "5")
	t.Setenv("BACKDASH_POLL_INTERVAL", "250ms")
	t.Setenv("BACKDASH_SQLITE_PATH", "/env/subs.db")
	t.Setenv("BACKDASH_EXPORT_DIR", "/env/exports")
	t.Setenv("BACKDASH_RELAY_ADDR", "127.0.0.1:7000")
	t.Setenv("BACKDASH_USER", "bob")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("API.BaseURL = %q, want env value", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.Polling.Interval != 250*time.Millisecond {
		t.Errorf("Polling.Interval = %v, want 250ms", cfg.Polling.Interval)
	}
	if cfg.Storage.SQLitePath != "/env/subs.db" || cfg.Storage.ExportDir != "/env/exports" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Relay.Enabled || cfg.Relay.Addr != "127.0.0.1:7000" {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
	if cfg.Session.User != "bob" || cfg.Logging.Level != "warn" {
		t.Errorf("Session/Logging = %+v %+v", cfg.Session, cfg.Logging)
	}

	t.Setenv("BACKDASH_POLL_INTERVAL", "soon")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "BACKDASH_POLL_INTERVAL") {
		t.Errorf("bad interval err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"scheme", func(c *Config) { c.API.BaseURL = "ftp://x" }, "base_url"},
		{"no host", func(c *Config) { c.API.BaseURL = "http://" }, "base_url"},
		{"timeout", func(c *Config) { c.API.Timeout = 0 }, "timeout"},
		{"interval", func(c *Config) { c.Polling.Interval = -time.Second }, "interval"},
		{"selection", func(c *Config) { c.Compare.MaxSelected = 6 }, "max_selected"},
		{"level", func(c *Config) { c.Logging.Level = "verbose" }, "level"},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		err := cfg.Validate()
		if tt.want == "" {
			if err != nil {
				t.Errorf("%s: Validate = %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestPath(t *testing.T) {
	clearEnv(t)
	if got := Path(""); got != DefaultPath {
		t.Errorf("Path(\"\") = %q, want %q", got, DefaultPath)
	}
	t.Setenv("BACKDASH_CONFIG", "/etc/backdash.yaml")
	if got := Path(""); got != "/etc/backdash.yaml" {
		t.Errorf("Path with env = %q", got)
	}
	if got := Path("flag.yaml"); got != "flag.yaml" {
		t.Errorf("Path(flag) = %q", got)
	}
}
