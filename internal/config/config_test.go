package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"zero tick interval", func(c *Config) { c.Game.TickInterval = 0 }},
		{"negative response window", func(c *Config) { c.Game.ResponseWindow = -time.Second }},
		{"zero ping interval", func(c *Config) { c.Game.PingInterval = 0 }},
		{"stale before ping", func(c *Config) { c.Game.StaleAfter = c.Game.PingInterval }},
		{"relay url without prefix", func(c *Config) { c.RelayURL = "nats://localhost:4222"; c.RelayPrefix = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Fatalf("addr = %q, want default", cfg.Addr)
	}
	if cfg.Game.DisconnectGrace != 30*time.Second {
		t.Fatalf("disconnect grace = %s, want 30s", cfg.Game.DisconnectGrace)
	}
}

func TestLoadReadsYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
addr: ":9191"
log_level: debug
game:
  response_window: 45s
  handicap_enabled: true
  handicap_delay: 1500ms
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Game.ResponseWindow != 45*time.Second {
		t.Fatalf("response window = %s", cfg.Game.ResponseWindow)
	}
	if !cfg.Game.HandicapEnabled || cfg.Game.HandicapDelay != 1500*time.Millisecond {
		t.Fatalf("handicap not parsed: %+v", cfg.Game)
	}
	// Untouched keys keep their defaults.
	if cfg.Game.PingInterval != Default().Game.PingInterval {
		t.Fatalf("ping interval drifted: %s", cfg.Game.PingInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9191\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUZZDECK_ADDR", ":7070")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("env override lost: %q", cfg.Addr)
	}
}
