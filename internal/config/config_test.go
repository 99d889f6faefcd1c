package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second || cfg.Retry.Factor != 2 || cfg.Retry.MaxRetryAfter != time.Minute {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Dedup.MaxDistance != 2 || cfg.Dedup.DistanceRatio != 0.2 {
		t.Errorf("unexpected dedup defaults: %+v", cfg.Dedup)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
metadata:
  base_url: https://api.example.com/v1/
  client_id: abc
  rate_limits:
    albums:
      max_requests: 5
      window: 30s
import:
  batch_size: 3
  stagger: 100ms
sources:
  chart:
    enabled: true
    url: https://charts.example.com/albums
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RW_CLIENT_SECRET", "shh")
	t.Setenv("RW_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Metadata.BaseURL != "https://api.example.com/v1" {
		t.Errorf("base url = %q, want trailing slash trimmed", cfg.Metadata.BaseURL)
	}
	if cfg.Metadata.ClientSecret != "shh" {
		t.Errorf("client secret not taken from env")
	}
	rl := cfg.Metadata.RateLimits["albums"]
	if rl.MaxRequests != 5 || rl.Window != 30*time.Second {
		t.Errorf("albums rate limit = %+v", rl)
	}
	if cfg.Import.BatchSize != 3 || cfg.Import.Stagger != 100*time.Millisecond {
		t.Errorf("import config = %+v", cfg.Import)
	}
	if !cfg.Sources.Chart.Enabled || cfg.Sources.Chart.URL == "" {
		t.Errorf("chart source not loaded: %+v", cfg.Sources.Chart)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"shrinking factor", func(c *Config) { c.Retry.Factor = 0.5 }},
		{"negative retry-after cap", func(c *Config) { c.Retry.MaxRetryAfter = -time.Second }},
		{"zero batch", func(c *Config) { c.Import.BatchSize = 0 }},
		{"empty window", func(c *Config) {
			c.Metadata.RateLimits["albums"] = RateLimitConfig{MaxRequests: 1}
		}},
		{"negative retention", func(c *Config) { c.Database.BackupRetention = -1 }},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Name: "x"}} }},
		{"webhook bad type", func(c *Config) {
			c.Webhooks = []WebhookConfig{{URL: "http://hook", Type: "teams"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateWebhookDefaults(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []WebhookConfig{{URL: "http://hook.example/x"}}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	w := cfg.Webhooks[0]
	if w.Type != "generic" || w.Name != "http://hook.example/x" {
		t.Errorf("webhook defaults = %+v", w)
	}
}
