package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"MemoLedger/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := config.DefaultConfig()
	if cfg.DBDriver != want.DBDriver {
		t.Errorf("db_driver: got %s, want %s", cfg.DBDriver, want.DBDriver)
	}
	if cfg.WatchLookback != 100 {
		t.Errorf("watch_lookback: got %d, want 100", cfg.WatchLookback)
	}
	if cfg.TokenDecimals != 6 {
		t.Errorf("token_decimals: got %d, want 6", cfg.TokenDecimals)
	}
	if cfg.JWTDuration != 24*time.Hour {
		t.Errorf("jwt_duration: got %v, want 24h", cfg.JWTDuration)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("db_driver: sqlite\nsqlite_path: /tmp/memo.db\nwatch_lookback: 50\nwatch_interval: 15s\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEMO_WATCH_LOOKBACK", "250")
	t.Setenv("MEMO_JWT_SECRET", "s3cret")

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.DSN() != "/tmp/memo.db" {
		t.Errorf("driver/dsn: got %s %s", cfg.DBDriver, cfg.DSN())
	}
	if cfg.WatchLookback != 250 {
		t.Errorf("env should override file: got %d, want 250", cfg.WatchLookback)
	}
	if cfg.WatchInterval != 15*time.Second {
		t.Errorf("watch_interval: got %v, want 15s", cfg.WatchInterval)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("jwt_secret: got %q", cfg.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.DBDriver = "mysql" }},
		{"missing dsn", func(c *config.Config) { c.PostgresDSN = "" }},
		{"missing sqlite path", func(c *config.Config) { c.DBDriver = "sqlite"; c.SQLitePath = "" }},
		{"zero lookback", func(c *config.Config) { c.WatchLookback = 0 }},
		{"negative decimals", func(c *config.Config) { c.TokenDecimals = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := config.DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
