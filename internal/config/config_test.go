package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidateWithAdmin(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.Identities = []string{"ops"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Market.FeePercent = 150
	cfg.Breaker.MaxErrorRate = 200

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "server: port", "fee_percent", "max_error_rate", "admin:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "archive"
log_level = "debug"

[market]
min_vote_stake = 250
fee_percent = 5

[admin]
identities = ["ops", "oncall"]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "archive" || cfg.LogLevel != "debug" {
		t.Errorf("top-level = %q/%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Market.MinVoteStake != 250 || cfg.Market.FeePercent != 5 {
		t.Errorf("market = %+v", cfg.Market)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[admin]\nidentities = [\"ops\"]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PREDICT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PREDICT_MARKET_FEE_PERCENT", "7")
	t.Setenv("PREDICT_ADMIN_IDENTITIES", "root, auditor")
	t.Setenv("PREDICT_BREAKER_AUTO_RECOVERY_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Market.FeePercent != 7 {
		t.Errorf("fee_percent = %d, want 7", cfg.Market.FeePercent)
	}
	if len(cfg.Admin.Identities) != 2 || cfg.Admin.Identities[1] != "auditor" {
		t.Errorf("identities = %v", cfg.Admin.Identities)
	}
	if cfg.Breaker.AutoRecoveryEnabled {
		t.Error("auto_recovery_enabled should be overridden to false")
	}
}
