package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Engine.FailureThreshold != 3 || cfg.Engine.SafeguardThreshold != 5 {
		t.Fatalf("unexpected engine thresholds %+v", cfg.Engine)
	}
	if cfg.Engine.RelistDuration != time.Hour || cfg.Engine.RelistDelay != time.Second {
		t.Fatalf("unexpected relist timings %+v", cfg.Engine)
	}
	if cfg.Engine.MaxBidMin != 300000 || cfg.Engine.MaxBidMax != 800000 {
		t.Fatalf("unexpected maxBid range %+v", cfg.Engine)
	}
	if cfg.Local.SettingsKey != "sniper_settings" || cfg.Local.FiltersKey != "saved_filters" {
		t.Fatalf("unexpected storage keys %+v", cfg.Local)
	}
	if len(cfg.Alerting.Telegram.Severities) != 2 {
		t.Fatalf("unexpected telegram severities %v", cfg.Alerting.Telegram.Severities)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
engine:
  failure_threshold: 4
  relist_delay: 3s
alerting:
  telegram:
    severities: error
local:
  path: /tmp/x.db
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SNIPER_ENGINE_SAFEGUARD_THRESHOLD", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.FailureThreshold != 4 || cfg.Engine.RelistDelay != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.SafeguardThreshold != 7 {
		t.Fatalf("env override not applied: %d", cfg.Engine.SafeguardThreshold)
	}
	if got := cfg.Alerting.Telegram.Severities; len(got) != 1 || got[0] != "error" {
		t.Fatalf("comma slice hook not applied: %v", got)
	}
}

func TestValidateTelegramRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram without a token should fail validation")
	}
	cfg.Alerting.Telegram.BotToken = "t"
	cfg.Alerting.Telegram.ChatID = "c"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete telegram config should validate: %v", err)
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 50}}
	if cfg.ResolveMaxPoints(0) != 50 || cfg.ResolveMaxPoints(10) != 10 {
		t.Fatal("override should win only when positive")
	}
}
