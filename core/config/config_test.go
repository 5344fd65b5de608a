package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPopulatesDatabaseSection(t *testing.T) {
	path := writeTempConfig(t, `
telegram:
  token: "test-token"
database:
  host: "db.local"
  port: "5433"
  user: "kcbot"
  password: "secret"
  name: "assistant"
  sslmode: "disable"
  max_connections: 12
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	db := cfg.Database
	if db.Host != "db.local" || db.Port != "5433" || db.User != "kcbot" {
		t.Errorf("unexpected connection fields: host=%q port=%q user=%q", db.Host, db.Port, db.User)
	}
	if db.Password != "secret" || db.Name != "assistant" || db.SSLMode != "disable" {
		t.Errorf("unexpected credential fields: password=%q name=%q sslmode=%q", db.Password, db.Name, db.SSLMode)
	}
	if db.MaxConnections != 12 {
		t.Errorf("MaxConnections = %d, want 12", db.MaxConnections)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "test-token"

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("RunMode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Assistant.DailyBriefTime != "07:30" {
		t.Errorf("DailyBriefTime = %q, want 07:30", cfg.Assistant.DailyBriefTime)
	}
	if cfg.Assistant.Timezone != "Asia/Singapore" {
		t.Errorf("Timezone = %q, want Asia/Singapore", cfg.Assistant.Timezone)
	}
	if cfg.Assistant.RenderCacheSize != 256 {
		t.Errorf("RenderCacheSize = %d, want 256", cfg.Assistant.RenderCacheSize)
	}
	if cfg.Notion.Version != "2022-06-28" {
		t.Errorf("Notion.Version = %q, want 2022-06-28", cfg.Notion.Version)
	}
}

func TestNormalizeRejectsMissingToken(t *testing.T) {
	if err := Normalize(&Config{}); err == nil {
		t.Fatal("expected error for missing telegram token")
	}
}
