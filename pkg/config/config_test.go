package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "channels": {"telegram": {"enabled": true, "token": "abc"}},
	  "storage": {"path": "bot.db", "cache_ttl_seconds": 60},
	  "pipeline": {"strategies": {"flakey": {"action": "retry", "max_attempts": 3, "backoff_ms": 250}}},
	  "health": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("FLOWCLAW_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if !cfg.Channels.Telegram.Enabled {
		t.Fatal("channels.telegram.enabled = false, want true")
	}
	if cfg.Storage.Path != "bot.db" {
		t.Fatalf("storage.path = %q, want %q", cfg.Storage.Path, "bot.db")
	}
	if cfg.Storage.CacheTTLSeconds != 60 {
		t.Fatalf("storage.cache_ttl_seconds = %d, want 60", cfg.Storage.CacheTTLSeconds)
	}

	strategy, ok := cfg.Pipeline.Strategies["flakey"]
	if !ok {
		t.Fatal("pipeline.strategies.flakey missing")
	}
	if strategy.Action != "retry" || strategy.MaxAttempts != 3 || strategy.BackoffMs != 250 {
		t.Fatalf("strategy = %+v", strategy)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
}

func TestEnvOverridesToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"channels": {"telegram": {"enabled": true, "token": "from-file"}}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("FLOWCLAW_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("TELEGRAM_ALLOW_FROM", " 1, 2 ,, 3 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Channels.Telegram.Token)
	}
	if len(cfg.Channels.Telegram.AllowFrom) != 3 {
		t.Fatalf("allow_from = %v, want 3 entries", cfg.Channels.Telegram.AllowFrom)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("FLOWCLAW_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}
