package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LuoguBaseURL != "https://www.luogu.com.cn" {
		t.Errorf("unexpected default base URL: %q", cfg.LuoguBaseURL)
	}
	if cfg.DBPath == "" {
		t.Error("expected a default DB path")
	}
	if cfg.HTTPTimeout() != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %v", cfg.HTTPTimeout())
	}
	if !strings.Contains(cfg.UserAgent, "Mozilla") {
		t.Errorf("expected a browser-like user agent, got %q", cfg.UserAgent)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error without TELEGRAM_BOT_TOKEN")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LUOGU_BASE_URL", "http://localhost:9999")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "5")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LuoguBaseURL != "http://localhost:9999" {
		t.Errorf("override ignored: %q", cfg.LuoguBaseURL)
	}
	if cfg.HTTPTimeout() != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.HTTPTimeout())
	}
	if cfg.DBPath != "" {
		t.Errorf("expected empty DB path to select the memory store, got %q", cfg.DBPath)
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := &Config{TelegramBotToken: "x", LuoguBaseURL: "http://x", HTTPTimeoutSeconds: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a zero timeout")
	}
}
