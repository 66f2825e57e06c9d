package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.NodeID == "" {
		t.Error("NodeID should default to a non-empty value")
	}
	if cfg.FreeMessageLimit != 50 {
		t.Errorf("FreeMessageLimit = %d, want 50", cfg.FreeMessageLimit)
	}
	if cfg.QuotaWindow != 24*time.Hour {
		t.Errorf("QuotaWindow = %v, want 24h", cfg.QuotaWindow)
	}
	if cfg.FreeMaxFileBytes != 2*1024*1024 {
		t.Errorf("FreeMaxFileBytes = %d, want 2MiB", cfg.FreeMaxFileBytes)
	}
	if cfg.BusPublishAttempts != 3 {
		t.Errorf("BusPublishAttempts = %d, want 3", cfg.BusPublishAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("NODE_ID", "node-a")
	t.Setenv("FREE_MESSAGE_LIMIT", "5")
	t.Setenv("QUOTA_WINDOW", "1h")
	t.Setenv("SHUTDOWN_GRACE", "5s")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.NodeID != "node-a" {
		t.Errorf("NodeID = %q, want node-a", cfg.NodeID)
	}
	if cfg.FreeMessageLimit != 5 {
		t.Errorf("FreeMessageLimit = %d, want 5", cfg.FreeMessageLimit)
	}
	if cfg.QuotaWindow != time.Hour {
		t.Errorf("QuotaWindow = %v, want 1h", cfg.QuotaWindow)
	}
	if cfg.ShutdownGrace != 5*time.Second {
		t.Errorf("ShutdownGrace = %v, want 5s", cfg.ShutdownGrace)
	}
	if len(cfg.RateLimitWhitelist) != 2 || cfg.RateLimitWhitelist[1] != "192.168.0.0/16" {
		t.Errorf("RateLimitWhitelist = %v", cfg.RateLimitWhitelist)
	}
}

func TestLoadClampsNonPositiveQuotaWindow(t *testing.T) {
	t.Setenv("QUOTA_WINDOW", "0s")

	cfg := Load()

	if cfg.QuotaWindow != 24*time.Hour {
		t.Errorf("QuotaWindow = %v, want 24h fallback", cfg.QuotaWindow)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FREE_MESSAGE_LIMIT", "not-a-number")
	t.Setenv("QUOTA_WINDOW", "eventually")

	cfg := Load()

	if cfg.FreeMessageLimit != 50 {
		t.Errorf("FreeMessageLimit = %d, want default 50", cfg.FreeMessageLimit)
	}
	if cfg.QuotaWindow != 24*time.Hour {
		t.Errorf("QuotaWindow = %v, want default 24h", cfg.QuotaWindow)
	}
}
