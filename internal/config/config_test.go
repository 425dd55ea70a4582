package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("LLM_FREE_API_KEY", "free-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.QueueSweepInterval != 5*time.Minute {
		t.Errorf("QueueSweepInterval = %v, want 5m", cfg.QueueSweepInterval)
	}
	if cfg.QueueMaxRetries != 3 {
		t.Errorf("QueueMaxRetries = %d, want 3", cfg.QueueMaxRetries)
	}
	if cfg.ExtractionCacheTTL != 7*24*time.Hour {
		t.Errorf("ExtractionCacheTTL = %v, want 168h", cfg.ExtractionCacheTTL)
	}
	if cfg.IMAPReconnectDelay != 5*time.Minute {
		t.Errorf("IMAPReconnectDelay = %v, want 5m", cfg.IMAPReconnectDelay)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	if len(cfg.LLMBackoff) != len(want) {
		t.Fatalf("LLMBackoff = %v, want %v", cfg.LLMBackoff, want)
	}
	for i := range want {
		if cfg.LLMBackoff[i] != want[i] {
			t.Errorf("LLMBackoff[%d] = %v, want %v", i, cfg.LLMBackoff[i], want[i])
		}
	}
	if cfg.TelegramEnabled() || cfg.RedisEnabled() {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoadRejectsShortKey(t *testing.T) {
	setRequired(t)
	t.Setenv("ENCRYPTION_KEY", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short encryption key")
	}
}

func TestLoadRequiresModelKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("LLM_FREE_API_KEY", "")
	t.Setenv("LLM_PAID_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without any model key")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
