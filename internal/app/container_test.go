package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mixelka/clarify/internal/admin"
	"github.com/mixelka/clarify/internal/config"
	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/notify"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/internal/telegram"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DatabaseDriver:     "sqlite3",
		DatabaseDSN:        filepath.Join(t.TempDir(), "clarify.db"),
		EncryptionKey:      "0123456789abcdef0123456789abcdef",
		EmailPollInterval:  time.Minute,
		QueueSweepInterval: time.Hour,
		QueueBatchSize:     5,
		QueueMaxRetries:    3,
		QueueWorkers:       1,
		LLMProvider:        "openai",
		LLMModel:           "gpt-4o-mini",
		LLMPaidAPIKey:      "sk-test",
		LLMBackoff:         []time.Duration{time.Millisecond},
		AdminAddr:          "127.0.0.1:0",
		RedisEventsKey:     "clarify:events",
	}
}

func TestBuildContainerResolvesGraph(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := BuildContainer(cfg, logger)
	if err != nil {
		t.Fatalf("BuildContainer() error = %v", err)
	}

	err = container.Invoke(func(db *database.DB, s *scheduler.Scheduler, _ *admin.Server, n notify.Notifier, b *telegram.Bot, rdb *redis.Client) {
		t.Cleanup(func() { db.Close() })
		if b != nil {
			t.Error("bot created without Telegram config")
		}
		if rdb != nil {
			t.Error("redis client created without REDIS_URL")
		}
		if multi, ok := n.(notify.Multi); !ok || len(multi) != 1 {
			t.Errorf("notifier = %T %v, want log notifier only", n, n)
		}

		st, err := s.GetStatus(context.Background())
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if st.Running || st.TotalTeams != 0 {
			t.Errorf("status = %+v, want stopped with no teams", st)
		}
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestRedisNotifierIsAddedWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:6379/0"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := BuildContainer(cfg, logger)
	if err != nil {
		t.Fatalf("BuildContainer() error = %v", err)
	}

	err = container.Invoke(func(db *database.DB, n notify.Notifier, rdb *redis.Client) {
		t.Cleanup(func() { db.Close(); rdb.Close() })
		if multi, ok := n.(notify.Multi); !ok || len(multi) != 2 {
			t.Errorf("notifier = %T %v, want log and redis", n, n)
		}
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}
