// Package app wires the ingestion service together.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/mixelka/clarify/internal/admin"
	"github.com/mixelka/clarify/internal/backoff"
	"github.com/mixelka/clarify/internal/cases"
	"github.com/mixelka/clarify/internal/config"
	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/internal/extraction"
	"github.com/mixelka/clarify/internal/formatter"
	"github.com/mixelka/clarify/internal/llm"
	"github.com/mixelka/clarify/internal/notify"
	"github.com/mixelka/clarify/internal/pipeline"
	"github.com/mixelka/clarify/internal/queue"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/internal/secret"
	"github.com/mixelka/clarify/internal/teams"
	"github.com/mixelka/clarify/internal/telegram"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer(cfg *config.Config, logger *slog.Logger) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() *slog.Logger { return logger },
		provideDatabase,
		provideBox,
		provideModelAccess,
		provideExtraction,
		provideRedis,
		provideBot,
		provideNotifier,
		provideEngine,
		provideHandler,
		provideQueue,
		provideSink,
		provideManager,
		provideScheduler,
		provideAdmin,
		teams.NewSeeder,
		func(box *secret.Box) teams.Encrypter { return box },
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}

	return container, nil
}

func provideDatabase(cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database migrations completed", "driver", cfg.DatabaseDriver)
	return db, nil
}

func provideBox(cfg *config.Config) (*secret.Box, error) {
	return secret.NewBox(cfg.EncryptionKey)
}

func provideModelAccess(cfg *config.Config, db *database.DB, logger *slog.Logger) (*llm.Access, error) {
	ctx := context.Background()

	free, err := llm.NewGenerator(ctx, cfg.LLMProvider, cfg.LLMFreeAPIKey, cfg.LLMModel, cfg.LLMBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create free tier client: %w", err)
	}
	paid, err := llm.NewGenerator(ctx, cfg.LLMProvider, cfg.LLMPaidAPIKey, cfg.LLMModel, cfg.LLMBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create paid tier client: %w", err)
	}

	access := llm.NewAccess(llm.Options{
		Free:       free,
		Paid:       paid,
		FreeLimits: llm.Limits{Daily: cfg.LLMFreeDailyLimit, Minute: cfg.LLMFreeMinuteLimit},
		PaidLimits: llm.Limits{Daily: cfg.LLMPaidDailyLimit, Minute: cfg.LLMPaidMinuteLimit},
		Backoff:    backoff.Policy{Delays: cfg.LLMBackoff},
		Timeout:    cfg.LLMTimeout,
		Store:      db,
		Logger:     logger,
	})
	if err := access.Restore(ctx); err != nil {
		// Fresh counters are safe, the provider still enforces its quota
		logger.Warn("failed to restore model usage", "error", err)
	}
	return access, nil
}

func provideExtraction(cfg *config.Config, access *llm.Access, db *database.DB, logger *slog.Logger) *extraction.Service {
	return extraction.NewService(access, db, db, cfg.ExtractionCacheTTL, cfg.ExtractionMaxBody, logger)
}

// provideRedis returns nil when REDIS_URL is not set
func provideRedis(cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}
	return notify.NewRedisClient(cfg.RedisURL)
}

// provideBot returns nil when Telegram is not configured
func provideBot(cfg *config.Config, db *database.DB, logger *slog.Logger) (*telegram.Bot, error) {
	if !cfg.TelegramEnabled() {
		return nil, nil
	}
	b, err := telegram.NewBot(telegram.BotDeps{
		Token:       cfg.TelegramToken,
		ChatID:      cfg.TelegramChatID,
		CaseURLBase: cfg.CaseURLBase,
		Teams:       db,
		Formatter:   formatter.NewTelegramFormatter(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}

func provideNotifier(cfg *config.Config, rdb *redis.Client, b *telegram.Bot, logger *slog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if rdb != nil {
		notifiers = append(notifiers, notify.NewRedisPublisher(rdb, cfg.RedisEventsKey, logger))
	}
	if b != nil {
		notifiers = append(notifiers, b)
	}
	return notifiers
}

func provideEngine(cfg *config.Config, db *database.DB, svc *extraction.Service, n notify.Notifier, logger *slog.Logger) *cases.Engine {
	return cases.NewEngine(cases.NewSQLStore(db), svc, n, cases.Options{
		FollowUpDelay:     cfg.FollowUpDelay,
		EnrichmentTimeout: cfg.EnrichmentTimeout,
	}, logger)
}

func provideHandler(cfg *config.Config, svc *extraction.Service, engine *cases.Engine, logger *slog.Logger) *pipeline.Handler {
	return pipeline.NewHandler(svc, engine, cfg.BulkMinItems, logger)
}

func provideQueue(cfg *config.Config, db *database.DB, h *pipeline.Handler, logger *slog.Logger) *queue.Queue {
	return queue.NewQueue(db, h, queue.Options{
		MaxRetries: cfg.QueueMaxRetries,
		Workers:    cfg.QueueWorkers,
		StaleAfter: cfg.QueueStaleAfter,
		Retention:  cfg.QueueRetention,
	}, logger)
}

func provideSink(cfg *config.Config, q *queue.Queue, logger *slog.Logger) *pipeline.Sink {
	return pipeline.NewSink(q, cfg.QueueWorkers, logger)
}

func provideManager(cfg *config.Config, sink *pipeline.Sink, db *database.DB, box *secret.Box, logger *slog.Logger) *email.Manager {
	return email.NewManager(sink, db, box.Decrypt, email.Options{
		PollInterval:   cfg.EmailPollInterval,
		ReconnectDelay: cfg.IMAPReconnectDelay,
		DialTimeout:    cfg.IMAPDialTimeout,
		FetchTimeout:   cfg.IMAPFetchTimeout,
	}, logger)
}

func provideScheduler(cfg *config.Config, m *email.Manager, q *queue.Queue, svc *extraction.Service, db *database.DB, logger *slog.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(m, q, svc, db, scheduler.Options{
		SweepInterval: cfg.QueueSweepInterval,
		BatchSize:     cfg.QueueBatchSize,
	}, logger)
}

func provideAdmin(cfg *config.Config, s *scheduler.Scheduler, q *queue.Queue, logger *slog.Logger) *admin.Server {
	return admin.NewServer(cfg.AdminAddr, s, q, logger)
}
