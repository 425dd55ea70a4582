package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/mixelka/clarify/internal/admin"
	"github.com/mixelka/clarify/internal/app"
	"github.com/mixelka/clarify/internal/config"
	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/pipeline"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/internal/teams"
	"github.com/mixelka/clarify/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting clarification intake")

	container, err := app.BuildContainer(cfg, logger)
	if err != nil {
		logger.Error("failed to build container", "error", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(
		db *database.DB,
		seeder *teams.Seeder,
		sched *scheduler.Scheduler,
		sink *pipeline.Sink,
		srv *admin.Server,
		bot *telegram.Bot,
		rdb *redis.Client,
	) error {
		return run(cfg, logger, db, seeder, sched, sink, srv, bot, rdb)
	}); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}

	logger.Info("service stopped")
}

func run(
	cfg *config.Config,
	logger *slog.Logger,
	db *database.DB,
	seeder *teams.Seeder,
	sched *scheduler.Scheduler,
	sink *pipeline.Sink,
	srv *admin.Server,
	bot *telegram.Bot,
	rdb *redis.Client,
) error {
	defer db.Close()
	if rdb != nil {
		defer rdb.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TeamsFile != "" {
		if err := seeder.SeedFile(ctx, cfg.TeamsFile); err != nil {
			return err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("admin server failed", "error", err)
			cancel()
		}
	}()

	if bot != nil {
		bot.SetupCommands(sched)
		go bot.Start(ctx)
	}

	// Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	sched.Stop()
	sink.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
