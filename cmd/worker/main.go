package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"smartattend/internal/audit"
	"smartattend/internal/config"
	"smartattend/internal/logging"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

// Worker consumes audit entries from the Redis queue and writes them to
// Postgres.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, os.Stdout).With("component", "worker")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	if cfg.StoreBackend != "postgres" || cfg.QueueBackend != "redis" {
		return errors.New("worker needs STORE_BACKEND=postgres and QUEUE_BACKEND=redis; other setups drain audit entries inside the api")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will retry", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(rdb.Client, queue.DefaultKey, logger)
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}

	svc := audit.NewService(audit.NewRepository(db.Client), nil, logger)
	logger.Info("worker started", "queue", queue.DefaultKey)
	n := audit.Drain(ctx, msgs, svc)
	logger.Info("worker stopped", "written", n)
	return nil
}
