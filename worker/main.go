package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ingest-pipeline/pkg/bridge"
	"ingest-pipeline/pkg/config"
	"ingest-pipeline/pkg/consumer"
	"ingest-pipeline/pkg/database"
	"ingest-pipeline/pkg/keyspace"
	"ingest-pipeline/pkg/observability"
	"ingest-pipeline/pkg/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker process failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBPoolSize, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := keyspace.Connect(ctx, cfg.RedisURL, cfg.RedisPoolSize, logger)
	if err != nil {
		return err
	}
	defer keys.Close()

	q, err := queue.Dial(cfg.RabbitURL, cfg.JobMaxAttempts, cfg.JobBackoffBase, logger)
	if err != nil {
		return err
	}
	defer q.Close()
	// Topology declaration is idempotent; declaring here lets a worker start
	// before the api process.
	if err := q.SetupTopology(); err != nil {
		return err
	}

	deliveries, err := q.Consume()
	if err != nil {
		return err
	}

	observability.StartMetricsServer(cfg.MetricsAddr)

	pool := &consumer.Pool{
		Store:       db.Records(),
		Counters:    keys,
		Notifier:    bridge.NewPublisher(keys, logger),
		Retries:     q,
		Concurrency: cfg.WorkerConcurrency,
		Limiter:     consumer.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		Timeout:     cfg.JobTimeout,
		Retention:   cfg.CompletedRetention,
		Log:         logger,
	}

	done := make(chan struct{})
	go func() {
		pool.Run(ctx, deliveries)
		close(done)
	}()

	logger.Info("worker started",
		"concurrency", cfg.WorkerConcurrency,
		"rate_limit_max", cfg.RateLimitMax,
		"rate_limit_window", cfg.RateLimitWindow,
		"max_attempts", cfg.JobMaxAttempts)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, draining worker pool")
	cancel()
	<-done
	logger.Info("worker stopped")
	return nil
}
