package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ingest-pipeline/pkg/api"
	"ingest-pipeline/pkg/bridge"
	"ingest-pipeline/pkg/cache"
	"ingest-pipeline/pkg/config"
	"ingest-pipeline/pkg/database"
	"ingest-pipeline/pkg/keyspace"
	"ingest-pipeline/pkg/observability"
	"ingest-pipeline/pkg/queue"
	"ingest-pipeline/pkg/ws"
)

// The api process is the leader role: exactly one instance owns the client
// sockets and the notification-bridge subscriber. Worker processes only
// publish.
func main() {
	if err := run(); err != nil {
		slog.Error("api process failed", "error", err)
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
	if err := db.InitSchema(ctx); err != nil {
		return err
	}

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
	if err := q.SetupTopology(); err != nil {
		return err
	}

	hub := ws.NewHub(logger)
	defer hub.Close()
	go bridge.NewSubscriber(keys, logger).Run(ctx, hub)

	orderCache := cache.New(keys, db.Orders(), cfg.CacheTTL, cfg.HotPages, cfg.PageSize, logger)
	orderCache.Preload(ctx)

	observability.StartMetricsServer(cfg.MetricsAddr)

	server := &api.Server{
		Queue:      q,
		Records:    db.Records(),
		Keys:       keys,
		Orders:     orderCache,
		OrderStore: db.Orders(),
		WSHandler:  hub.HandleWS,
		PageSize:   cfg.PageSize,
		Log:        logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	logger.Info("shutdown signal received, stopping api server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
