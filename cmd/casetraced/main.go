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

	"casetrace/internal/async"
	"casetrace/internal/common"
	"casetrace/internal/core"
	"casetrace/internal/export"
	"casetrace/internal/fetch"
	"casetrace/internal/llm"
	"casetrace/internal/llm/gemini"
	"casetrace/internal/repository"
	"casetrace/internal/server"
	"casetrace/internal/task"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("opening store failed", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("store health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("store health OK", "driver", cfg.Database.Driver)

	extractor := gemini.NewClient(gemini.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		UploadTimeout:   cfg.LLM.UploadTimeout,
		GenerateTimeout: cfg.LLM.GenerateTimeout,
		RequestsPerSec:  cfg.LLM.RequestsPerSec,
		Retry: llm.Policy{
			MaxAttempts: cfg.LLM.MaxRetries,
			Base:        cfg.LLM.BackoffBase,
			MaxDelay:    cfg.LLM.BackoffMax,
		},
	}, logger)

	fetcher := fetch.NewHTTPFetcher(fetch.Config{
		Timeout:   cfg.Download.Timeout,
		MaxSizeMB: cfg.Download.MaxSizeMB,
		TmpDir:    cfg.Download.TmpDir,
	}, logger)

	processor := core.NewProcessor(logger, fetcher, extractor, store)

	tracker := task.NewTracker(cfg.Tasks.Retention, logger)
	go tracker.RunJanitor(ctx, cfg.Tasks.EvictInterval)

	queue := async.NewQueue(processor, tracker, logger,
		async.WithWorkers(cfg.Tasks.Workers),
		async.WithQueueSize(cfg.Tasks.QueueSize),
		async.WithJobTimeout(cfg.Tasks.JobTimeout),
	)

	exporter := export.NewService(store, logger)

	srv := server.NewServer(processor, store, exporter, store, queue, tracker, server.ServerConfig{
		TmpDir:    cfg.Download.TmpDir,
		MaxSizeMB: cfg.Download.MaxSizeMB,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.Database.Driver == "postgres" {
		return repository.OpenPostgres(ctx, repository.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
	}
	return repository.OpenSQLite(cfg.Database.DSN, logger)
}
