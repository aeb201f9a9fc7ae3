// Command casetrace runs a single case through the extraction pipeline and
// prints the persisted record as JSON. Useful for smoke-testing a deployment
// without the HTTP daemon.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"casetrace/internal/common"
	"casetrace/internal/core"
	"casetrace/internal/fetch"
	"casetrace/internal/llm"
	"casetrace/internal/llm/gemini"
	"casetrace/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 3 {
		logger.Error("usage: casetrace <case_id> <url-or-path>")
		os.Exit(2)
	}
	caseID := os.Args[1]
	target := os.Args[2]

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		logger.Error("GEMINI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tasks.JobTimeout)
	defer cancel()

	store, err := repository.OpenSQLite(cfg.Database.DSN, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

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

	start := time.Now()
	rec, err := processor.Process(ctx, caseID, sourceFor(target))
	if err != nil {
		logger.Error("extraction failed", "case_id", caseID, "error", err)
		os.Exit(1)
	}
	logger.Info("extraction done", "case_id", rec.CaseID, "elapsed_ms", time.Since(start).Milliseconds())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		logger.Error("encode record", "error", err)
		os.Exit(1)
	}
}

func sourceFor(target string) fetch.Source {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return fetch.Source{URL: target}
	}
	return fetch.Source{LocalPath: target}
}
