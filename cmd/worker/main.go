package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imagebatch/internal/adapter/repo"
	"imagebatch/internal/batch"
	"imagebatch/internal/infra"
	"imagebatch/internal/providers/genai"
	"imagebatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema setup failed")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage setup failed")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: gemini client setup failed")
	}

	jobs := repo.NewJobRepository(pool, logger)
	items := repo.NewItemRepository(pool, logger)
	service := batch.NewService(client, jobs, items, store, cfg.GeminiModel, logger)
	checkLease := batch.NewLease("status-check")

	logger.Info().Dur("interval", cfg.PollInterval).Msg("worker: started")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	runPass(ctx, service, checkLease, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			runPass(ctx, service, checkLease, logger)
		}
	}
}

func runPass(ctx context.Context, service *batch.Service, lease *batch.Lease, logger infra.Logger) {
	if !lease.TryAcquire() {
		logger.Warn().Msg("worker: previous pass still running, skipping")
		return
	}
	defer lease.Release()

	result, err := service.CheckResults(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("worker: reconciliation pass failed")
		return
	}

	logger.Info().
		Int("jobs_total", result.TotalJobs).
		Int("jobs_pending", result.JobsPending).
		Int("jobs_running", result.JobsRunning).
		Int("jobs_succeeded", result.JobsSucceeded).
		Int("jobs_failed", result.JobsFailed).
		Int("jobs_cancelled", result.JobsCancelled).
		Int("items_succeeded", result.ItemsSucceeded).
		Int("items_failed", result.ItemsFailed).
		Msg("worker: reconciliation pass finished")

	for msg, count := range result.ErrorsGrouped {
		logger.Warn().Int("count", count).Str("error", msg).Msg("worker: grouped error")
	}
}
