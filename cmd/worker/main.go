package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"renderspace/internal/adapter/repo"
	"renderspace/internal/broker"
	"renderspace/internal/infra"
	"renderspace/internal/pipeline"
	"renderspace/internal/providers/image"
	"renderspace/internal/queue"
	"renderspace/internal/storage"
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

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}

	gen, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: image provider init failed")
	}

	jobs := repo.NewRenderJobRepo(dbpool)
	credits := repo.NewCreditRepo(dbpool)
	activity := repo.NewActivityRepo(dbpool)
	events := broker.New(rdb, logger)

	executor := pipeline.NewExecutor(jobs, credits, activity, gen, store, events, logger)

	worker := queue.NewWorker(rdb, executor.Execute, logger, queue.WorkerOptions{
		Lease:       cfg.QueueLease,
		MaxAttempts: cfg.QueueMaxAttempts,
		Concurrency: cfg.WorkerConcurrency,
	})

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Dur("lease", cfg.QueueLease).
		Msg("worker: starting")

	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
