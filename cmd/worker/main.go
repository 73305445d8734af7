package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"genstudio/internal/adapter/repo"
	"genstudio/internal/generation"
	"genstudio/internal/history"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/orchestrator"
	"genstudio/internal/providers/genai"
	"genstudio/internal/providers/media"
	"genstudio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	blobs, _, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	apiKey, err := credentials.NewStore(runner).ResolveGeminiAPIKey(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
	}
	client, err := genai.NewClient(genai.Options{
		APIKey:  apiKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}
	if client.Synthetic() {
		logger.Warn().Msg("worker: gemini api key missing, using synthetic generation")
	}

	adapter := media.NewAdapter(client, blobs, cfg.ArtifactBucket, logger)
	recorder := history.NewRecorder(repo.NewHistoryRepository(runner), blobs, cfg.MetadataBucket, logger)
	operations := repo.NewOperationRepository(runner, "worker-"+uuid.NewString())

	w := &resumeWorker{
		claimer:      operations,
		staleAfter:   cfg.ResumeStaleAfter,
		scanInterval: cfg.ResumeScanInterval,
		logger:       logger,
		orchestrator: orchestrator.New(orchestrator.Deps{
			Builder:   generation.NewBuilder(cfg.DefaultImageModel, cfg.DefaultVideoModel),
			Submitter: adapter,
			Checker:   adapter,
			Recorder:  recorder,
			Tracker:   operations,
			Metrics:   orchestrator.NewMetrics(prometheus.NewRegistry()),
			Logger:    logger,
		}),
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	recorder.Wait()
	logger.Info().Msg("worker: stopped")
}
