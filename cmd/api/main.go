package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genstudio/internal/adapter/repo"
	"genstudio/internal/generation"
	"genstudio/internal/history"
	"genstudio/internal/http/handlers"
	httpapi "genstudio/internal/http/httpapi"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/infra/geoip"
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
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "api").Logger()

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	blobs, files, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to configure storage")
	}

	apiKey, err := credentials.NewStore(runner).ResolveGeminiAPIKey(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load gemini api key from store")
	}
	client, err := genai.NewClient(genai.Options{
		APIKey:  apiKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}
	if client.Synthetic() {
		logger.Warn().Msg("gemini api key missing, using synthetic generation")
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	adapter := media.NewAdapter(client, blobs, cfg.ArtifactBucket, logger)
	historyRepo := repo.NewHistoryRepository(runner)
	recorder := history.NewRecorder(historyRepo, blobs, cfg.MetadataBucket, logger)
	orch := orchestrator.New(orchestrator.Deps{
		Builder:   generation.NewBuilder(cfg.DefaultImageModel, cfg.DefaultVideoModel),
		Submitter: adapter,
		Checker:   adapter,
		Recorder:  recorder,
		Tracker:   repo.NewOperationRepository(runner, "api-"+uuid.NewString()),
		Metrics:   orchestrator.NewMetrics(registry),
		Logger:    logger,
	})

	app := &handlers.App{
		Generations:  orch,
		History:      historyRepo,
		Blobs:        blobs,
		DB:           dbpool,
		SignedURLTTL: cfg.SignedURLTTL,
		Logger:       logger,
	}
	if files != nil {
		app.Files = files
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   generation.DefaultLocale,
		Geo:             geo,
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Stop polling without marking the operation finished so the resume
	// worker picks it up once its heartbeat goes stale.
	orch.Halt()
	waitRecorder(recorder, 10*time.Second)
	if c, ok := geo.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	logger.Info().Msg("server stopped")
}

func waitRecorder(r *history.Recorder, limit time.Duration) {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(limit):
	}
}
