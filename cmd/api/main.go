package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/catalog"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/media"
	"studio/internal/providers"
	"studio/internal/providers/ark"
	"studio/internal/providers/google"
	"studio/internal/runner"
	"studio/internal/storage"
	"studio/internal/validation"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDataDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare data directory")
	}

	db, err := infra.OpenDB(ctx, cfg.DBPath(), cfg.RunnerConcurrency+4)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	applied, err := infra.Migrate(ctx, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Int("applied", applied).Str("path", cfg.DBPath()).Msg("database ready")

	sqlRunner := infra.NewSQLRunner(db, logger)
	jobs := repo.NewJobRepository(sqlRunner)
	assets := repo.NewAssetRepository(sqlRunner)
	jobAssets := repo.NewJobAssetRepository(sqlRunner)
	creds := credentials.NewStore(repo.NewSettingsRepository(sqlRunner))

	models, err := catalog.Load(cfg.ModelCatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load model catalog")
	}

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open asset store")
	}
	prober := &media.VideoProber{Path: cfg.FFProbePath}

	registry := providers.NewRegistry(
		google.New(google.Options{
			BaseURL:       cfg.GeminiBaseURL,
			VertexBaseURL: cfg.VertexBaseURL,
			Logger:        &logger,
		}),
		ark.New(ark.Options{BaseURL: cfg.ArkBaseURL, Logger: &logger}),
	)

	jobRunner := runner.New(runner.Deps{
		Jobs:        jobs,
		Assets:      assets,
		JobAssets:   jobAssets,
		Models:      models,
		Providers:   registry,
		Credentials: creds,
		Store:       store,
		Prober:      prober,
		Logger:      logger,
	}, runner.Options{
		Concurrency:  cfg.RunnerConcurrency,
		PollInterval: cfg.VideoPollInterval,
		MaxPolls:     cfg.VideoMaxPolls,
		Locale:       cfg.Locale,
		GCSEndpoint:  cfg.GCSEndpoint,
	})

	failed, requeued, err := jobRunner.RecoverOnStartup(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to recover jobs")
	}
	logger.Info().Int("failed", failed).Int("requeued", requeued).Msg("jobs recovered")

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := jobRunner.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("runner stopped with error")
		}
	}()

	app := &handlers.App{
		DB:             db,
		Jobs:           jobs,
		Assets:         assets,
		JobAssets:      jobAssets,
		Models:         models,
		Credentials:    creds,
		Store:          store,
		Validator:      validation.New(models, creds, assets),
		Runner:         jobRunner,
		Prober:         prober,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMin:    cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router, logger)
	if err := server.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("failed to bind http port")
	}

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Serve(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("runner did not stop before shutdown deadline")
	}
	logger.Info().Msg("server stopped")
}
