package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/effortless/internal/api/handlers"
	"github.com/dvloznov/effortless/internal/api/middleware"
	"github.com/dvloznov/effortless/internal/app"
	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/jobs"
	"github.com/dvloznov/effortless/internal/jobs/inmemory"
	"github.com/dvloznov/effortless/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a config file (or set EFFORTLESS_CONFIG)")
		port       = flag.String("port", "", "HTTP server port, overrides http.port")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.HTTP.Port = *port
	}

	log := app.Logger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	go svc.WatchCatalog(ctx)

	// Enrichment jobs run in-process
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(2))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewEnrichHandler(jobs.FromEnricher(svc.Enricher))); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	router := &handlers.Router{
		Rewards: handlers.NewRewardsHandler(svc.Catalog, nil, log),
		Users: handlers.NewUsersHandler(handlers.UsersHandlerConfig{
			Users:        svc.Users,
			Transactions: svc.Repo,
			Catalog:      svc.Catalog,
			Summarizer:   svc.Summarizer(ctx),
			Window:       cfg.InsightsWindow(),
		}, log),
		Jobs:       handlers.NewJobsHandler(jobStore, jobQueue, svc.Users, log),
		DataSource: svc.DataSource,
	}

	handler := middleware.Chain(router.Handler(),
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Str("data_source", svc.DataSource).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
