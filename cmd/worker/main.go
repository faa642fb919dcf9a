package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/effortless/internal/app"
	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/jobs"
	"github.com/dvloznov/effortless/internal/jobs/inmemory"
	"github.com/dvloznov/effortless/internal/logger"
)

// userLister lists the users to schedule.
type userLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to a config file (or set EFFORTLESS_CONFIG)")
		interval   = flag.Duration("interval", 15*time.Minute, "Time between enrichment rounds")
		usersFlag  = flag.String("users", "", "Comma separated user ids to enrich (default: all users)")
		workers    = flag.Int("workers", 4, "Number of users enriched concurrently")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
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

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(*workers))

	log.Info().Dur("interval", *interval).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, jobs.NewEnrichHandler(jobs.FromEnricher(svc.Enricher))); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	only := splitIDs(*usersFlag)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		n, err := enqueueRound(ctx, svc.Repo, jobQueue, only)
		if err != nil {
			log.Error().Err(err).Msg("Failed to schedule enrichment round")
		} else {
			log.Info().Int("jobs", n).Msg("Enrichment round scheduled")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down worker service...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
			defer cancel()

			// Stop the queue and wait for in-flight jobs
			if err := jobQueue.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error during graceful shutdown")
			}
			if err := jobQueue.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close job queue")
			}

			log.Info().Msg("Worker service exited")
			return
		case <-ticker.C:
		}
	}
}

// enqueueRound publishes one enrichment job per user. When only is non-empty
// it restricts the round to those user ids.
func enqueueRound(ctx context.Context, users userLister, pub jobs.Publisher, only []string) (int, error) {
	all, err := users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("enqueueRound: listing users: %w", err)
	}

	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}

	n := 0
	for _, u := range all {
		if len(wanted) > 0 && !wanted[u.ID] {
			continue
		}
		if err := pub.PublishEnrichBatch(ctx, &jobs.EnrichBatchJob{UserID: u.ID, Source: "worker"}); err != nil {
			return n, fmt.Errorf("enqueueRound: user %s: %w", u.ID, err)
		}
		n++
	}
	return n, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
