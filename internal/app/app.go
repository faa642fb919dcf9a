// Package app wires the configured storage, catalog, user resolver and
// enrichment pipeline that the commands share.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	bq "github.com/dvloznov/effortless/internal/bigquery"
	"github.com/dvloznov/effortless/internal/catalog"
	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/enrichment"
	"github.com/dvloznov/effortless/internal/gcsuploader"
	infraBQ "github.com/dvloznov/effortless/internal/infra/bigquery"
	"github.com/dvloznov/effortless/internal/ingest"
	"github.com/dvloznov/effortless/internal/insights"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/dvloznov/effortless/internal/pipeline"
	"github.com/dvloznov/effortless/internal/prefs"
)

// Data source names reported by the health check.
const (
	SourceBigQuery = "bigquery"
	SourceCSV      = "csv"
)

// App holds the services built from a Config.
type App struct {
	Config     config.Config
	Repo       bq.Repository
	DataSource string
	Catalog    *catalog.Store
	Users      *prefs.Resolver
	Dispatcher dispatch.Dispatcher
	Processor  *pipeline.BatchProcessor
	Enricher   *pipeline.Enricher

	// Dataset is set when the data source is CSV.
	Dataset *ingest.Dataset

	// Objects is nil unless a GCS client was needed.
	Objects *gcsuploader.Client

	closers []func() error
}

// New builds the services for cfg. The reward catalog is loaded once before
// New returns; call WatchCatalog to keep it fresh.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{Config: cfg, Catalog: catalog.NewStore()}

	if err := a.openRepository(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	if _, err := a.Catalog.Refresh(ctx, a.Repo); err != nil {
		a.Close()
		return nil, fmt.Errorf("New: loading reward catalog: %w", err)
	}

	tables := enrichment.DefaultTables()
	if cfg.Patterns.File != "" {
		t, err := enrichment.LoadTables(cfg.Patterns.File)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		tables = t
	}

	provider := ""
	if cfg.Mailgun.Domain != "" {
		provider = "mailgun"
	}
	a.Dispatcher = dispatch.New(ctx, dispatch.Config{
		Provider:      provider,
		MailgunDomain: cfg.Mailgun.Domain,
		MailgunAPIKey: cfg.Mailgun.APIKey,
		SenderEmail:   cfg.Mailgun.Sender,
		SenderName:    cfg.Mailgun.SenderName,
		Timeout:       cfg.Mailgun.Timeout,
	})

	a.Users = prefs.NewResolver(a.Repo, cfg.Prefs.CacheTTL)
	a.Processor = pipeline.NewBatchProcessor(
		enrichment.NewEngine(tables),
		a.Catalog,
		pipeline.WithWorkers(cfg.Engine.Workers),
		pipeline.WithDispatcher(a.Dispatcher),
	)
	a.Enricher = &pipeline.Enricher{
		Transactions: a.Repo,
		Users:        a.Users,
		Processor:    a.Processor,
	}

	log.Info().
		Str("data_source", a.DataSource).
		Str("catalog_version", a.Catalog.Current().Version()).
		Int("rewards", a.Catalog.Current().Len()).
		Int("workers", cfg.Engine.Workers).
		Msg("Services initialized")

	return a, nil
}

func (a *App) openRepository(ctx context.Context) error {
	if a.Config.UseBigQuery() {
		repo, err := infraBQ.NewBigQueryRepository(ctx, a.Config.BigQuery.ProjectID, a.Config.BigQuery.Dataset)
		if err != nil {
			return err
		}
		a.Repo = repo
		a.DataSource = SourceBigQuery
		a.closers = append(a.closers, repo.Close)
		return nil
	}

	var store *gcsuploader.Client
	if gcsuploader.IsURI(a.Config.Data.Dir) {
		c, err := a.ObjectStore(ctx)
		if err != nil {
			return err
		}
		store = c
	}

	d, err := loadDataset(ctx, a.Config.Data.Dir, store)
	if err != nil {
		return err
	}
	a.Dataset = d
	a.Repo = d
	a.DataSource = SourceCSV
	return nil
}

// loadDataset keeps a nil client from becoming a non-nil ObjectStore.
func loadDataset(ctx context.Context, dir string, store *gcsuploader.Client) (*ingest.Dataset, error) {
	if store == nil {
		return ingest.LoadDataset(ctx, dir, nil)
	}
	return ingest.LoadDataset(ctx, dir, store)
}

// ObjectStore returns the GCS client, creating it on first use.
func (a *App) ObjectStore(ctx context.Context) (*gcsuploader.Client, error) {
	if a.Objects != nil {
		return a.Objects, nil
	}
	c, err := gcsuploader.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("ObjectStore: %w", err)
	}
	a.Objects = c
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// WatchCatalog refreshes the reward catalog from the repository until ctx
// is done. It blocks.
func (a *App) WatchCatalog(ctx context.Context) {
	interval := a.Config.Engine.SnapshotRefresh
	if interval <= 0 {
		return
	}
	a.Catalog.Watch(ctx, a.Repo, interval)
}

// Summarizer returns the Gemini summarizer when an API key or a Google Cloud
// project is configured, and the fixed-text summarizer otherwise.
func (a *App) Summarizer(ctx context.Context) insights.Summarizer {
	log := logger.FromContext(ctx)
	if a.Config.Insights.APIKey == "" && !a.Config.UseBigQuery() {
		log.Info().Msg("No model configured, AI insights use the fallback summary")
		return insights.StaticSummarizer{}
	}

	s, err := insights.NewGeminiSummarizer(ctx, a.Config.Insights.APIKey, a.Config.Insights.Model)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Gemini client, AI insights use the fallback summary")
		return insights.StaticSummarizer{}
	}
	return s
}

// Close releases the clients opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Logger builds the process logger at the configured level.
func Logger(cfg config.Config) zerolog.Logger {
	return logger.NewWithLevel(cfg.Log.Level)
}

// ShutdownTimeout bounds graceful shutdown of servers and queues.
const ShutdownTimeout = 30 * time.Second
