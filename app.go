package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infortic-scraper/config"
	"infortic-scraper/fetcher"
	"infortic-scraper/models"
	"infortic-scraper/runner"
	"infortic-scraper/scraper"
	"infortic-scraper/scraper/beasiswa"
	"infortic-scraper/scraper/lomba"
	"infortic-scraper/services"
	"infortic-scraper/storage"
	"infortic-scraper/utils"
)

// recordFetcher is implemented by backends that can read a table back.
type recordFetcher interface {
	FetchAll(ctx context.Context, table string) ([]models.Record, error)
}

// app holds everything one CLI invocation wires together.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backend  storage.Backend
	store    *storage.RecordStore
	registry *scraper.Registry
	runner   *runner.Runner
	insights *services.InsightService
	archive  *storage.CSVWriter
	metrics  *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	metrics := prometheus.NewRegistry()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store := storage.NewRecordStore(backend, storage.Options{
		Retry: utils.RetryConfig{
			MaxAttempts: cfg.InsertMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		Logger:  logger,
		Metrics: storage.NewMetrics(metrics),
	})

	var search *beasiswa.SearchClient
	if cfg.SearchEnabled() {
		search, err = beasiswa.NewSearchClient(cfg.GoogleAPIKey, cfg.GoogleCSEID, cfg.BackendTimeout, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		store:    store,
		registry: newRegistry(cfg, logger, search),
		insights: services.NewInsightService(logger),
		metrics:  metrics,
	}

	var archive storage.RawRecordWriter
	if cfg.RawCSVPath != "" {
		a.archive, err = storage.NewCSVWriter(cfg.RawCSVPath, 0)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		archive = a.archive
	}

	a.runner = runner.New(runner.Config{
		Registry:   a.registry,
		Store:      store,
		NewSession: a.newSession,
		Cleaner:    services.NewCleaner(logger),
		Insights:   a.insights,
		Archive:    archive,
		Metrics:    runner.NewMetrics(metrics),
		Logger:     logger,
	})
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase REST backend", slog.String("url", cfg.SupabaseURL))
		return storage.NewPostgRESTBackend(cfg.SupabaseURL, cfg.SupabaseKey, cfg.BackendTimeout), nil
	case config.BackendPostgres:
		logger.Info("using PostgreSQL backend", slog.String("host", cfg.PostgresHost), slog.String("db", cfg.PostgresDB))
		return storage.OpenSQLBackend(ctx, storage.DialectPostgres, cfg.DSN(), logger)
	case config.BackendSQLite:
		logger.Info("using SQLite backend", slog.String("path", cfg.SQLitePath))
		return storage.OpenSQLBackend(ctx, storage.DialectSQLite, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newRegistry binds every bundled scraper to its table. cfg may be nil,
// in which case scrapers use their defaults.
func newRegistry(cfg *config.Config, logger *slog.Logger, search *beasiswa.SearchClient) *scraper.Registry {
	var timeout, delay time.Duration
	concurrency := 1
	if cfg != nil {
		timeout = cfg.ScraperTimeout
		delay = cfg.RateLimit
		concurrency = cfg.MaxConcurrency
	}
	return scraper.NewRegistry(
		lomba.New(lomba.Options{
			Timeout: timeout,
			Delay:   delay,
			Logger:  logger,
		}),
		beasiswa.New(beasiswa.Options{
			Delay:       delay,
			Search:      search,
			Concurrency: concurrency,
			RateLimit:   delay,
			Logger:      logger,
		}),
	)
}

func (a *app) newSession() (fetcher.Session, error) {
	return fetcher.NewSession(fetcher.Options{
		Engine:    a.cfg.BrowserEngine,
		Headless:  a.cfg.Headless,
		ChromeBin: a.cfg.ChromeBin,
		UserAgent: a.cfg.UserAgent,
		Timeout:   a.cfg.ScraperTimeout,
		Logger:    a.logger,
	}), nil
}

// tablesFor expands the CLI table argument.
func (a *app) tablesFor(arg string) ([]string, error) {
	if arg == "all" {
		return a.registry.Tables(), nil
	}
	if _, err := a.registry.Lookup(arg); err != nil {
		return nil, fmt.Errorf("%w (known tables: %v)", err, a.registry.Tables())
	}
	return []string{arg}, nil
}

// runAll runs every table in order and returns the summaries. It stops
// early only when ctx is cancelled.
func (a *app) runAll(ctx context.Context, tables []string, opts runner.Options) []*models.RunSummary {
	summaries := make([]*models.RunSummary, 0, len(tables))
	for _, table := range tables {
		summary, err := a.runner.Run(ctx, table, opts)
		summaries = append(summaries, summary)
		if err == nil && opts.Mode != runner.CleanOnly {
			a.refreshInsights(ctx, summary)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return summaries
}

// refreshInsights recomputes a run's insights from the stored table when
// the backend can read it back. The scraped batch stays the fallback.
func (a *app) refreshInsights(ctx context.Context, summary *models.RunSummary) {
	rf, ok := a.backend.(recordFetcher)
	if !ok {
		return
	}
	rows, err := rf.FetchAll(ctx, summary.Table)
	if err != nil {
		a.logger.Warn("reading table for insights failed, using scraped batch",
			slog.String("table", summary.Table), slog.Any("error", err))
		return
	}
	summary.Insights = a.insights.Generate(summary.Table, models.Batch(rows))
}

// serveMetrics exposes the app registry on addr. The returned func shuts
// the server down.
func (a *app) serveMetrics(addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	a.logger.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Error("close csv archive", slog.Any("error", err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("close record store", slog.Any("error", err))
	}
}
