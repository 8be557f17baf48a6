// Package runner drives one scraper from page fetching to storage.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
	"infortic-scraper/scraper"
	"infortic-scraper/services"
	"infortic-scraper/storage"
	"infortic-scraper/utils"
)

// ErrNoRecords stops a run whose scraper extracted nothing. Storing an
// empty batch after a clean would leave the table empty.
var ErrNoRecords = fmt.Errorf("%w: scraper returned no records", storage.ErrInvalidInput)

// Mode selects what a run does with the target table.
type Mode int

const (
	// SkipClean inserts without touching existing rows.
	SkipClean Mode = iota
	// CleanFirst empties the table right before inserting the new batch.
	CleanFirst
	// CleanOnly empties the table and scrapes nothing.
	CleanOnly
)

func (m Mode) String() string {
	switch m {
	case SkipClean:
		return "skip-clean"
	case CleanFirst:
		return "clean-first"
	case CleanOnly:
		return "clean-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFromFlags maps the CLI flags to a Mode.
func ModeFromFlags(runWithCleaning, cleanOnly bool) (Mode, error) {
	switch {
	case runWithCleaning && cleanOnly:
		return 0, errors.New("--run-with-cleaning and --clean-only are mutually exclusive")
	case cleanOnly:
		return CleanOnly, nil
	case runWithCleaning:
		return CleanFirst, nil
	default:
		return SkipClean, nil
	}
}

// Options selects the mode and page range of one run.
type Options struct {
	Mode  Mode
	Pages scraper.PageRange
}

// Store is the part of storage.RecordStore a run needs.
type Store interface {
	Clean(ctx context.Context, table string) (*models.CleanResult, error)
	Insert(ctx context.Context, table string, rows models.Batch, cleanFirst bool) (*models.InsertResult, error)
}

// Config wires a Runner.
type Config struct {
	Registry *scraper.Registry
	Store    Store
	// NewSession opens the fetch session for one run.
	NewSession func() (fetcher.Session, error)
	Cleaner    *services.Cleaner
	Insights   *services.InsightService
	// Archive receives every scraped batch before storage. Optional.
	Archive storage.RawRecordWriter
	Metrics *Metrics
	Logger  *slog.Logger
}

// Runner executes scrapers against a store.
type Runner struct {
	registry   *scraper.Registry
	store      Store
	newSession func() (fetcher.Session, error)
	cleaner    *services.Cleaner
	insights   *services.InsightService
	archive    storage.RawRecordWriter
	metrics    *Metrics
	logger     *slog.Logger
}

// New creates a Runner. Cleaner and Insights default to fresh services.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	cleaner := cfg.Cleaner
	if cleaner == nil {
		cleaner = services.NewCleaner(logger)
	}
	insights := cfg.Insights
	if insights == nil {
		insights = services.NewInsightService(logger)
	}
	return &Runner{
		registry:   cfg.Registry,
		store:      cfg.Store,
		newSession: cfg.NewSession,
		cleaner:    cleaner,
		insights:   insights,
		archive:    cfg.Archive,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Run executes one run for table. The summary is never nil; its Err and
// Phase match the returned error and the phase the run ended in.
func (r *Runner) Run(ctx context.Context, table string, opts Options) (*models.RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.With(
		slog.String("run_id", runID),
		slog.String("table", table),
		slog.String("mode", opts.Mode.String()),
	)
	summary := &models.RunSummary{RunID: runID, Table: table, Mode: opts.Mode.String()}
	state := NewState()

	log.Info("run started")
	err := r.run(ctx, log, state, summary, table, opts)

	summary.Duration = time.Since(start)
	summary.Err = err
	if err != nil {
		failedAt := state.Fail()
		summary.Phase = failedAt.String()
		attrs := []any{
			slog.String("phase", summary.Phase),
			slog.Int("scraped", summary.Scraped),
			slog.Any("error", err),
			utils.Since(start),
		}
		if summary.Insert != nil {
			attrs = append(attrs,
				slog.Int("inserted", summary.Insert.Inserted),
				slog.Int("failed", summary.Insert.Failed),
			)
		}
		log.Error("run failed", attrs...)
	} else {
		summary.Phase = state.Current().String()
		log.Info("run finished", slog.Int("scraped", summary.Scraped), utils.Since(start))
	}

	r.metrics.observeRun(table, summary.Mode, summary.Duration, err)
	return summary, err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, state *State, summary *models.RunSummary, table string, opts Options) error {
	if opts.Mode == CleanOnly {
		return r.cleanOnly(ctx, log, state, summary, table)
	}

	s, err := r.registry.Lookup(table)
	if err != nil {
		return err
	}
	summary.Scraper = s.Name()

	batch, err := r.scrape(ctx, log, state, s, opts.Pages)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", s.Name(), err)
	}
	summary.Scraped = len(batch)
	r.metrics.addScraped(table, len(batch))
	if len(batch) == 0 {
		return ErrNoRecords
	}

	if r.archive != nil {
		if err := r.archive.WriteRaw(table, batch); err != nil {
			log.Warn("raw archive failed", slog.Any("error", err))
		}
	}

	batch = r.cleaner.Clean(batch)
	summary.Insights = r.insights.Generate(table, batch)

	// The store cleans and inserts in one call, so the phases are replayed
	// from its outcome. A batch it rejects as invalid never left Extracting.
	cleanFirst := opts.Mode == CleanFirst
	result, err := r.store.Insert(ctx, table, batch, cleanFirst)
	summary.Insert = result
	if err != nil && errors.Is(err, storage.ErrInvalidInput) {
		return err
	}
	if cleanFirst {
		must(state.To(Cleaning))
	}
	var cleanErr *storage.CleanError
	if errors.As(err, &cleanErr) {
		summary.Clean = &cleanErr.Result
		return err
	}
	if result != nil && result.Clean != nil {
		summary.Clean = result.Clean
		log.Info("table cleaned", slog.Int("rows_deleted", result.Clean.RowsAffected))
	}
	must(state.To(Inserting))
	if err != nil {
		return err
	}

	if result.HasFailures() {
		log.Warn("some rows were not inserted",
			slog.Int("failed", result.Failed),
			slog.Int("inserted", result.Inserted),
		)
	}
	must(state.To(Done))
	return nil
}

func (r *Runner) cleanOnly(ctx context.Context, log *slog.Logger, state *State, summary *models.RunSummary, table string) error {
	must(state.To(Cleaning))
	result, err := r.store.Clean(ctx, table)
	summary.Clean = result
	if err != nil {
		return err
	}
	log.Info("table cleaned", slog.Int("rows_deleted", result.RowsAffected))
	must(state.To(Done))
	return nil
}

// scrape runs s inside a fresh session. The session is closed on every
// path before the batch is handed on.
func (r *Runner) scrape(ctx context.Context, log *slog.Logger, state *State, s scraper.Scraper, pages scraper.PageRange) (models.Batch, error) {
	must(state.To(FetchingPages))

	session, err := r.newSession()
	if err != nil {
		return nil, fmt.Errorf("open fetch session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("closing fetch session failed", slog.Any("error", cerr))
		}
	}()

	batch, err := s.Scrape(ctx, &trackedSession{Session: session, state: state}, pages)
	if err != nil {
		return nil, err
	}
	if state.Current() == FetchingPages {
		must(state.To(Extracting))
	}
	return batch, nil
}

// trackedSession moves the run between FetchingPages and Extracting
// around every fetch.
type trackedSession struct {
	fetcher.Session
	state *State
}

func (t *trackedSession) FetchDynamic(ctx context.Context, url string, opts fetcher.DynamicOptions) (*goquery.Document, error) {
	t.begin()
	doc, err := t.Session.FetchDynamic(ctx, url, opts)
	t.end(err)
	return doc, err
}

func (t *trackedSession) FetchStatic(ctx context.Context, url string) (string, error) {
	t.begin()
	html, err := t.Session.FetchStatic(ctx, url)
	t.end(err)
	return html, err
}

func (t *trackedSession) begin() {
	if t.state.Current() == Extracting {
		_ = t.state.To(FetchingPages)
	}
}

func (t *trackedSession) end(err error) {
	if err == nil && t.state.Current() == FetchingPages {
		_ = t.state.To(Extracting)
	}
}

// must panics on a transition the runner itself got wrong.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
