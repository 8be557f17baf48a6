package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"infortic-scraper/config"
	"infortic-scraper/runner"
	"infortic-scraper/scraper"
	"infortic-scraper/utils"
)

var (
	runWithCleaning bool
	cleanOnly       bool
	startPage       int
	maxPages        int
	verbose         bool
	metricsAddr     string
	rawCSVDir       string
)

var rootCmd = &cobra.Command{
	Use:   "infortic-scraper <table|all>",
	Short: "Scrapes competitions and scholarships into the Infortic database.",
	Long: `Runs the scraper bound to a table (or every scraper with "all"), then
cleans and inserts the extracted records into the configured store.

Use --clean-only once followed by several insert-only runs with distinct
page ranges to load a table in parallel batches.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runScrape,
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Lists the tables that have a registered scraper.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range newRegistry(nil, nil, nil).Tables() {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&runWithCleaning, "run-with-cleaning", false, "empty the table right before inserting the new batch")
	flags.BoolVar(&cleanOnly, "clean-only", false, "empty the table and exit without scraping")
	flags.IntVar(&startPage, "start-page", 1, "first listing page to scrape")
	flags.IntVar(&maxPages, "max-pages", 1, "number of listing pages to scrape")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringVar(&rawCSVDir, "raw-csv", "", "archive every raw batch as <dir>/<table>_raw.csv")
	rootCmd.MarkFlagsMutuallyExclusive("run-with-cleaning", "clean-only")

	rootCmd.AddCommand(tablesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode, err := runner.ModeFromFlags(runWithCleaning, cleanOnly)
	if err != nil {
		return err
	}
	if startPage < 1 || maxPages < 1 {
		return fmt.Errorf("--start-page and --max-pages must be at least 1")
	}

	cfg, dotenv := config.Load()
	if rawCSVDir != "" {
		cfg.RawCSVPath = rawCSVDir
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	level := utils.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	logger := utils.NewLogger(os.Stdout, level)
	if !dotenv {
		logger.Info("no .env file found, falling back to system env vars")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tables, err := a.tablesFor(args[0])
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		shutdown := a.serveMetrics(cfg.MetricsAddr)
		defer shutdown()
	}

	logger.Info("=== Infortic scraper starting ===",
		slog.Any("tables", tables),
		slog.String("mode", mode.String()),
		slog.String("backend", cfg.StoreBackend),
		slog.Int("start_page", startPage),
		slog.Int("max_pages", maxPages),
	)

	summaries := a.runAll(ctx, tables, runner.Options{
		Mode:  mode,
		Pages: scraper.PageRange{Start: startPage, Max: maxPages},
	})
	a.insights.Print(cmd.OutOrStdout(), summaries)

	failed := 0
	for _, s := range summaries {
		if !s.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(tables))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
