package services

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"infortic-scraper/models"
	"infortic-scraper/utils"
)

// trackedFields are the optional fields whose absence is worth reporting.
var trackedFields = []string{"registration_url", "deadline_date", "location", "image_url", "poster_url"}

type InsightService struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewInsightService(logger *slog.Logger) *InsightService {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &InsightService{logger: logger, now: time.Now}
}

// Generate builds an InsightReport for a batch scraped into table.
func (s *InsightService) Generate(table string, batch models.Batch) *models.InsightReport {
	report := &models.InsightReport{
		Table:             table,
		RecordsByLocation: make(map[string]int),
		MissingFields:     make(map[string]int),
	}
	if len(batch) == 0 {
		return report
	}
	report.TotalRecords = len(batch)

	present := make(map[string]bool)
	for _, r := range batch {
		for k := range r {
			present[k] = true
		}
	}

	today := s.now().UTC().Format("2006-01-02")
	var upcoming []models.Record

	for _, r := range batch {
		if loc := r.String("location"); loc != "" {
			report.RecordsByLocation[loc]++
		}
		for _, f := range trackedFields {
			if present[f] && r.String(f) == "" {
				report.MissingFields[f]++
			}
		}
		// ISO dates compare correctly as strings.
		if d := r.String("deadline_date"); d != "" && d >= today {
			upcoming = append(upcoming, r)
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].String("deadline_date") < upcoming[j].String("deadline_date")
	})
	if len(upcoming) > 5 {
		upcoming = upcoming[:5]
	}
	report.UpcomingDeadlines = upcoming

	s.logger.Debug("insights generated",
		slog.String("table", table),
		slog.Int("records", report.TotalRecords),
		slog.Int("upcoming", len(upcoming)),
	)
	return report
}

// Print renders run summaries, followed by the insight report of every
// successful run, as tables on w.
func (s *InsightService) Print(w io.Writer, summaries []*models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Scrape runs")
	t.AppendHeader(table.Row{"Table", "Mode", "Phase", "Scraped", "Inserted", "Skipped", "Failed", "Duplicates", "Duration", "Error"})

	for _, sum := range summaries {
		var inserted, skipped, failed, dups int
		if sum.Insert != nil {
			inserted, skipped, failed, dups = sum.Insert.Inserted, sum.Insert.Skipped, sum.Insert.Failed, sum.Insert.Deduplicated
		}
		errText := ""
		if sum.Err != nil {
			errText = truncate(sum.Err.Error(), 60)
		}
		t.AppendRow(table.Row{
			sum.Table, sum.Mode, sum.Phase, sum.Scraped,
			inserted, skipped, failed, dups,
			sum.Duration.Round(time.Millisecond), errText,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	for _, sum := range summaries {
		if sum.Insights != nil && sum.Insights.TotalRecords > 0 {
			s.printInsights(w, sum.Insights)
		}
	}
}

func (s *InsightService) printInsights(w io.Writer, r *models.InsightReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s: %d records", r.Table, r.TotalRecords))
	t.SetStyle(table.StyleRounded)

	if len(r.UpcomingDeadlines) > 0 {
		t.AppendSeparator()
		t.AppendRow(table.Row{text.Bold.Sprint("Nearest deadlines"), ""})
		for _, rec := range r.UpcomingDeadlines {
			t.AppendRow(table.Row{truncate(rec.String("title"), 50), rec.String("deadline_date")})
		}
	}

	if len(r.RecordsByLocation) > 0 {
		type locCount struct {
			loc   string
			count int
		}
		var locs []locCount
		for loc, cnt := range r.RecordsByLocation {
			locs = append(locs, locCount{loc, cnt})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].count != locs[j].count {
				return locs[i].count > locs[j].count
			}
			return locs[i].loc < locs[j].loc
		})
		if len(locs) > 5 {
			locs = locs[:5]
		}
		t.AppendSeparator()
		t.AppendRow(table.Row{text.Bold.Sprint("Top locations"), ""})
		for _, lc := range locs {
			t.AppendRow(table.Row{truncate(lc.loc, 50), fmt.Sprintf("%s (%d)", strings.Repeat("█", min(lc.count, 20)), lc.count)})
		}
	}

	if len(r.MissingFields) > 0 {
		fields := make([]string, 0, len(r.MissingFields))
		for f := range r.MissingFields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		t.AppendSeparator()
		t.AppendRow(table.Row{text.Bold.Sprint("Missing fields"), ""})
		for _, f := range fields {
			t.AppendRow(table.Row{f, r.MissingFields[f]})
		}
	}

	t.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
