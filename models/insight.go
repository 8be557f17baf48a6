package models

import "time"

// InsightReport summarises the contents of one scraped batch.
type InsightReport struct {
	Table        string
	TotalRecords int
	// RecordsByLocation counts records per normalised location.
	RecordsByLocation map[string]int
	// UpcomingDeadlines holds up to five records with the nearest deadline
	// that has not passed yet, soonest first.
	UpcomingDeadlines []Record
	// MissingFields counts records where a tracked field is empty.
	MissingFields map[string]int
}

// RunSummary is what one scraper run reports when it ends.
type RunSummary struct {
	RunID    string
	Scraper  string
	Table    string
	Mode     string
	Phase    string
	Scraped  int
	Clean    *CleanResult
	Insert   *InsertResult
	Insights *InsightReport
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the run finished without error.
func (s *RunSummary) Succeeded() bool {
	return s != nil && s.Err == nil
}
