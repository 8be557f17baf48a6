package models

// CleanResult is the outcome of one table-clear attempt.
type CleanResult struct {
	Table        string
	Success      bool
	StatusCode   int
	RowsAffected int
	Err          error
}

// RowError describes a single row that could not be inserted.
type RowError struct {
	Index   int
	Key     string
	Message string
}

// InsertResult aggregates the outcome of one insertion, across retries.
type InsertResult struct {
	Table     string
	Requested int
	Inserted  int
	// Skipped counts rows the backend ignored because they already exist.
	Skipped int
	Failed  int
	// Deduplicated counts in-batch duplicates dropped before insertion.
	Deduplicated int
	RowErrors    []RowError
	// Clean is the outcome of the clean that preceded the insert, if any.
	Clean *CleanResult
}

// HasFailures reports whether any row failed.
func (r *InsertResult) HasFailures() bool {
	return r != nil && r.Failed > 0
}
