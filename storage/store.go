package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"infortic-scraper/models"
	"infortic-scraper/utils"
)

// Options configures a RecordStore.
type Options struct {
	// Tables known to the store. Defaults to models.DefaultTables().
	Tables  map[string]models.TableSpec
	Retry   utils.RetryConfig
	Logger  *slog.Logger
	Metrics *Metrics
}

// RecordStore runs the clean / dedupe / insert protocol against a Backend.
// It owns the backend and closes it in Close.
type RecordStore struct {
	backend Backend
	tables  map[string]models.TableSpec
	retry   utils.RetryConfig
	logger  *slog.Logger
	metrics *Metrics
}

// NewRecordStore wraps backend with the given options.
func NewRecordStore(backend Backend, opts Options) *RecordStore {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = models.DefaultTables()
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &RecordStore{
		backend: backend,
		tables:  tables,
		retry:   opts.Retry,
		logger:  logger.With(slog.String("component", "record_store")),
		metrics: opts.Metrics,
	}
}

// Tables returns the table specs the store accepts.
func (s *RecordStore) Tables() map[string]models.TableSpec {
	return s.tables
}

func (s *RecordStore) spec(table string) (models.TableSpec, error) {
	spec, ok := s.tables[table]
	if !ok {
		return models.TableSpec{}, fmt.Errorf("%w: unknown table %q", ErrInvalidInput, table)
	}
	if spec.Name == "" {
		spec.Name = table
	}
	if spec.IDColumn == "" {
		spec.IDColumn = "id"
	}
	return spec, nil
}

// Clean deletes every row of table whose identifier is not null.
//
// Any failure is returned as a *CleanError: an API error in the response,
// a status of 400 or above, or a failed call. The status code, raw payload
// and error field are logged before the error is returned. Cleaning is
// never retried.
func (s *RecordStore) Clean(ctx context.Context, table string) (*models.CleanResult, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}

	where := NotNull(spec.IDColumn)
	log := s.logger.With(slog.String("phase", "clean"), slog.String("table", spec.Name))
	log.Info("cleaning table", slog.String("predicate", where.String()))

	start := time.Now()
	resp, callErr := s.backend.Delete(ctx, spec.Name, where)
	result := models.CleanResult{Table: spec.Name}

	if callErr != nil {
		cause := Classify(callErr)
		result.Err = cause
		log.Error("clean call failed",
			slog.Int("status_code", 0),
			slog.String("response", ""),
			slog.Any("error", cause),
			utils.Since(start),
		)
		return s.cleanFailed(spec.Name, result)
	}

	result.StatusCode = resp.StatusCode
	log.Info("clean response",
		slog.Int("status_code", resp.StatusCode),
		slog.String("response", string(resp.Raw)),
		slog.Any("error_field", resp.Error),
		utils.Since(start),
	)

	if resp.Failed() {
		cause := &StructuralError{StatusCode: resp.StatusCode, API: resp.Error}
		if resp.Error == nil {
			cause.Err = fmt.Errorf("delete operation failed with status code: %d", resp.StatusCode)
		}
		result.Err = cause
		log.Error("clean rejected by backend",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response", string(resp.Raw)),
			slog.Any("error", cause),
		)
		return s.cleanFailed(spec.Name, result)
	}

	result.Success = true
	result.RowsAffected = resp.Affected
	s.metrics.incClean(spec.Name, "success")
	log.Info("table cleaned", slog.Int("rows_deleted", resp.Affected))
	return &result, nil
}

func (s *RecordStore) cleanFailed(table string, result models.CleanResult) (*models.CleanResult, error) {
	s.metrics.incClean(table, "failure")
	s.metrics.incError("clean", result.Err)
	return &result, &CleanError{Table: table, Result: result, Err: result.Err}
}

// Insert writes rows into table, optionally cleaning it first.
//
// The batch is validated and deduplicated before any I/O. A failed clean
// aborts the insert. Transient insert failures are retried with capped
// exponential backoff; structural failures are returned at once. When
// nothing was inserted the result is returned together with
// ErrNothingInserted.
func (s *RecordStore) Insert(ctx context.Context, table string, rows models.Batch, cleanFirst bool) (*models.InsertResult, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.metrics.incError("insert", ErrInvalidInput)
		return nil, fmt.Errorf("%w: refusing to insert an empty batch into %q", ErrInvalidInput, spec.Name)
	}

	log := s.logger.With(slog.String("phase", "insert"), slog.String("table", spec.Name))

	unique, indexes, keyErrs := dedupe(spec, rows)
	result := &models.InsertResult{
		Table:        spec.Name,
		Requested:    len(rows),
		Failed:       len(keyErrs),
		Deduplicated: len(rows) - len(unique) - len(keyErrs),
		RowErrors:    keyErrs,
	}
	if len(unique) == 0 {
		s.metrics.incError("insert", ErrInvalidInput)
		return nil, fmt.Errorf("%w: none of the %d records for %q has a natural key", ErrInvalidInput, len(rows), spec.Name)
	}
	if result.Deduplicated > 0 || len(keyErrs) > 0 {
		log.Info("batch deduplicated",
			slog.Int("requested", len(rows)),
			slog.Int("unique", len(unique)),
			slog.Int("duplicates", result.Deduplicated),
			slog.Int("keyless", len(keyErrs)),
		)
	}

	if cleanFirst {
		cleaned, err := s.Clean(ctx, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("cannot proceed with data insertion due to cleaning failure: %w", err)
		}
		result.Clean = cleaned
	}

	start := time.Now()
	resp, attempts, err := s.insertWithRetry(ctx, spec, unique)
	if err != nil {
		s.metrics.incError("insert", err)
		s.metrics.addRows(spec.Name, "failed", len(unique))
		log.Error("insert failed",
			slog.Int("rows", len(unique)),
			slog.Any("error", err),
			utils.Since(start),
		)
		return nil, err
	}

	for _, re := range resp.RowErrors {
		if re.Index >= 0 && re.Index < len(indexes) {
			re.Index = indexes[re.Index]
		}
		result.RowErrors = append(result.RowErrors, re)
	}
	result.Inserted = resp.Affected
	result.Failed += len(resp.RowErrors)
	if ignored := len(unique) - resp.Affected - len(resp.RowErrors); ignored > 0 {
		if attempts > 1 {
			// A timed-out attempt may have committed before the retry;
			// the retry then sees those rows as existing.
			result.Inserted += ignored
			log.Warn("rows ignored after a retried insert counted as stored",
				slog.Int("rows", ignored),
				slog.Int("attempts", attempts),
			)
		} else {
			result.Skipped = ignored
		}
	}

	s.metrics.addRows(spec.Name, "inserted", result.Inserted)
	s.metrics.addRows(spec.Name, "skipped", result.Skipped)
	s.metrics.addRows(spec.Name, "failed", result.Failed)

	log.Info("insert finished",
		slog.Int("requested", result.Requested),
		slog.Int("inserted", result.Inserted),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("status_code", resp.StatusCode),
		utils.Since(start),
	)
	for _, re := range result.RowErrors {
		log.Warn("row rejected", slog.Int("index", re.Index), slog.String("key", re.Key), slog.String("error", re.Message))
	}

	if result.Inserted == 0 {
		s.metrics.incError("insert", ErrNothingInserted)
		return result, fmt.Errorf("%w: 0 of %d records were stored in %q", ErrNothingInserted, len(unique), spec.Name)
	}
	return result, nil
}

// insertWithRetry also reports how many attempts were made.
func (s *RecordStore) insertWithRetry(ctx context.Context, spec models.TableSpec, rows []models.Record) (*Response, int, error) {
	retry := s.retry
	retry.Logger = s.logger
	retry.Retryable = IsTransient
	retry.OnRetry = func(int, error) { s.metrics.incRetry() }

	var resp *Response
	attempts := 0
	err := retry.Do(ctx, "insert into "+spec.Name, func(ctx context.Context) error {
		attempts++
		r, err := s.backend.InsertMany(ctx, spec, rows)
		if err != nil {
			return Classify(err)
		}
		if r.Failed() {
			serr := &StructuralError{StatusCode: r.StatusCode, API: r.Error}
			if r.Error == nil {
				serr.Err = fmt.Errorf("insert operation failed with status code: %d", r.StatusCode)
			}
			return serr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// Close releases the backend.
func (s *RecordStore) Close() error {
	return s.backend.Close()
}
