package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"infortic-scraper/models"
	"infortic-scraper/utils"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

const insertBatchSize = 50

// Dialect captures what differs between the supported SQL databases.
type Dialect struct {
	Name   string
	Driver string
	Schema string
	// PingAttempts bounds the wait for a database that is still starting.
	PingAttempts int
	placeholder  func(n int) string
}

var (
	DialectPostgres = Dialect{
		Name:         "postgres",
		Driver:       "postgres",
		Schema:       postgresSchema,
		PingAttempts: 10,
		placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	DialectSQLite = Dialect{
		Name:         "sqlite",
		Driver:       "sqlite",
		Schema:       sqliteSchema,
		PingAttempts: 1,
		placeholder:  func(int) string { return "?" },
	}
)

// SQLBackend stores records in a SQL database through database/sql.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// OpenSQLBackend opens a connection, waits for the database to answer, runs
// schema migrations, and returns a ready-to-use backend.
func OpenSQLBackend(ctx context.Context, dialect Dialect, dsn string, logger *slog.Logger) (*SQLBackend, error) {
	if logger == nil {
		logger = utils.NopLogger()
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", dialect.Name, err)
	}
	if dialect.Name == DialectSQLite.Name {
		// One writer at a time; SQLite serialises writes anyway.
		db.SetMaxOpenConns(1)
	}

	ping := utils.RetryConfig{
		MaxAttempts: dialect.PingAttempts,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Second,
		Logger:      logger,
	}
	if err := ping.Do(ctx, dialect.Name+" ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", dialect.Name, err)
	}

	b := &SQLBackend{db: db, dialect: dialect, logger: logger}
	if err := b.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", dialect.Name, err)
	}
	return b, nil
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, b.dialect.Schema)
	return err
}

// Delete removes every row matching where.
func (b *SQLBackend) Delete(ctx context.Context, table string, where Predicate) (*Response, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), where.SQL())
	res, err := b.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: delete from %s: %w", b.dialect.Name, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: delete from %s: %w", b.dialect.Name, table, err)
	}
	return &Response{StatusCode: http.StatusOK, Affected: int(n)}, nil
}

// InsertMany inserts rows in batches inside one transaction. Rows that
// violate the conflict columns are skipped. When a batch fails it is
// replayed row by row so only the offending rows are reported.
func (b *SQLBackend) InsertMany(ctx context.Context, spec models.TableSpec, rows []models.Record) (*Response, error) {
	resp := &Response{StatusCode: http.StatusCreated}
	if len(rows) == 0 {
		return resp, nil
	}
	cols := models.Batch(rows).Columns()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", b.dialect.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := 0; i < len(rows); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := b.withSavepoint(ctx, tx, "batch", func() (int64, error) {
			return b.insertBatch(ctx, tx, spec, cols, rows[i:end])
		})
		if err == nil {
			resp.Affected += int(n)
			continue
		}
		if IsTransient(Classify(err)) {
			return nil, err
		}

		b.logger.Warn("batch insert failed, retrying row by row",
			slog.String("table", spec.Name),
			slog.Int("offset", i),
			slog.Int("rows", end-i),
			slog.Any("error", err),
		)
		for j := i; j < end; j++ {
			n, err := b.withSavepoint(ctx, tx, "row", func() (int64, error) {
				return b.insertBatch(ctx, tx, spec, cols, rows[j:j+1])
			})
			if err != nil {
				if IsTransient(Classify(err)) {
					return nil, err
				}
				key, _ := spec.Key(rows[j])
				resp.RowErrors = append(resp.RowErrors, models.RowError{Index: j, Key: key, Message: err.Error()})
				continue
			}
			resp.Affected += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", b.dialect.Name, err)
	}
	return resp, nil
}

// withSavepoint runs fn so that its failure leaves the surrounding
// transaction usable.
func (b *SQLBackend) withSavepoint(ctx context.Context, tx *sql.Tx, name string, fn func() (int64, error)) (int64, error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return 0, err
	}
	n, err := fn()
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return 0, fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *SQLBackend) insertBatch(ctx context.Context, tx *sql.Tx, spec models.TableSpec, cols []string, batch []models.Record) (int64, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*len(cols))

	for idx, r := range batch {
		base := idx * len(cols)
		placeholders := make([]string, len(cols))
		for c, col := range cols {
			placeholders[c] = b.dialect.placeholder(base + c + 1)
			valueArgs = append(valueArgs, r[col])
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}

	conflict := "ON CONFLICT DO NOTHING"
	if len(spec.ConflictColumns) > 0 {
		target := make([]string, len(spec.ConflictColumns))
		for i, col := range spec.ConflictColumns {
			target[i] = quoteIdent(col)
		}
		conflict = fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(target, ","))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s",
		quoteIdent(spec.Name), strings.Join(quoted, ","), strings.Join(valueStrings, ","), conflict)

	res, err := tx.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FetchAll retrieves every stored row of table ordered by identifier.
func (b *SQLBackend) FetchAll(ctx context.Context, table string) ([]models.Record, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quoteIdent(table), quoteIdent("id")))
	if err != nil {
		return nil, fmt.Errorf("%s: fetch all: %w", b.dialect.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: fetch all: %w", b.dialect.Name, err)
	}

	var out []models.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", b.dialect.Name, err)
		}
		r := make(models.Record, len(cols))
		for i, col := range cols {
			if raw, ok := values[i].([]byte); ok {
				r[col] = string(raw)
				continue
			}
			r[col] = values[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
