package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"infortic-scraper/models"
)

// CSVWriter archives raw (unnormalised) batches as one CSV file per table
// under a directory. It is safe for concurrent use.
type CSVWriter struct {
	mu    sync.Mutex
	dir   string
	limit int
	now   func() time.Time
}

// NewCSVWriter creates the output directory. limit caps the rows written
// per batch; zero writes every row.
func NewCSVWriter(dir string, limit int) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{dir: dir, limit: limit, now: time.Now}, nil
}

// Path returns the file a table's batch is written to.
func (c *CSVWriter) Path(table string) string {
	return filepath.Join(c.dir, table+"_raw.csv")
}

// WriteRaw writes the batch to <dir>/<table>_raw.csv, truncating any
// previous archive of the same table.
func (c *CSVWriter) WriteRaw(table string, batch models.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && len(batch) > c.limit {
		batch = batch[:c.limit]
	}

	path := c.Path(table)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cols := batch.Columns()
	if err := w.Write(append(append([]string{}, cols...), "archived_at")); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	archivedAt := c.now().UTC().Format(time.RFC3339)
	for _, r := range batch {
		row := make([]string, 0, len(cols)+1)
		for _, col := range cols {
			row = append(row, r.String(col))
		}
		row = append(row, archivedAt)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	return f.Close()
}

// Close is a no-op: each WriteRaw opens and closes its own file.
func (c *CSVWriter) Close() error {
	return nil
}
