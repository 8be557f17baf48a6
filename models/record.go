package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one scraped entity: field name to scalar value (string, number,
// bool, time.Time or nil).
type Record map[string]any

// Batch holds the records produced by one scraper run, in extraction order.
// It is never persisted directly; only its deduplicated contents are.
type Batch []Record

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as text, or "" when missing or nil.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case *string:
		if val == nil {
			return ""
		}
		return *val
	default:
		return fmt.Sprint(val)
	}
}

// Columns returns the sorted union of field names across the batch.
func (b Batch) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range b {
		for k := range r {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

const keySeparator = "\x1f"

// TableSpec binds a remote table name to its identifier and natural key.
type TableSpec struct {
	Name string
	// IDColumn is the primary identifier; the full-table delete matches
	// every row where it is not null.
	IDColumn string
	// KeyColumns form the natural key when a record carries no identifier.
	KeyColumns []string
	// ConflictColumns is the unique constraint backends use to ignore
	// rows that already exist.
	ConflictColumns []string
}

// Key derives the natural key for a record. ok is false when the record
// carries neither an identifier nor every key column.
//
// A non-blank identifier wins and yields an "id:" key; only records without
// one are keyed by their key columns. The two kinds never compare equal, so
// a record with an id and one without it are distinct even when their key
// columns match. The backend's conflict columns resolve such pairs.
func (t TableSpec) Key(r Record) (key string, ok bool) {
	idCol := t.IDColumn
	if idCol == "" {
		idCol = "id"
	}
	if v, has := r[idCol]; has && v != nil {
		if id := strings.TrimSpace(r.String(idCol)); id != "" {
			return "id:" + id, true
		}
	}

	if len(t.KeyColumns) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(t.KeyColumns))
	for _, col := range t.KeyColumns {
		v := strings.TrimSpace(r.String(col))
		if v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, keySeparator), true
}

// Well-known target tables.
const (
	TableLomba    = "lomba"
	TableBeasiswa = "beasiswa"
)

// DefaultTables returns the specs of the tables the bundled scrapers write to.
func DefaultTables() map[string]TableSpec {
	return map[string]TableSpec{
		TableLomba: {
			Name:            TableLomba,
			IDColumn:        "id",
			KeyColumns:      []string{"title", "source_url"},
			ConflictColumns: []string{"title", "source_url"},
		},
		TableBeasiswa: {
			Name:            TableBeasiswa,
			IDColumn:        "id",
			KeyColumns:      []string{"title", "source_url"},
			ConflictColumns: []string{"title", "source_url"},
		},
	}
}
