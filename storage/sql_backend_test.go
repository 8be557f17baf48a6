package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infortic-scraper/models"
)

func openTestSQLite(t *testing.T) *SQLBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "infortic.db")
	backend, err := OpenSQLBackend(context.Background(), DialectSQLite, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func beasiswaRow(n int) models.Record {
	return models.Record{
		"title":         fmt.Sprintf("Beasiswa %d", n),
		"source_url":    fmt.Sprintf("https://luarkampus.id/beasiswa/%d", n),
		"deadline_date": "2025-08-01",
	}
}

func TestSQLBackendInsertAndDelete(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	spec := models.DefaultTables()[models.TableBeasiswa]

	rows := make([]models.Record, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, beasiswaRow(i))
	}

	resp, err := backend.InsertMany(ctx, spec, rows)
	require.NoError(t, err)
	assert.Equal(t, 120, resp.Affected)
	assert.Empty(t, resp.RowErrors)

	// Re-inserting is ignored by the unique constraint.
	resp, err = backend.InsertMany(ctx, spec, rows[:10])
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Affected)

	stored, err := backend.FetchAll(ctx, models.TableBeasiswa)
	require.NoError(t, err)
	require.Len(t, stored, 120)
	assert.Equal(t, "Beasiswa 0", stored[0]["title"])
	assert.Equal(t, "2025-08-01", stored[0]["deadline_date"])

	del, err := backend.Delete(ctx, models.TableBeasiswa, NotNull("id"))
	require.NoError(t, err)
	assert.Equal(t, 120, del.Affected)

	stored, err = backend.FetchAll(ctx, models.TableBeasiswa)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSQLBackendReportsRejectedRows(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	spec := models.DefaultTables()[models.TableBeasiswa]

	rows := []models.Record{
		beasiswaRow(1),
		{"title": nil, "source_url": "https://luarkampus.id/beasiswa/2"},
		beasiswaRow(3),
	}

	resp, err := backend.InsertMany(ctx, spec, rows)

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Affected)
	require.Len(t, resp.RowErrors, 1)
	assert.Equal(t, 1, resp.RowErrors[0].Index)
	assert.Contains(t, resp.RowErrors[0].Message, "NOT NULL")

	stored, err := backend.FetchAll(ctx, models.TableBeasiswa)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSQLBackendUnknownColumnFailsEveryRow(t *testing.T) {
	backend := openTestSQLite(t)
	spec := models.DefaultTables()[models.TableLomba]

	rows := []models.Record{
		{"title": "A", "source_url": "a", "prize_pool": 100},
		{"title": "B", "source_url": "b"},
	}

	resp, err := backend.InsertMany(context.Background(), spec, rows)

	require.NoError(t, err)
	assert.Zero(t, resp.Affected)
	assert.Len(t, resp.RowErrors, 2)
}

func TestRecordStoreOverSQLite(t *testing.T) {
	backend := openTestSQLite(t)
	store := NewRecordStore(backend, Options{})
	ctx := context.Background()

	first := models.Batch{beasiswaRow(1), beasiswaRow(2), beasiswaRow(1)}
	res, err := store.Insert(ctx, models.TableBeasiswa, first, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Deduplicated)

	// Insert-only run on top of existing rows.
	res, err = store.Insert(ctx, models.TableBeasiswa, models.Batch{beasiswaRow(2), beasiswaRow(3)}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	// Clean-first replaces the table contents.
	res, err = store.Insert(ctx, models.TableBeasiswa, models.Batch{beasiswaRow(9)}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	stored, err := backend.FetchAll(ctx, models.TableBeasiswa)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Beasiswa 9", stored[0]["title"])
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"lomba"`, quoteIdent("lomba"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
	assert.Equal(t, `"id" IS NOT NULL`, NotNull("id").SQL())
}
