package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infortic-scraper/models"
)

func TestCSVWriterWritesRawBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	w, err := NewCSVWriter(dir, 2)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC) }

	batch := models.Batch{
		{"title": "  Lomba  A ", "source_url": "https://x/a"},
		{"title": "Lomba B", "source_url": "https://x/b", "location": "Online"},
		{"title": "Lomba C", "source_url": "https://x/c"},
	}
	require.NoError(t, w.WriteRaw(models.TableLomba, batch))
	require.NoError(t, w.Close())

	f, err := os.Open(w.Path(models.TableLomba))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus limited rows")
	assert.Equal(t, []string{"location", "source_url", "title", "archived_at"}, records[0])
	assert.Equal(t, []string{"", "https://x/a", "  Lomba  A ", "2025-08-01T10:00:00Z"}, records[1])
	assert.Equal(t, "Online", records[2][0])
}

func TestCSVWriterTruncatesPreviousArchive(t *testing.T) {
	w, err := NewCSVWriter(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, w.WriteRaw("beasiswa", models.Batch{{"title": "a"}, {"title": "b"}}))
	require.NoError(t, w.WriteRaw("beasiswa", models.Batch{{"title": "c"}}))

	data, err := os.ReadFile(w.Path("beasiswa"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\na,")
	assert.Contains(t, string(data), "c,")
}
