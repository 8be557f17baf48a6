package scraper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
)

type stubScraper struct {
	name, table string
}

func (s stubScraper) Name() string  { return s.name }
func (s stubScraper) Table() string { return s.table }
func (s stubScraper) Scrape(context.Context, fetcher.Session, PageRange) (models.Batch, error) {
	return nil, nil
}

func TestPageRangePages(t *testing.T) {
	tests := []struct {
		name string
		r    PageRange
		want []int
	}{
		{"zero value is page one", PageRange{}, []int{1}},
		{"explicit range", PageRange{Start: 3, Max: 3}, []int{3, 4, 5}},
		{"negative start clamps", PageRange{Start: -2, Max: 2}, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Pages())
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		stubScraper{name: "luarkampus", table: models.TableBeasiswa},
		stubScraper{name: "infolomba", table: models.TableLomba},
	)

	assert.Equal(t, []string{"beasiswa", "lomba"}, reg.Tables())

	s, err := reg.Lookup(models.TableLomba)
	require.NoError(t, err)
	assert.Equal(t, "infolomba", s.Name())

	_, err = reg.Lookup("magang")
	assert.ErrorContains(t, err, `"magang"`)

	reg.Register(stubScraper{name: "other", table: models.TableLomba})
	s, err = reg.Lookup(models.TableLomba)
	require.NoError(t, err)
	assert.Equal(t, "other", s.Name())
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://luarkampus.id/beasiswa/12", AbsoluteURL("https://luarkampus.id/beasiswa", "/beasiswa/12"))
	assert.Equal(t, "https://cdn.example.com/a.png", AbsoluteURL("https://www.infolomba.id/?page=1", "https://cdn.example.com/a.png"))
	assert.Empty(t, AbsoluteURL("https://www.infolomba.id/", "  "))
}

func TestTextAndAttr(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><p class="x">  first </p><p class="x">second</p><img src=" /a.png "></div>`))
	require.NoError(t, err)

	root := doc.Selection
	assert.Equal(t, "first", Text(root, "p.x"))
	assert.Equal(t, "/a.png", Attr(root, "img", "src"))
	assert.Empty(t, Text(root, ".missing"))
	assert.Nil(t, OrNil(""))
	assert.Equal(t, "v", OrNil("v"))
}

func TestPauseHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Pause(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Pause(context.Background(), 0))
}
