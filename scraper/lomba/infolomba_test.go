package lomba

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
	"infortic-scraper/scraper"
)

const listingPage = `<html><body>
<div id="main">
  <div class="event-list">
    <div class="event-item">
      <img data-src="/uploads/poster-ui.jpg" src="/placeholder.gif">
      <h3 class="event-title"><a href="/lomba/ui-ux-2025">  UI/UX   Design Competition </a></h3>
      <p class="event-description">National UI/UX competition</p>
      <span class="event-organizer">HMTI Universitas Indonesia</span>
      <span class="event-participant">Mahasiswa</span>
      <span class="event-location">Online</span>
      <span class="event-date">01 Agu 2025 - 30 Sep 2025</span>
      <span class="event-price">Gratis</span>
      <a class="event-register" href="https://forms.example.com/ui-ux">Daftar</a>
    </div>
    <div class="event-item">
      <a href="https://www.infolomba.id/lomba/essay">Essay Nasional</a>
      <span class="event-date">TBA</span>
    </div>
    <div class="event-item"><span class="event-location">nothing useful</span></div>
  </div>
</div>
</body></html>`

const emptyPage = `<html><body><div id="main"><div class="event-list"></div></div></body></html>`

type fakeSession struct {
	pages   map[string]string
	err     error
	fetched []string
	waits   []string
}

func (f *fakeSession) FetchDynamic(_ context.Context, url string, opts fetcher.DynamicOptions) (*goquery.Document, error) {
	f.fetched = append(f.fetched, url)
	f.waits = append(f.waits, opts.WaitFor)
	if f.err != nil {
		return nil, f.err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(f.pages[url]))
}

func (f *fakeSession) FetchStatic(context.Context, string) (string, error) {
	return "", errors.New("unexpected static fetch")
}

func (f *fakeSession) Close() error { return nil }

func TestExtract(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingPage))
	require.NoError(t, err)

	got := Extract(doc, "https://www.infolomba.id/?page=1")

	want := models.Batch{
		{
			"title":            "UI/UX   Design Competition",
			"description":      "National UI/UX competition",
			"organizer":        "HMTI Universitas Indonesia",
			"poster_url":       "https://www.infolomba.id/uploads/poster-ui.jpg",
			"registration_url": "https://forms.example.com/ui-ux",
			"source_url":       "https://www.infolomba.id/lomba/ui-ux-2025",
			"participant":      "Mahasiswa",
			"location":         "Online",
			"date_text":        "01 Agu 2025 - 30 Sep 2025",
			"price_text":       "Gratis",
			"deadline_date":    "2025-09-30",
		},
		{
			"title":            "Essay Nasional",
			"description":      nil,
			"organizer":        nil,
			"poster_url":       nil,
			"registration_url": nil,
			"source_url":       "https://www.infolomba.id/lomba/essay",
			"participant":      nil,
			"location":         nil,
			"date_text":        "TBA",
			"price_text":       nil,
			"deadline_date":    nil,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFallsBackToMain(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="main"><div class="event-item"><h3 class="event-title"><a href="/x">X</a></h3></div></div>`))
	require.NoError(t, err)

	got := Extract(doc, "https://www.infolomba.id/")
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.infolomba.id/x", got[0]["source_url"])
}

func TestScrapeStopsAtFirstEmptyPage(t *testing.T) {
	s := New(Options{})
	session := &fakeSession{pages: map[string]string{
		s.PageURL(1): listingPage,
		s.PageURL(2): emptyPage,
		s.PageURL(3): listingPage,
	}}

	batch, err := s.Scrape(context.Background(), session, scraper.PageRange{Start: 1, Max: 3})
	require.NoError(t, err)

	assert.Len(t, batch, 2)
	assert.Equal(t, []string{
		"https://www.infolomba.id/?page=1",
		"https://www.infolomba.id/?page=2",
	}, session.fetched)
	assert.Equal(t, []string{MainSelector, MainSelector}, session.waits)
}

func TestScrapeFetchErrorAborts(t *testing.T) {
	s := New(Options{BaseURL: "https://mirror.test/"})
	session := &fakeSession{err: errors.New("timed out waiting for #main")}

	batch, err := s.Scrape(context.Background(), session, scraper.PageRange{Start: 4, Max: 2})
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.Contains(t, err.Error(), "infolomba page 4")
	assert.Equal(t, []string{"https://mirror.test/?page=4"}, session.fetched)
}

func TestScraperIdentity(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, "infolomba", s.Name())
	assert.Equal(t, models.TableLomba, s.Table())
}
