package lomba

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
	"infortic-scraper/scraper"
	"infortic-scraper/services"
	"infortic-scraper/utils"
)

const (
	DefaultBaseURL = "https://www.infolomba.id/"

	// MainSelector must be present before the listing is captured.
	MainSelector      = "#main"
	EventListSelector = "#main .event-list"
	EventCardSelector = ".event-item"
)

var (
	eventListMatcher = cascadia.MustCompile(EventListSelector)
	mainMatcher      = cascadia.MustCompile(MainSelector)
	eventCardMatcher = cascadia.MustCompile(EventCardSelector)
)

// Options configures the InfoLomba scraper.
type Options struct {
	BaseURL string
	// Timeout bounds each page render.
	Timeout time.Duration
	// Delay is the pause between two listing pages.
	Delay  time.Duration
	Logger *slog.Logger
}

// InfoLomba scrapes competitions from infolomba.id. The listing is
// rendered client side, so pages are loaded through the browser.
type InfoLomba struct {
	opts   Options
	logger *slog.Logger
}

// New creates a ready-to-use InfoLomba scraper.
func New(opts Options) *InfoLomba {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &InfoLomba{
		opts:   opts,
		logger: logger.With(slog.String("scraper", "infolomba")),
	}
}

func (s *InfoLomba) Name() string  { return "infolomba" }
func (s *InfoLomba) Table() string { return models.TableLomba }

// PageURL returns the listing URL of page n.
func (s *InfoLomba) PageURL(n int) string {
	return fmt.Sprintf("%s?page=%d", s.opts.BaseURL, n)
}

// Scrape renders every page in r and extracts the competition cards. It
// stops early at the first page without cards. Any fetch error aborts
// the whole scrape.
func (s *InfoLomba) Scrape(ctx context.Context, session fetcher.Session, r scraper.PageRange) (models.Batch, error) {
	pages := r.Pages()
	s.logger.Info("starting scrape", slog.Int("start_page", pages[0]), slog.Int("max_pages", len(pages)))

	var batch models.Batch
	for i, page := range pages {
		pageURL := s.PageURL(page)
		doc, err := session.FetchDynamic(ctx, pageURL, fetcher.DynamicOptions{
			WaitFor: MainSelector,
			Timeout: s.opts.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("infolomba page %d: %w", page, err)
		}

		records := Extract(doc, pageURL)
		if len(records) == 0 {
			s.logger.Warn("page returned no competitions, stopping", slog.Int("page", page))
			break
		}
		batch = append(batch, records...)
		s.logger.Info("page done", slog.Int("page", page), slog.Int("records", len(records)), slog.Int("total", len(batch)))

		if i < len(pages)-1 {
			if err := scraper.Pause(ctx, s.opts.Delay); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Info("scrape complete", slog.Int("records", len(batch)))
	return batch, nil
}

// Extract reads every competition card on a rendered listing page.
func Extract(doc *goquery.Document, pageURL string) models.Batch {
	list := doc.FindMatcher(eventListMatcher)
	if list.Length() == 0 {
		list = doc.FindMatcher(mainMatcher)
	}

	var batch models.Batch
	list.FindMatcher(eventCardMatcher).Each(func(_ int, card *goquery.Selection) {
		if r := extractCard(card, pageURL); r != nil {
			batch = append(batch, r)
		}
	})
	return batch
}

func extractCard(card *goquery.Selection, pageURL string) models.Record {
	title := scraper.Text(card, ".event-title")
	href := scraper.Attr(card, ".event-title a", "href")
	if href == "" {
		href = scraper.Attr(card, "a[href]", "href")
	}
	if title == "" && href == "" {
		return nil
	}
	if title == "" {
		title = scraper.Text(card, "a[href]")
	}

	poster := scraper.Attr(card, "img", "data-src")
	if poster == "" {
		poster = scraper.Attr(card, "img", "src")
	}

	dateText := scraper.Text(card, ".event-date")
	var deadline any
	if d, ok := services.ParseDeadline(dateText); ok {
		deadline = d
	}

	return models.Record{
		"title":            title,
		"description":      scraper.OrNil(scraper.Text(card, ".event-description")),
		"organizer":        scraper.OrNil(scraper.Text(card, ".event-organizer")),
		"poster_url":       scraper.OrNil(scraper.AbsoluteURL(pageURL, poster)),
		"registration_url": scraper.OrNil(scraper.AbsoluteURL(pageURL, scraper.Attr(card, "a.event-register", "href"))),
		"source_url":       scraper.AbsoluteURL(pageURL, href),
		"participant":      scraper.OrNil(scraper.Text(card, ".event-participant")),
		"location":         scraper.OrNil(scraper.Text(card, ".event-location")),
		"date_text":        scraper.OrNil(dateText),
		"price_text":       scraper.OrNil(scraper.Text(card, ".event-price")),
		"deadline_date":    deadline,
	}
}
