package beasiswa

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
	"infortic-scraper/scraper"
	"infortic-scraper/services"
	"infortic-scraper/utils"
)

const DefaultBaseURL = "https://luarkampus.id/beasiswa"

var (
	detailPathRegexp = regexp.MustCompile(`/beasiswa/\d+`)
	cardMatcher      = cascadia.MustCompile("a.block")
)

// Options configures the luarkampus.id scraper.
type Options struct {
	BaseURL string
	// Delay is the pause between two listing pages.
	Delay time.Duration
	// Search enriches records with image and registration URLs. Nil
	// disables enrichment.
	Search *SearchClient
	// Concurrency and RateLimit bound the enrichment worker pool.
	Concurrency int
	RateLimit   time.Duration
	Logger      *slog.Logger
}

// LuarKampus scrapes scholarships from luarkampus.id. The listing is
// server rendered, so no browser is needed.
type LuarKampus struct {
	opts   Options
	logger *slog.Logger
}

// New creates a ready-to-use LuarKampus scraper.
func New(opts Options) *LuarKampus {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	if opts.Search == nil {
		logger.Warn("Google API key or CSE ID not set, search enrichment disabled")
	}
	return &LuarKampus{
		opts:   opts,
		logger: logger.With(slog.String("scraper", "luarkampus")),
	}
}

func (s *LuarKampus) Name() string  { return "luarkampus" }
func (s *LuarKampus) Table() string { return models.TableBeasiswa }

// PageURL returns the listing URL of page n.
func (s *LuarKampus) PageURL(n int) string {
	return fmt.Sprintf("%s?page=%d", s.opts.BaseURL, n)
}

// Scrape downloads every page in r, extracts the scholarship cards and
// enriches them through Custom Search when it is configured.
func (s *LuarKampus) Scrape(ctx context.Context, session fetcher.Session, r scraper.PageRange) (models.Batch, error) {
	pages := r.Pages()
	s.logger.Info("starting scrape", slog.String("url", s.opts.BaseURL), slog.Int("start_page", pages[0]), slog.Int("max_pages", len(pages)))

	var batch models.Batch
	for i, page := range pages {
		html, err := session.FetchStatic(ctx, s.PageURL(page))
		if err != nil {
			return nil, fmt.Errorf("luarkampus page %d: %w", page, err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("luarkampus page %d: parse: %w", page, err)
		}

		records := Extract(doc, s.opts.BaseURL)
		s.logger.Info("found scholarship cards", slog.Int("page", page), slog.Int("cards", len(records)))
		if len(records) == 0 {
			break
		}
		batch = append(batch, records...)

		if i < len(pages)-1 {
			if err := scraper.Pause(ctx, s.opts.Delay); err != nil {
				return nil, err
			}
		}
	}

	if s.opts.Search != nil && len(batch) > 0 {
		s.enrich(ctx, batch)
	}

	s.logger.Info("scraping finished", slog.Int("records", len(batch)))
	return batch, nil
}

// enrich fills image_url and registration_url in place. Each record is
// written by exactly one job.
func (s *LuarKampus) enrich(ctx context.Context, batch models.Batch) {
	start := time.Now()
	pool := utils.NewWorkerPool(s.opts.Concurrency, s.opts.RateLimit)

	for _, r := range batch {
		title := r.String("title")
		if title == "" {
			continue
		}
		r := r
		pool.Submit(ctx, func(ctx context.Context) {
			image, registration := s.opts.Search.Lookup(ctx, title)
			r["image_url"] = scraper.OrNil(image)
			r["registration_url"] = scraper.OrNil(registration)
		})
	}
	pool.Wait()

	s.logger.Info("search enrichment done", slog.Int("records", len(batch)), utils.Since(start))
}

// Extract reads every scholarship card on a listing page. Cards are the
// Livewire components (a.block with a wire:id attribute) that link to a
// scholarship detail page.
func Extract(doc *goquery.Document, baseURL string) models.Batch {
	var batch models.Batch
	doc.FindMatcher(cardMatcher).Each(func(_ int, card *goquery.Selection) {
		if _, ok := card.Attr("wire:id"); !ok {
			return
		}
		href, _ := card.Attr("href")
		if !detailPathRegexp.MatchString(href) {
			return
		}
		batch = append(batch, extractCard(card, scraper.AbsoluteURL(baseURL, href)))
	})
	return batch
}

func extractCard(card *goquery.Selection, sourceURL string) models.Record {
	title := scraper.Text(card, "h2.font-bold")
	if title == "" {
		title = "No Title Provided"
	}

	var levels []string
	card.Find("span.bg-success").Each(func(_ int, el *goquery.Selection) {
		if t := strings.TrimSpace(el.Text()); t != "" {
			levels = append(levels, t)
		}
	})
	sort.Strings(levels)
	education := strings.Join(levels, ", ")
	if education == "" {
		education = "Not Specified"
	}

	location := scraper.Text(card, "span.text-sm.text-gray-600")
	if location == "" {
		location = "No Location Provided"
	}

	var deadline any
	if d, ok := services.ParseDeadline(deadlineText(card)); ok {
		deadline = d
	}

	return models.Record{
		"title":            title,
		"education_level":  education,
		"location":         location,
		"deadline_date":    deadline,
		"source_url":       sourceURL,
		"image_url":        nil,
		"registration_url": nil,
	}
}

// deadlineText reads the deadline from the mobile layout (span.text-error)
// or, failing that, from the desktop layout where a "Deadline:" label
// span is followed by the value span.
func deadlineText(card *goquery.Selection) string {
	if mobile := card.Find("span.text-error").First(); mobile.Length() > 0 {
		return strings.TrimSpace(strings.Replace(mobile.Text(), "Deadline:", "", 1))
	}
	label := card.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.TrimSpace(s.Text()), "Deadline:")
	}).First()
	if label.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(label.NextAllFiltered("span").First().Text())
}
