package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"infortic-scraper/utils"
)

// Browser engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// ErrSessionClosed is returned by fetches on a closed session.
var ErrSessionClosed = errors.New("fetch session is closed")

// DynamicOptions tunes one browser-rendered fetch.
type DynamicOptions struct {
	// WaitFor is a CSS selector that must be present before the DOM is
	// captured. Empty means capture right after navigation.
	WaitFor string
	// Timeout bounds the whole fetch. Zero uses the session default.
	Timeout time.Duration
}

// Session is the page-fetching capability handed to scrapers. A session
// owns its browser and HTTP resources until Close.
type Session interface {
	FetchDynamic(ctx context.Context, url string, opts DynamicOptions) (*goquery.Document, error)
	FetchStatic(ctx context.Context, url string) (string, error)
	Close() error
}

// Renderer loads a page in a real browser and returns the rendered HTML.
type Renderer interface {
	Render(ctx context.Context, url, waitFor string) (string, error)
	Close() error
}

// Options configures a fetch session.
type Options struct {
	Engine    string
	Headless  bool
	ChromeBin string
	UserAgent string
	// Timeout is the default bound for each fetch.
	Timeout time.Duration
	Logger  *slog.Logger
}

// BrowserSession fetches static pages over HTTP and dynamic pages through a
// browser that is launched on first use.
type BrowserSession struct {
	opts   Options
	logger *slog.Logger
	static *StaticFetcher

	// newRenderer launches the browser engine; swapped in tests.
	newRenderer func(Options) (Renderer, error)

	mu       sync.Mutex
	renderer Renderer
	closed   bool
}

// NewSession creates a session. No browser is started until the first
// FetchDynamic call.
func NewSession(opts Options) *BrowserSession {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &BrowserSession{
		opts:        opts,
		logger:      logger.With(slog.String("component", "fetcher")),
		static:      NewStaticFetcher(opts.UserAgent, opts.Timeout),
		newRenderer: launchRenderer,
	}
}

func launchRenderer(opts Options) (Renderer, error) {
	switch opts.Engine {
	case EngineRod:
		return newRodRenderer(opts)
	case EngineChromedp, "":
		return newChromedpRenderer(opts)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

// Static exposes the HTTP fetcher, e.g. to swap its transport.
func (s *BrowserSession) Static() *StaticFetcher {
	return s.static
}

func (s *BrowserSession) browser() (Renderer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.renderer != nil {
		return s.renderer, nil
	}

	start := time.Now()
	r, err := s.newRenderer(s.opts)
	if err != nil {
		return nil, fmt.Errorf("launch %s browser: %w", s.opts.Engine, err)
	}
	s.renderer = r
	s.logger.Info("browser launched",
		slog.String("engine", s.opts.Engine),
		slog.Bool("headless", s.opts.Headless),
		utils.Since(start),
	)
	return r, nil
}

// FetchDynamic renders url in the browser and parses the resulting DOM.
func (s *BrowserSession) FetchDynamic(ctx context.Context, url string, opts DynamicOptions) (*goquery.Document, error) {
	r, err := s.browser()
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("navigating", slog.String("url", url), slog.String("wait_for", opts.WaitFor))

	html, err := r.Render(ctx, url, opts.WaitFor)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		s.logger.Error("failed to load page", slog.String("url", url), slog.Any("error", err))
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	s.logger.Debug("page rendered", slog.String("url", url), slog.Int("bytes", len(html)), utils.Since(start))
	return doc, nil
}

// FetchStatic downloads url without running scripts.
func (s *BrowserSession) FetchStatic(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}

	start := time.Now()
	s.logger.Info("fetching static page", slog.String("url", url))
	body, err := s.static.Fetch(ctx, url)
	if err != nil {
		s.logger.Error("failed to fetch static page", slog.String("url", url), slog.Any("error", err))
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	s.logger.Info("fetched static page", slog.String("url", url), slog.Int("bytes", len(body)), utils.Since(start))
	return body, nil
}

// Close shuts the browser down if one was launched. It is safe to call
// more than once.
func (s *BrowserSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.renderer == nil {
		return nil
	}
	err := s.renderer.Close()
	s.renderer = nil
	if err != nil {
		s.logger.Error("error closing browser", slog.Any("error", err))
		return fmt.Errorf("close browser: %w", err)
	}
	s.logger.Info("browser closed")
	return nil
}
