package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticFetcher downloads pages over plain HTTP with colly.
type StaticFetcher struct {
	collector *colly.Collector
}

// NewStaticFetcher builds a fetcher that identifies as userAgent and gives
// up on a request after timeout.
func NewStaticFetcher(userAgent string, timeout time.Duration) *StaticFetcher {
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if userAgent != "" {
		opts = append(opts, colly.UserAgent(userAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	return &StaticFetcher{collector: collector}
}

// WithTransport replaces the HTTP transport.
func (f *StaticFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch returns the body of url. Non-2xx responses are errors.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := f.collector.Clone()

	var body string
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if fetchErr != nil {
			return "", fetchErr
		}
		if err != nil {
			return "", err
		}
		return body, nil
	}
}
