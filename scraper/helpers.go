package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// AbsoluteURL resolves href against base. It returns "" for empty or
// unparsable input.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// Text returns the trimmed text of the first element matching selector
// under sel.
func Text(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

// Attr returns the trimmed attribute of the first element matching
// selector under sel.
func Attr(sel *goquery.Selection, selector, attr string) string {
	v, _ := sel.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// OrNil maps "" to nil so empty optional fields are stored as NULL.
func OrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
