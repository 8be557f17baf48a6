package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/chromedp/chromedp"
)

type chromedpRenderer struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

func newChromedpRenderer(opts Options) (*chromedpRenderer, error) {
	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = FindChromeBinary()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-extensions", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Run with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromedpRenderer{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Render opens a new tab, waits for waitFor to be present and returns the
// document's outer HTML. The tab is closed before returning.
func (r *chromedpRenderer) Render(ctx context.Context, url, waitFor string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitFor != "" {
		actions = append(actions, chromedp.WaitReady(waitFor, chromedp.ByQuery))
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", err
	}
	return html, nil
}

func (r *chromedpRenderer) Close() error {
	r.cancelBrowser()
	r.cancelAlloc()
	return nil
}

// FindChromeBinary looks for a Chrome or Chromium executable: CHROME_BIN,
// then PATH, then well-known install locations. Empty means let the
// engine decide.
func FindChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
