package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"infortic-scraper/utils"
)

type rodRenderer struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	userAgent string
	logger    *slog.Logger
}

func newRodRenderer(opts Options) (*rodRenderer, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true)

	bin := opts.ChromeBin
	if bin == "" {
		bin = FindChromeBinary()
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &rodRenderer{launcher: l, browser: browser, userAgent: opts.UserAgent, logger: logger}, nil
}

// Render opens a page, waits for the load event and for waitFor to exist,
// and returns the page HTML. The page is closed before returning.
func (r *rodRenderer) Render(ctx context.Context, url, waitFor string) (string, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		r.logger.Warn("stealth injection failed, proceeding without stealth", slog.Any("error", err))
	}

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return "", err
	}
	if err := p.WaitLoad(); err != nil {
		return "", err
	}
	if waitFor != "" {
		if _, err := p.Element(waitFor); err != nil {
			return "", fmt.Errorf("wait for %q: %w", waitFor, err)
		}
	}
	return p.HTML()
}

func (r *rodRenderer) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	return err
}
