package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserFetcher renders pages in Chrome so script-built content is
// captured. It attaches to ControlURL or launches a local browser on first
// use.
type BrowserFetcher struct {
	controlURL string
	headless   bool
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

// NewBrowserFetcher creates a fetcher. An empty controlURL launches Chrome.
func NewBrowserFetcher(controlURL string, headless bool, timeout time.Duration, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{controlURL: controlURL, headless: headless, timeout: timeout, logger: logger}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(f.headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		f.launched = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	f.browser = browser
	f.logger.Info("browser connected", "control_url", controlURL, "launched", f.launched != nil)
	return browser, nil
}

// Fetch opens url in a new tab, waits for load and returns the rendered
// markup.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	browser, err := f.connect()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	defer func() { _ = page.Close() }()

	page = page.Timeout(f.timeout)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}
	src, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html %s: %w", url, err)
	}

	out := &Page{URL: url, Source: src, Kind: KindHTML, FetchedAt: time.Now()}
	if info, err := page.Info(); err == nil {
		out.URL = info.URL
		out.Title = info.Title
	}
	f.logger.Debug("page rendered",
		"url", out.URL, "bytes", len(src), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Close disconnects and stops a launched browser.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launched != nil {
		f.launched.Cleanup()
		f.launched = nil
	}
	return err
}
