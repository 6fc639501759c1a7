// Package capture loads pages for analysis from files, HTTP or a live
// browser.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

// ErrUnsupportedContent is returned for responses that are neither HTML
// nor Markdown.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Content kinds a Page can carry.
const (
	KindHTML     = "html"
	KindMarkdown = "markdown"
)

// DefaultMaxBytes caps fetched bodies.
const DefaultMaxBytes = 5 << 20

// Page is captured page source.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Document parses the page source.
func (p *Page) Document() (*dom.HTMLDocument, error) {
	if p.Kind == KindMarkdown {
		return dom.FromMarkdown([]byte(p.Source), p.URL)
	}
	return dom.ParseString(p.Source, p.URL)
}

// Fetcher loads a page by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// IsURL reports whether target names an http(s) resource.
func IsURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// LoadFile reads a local HTML or Markdown file. The page URL is a file://
// URL of the absolute path.
func LoadFile(path string) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	kind := KindHTML
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		kind = KindMarkdown
	case ".html", ".htm", ".xhtml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, filepath.Ext(path))
	}
	info, _ := os.Stat(path)
	fetched := time.Now()
	if info != nil {
		fetched = info.ModTime()
	}
	return &Page{URL: "file://" + filepath.ToSlash(abs), Source: string(data), Kind: kind, FetchedAt: fetched}, nil
}

// HTTPFetcher downloads pages with a plain GET.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

// NewHTTPFetcher creates a fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  DefaultMaxBytes,
		userAgent: "pagewise/1.0",
		logger:    logger,
	}
}

// Fetch downloads url. Bodies beyond the size cap are truncated.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	kind, err := kindOf(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	f.logger.Debug("page fetched",
		"url", url, "bytes", len(body), "kind", kind,
		"duration_ms", time.Since(start).Milliseconds())
	return &Page{URL: resp.Request.URL.String(), Source: string(body), Kind: kind, FetchedAt: time.Now()}, nil
}

func kindOf(contentType string) (string, error) {
	if contentType == "" {
		return KindHTML, nil
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
	switch mt {
	case "text/html", "application/xhtml+xml":
		return KindHTML, nil
	case "text/markdown", "text/x-markdown":
		return KindMarkdown, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mt)
}

type timedFetcher struct {
	next    Fetcher
	metrics *metrics.Collector
}

// Timed records every fetch under metrics.OpCapture.
func Timed(next Fetcher, mc *metrics.Collector) Fetcher {
	return &timedFetcher{next: next, metrics: mc}
}

func (t *timedFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	start := time.Now()
	p, err := t.next.Fetch(ctx, url)
	t.metrics.RecordTiming(metrics.OpCapture, time.Since(start))
	return p, err
}

// LaunchBrowser as browser control URL launches a local Chrome.
const LaunchBrowser = "launch"

// FromConfig returns a timed browser fetcher when a browser control URL
// is configured and a timed HTTP fetcher otherwise. The returned close
// function releases the browser.
func FromConfig(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) (Fetcher, func() error) {
	if cfg.BrowserControlURL != "" {
		controlURL := cfg.BrowserControlURL
		if controlURL == LaunchBrowser {
			controlURL = ""
		}
		bf := NewBrowserFetcher(controlURL, cfg.BrowserHeadless, cfg.CaptureTimeout(), logger)
		return Timed(bf, mc), bf.Close
	}
	return Timed(NewHTTPFetcher(cfg.CaptureTimeout(), logger), mc), func() error { return nil }
}
