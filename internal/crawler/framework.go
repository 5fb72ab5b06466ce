package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WebFramework implements Framework. Discovery is delegated; scraping runs
// a plain HTTP fetch and promotes to the headless fetcher when the detector
// asks for it.
type WebFramework struct {
	discoverer Discoverer
	fetcher    Fetcher
	headless   Fetcher
	detector   HeadlessDetector
	limiter    Limiter
	logger     *zap.Logger
}

// FrameworkOption customizes a WebFramework.
type FrameworkOption func(*WebFramework)

// WithHeadless enables promotion to a headless fetcher.
func WithHeadless(fetcher Fetcher, detector HeadlessDetector) FrameworkOption {
	return func(f *WebFramework) {
		f.headless = fetcher
		f.detector = detector
	}
}

// WithLimiter paces scrape fetches per host.
func WithLimiter(l Limiter) FrameworkOption {
	return func(f *WebFramework) {
		f.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FrameworkOption {
	return func(f *WebFramework) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewWebFramework assembles a Framework.
func NewWebFramework(discoverer Discoverer, fetcher Fetcher, opts ...FrameworkOption) *WebFramework {
	f := &WebFramework{
		discoverer: discoverer,
		fetcher:    fetcher,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DiscoverPages delegates to the configured Discoverer.
func (f *WebFramework) DiscoverPages(ctx context.Context, rootURL string, opts DiscoverOptions) ([]DiscoveredPage, error) {
	if f.discoverer == nil {
		return nil, errors.New("no discoverer configured")
	}
	pages, err := f.discoverer.DiscoverPages(ctx, rootURL, opts)
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}
	return pages, nil
}

// ScrapePage fetches url and returns its HTML with the title and link count
// read from it. Non-2xx and non-HTML responses are errors.
func (f *WebFramework) ScrapePage(ctx context.Context, url string) (ScrapedPage, error) {
	if f.fetcher == nil {
		return ScrapedPage{}, errors.New("no fetcher configured")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return ScrapedPage{}, err //nolint:wrapcheck // limiter wraps
		}
	}
	resp, err := f.fetcher.Fetch(ctx, FetchRequest{URL: url})
	if err != nil {
		return ScrapedPage{}, fmt.Errorf("fetch: %w", err)
	}
	if promoted, ok := f.maybePromote(ctx, url, resp); ok {
		resp = promoted
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ScrapedPage{}, fmt.Errorf("scrape %s: unexpected status %d", url, resp.StatusCode)
	}
	if !resp.IsHTML() {
		return ScrapedPage{}, fmt.Errorf("scrape %s: unsupported content type %q", url, resp.ContentType)
	}
	html := string(resp.Body)
	return ScrapedPage{
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		HTML:         html,
		Title:        ExtractTitle(html),
		LinkCount:    CountLinks(html),
		UsedHeadless: resp.UsedHeadless,
		Duration:     resp.Duration,
	}, nil
}

func (f *WebFramework) maybePromote(ctx context.Context, url string, resp FetchResponse) (FetchResponse, bool) {
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, false
	}
	headlessResp, err := f.headless.Fetch(ctx, FetchRequest{URL: url})
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", url), zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	f.logger.Debug("headless promotion applied", zap.String("url", url))
	return headlessResp, true
}
