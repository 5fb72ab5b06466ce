package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
)

// Fetcher is the plain HTTP fetch a scrape starts with. Error statuses are
// returned as responses so the caller can report the status code.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// Fetch GETs request.URL, following redirects. The response URL is the
// final one.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	collector := newCollector(f.cfg, f.transport)
	collector.ParseHTTPErrorResponse = true

	var (
		resp     crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		resp = crawler.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: responseMediaType(r),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := visitURL(ctx, collector, request.URL); err != nil {
		return crawler.FetchResponse{}, err
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, fetchErr)
	}
	return resp, nil
}

// visitURL runs the collector on a goroutine so ctx can abandon a slow fetch.
func visitURL(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil
	}
}
