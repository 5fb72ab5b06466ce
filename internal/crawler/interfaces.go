package crawler

import (
	"context"
	"time"
)

// Discoverer walks a site from its root and reports the pages it found.
type Discoverer interface {
	DiscoverPages(ctx context.Context, rootURL string, opts DiscoverOptions) ([]DiscoveredPage, error)
}

// Scraper fetches the full content of one page.
type Scraper interface {
	ScrapePage(ctx context.Context, url string) (ScrapedPage, error)
}

// Framework is everything a crawl run needs from the crawling engine.
type Framework interface {
	Discoverer
	Scraper
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for async crawl runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes content digests used as archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
