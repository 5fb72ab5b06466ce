package store

import (
	"context"
	"time"
)

// PageStatus mirrors pages.scraping_status.
type PageStatus string

// Page status values. Processing, chunked and vectorized belong to the
// downstream embedding pipeline.
const (
	PagePending    PageStatus = "pending"
	PageCrawled    PageStatus = "crawled"
	PageFailed     PageStatus = "failed"
	PageProcessing PageStatus = "processing"
	PageChunked    PageStatus = "chunked"
	PageVectorized PageStatus = "vectorized"
)

// Page is one crawled document. (WebsiteID, URL) is unique.
type Page struct {
	ID             string     `json:"id"`
	WebsiteID      string     `json:"website_id"`
	URL            string     `json:"url"`
	Title          *string    `json:"title,omitempty"`
	Content        *string    `json:"content,omitempty"`
	RawHTML        *string    `json:"raw_html,omitempty"`
	Depth          int        `json:"depth"`
	WordCount      int        `json:"word_count"`
	LinkCount      int        `json:"link_count"`
	ScrapingStatus PageStatus `json:"scraping_status"`
	DiscoveredAt   *time.Time `json:"discovered_at,omitempty"`
	ScrapedAt      *time.Time `json:"scraped_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PageRepository persists crawled pages.
type PageRepository interface {
	// UpsertPage inserts the page or, when (website_id, url) exists, replaces
	// its content fields.
	UpsertPage(ctx context.Context, p Page) error
	// ListPages returns a website's pages ordered by depth then creation time.
	ListPages(ctx context.Context, websiteID string) ([]Page, error)
}
