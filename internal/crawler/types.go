package crawler

import (
	"strings"
	"time"
)

// DefaultExcludePatterns keeps admin areas and static assets out of crawls.
var DefaultExcludePatterns = []string{
	"/admin/*",
	"/wp-admin/*",
	"*.pdf",
	"*.jpg",
	"*.png",
	"*.gif",
	"*.css",
	"*.js",
}

// DiscoverOptions bounds a discovery walk.
type DiscoverOptions struct {
	MaxPages            int
	MaxDepth            int
	FollowExternalLinks bool
	Delay               time.Duration
	IncludePatterns     []string
	ExcludePatterns     []string
}

// DiscoveredPage is one page found during discovery. Title and WordCount
// come from the discovery fetch and are used when scraping fails.
type DiscoveredPage struct {
	URL       string
	Title     string
	Depth     int
	WordCount int
	LinkCount int
}

// ScrapedPage is the full content of one page. Title and LinkCount are read
// from the final HTML, which is the rendered DOM when headless was used.
type ScrapedPage struct {
	URL          string
	StatusCode   int
	HTML         string
	Title        string
	LinkCount    int
	UsedHeadless bool
	Duration     time.Duration
}

// FetchRequest names the page to fetch.
type FetchRequest struct {
	URL string
}

// FetchResponse is one fetched document. ContentType is the media type the
// server (or the browser) reported, without parameters.
type FetchResponse struct {
	URL          string
	StatusCode   int
	ContentType  string
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// IsHTML reports whether the response can be scraped for text. An unknown
// content type is given the benefit of the doubt.
func (r FetchResponse) IsHTML() bool {
	return r.ContentType == "" || strings.Contains(r.ContentType, "html")
}

// RunOptions are the per-crawl limits resolved from the request and config.
type RunOptions struct {
	MaxPages int `json:"max_pages"`
	MaxDepth int `json:"max_depth"`
}

// QueueItem is an async crawl run for a website already moved to crawling.
type QueueItem struct {
	ProjectID string
	WebsiteID string
	Options   RunOptions
	Submitted time.Time
}
