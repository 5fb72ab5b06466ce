package store

import (
	"context"
	"math"
	"time"
)

// WebsiteStatus mirrors websites.status.
type WebsiteStatus string

// Website status values.
const (
	WebsiteActive        WebsiteStatus = "active"
	WebsiteInactive      WebsiteStatus = "inactive"
	WebsitePendingReview WebsiteStatus = "pending_review"
)

// Valid reports whether s is a known website status.
func (s WebsiteStatus) Valid() bool {
	switch s {
	case WebsiteActive, WebsiteInactive, WebsitePendingReview:
		return true
	}
	return false
}

// CrawlStatus mirrors websites.crawl_status.
//
// The lifecycle is pending -> crawling -> completed|failed. A finished
// website may re-enter crawling. Paused is part of the column type but
// nothing transitions into or out of it.
type CrawlStatus string

// Crawl status values.
const (
	CrawlPending   CrawlStatus = "pending"
	CrawlCrawling  CrawlStatus = "crawling"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
	CrawlPaused    CrawlStatus = "paused"
)

// Valid reports whether s is a known crawl status.
func (s CrawlStatus) Valid() bool {
	switch s {
	case CrawlPending, CrawlCrawling, CrawlCompleted, CrawlFailed, CrawlPaused:
		return true
	}
	return false
}

// Terminal reports whether s ends a crawl and stamps completed_at.
func (s CrawlStatus) Terminal() bool {
	return s == CrawlCompleted || s == CrawlFailed
}

// Website defaults applied on creation.
const (
	DefaultWebsiteMaxPages = 30
	DefaultWebsiteMaxDepth = 3
)

// Website is a client site tracked under a project.
type Website struct {
	ID                   string        `json:"id"`
	ProjectID            string        `json:"project_id"`
	URL                  string        `json:"url"`
	Name                 *string       `json:"name,omitempty"`
	Description          *string       `json:"description,omitempty"`
	Status               WebsiteStatus `json:"status"`
	CrawlStatus          CrawlStatus   `json:"crawl_status"`
	TotalPagesDiscovered int           `json:"total_pages_discovered"`
	PagesCrawled         int           `json:"pages_crawled"`
	PagesFailed          int           `json:"pages_failed"`
	MaxPages             int           `json:"max_pages"`
	MaxDepth             int           `json:"max_depth"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	CreatedDate          time.Time     `json:"created_date"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// NewWebsite carries creation fields. Zero MaxPages/MaxDepth and an empty
// Status fall back to the defaults.
type NewWebsite struct {
	ProjectID   string
	URL         string
	Name        *string
	Description *string
	Status      WebsiteStatus
	MaxPages    int
	MaxDepth    int
}

// WithDefaults fills unset fields.
func (w NewWebsite) WithDefaults() NewWebsite {
	if w.Status == "" {
		w.Status = WebsiteActive
	}
	if w.MaxPages <= 0 {
		w.MaxPages = DefaultWebsiteMaxPages
	}
	if w.MaxDepth <= 0 {
		w.MaxDepth = DefaultWebsiteMaxDepth
	}
	return w
}

// WebsiteUpdate is a partial update. Crawl counters are deliberately absent;
// only the crawl orchestration path writes them.
type WebsiteUpdate struct {
	URL         *string
	Name        *string
	Description *string
	Status      *WebsiteStatus
	MaxPages    *int
	MaxDepth    *int
}

// Empty reports whether the update carries no fields.
func (u WebsiteUpdate) Empty() bool {
	return u.URL == nil && u.Name == nil && u.Description == nil &&
		u.Status == nil && u.MaxPages == nil && u.MaxDepth == nil
}

// CrawlCounters are the aggregate crawl columns on websites.
type CrawlCounters struct {
	TotalPagesDiscovered int `json:"total_pages_discovered"`
	PagesCrawled         int `json:"pages_crawled"`
	PagesFailed          int `json:"pages_failed"`
}

// PageStatusCounts holds per-status page totals for one website.
type PageStatusCounts struct {
	Pending    int `json:"pending"`
	Crawled    int `json:"crawled"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
	Chunked    int `json:"chunked"`
	Vectorized int `json:"vectorized"`
}

// CrawlProgress is a read-only projection of a website's crawl state.
type CrawlProgress struct {
	WebsiteID       string           `json:"website_id"`
	URL             string           `json:"url"`
	CrawlStatus     CrawlStatus      `json:"crawl_status"`
	Counters        CrawlCounters    `json:"counters"`
	MaxPages        int              `json:"max_pages"`
	MaxDepth        int              `json:"max_depth"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Pages           PageStatusCounts `json:"pages"`
	ProgressPercent int              `json:"progress_percent"`
}

// ProgressPercent returns processed/discovered as a whole percentage where
// processed counts both crawled and failed pages. Zero discovered pages
// yield 0.
func ProgressPercent(c CrawlCounters) int {
	if c.TotalPagesDiscovered <= 0 {
		return 0
	}
	processed := c.PagesCrawled + c.PagesFailed
	pct := math.Round(float64(processed) / float64(c.TotalPagesDiscovered) * 100)
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// WebsiteStats counts websites by status.
type WebsiteStats struct {
	Total         int64 `json:"total"`
	Active        int64 `json:"active"`
	Inactive      int64 `json:"inactive"`
	PendingReview int64 `json:"pending_review"`
}

// WebsiteRepository persists websites and their crawl state.
type WebsiteRepository interface {
	// ListWebsites returns a project's websites, oldest first.
	ListWebsites(ctx context.Context, projectID string) ([]Website, error)
	GetWebsite(ctx context.Context, id string) (Website, error)
	CreateWebsite(ctx context.Context, w NewWebsite) (Website, error)
	UpdateWebsite(ctx context.Context, id string, u WebsiteUpdate) (Website, error)
	DeleteWebsite(ctx context.Context, id string) (bool, error)
	// UpdateCrawlStatus moves the website to status. Entering crawling stamps
	// started_at; entering completed or failed stamps completed_at. Non-nil
	// counters overwrite the stored ones.
	UpdateCrawlStatus(ctx context.Context, id string, status CrawlStatus, counters *CrawlCounters) (Website, error)
	// BeginCrawl atomically moves a website that is not already crawling into
	// crawling and resets its counters. It returns ErrCrawlInProgress when a
	// crawl is running and ErrNotFound when the website does not exist.
	BeginCrawl(ctx context.Context, id string) (Website, error)
	// UpdateCrawlCounters overwrites the counters without touching status.
	UpdateCrawlCounters(ctx context.Context, id string, counters CrawlCounters) error
	CrawlProgress(ctx context.Context, id string) (CrawlProgress, error)
	// WebsiteURLExists reports whether projectID already tracks url, ignoring
	// the website excludeID when it is non-empty.
	WebsiteURLExists(ctx context.Context, projectID, url, excludeID string) (bool, error)
	// WebsiteStats counts websites by status; an empty projectID spans all projects.
	WebsiteStats(ctx context.Context, projectID string) (WebsiteStats, error)
}
