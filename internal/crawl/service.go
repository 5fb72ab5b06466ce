// Package crawl orchestrates a website crawl: it claims the website, walks
// the site through the crawling framework, persists each page and records the
// final counters.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
	"github.com/JakeFAU/hubspot-onboarding/internal/telemetry"
)

// ErrDiscovery wraps failures of the discovery walk. The website is marked
// failed before it is returned.
var ErrDiscovery = errors.New("page discovery failed")

// CompletedEvent is the notification name published after a crawl finishes.
const CompletedEvent = "crawl.completed"

// Config carries crawl defaults resolved from configuration.
type Config struct {
	DefaultMaxPages    int
	DefaultMaxDepth    int
	Delay              time.Duration
	IncludePatterns    []string
	ExcludePatterns    []string
	StoreRawHTML       bool
	ArchivePrefix      string
	ArchiveContentType string
	// Event names the completion notification. Empty disables publishing.
	Event string
}

// Result summarizes one crawl run.
type Result struct {
	WebsiteID   string `json:"website_id"`
	TotalPages  int    `json:"total_pages"`
	SavedPages  int    `json:"saved_pages"`
	FailedPages int    `json:"failed_pages"`
}

// CompletedNotification is the crawl.completed payload.
type CompletedNotification struct {
	ProjectID   string            `json:"project_id"`
	WebsiteID   string            `json:"website_id"`
	URL         string            `json:"url"`
	CrawlStatus store.CrawlStatus `json:"crawl_status"`
	TotalPages  int               `json:"total_pages"`
	SavedPages  int               `json:"saved_pages"`
	FailedPages int               `json:"failed_pages"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Service runs crawls against the website and page repositories.
type Service struct {
	websites  store.WebsiteRepository
	pages     store.PageRepository
	framework crawler.Framework
	blobs     crawler.BlobStore
	hasher    crawler.Hasher
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithArchive stores each page's raw HTML in blobs under a content-hash key.
func WithArchive(blobs crawler.BlobStore, hasher crawler.Hasher) Option {
	return func(s *Service) {
		s.blobs = blobs
		s.hasher = hasher
	}
}

// WithPublisher enables crawl.completed notifications.
func WithPublisher(p crawler.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock overrides the time source.
func WithClock(c crawler.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewService constructs a Service.
func NewService(
	websites store.WebsiteRepository,
	pages store.PageRepository,
	framework crawler.Framework,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 10
	}
	if cfg.DefaultMaxDepth <= 0 {
		cfg.DefaultMaxDepth = 2
	}
	if cfg.ExcludePatterns == nil {
		cfg.ExcludePatterns = crawler.DefaultExcludePatterns
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "text/html; charset=utf-8"
	}
	s := &Service{
		websites:  websites,
		pages:     pages,
		framework: framework,
		clock:     utcClock{},
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOptions applies the configured defaults to request values. Zero or
// negative request values mean "use the default".
func (s *Service) ResolveOptions(maxPages, maxDepth int) crawler.RunOptions {
	opts := crawler.RunOptions{MaxPages: maxPages, MaxDepth: maxDepth}
	if opts.MaxPages <= 0 {
		opts.MaxPages = s.cfg.DefaultMaxPages
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = s.cfg.DefaultMaxDepth
	}
	return opts
}

// Begin claims the website for crawling. The website must belong to
// projectID; a website that is already crawling yields
// store.ErrCrawlInProgress.
func (s *Service) Begin(ctx context.Context, projectID, websiteID string) (store.Website, error) {
	w, err := s.websites.GetWebsite(ctx, websiteID)
	if err != nil {
		return store.Website{}, err
	}
	if w.ProjectID != projectID {
		return store.Website{}, store.ErrNotFound
	}
	if w.CrawlStatus == store.CrawlCrawling {
		return store.Website{}, store.ErrCrawlInProgress
	}
	claimed, err := s.websites.BeginCrawl(ctx, websiteID)
	if err != nil {
		return store.Website{}, err
	}
	return claimed, nil
}

// Start claims the website and runs the crawl to completion. The run is
// detached from ctx's cancellation.
func (s *Service) Start(ctx context.Context, projectID, websiteID string, opts crawler.RunOptions) (Result, error) {
	w, err := s.Begin(ctx, projectID, websiteID)
	if err != nil {
		return Result{}, err
	}
	return s.Run(ctx, w, opts)
}

// Execute runs a queued crawl. The website was claimed when it was queued, so
// any failure before the run starts releases that claim.
func (s *Service) Execute(ctx context.Context, item crawler.QueueItem) error {
	if err := ctx.Err(); err != nil {
		s.releaseClaim(ctx, item.WebsiteID)
		return fmt.Errorf("crawl %s abandoned: %w", item.WebsiteID, err)
	}
	w, err := s.websites.GetWebsite(ctx, item.WebsiteID)
	if err != nil {
		s.releaseClaim(ctx, item.WebsiteID)
		return fmt.Errorf("load website %s: %w", item.WebsiteID, err)
	}
	_, err = s.Run(ctx, w, item.Options)
	return err
}

// Release moves a claimed website that will not be crawled to failed, so a
// later request can claim it again.
func (s *Service) Release(ctx context.Context, websiteID string) error {
	_, err := s.websites.UpdateCrawlStatus(context.WithoutCancel(ctx), websiteID, store.CrawlFailed, nil)
	if err != nil {
		return fmt.Errorf("release crawl claim %s: %w", websiteID, err)
	}
	return nil
}

func (s *Service) releaseClaim(ctx context.Context, websiteID string) {
	if err := s.Release(ctx, websiteID); err != nil {
		s.logger.Error("release crawl claim failed", zap.String("website_id", websiteID), zap.Error(err))
	}
}

// Run crawls a website already in the crawling state. Pages are processed
// sequentially; per-page failures are counted, not returned. Counters are
// persisted after discovery and after every page so progress can be polled.
func (s *Service) Run(ctx context.Context, w store.Website, opts crawler.RunOptions) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	opts = s.ResolveOptions(opts.MaxPages, opts.MaxDepth)
	logger := s.logger.With(zap.String("website_id", w.ID), zap.String("url", w.URL))

	ctx, span := telemetry.Tracer().Start(ctx, "crawl.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("website.id", w.ID),
		attribute.String("website.url", w.URL),
		attribute.Int("crawl.max_pages", opts.MaxPages),
		attribute.Int("crawl.max_depth", opts.MaxDepth),
	)

	telemetry.IncActiveCrawls()
	defer telemetry.DecActiveCrawls()
	start := time.Now()

	logger.Info("crawl started", zap.Int("max_pages", opts.MaxPages), zap.Int("max_depth", opts.MaxDepth))

	result := Result{WebsiteID: w.ID}
	discovered, err := s.framework.DiscoverPages(ctx, w.URL, crawler.DiscoverOptions{
		MaxPages:            opts.MaxPages,
		MaxDepth:            opts.MaxDepth,
		FollowExternalLinks: false,
		Delay:               s.cfg.Delay,
		IncludePatterns:     s.cfg.IncludePatterns,
		ExcludePatterns:     s.cfg.ExcludePatterns,
	})
	if err != nil {
		logger.Error("discovery failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		s.finish(ctx, w, store.CrawlFailed, nil, result, start)
		return result, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	counters := store.CrawlCounters{TotalPagesDiscovered: len(discovered)}
	result.TotalPages = len(discovered)
	s.saveCounters(ctx, w.ID, counters, logger)

	for _, page := range discovered {
		size, err := s.processPage(ctx, w, page)
		if err != nil {
			counters.PagesFailed++
			logger.Warn("page failed", zap.String("page_url", page.URL), zap.Error(err))
			telemetry.ObservePage(page.URL, string(store.PageFailed), 0)
		} else {
			counters.PagesCrawled++
			telemetry.ObservePage(page.URL, string(store.PageCrawled), size)
		}
		s.saveCounters(ctx, w.ID, counters, logger)
	}
	result.SavedPages = counters.PagesCrawled
	result.FailedPages = counters.PagesFailed
	span.SetAttributes(
		attribute.Int("crawl.pages_saved", result.SavedPages),
		attribute.Int("crawl.pages_failed", result.FailedPages),
	)

	if _, err := s.websites.UpdateCrawlStatus(ctx, w.ID, store.CrawlCompleted, &counters); err != nil {
		logger.Error("failed to record crawl completion", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete crawl")
		s.finish(ctx, w, store.CrawlFailed, &counters, result, start)
		return result, fmt.Errorf("complete crawl: %w", err)
	}
	s.finish(ctx, w, store.CrawlCompleted, nil, result, start)

	logger.Info("crawl completed",
		zap.Int("total_pages", result.TotalPages),
		zap.Int("saved_pages", result.SavedPages),
		zap.Int("failed_pages", result.FailedPages),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// finish records metrics and the notification. When status is failed it also
// writes the failed state, carrying counters if any were collected.
func (s *Service) finish(
	ctx context.Context,
	w store.Website,
	status store.CrawlStatus,
	counters *store.CrawlCounters,
	result Result,
	start time.Time,
) {
	if status == store.CrawlFailed {
		if _, err := s.websites.UpdateCrawlStatus(ctx, w.ID, store.CrawlFailed, counters); err != nil {
			s.logger.Error("failed to mark crawl failed", zap.String("website_id", w.ID), zap.Error(err))
		}
	}
	telemetry.ObserveCrawl(string(status), time.Since(start))
	s.notify(ctx, w, status, result)
}

func (s *Service) notify(ctx context.Context, w store.Website, status store.CrawlStatus, result Result) {
	if s.publisher == nil || s.cfg.Event == "" {
		return
	}
	payload := CompletedNotification{
		ProjectID:   w.ProjectID,
		WebsiteID:   w.ID,
		URL:         w.URL,
		CrawlStatus: status,
		TotalPages:  result.TotalPages,
		SavedPages:  result.SavedPages,
		FailedPages: result.FailedPages,
		FinishedAt:  s.clock.Now(),
	}
	id, err := s.publisher.Publish(ctx, s.cfg.Event, payload)
	if err != nil {
		s.logger.Warn("publish crawl notification failed", zap.String("website_id", w.ID), zap.Error(err))
		return
	}
	s.logger.Debug("crawl notification published", zap.String("message_id", id))
}

func (s *Service) saveCounters(ctx context.Context, websiteID string, c store.CrawlCounters, logger *zap.Logger) {
	if err := s.websites.UpdateCrawlCounters(ctx, websiteID, c); err != nil {
		logger.Warn("failed to persist crawl progress", zap.Error(err))
	}
}

// processPage scrapes and upserts one discovered page and returns the number
// of HTML bytes scraped. A scrape failure is not fatal: the page is saved with
// its discovery metadata. Only a failed upsert counts as a failed page.
func (s *Service) processPage(ctx context.Context, w store.Website, dp crawler.DiscoveredPage) (int, error) {
	now := s.clock.Now()
	page := store.Page{
		WebsiteID:      w.ID,
		URL:            dp.URL,
		Depth:          dp.Depth,
		WordCount:      dp.WordCount,
		LinkCount:      dp.LinkCount,
		ScrapingStatus: store.PageCrawled,
		DiscoveredAt:   &now,
		ScrapedAt:      &now,
	}
	title := dp.Title

	size := 0
	scraped, err := s.framework.ScrapePage(ctx, dp.URL)
	if err != nil {
		s.logger.Warn("scrape failed, keeping discovery metadata",
			zap.String("website_id", w.ID), zap.String("page_url", dp.URL), zap.Error(err))
	} else if scraped.HTML != "" {
		html := scraped.HTML
		size = len(html)
		text := crawler.ExtractText(html)
		page.Content = &text
		page.WordCount = crawler.WordCount(text)
		page.LinkCount = scraped.LinkCount
		if title == "" {
			title = scraped.Title
		}
		if s.cfg.StoreRawHTML {
			page.RawHTML = &html
		}
		s.archive(ctx, w.ID, dp.URL, []byte(html))
	}
	if title != "" {
		page.Title = &title
	}

	if err := s.pages.UpsertPage(ctx, page); err != nil {
		return 0, fmt.Errorf("save page %s: %w", dp.URL, err)
	}
	return size, nil
}

func (s *Service) archive(ctx context.Context, websiteID, pageURL string, html []byte) {
	if s.blobs == nil || s.hasher == nil {
		return
	}
	digest, err := s.hasher.Hash(html)
	if err != nil {
		s.logger.Warn("hash page html failed", zap.String("page_url", pageURL), zap.Error(err))
		return
	}
	key := path.Join(s.cfg.ArchivePrefix, websiteID, digest+".html")
	uri, err := s.blobs.PutObject(ctx, key, s.cfg.ArchiveContentType, html)
	if err != nil {
		s.logger.Warn("archive page html failed", zap.String("page_url", pageURL), zap.Error(err))
		return
	}
	s.logger.Debug("page html archived", zap.String("page_url", pageURL), zap.String("uri", uri))
}
