package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
)

// Discoverer implements crawler.Discoverer with a breadth-first colly walk.
// The root page is depth 0.
type Discoverer struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, transport: newHTTPTransport(), logger: logger}
}

type visit struct {
	url   string
	depth int
}

// pageResult collects what the callbacks saw for one visit.
type pageResult struct {
	page  crawler.DiscoveredPage
	links []string
	err   error
	ok    bool
}

// DiscoverPages fetches rootURL and follows links breadth first until
// MaxPages pages are found or MaxDepth is exhausted. A failure to fetch the
// root is returned as an error; failures deeper in the site are logged and
// skipped.
func (d *Discoverer) DiscoverPages(
	ctx context.Context,
	rootURL string,
	opts crawler.DiscoverOptions,
) ([]crawler.DiscoveredPage, error) {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid root url %q", rootURL)
	}
	if opts.MaxPages <= 0 {
		return []crawler.DiscoveredPage{}, nil
	}

	collector, current := d.buildCollector(opts)
	matcher := crawler.NewPathMatcher(opts.IncludePatterns, opts.ExcludePatterns)

	rootKey, err := crawler.NormalizeURL(root.String())
	if err != nil {
		return nil, err //nolint:wrapcheck // already wrapped
	}
	seen := map[string]struct{}{rootKey: {}}
	frontier := []visit{{url: rootKey, depth: 0}}
	pages := []crawler.DiscoveredPage{}

	for len(frontier) > 0 && len(pages) < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery canceled: %w", err)
		}
		next := frontier[0]
		frontier = frontier[1:]

		*current = pageResult{page: crawler.DiscoveredPage{URL: next.url, Depth: next.depth}}
		visitErr := collector.Visit(next.url)
		res := *current
		if visitErr != nil && res.err == nil {
			res.err = visitErr
		}
		if res.err != nil || !res.ok {
			if next.depth == 0 {
				if res.err == nil {
					res.err = errors.New("no response")
				}
				return nil, fmt.Errorf("fetch root %s: %w", next.url, res.err)
			}
			d.logger.Debug("discovery fetch failed", zap.String("url", next.url), zap.Error(res.err))
			continue
		}
		pages = append(pages, res.page)

		if next.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range res.links {
			u, err := url.Parse(link)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				continue
			}
			if !opts.FollowExternalLinks && !crawler.SameHost(root, u) {
				continue
			}
			key, err := crawler.NormalizeURL(u.String())
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !matcher.Allowed(key) {
				continue
			}
			frontier = append(frontier, visit{url: key, depth: next.depth + 1})
		}
	}
	return pages, nil
}

// buildCollector returns a fresh synchronous collector whose callbacks
// write into the returned pageResult.
func (d *Discoverer) buildCollector(opts crawler.DiscoverOptions) (*colly.Collector, *pageResult) {
	c := newCollector(d.cfg, d.transport)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: opts.Delay}); err != nil {
		d.logger.Warn("configure crawl delay", zap.Error(err))
	}

	current := &pageResult{}
	c.OnResponse(func(r *colly.Response) {
		resp := crawler.FetchResponse{ContentType: responseMediaType(r)}
		if !resp.IsHTML() {
			current.err = fmt.Errorf("skip content type %q", resp.ContentType)
			return
		}
		current.ok = true
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(r.Body)))
		if err != nil {
			return
		}
		current.page.Title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
		doc.Find("script, style, noscript").Remove()
		current.page.WordCount = crawler.WordCount(doc.Find("body").Text())
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		current.page.LinkCount++
		if link := e.Request.AbsoluteURL(e.Attr("href")); link != "" {
			current.links = append(current.links, link)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		current.err = err
	})
	return c, current
}
