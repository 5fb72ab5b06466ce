package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hubspot-onboarding/internal/config"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawl"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	queuememory "github.com/JakeFAU/hubspot-onboarding/internal/queue/memory"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

func TestCrawl_SyncRunPersistsPages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")
	base := "/api/projects/" + p.ID + "/websites/" + site.ID

	code, resp := env.do(t, http.MethodPost, base+"/crawl", `{"maxPages":5,"maxDepth":1}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Website crawling completed successfully", resp.Message)
	require.Equal(t, crawl.Result{WebsiteID: site.ID, TotalPages: 2, SavedPages: 2}, decodeData[crawl.Result](t, resp))

	code, resp = env.do(t, http.MethodGet, base+"/crawl", "")
	require.Equal(t, http.StatusOK, code)
	progress := decodeData[store.CrawlProgress](t, resp)
	require.Equal(t, store.CrawlCompleted, progress.CrawlStatus)
	require.Equal(t, 100, progress.ProgressPercent)
	require.Equal(t, 2, progress.Pages.Crawled)

	code, resp = env.do(t, http.MethodGet, base+"/pages", "")
	require.Equal(t, http.StatusOK, code)
	pages := decodeData[pagesResponse](t, resp)
	require.Equal(t, site.ID, pages.WebsiteID)
	require.Equal(t, 2, pages.TotalPages)
	require.Equal(t, "https://acme.test/", pages.Pages[0].URL)
	require.Equal(t, "Acme Welcome to Acme", *pages.Pages[0].Content)
}

func TestCrawl_EmptyBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")

	code, _ := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/websites/"+site.ID+"/crawl", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, env.framework.calls)
}

func TestCrawl_AlreadyCrawling(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")
	_, err := env.store.BeginCrawl(context.Background(), site.ID)
	require.NoError(t, err)

	code, resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/websites/"+site.ID+"/crawl", `{}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "Website is already being crawled", resp.Error)
	require.Zero(t, env.framework.calls)
}

func TestCrawl_UnknownWebsite(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.seedProject(t)

	code, resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/websites/missing/crawl", `{}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Website not found", resp.Error)

	code, _ = env.do(t, http.MethodGet, "/api/projects/"+p.ID+"/websites/missing/pages", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestCrawl_DiscoveryFailureReturnsDetails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.framework.discoverErr = errors.New("fetch root https://acme.test: no such host")
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")

	code, resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/websites/"+site.ID+"/crawl", `{}`)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "Failed to crawl website", resp.Error)
	require.Contains(t, resp.Details, "no such host")

	w, err := env.store.GetWebsite(context.Background(), site.ID)
	require.NoError(t, err)
	require.Equal(t, store.CrawlFailed, w.CrawlStatus)
}

func TestCrawl_AsyncEnqueues(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(4)
	env := newTestEnv(t, func(d *Deps, _ *config.Config) {
		d.Queue = q
	})
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")
	target := "/api/projects/" + p.ID + "/websites/" + site.ID + "/crawl"

	code, resp := env.do(t, http.MethodPost, target, `{"async":true,"maxPages":7}`)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, store.CrawlCrawling, decodeData[store.Website](t, resp).CrawlStatus)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, site.ID, item.WebsiteID)
	require.Equal(t, p.ID, item.ProjectID)
	require.Equal(t, crawler.RunOptions{MaxPages: 7, MaxDepth: 2}, item.Options)
	require.Zero(t, env.framework.calls)

	// The claim is taken before the worker runs.
	code, _ = env.do(t, http.MethodPost, target, `{"async":true}`)
	require.Equal(t, http.StatusConflict, code)
}

func TestCrawl_AsyncFromConfig(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(1)
	env := newTestEnv(t, func(d *Deps, cfg *config.Config) {
		d.Queue = q
		cfg.Crawl.Async = true
	})
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")
	target := "/api/projects/" + p.ID + "/websites/" + site.ID + "/crawl"

	code, _ := env.do(t, http.MethodPost, target, `{}`)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, 1, q.Len())

	// An explicit async=false still runs inline once the claim is released.
	_, err := env.store.UpdateCrawlStatus(context.Background(), site.ID, store.CrawlCompleted, nil)
	require.NoError(t, err)
	code, _ = env.do(t, http.MethodPost, target, `{"async":false}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, env.framework.calls)
}

func TestCrawl_EnqueueFailureReleasesClaim(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(1)
	q.Close()
	env := newTestEnv(t, func(d *Deps, _ *config.Config) {
		d.Queue = q
	})
	p := env.seedProject(t)
	site := env.seedWebsite(t, p.ID, "https://acme.test")

	code, resp := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/websites/"+site.ID+"/crawl", `{"async":true}`)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "Failed to start crawling", resp.Error)

	w, err := env.store.GetWebsite(context.Background(), site.ID)
	require.NoError(t, err)
	require.Equal(t, store.CrawlFailed, w.CrawlStatus)
}
