package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hubspot-onboarding/internal/config"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawl"
)

type fakeApp struct {
	cfg      config.Config
	ran      bool
	closed   bool
	crawlErr error
	gotCrawl []any
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) Crawl(_ context.Context, projectID, websiteID string, maxPages, maxDepth int) (crawl.Result, error) {
	f.gotCrawl = []any{projectID, websiteID, maxPages, maxDepth}
	if f.crawlErr != nil {
		return crawl.Result{}, f.crawlErr
	}
	return crawl.Result{WebsiteID: websiteID, TotalPages: 4, SavedPages: 3, FailedPages: 1}, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// withFakeApp swaps the app factory; tests using it must not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		app.cfg = cfg
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsSummary(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	out, err := execute(t, "crawl", "--project", "p1", "--website", "w1", "--max-pages", "4")
	require.NoError(t, err)
	require.Equal(t, []any{"p1", "w1", 4, 0}, app.gotCrawl)
	require.True(t, app.closed)

	var result crawl.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, crawl.Result{WebsiteID: "w1", TotalPages: 4, SavedPages: 3, FailedPages: 1}, result)
}

func TestCrawlCommandRequiresIDs(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "crawl", "--project", "p1")
	require.ErrorContains(t, err, `required flag(s) "website" not set`)
}

func TestCrawlCommandReturnsCrawlError(t *testing.T) {
	app := &fakeApp{crawlErr: errors.New("crawl website w1: not found")}
	withFakeApp(t, app)

	_, err := execute(t, "crawl", "--project", "p1", "--website", "w1")
	require.ErrorContains(t, err, "not found")
	require.True(t, app.closed)
}

func TestServeCommandLoadsConfigFile(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	path := filepath.Join(t.TempDir(), "onboarding.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\ncrawl:\n  workers: 3\n"), 0o600))

	_, err := execute(t, "serve", "--config", path)
	require.NoError(t, err)
	require.True(t, app.ran)
	require.Equal(t, 9191, app.cfg.Server.Port)
	require.Equal(t, 3, app.cfg.Crawl.Workers)
}

func TestServeCommandRejectsBadConfig(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}
