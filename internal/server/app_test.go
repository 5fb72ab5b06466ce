package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/config"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	localstorage "github.com/JakeFAU/hubspot-onboarding/internal/storage/local"
	"github.com/JakeFAU/hubspot-onboarding/internal/storage/memory"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

func memoryConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 0, RequestTimeoutSeconds: 5},
		Database: database.Config{Memory: true},
		Crawl: config.CrawlConfig{
			MaxPages:       10,
			MaxDepth:       2,
			DelayMs:        0,
			UserAgent:      "test-bot",
			TimeoutSeconds: 5,
			StoreRawHTML:   true,
			Workers:        2,
			QueueDepth:     4,
		},
		Storage:   config.StorageConfig{Backend: "memory", Prefix: "pages"},
		Logging:   config.LoggingConfig{Development: true},
		Telemetry: config.TelemetryConfig{ServiceName: "hubspot-onboarding-test", Version: "test"},
	}
}

func TestBuildInMemory(t *testing.T) {
	app, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.Nil(t, app.pool)
	require.Nil(t, app.browser)
	require.Nil(t, app.publisher)
	require.Equal(t, 2, app.dispatch.Size())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects",
		strings.NewReader(`{"name":"Acme","customer":"Acme","project_owner":"dana"}`))
	app.apiServer.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/database/databases", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err = app.Crawl(context.Background(), "missing", "missing", 0, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildFailsOnUnreachableDatabase(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database = database.Config{Host: "127.0.0.1", Port: 1, Name: "nope", Username: "postgres"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg)
	require.ErrorContains(t, err, "database init failed")
}

func TestSetupStorage(t *testing.T) {
	t.Parallel()

	app := &App{logger: zap.NewNop()}

	app.cfg = memoryConfig()
	app.cfg.Crawl.StoreRawHTML = false
	blobs, err := setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, blobs)

	app.cfg = memoryConfig()
	blobs, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &memory.BlobStore{}, blobs)

	app.cfg.Storage = config.StorageConfig{Backend: "local", Local: localstorage.Config{BaseDir: t.TempDir()}}
	blobs, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &localstorage.BlobStore{}, blobs)

	app.cfg.Storage = config.StorageConfig{Backend: "none"}
	blobs, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, blobs)
}

func TestRunStopsOnCancel(t *testing.T) {
	app, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReleaseQueuedFailsAbandonedRuns(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	p, err := app.repos.projects.CreateProject(ctx, store.NewProject{Name: "Acme", Customer: "Acme", ProjectOwner: "dana"})
	require.NoError(t, err)
	w, err := app.repos.websites.CreateWebsite(ctx, store.NewWebsite{ProjectID: p.ID, URL: "https://acme.test"})
	require.NoError(t, err)

	// Claimed and queued, but the workers never ran.
	_, err = app.crawls.Begin(ctx, p.ID, w.ID)
	require.NoError(t, err)
	require.NoError(t, app.dispatch.Enqueue(ctx, crawler.QueueItem{ProjectID: p.ID, WebsiteID: w.ID}))
	app.queue.Close()

	app.releaseQueued(ctx)

	got, err := app.repos.websites.GetWebsite(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, store.CrawlFailed, got.CrawlStatus)
	require.Zero(t, app.queue.Len())
}
