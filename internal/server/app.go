// Package server builds the onboarding service's dependency graph and runs
// its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/api"
	"github.com/JakeFAU/hubspot-onboarding/internal/clock/system"
	"github.com/JakeFAU/hubspot-onboarding/internal/config"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawl"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/hubspot-onboarding/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hubspot-onboarding/internal/fetcher/headless"
	"github.com/JakeFAU/hubspot-onboarding/internal/hash/sha256"
	"github.com/JakeFAU/hubspot-onboarding/internal/headless/detector"
	"github.com/JakeFAU/hubspot-onboarding/internal/id/uuid"
	"github.com/JakeFAU/hubspot-onboarding/internal/logging"
	"github.com/JakeFAU/hubspot-onboarding/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/hubspot-onboarding/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/hubspot-onboarding/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/hubspot-onboarding/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hubspot-onboarding/internal/storage/local"
	"github.com/JakeFAU/hubspot-onboarding/internal/storage/memory"
	pgstore "github.com/JakeFAU/hubspot-onboarding/internal/storage/postgres"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
	"github.com/JakeFAU/hubspot-onboarding/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// repositories groups the three record stores so the postgres and memory
// backends can be swapped as a unit.
type repositories struct {
	projects store.ProjectRepository
	websites store.WebsiteRepository
	pages    store.PageRepository
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	pool           *pgxpool.Pool
	repos          repositories
	browser        store.DatabaseBrowser
	crawls         *crawl.Service
	queue          *queuememory.Queue
	dispatch       *dispatcher.Dispatcher
	apiServer      *api.Server
	headless       *headlessfetcher.Fetcher
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	storage        *storage.Client
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. On error, everything opened
// so far is released.
func Build(ctx context.Context, cfg config.Config) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()

	tp, err := telemetry.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("crawl_async", cfg.Crawl.Async),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return nil, err
	}

	app.crawls = setupCrawlService(app, setupFramework(app), blobStore)

	app.queue = queuememory.NewQueue(cfg.Crawl.QueueDepth)
	app.dispatch = dispatcher.NewPool(app.queue, app.crawls, cfg.Crawl.Workers,
		dispatcher.WithLogger(logger.Named("worker")),
	)

	deps := api.Deps{
		Projects: app.repos.projects,
		Websites: app.repos.websites,
		Pages:    app.repos.pages,
		Browser:  app.browser,
		Crawls:   app.crawls,
		Queue:    app.dispatch,
	}
	if app.pool != nil {
		deps.DB = app.pool
	}
	app.apiServer = api.NewServer(deps, cfg, logger.Named("api"))
	return app, nil
}

// Crawl runs one synchronous crawl. Zero limits fall back to the configured
// defaults.
func (a *App) Crawl(ctx context.Context, projectID, websiteID string, maxPages, maxDepth int) (crawl.Result, error) {
	opts := a.crawls.ResolveOptions(maxPages, maxDepth)
	a.logger.Info("starting crawl", append(logging.Website(projectID, websiteID),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("max_depth", opts.MaxDepth),
	)...)
	result, err := a.crawls.Start(ctx, projectID, websiteID, opts)
	if err != nil {
		return crawl.Result{}, fmt.Errorf("crawl website %s: %w", websiteID, err)
	}
	return result, nil
}

// Run starts the worker pool and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workers stop when the queue is closed and drained, not on the signal,
	// so accepted crawls are not abandoned in the crawling state.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("worker pool started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline", zap.Int("queued", a.queue.Len()))
		cancelWorkers()
		<-workersDone
	}
	a.releaseQueued(shutdownCtx)

	return a.Close(shutdownCtx)
}

// releaseQueued fails every run that was accepted but never started, so its
// website is not left claimed across restarts.
func (a *App) releaseQueued(ctx context.Context) {
	for _, item := range a.queue.Drain() {
		a.logger.Warn("abandoning queued crawl at shutdown", logging.Website(item.ProjectID, item.WebsiteID)...)
		if err := a.crawls.Release(ctx, item.WebsiteID); err != nil {
			a.logger.Error("release crawl claim failed", zap.String("website_id", item.WebsiteID), zap.Error(err))
		}
	}
}

// Close releases infrastructure clients. It is safe to call after Run.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync on a console sink returns EINVAL on some platforms; nothing to do about it.
	_ = a.logger.Sync()
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.Memory {
		app.logger.Warn("using in-memory repositories; records are lost on restart")
		st := memory.NewStore(uuid.New(), system.New())
		app.repos = repositories{projects: st, websites: st, pages: st}
		return nil
	}

	dbCfg, resolveErr := app.cfg.Database.Resolve()
	if resolveErr != nil {
		app.logger.Warn("DATABASE_URL is invalid, using discrete DB_* settings", zap.Error(resolveErr))
	}
	pool, err := database.NewPool(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	app.pool = pool
	app.repos = repositories{
		projects: pgstore.NewProjectStore(pool, app.logger.Named("projects")),
		websites: pgstore.NewWebsiteStore(pool, app.logger.Named("websites")),
		pages:    pgstore.NewPageStore(pool),
	}
	app.browser = pgstore.NewBrowser(dbCfg, app.logger.Named("browser"))
	app.logger.Info("database connected", zap.String("target", dbCfg.Target()))
	return nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	if !app.cfg.Crawl.StoreRawHTML {
		return nil, nil
	}
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS archive backend", zap.String("bucket", app.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		app.logger.Info("using local archive backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
		blobStore, err := localstorage.New(app.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case "memory":
		app.logger.Info("using in-memory archive backend")
		return memory.NewBlobStore(), nil
	default:
		app.logger.Debug("raw HTML archiving disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, crawl notifications disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.publisher = gcppublisher.New(client.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupFramework(app *App) crawler.Framework {
	fetchCfg := collyfetcher.Config{
		UserAgent:     app.cfg.Crawl.UserAgent,
		RespectRobots: app.cfg.Crawl.RespectRobots,
		Timeout:       app.cfg.CrawlTimeout(),
	}
	opts := []crawler.FrameworkOption{
		crawler.WithLimiter(ratelimit.New(ratelimit.Config{Delay: app.cfg.CrawlDelay()})),
		crawler.WithLogger(app.logger.Named("framework")),
	}
	if app.cfg.Headless.Enabled {
		hf, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         app.cfg.Crawl.UserAgent,
			NavigationTimeout: time.Duration(app.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			app.headless = hf
			opts = append(opts, crawler.WithHeadless(hf, detector.NewHeuristic(app.cfg.Headless.PromotionThresh)))
			app.logger.Info("headless promotion enabled", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
		}
	}
	return crawler.NewWebFramework(
		collyfetcher.NewDiscoverer(fetchCfg, app.logger.Named("discoverer")),
		collyfetcher.New(fetchCfg),
		opts...,
	)
}

func setupCrawlService(app *App, framework crawler.Framework, blobStore crawler.BlobStore) *crawl.Service {
	crawlCfg := crawl.Config{
		DefaultMaxPages:    app.cfg.Crawl.MaxPages,
		DefaultMaxDepth:    app.cfg.Crawl.MaxDepth,
		Delay:              app.cfg.CrawlDelay(),
		IncludePatterns:    app.cfg.Crawl.IncludePatterns,
		ExcludePatterns:    app.cfg.Crawl.ExcludePatterns,
		StoreRawHTML:       app.cfg.Crawl.StoreRawHTML,
		ArchivePrefix:      app.cfg.Storage.Prefix,
		ArchiveContentType: app.cfg.Storage.ContentType,
	}
	opts := []crawl.Option{
		crawl.WithClock(system.New()),
		crawl.WithLogger(app.logger.Named("crawl")),
	}
	if blobStore != nil {
		opts = append(opts, crawl.WithArchive(blobStore, sha256.New()))
	}
	if app.publisher != nil {
		crawlCfg.Event = crawl.CompletedEvent
		opts = append(opts, crawl.WithPublisher(app.publisher))
	}
	app.logger.Info("crawl defaults",
		zap.Int("max_pages", crawlCfg.DefaultMaxPages),
		zap.Int("max_depth", crawlCfg.DefaultMaxDepth),
		zap.Duration("delay", crawlCfg.Delay),
		zap.Bool("store_raw_html", crawlCfg.StoreRawHTML),
	)
	return crawl.NewService(app.repos.websites, app.repos.pages, framework, crawlCfg, opts...)
}
