package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ecommerce-dashboard/internal/cache"
	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/geo"
	"ecommerce-dashboard/internal/middleware"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
	"ecommerce-dashboard/internal/server"
	"ecommerce-dashboard/internal/services"
	"ecommerce-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
	reportsCache  = "reports"
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func newSource(ctx context.Context, cfg *config.Config) (dataset.Source, error) {
	bucket, key, ok := dataset.ParseS3URI(cfg.Data.Source)
	if !ok {
		return dataset.NewFileSource(cfg.Data.Source), nil
	}
	client, err := dataset.NewS3Client(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	return dataset.NewS3Source(client, bucket, key), nil
}

// newReportCache returns the shared Redis cache when one is configured and an
// in-process LRU otherwise. The returned func releases the cache's resources.
func newReportCache(ctx context.Context, cfg config.CacheConfig, manager *cache.Manager, observer cache.Observer, logger *slog.Logger) (cache.Cache[*models.ReportBundle], func(context.Context) error, error) {
	if cfg.RedisURL == "" {
		lru := cache.NewLRUCache[*models.ReportBundle](cfg.ReportCacheSize, cfg.ReportTTL)
		manager.Register(lru)
		return cache.Instrument(reportsCache, lru, observer), func(context.Context) error { return nil }, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisCache := cache.NewRedisCache[*models.ReportBundle](client, "dashboard:report:", cfg.ReportTTL, logger)
	logger.Info("using redis report cache", "ttl", cfg.ReportTTL)
	return cache.Instrument(reportsCache, redisCache, observer), func(context.Context) error { return client.Close() }, nil
}

func newHandler(cfg *config.Config, analytics *services.Analytics, metrics *observability.Metrics, logger *slog.Logger) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}
	srv := server.NewServer(analytics, cfg.Data, logger, templateHandlers, metrics.Handler())

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.Metrics(metrics, srv.Mux()),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"source", cfg.Data.Source,
		"addr", cfg.Address(),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	metrics := observability.NewMetrics()
	manager := cache.NewManager(logger)

	source, err := newSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure data source: %w", err)
	}

	reports, closeReports, err := newReportCache(ctx, cfg.Cache, manager, metrics, logger)
	if err != nil {
		return fmt.Errorf("configure report cache: %w", err)
	}

	opts := []services.Option{
		services.WithSource(source),
		services.WithLoader(dataset.NewLoader(
			dataset.WithWorkers(cfg.Data.ParseWorkers),
			dataset.WithLogger(logger),
		)),
		services.WithResolver(geo.NewMemoResolver(geo.NewFuzzyResolver(), logger)),
		services.WithReportCache(reports),
		services.WithDatasetTTL(cfg.Data.CacheTTL),
		services.WithTopProducts(cfg.Data.TopProducts),
		services.WithMetrics(metrics),
		services.WithCacheObserver(metrics),
		services.WithLogger(logger),
	}
	if cfg.Data.SnapshotDir != "" {
		opts = append(opts, services.WithSnapshots(dataset.NewSnapshotStore(cfg.Data.SnapshotDir)))
	}
	analytics := services.NewAnalytics(opts...)
	manager.Register(analytics.DatasetCache())

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Data.LoadTimeout)
	start := time.Now()
	err = analytics.Load(loadCtx)
	cancel()
	if err != nil {
		_ = closeReports(ctx)
		return fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded successfully", "duration", time.Since(start))

	manager.StartCleanup(cfg.Cache.CleanupInterval)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, analytics, metrics, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook("report-cache", closeReports)
	gracefulServer.RegisterShutdownHook("cache-cleanup", func(ctx context.Context) error {
		manager.Stop()
		return nil
	})

	logger.Info("starting graceful server")
	return gracefulServer.ListenAndServe(ctx)
}
