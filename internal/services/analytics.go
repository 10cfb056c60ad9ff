package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecommerce-dashboard/internal/cache"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/geo"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
)

const (
	defaultDatasetTTL = time.Hour
	datasetCacheName  = "dataset"
)

var ErrNoSource = errors.New("no data source configured")

// Recorder receives pipeline measurements.
type Recorder interface {
	DatasetLoad(result string, duration time.Duration)
	PipelineRun(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) DatasetLoad(string, time.Duration) {}
func (nopRecorder) PipelineRun(time.Duration)         {}

type loadInfo struct {
	at           time.Time
	duration     time.Duration
	records      int
	fromSnapshot bool
	err          string
}

// Analytics runs the dashboard pipeline over a cached dataset.
type Analytics struct {
	source    dataset.Source
	loader    *dataset.Loader
	resolver  geo.Resolver
	snapshots *dataset.SnapshotStore
	datasets  *cache.Memo[*models.Dataset]
	reports   cache.Cache[*models.ReportBundle]
	metrics   Recorder
	logger    *slog.Logger

	datasetTTL  time.Duration
	topProducts int
	observer    cache.Observer

	mu       sync.RWMutex
	fixed    *models.Dataset
	current  *models.Dataset
	lastLoad loadInfo
}

type Option func(*Analytics)

func WithSource(src dataset.Source) Option {
	return func(a *Analytics) { a.source = src }
}

func WithLoader(l *dataset.Loader) Option {
	return func(a *Analytics) { a.loader = l }
}

func WithResolver(r geo.Resolver) Option {
	return func(a *Analytics) { a.resolver = r }
}

func WithSnapshots(s *dataset.SnapshotStore) Option {
	return func(a *Analytics) { a.snapshots = s }
}

// WithReportCache caches assembled reports keyed by dataset fingerprint and
// filter.
func WithReportCache(c cache.Cache[*models.ReportBundle]) Option {
	return func(a *Analytics) { a.reports = c }
}

func WithDatasetTTL(ttl time.Duration) Option {
	return func(a *Analytics) { a.datasetTTL = ttl }
}

func WithTopProducts(n int) Option {
	return func(a *Analytics) { a.topProducts = n }
}

func WithMetrics(r Recorder) Option {
	return func(a *Analytics) { a.metrics = r }
}

// WithCacheObserver reports dataset cache hits and misses.
func WithCacheObserver(o cache.Observer) Option {
	return func(a *Analytics) { a.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analytics) { a.logger = l }
}

func NewAnalytics(opts ...Option) *Analytics {
	a := &Analytics{
		metrics:     nopRecorder{},
		logger:      slog.Default(),
		datasetTTL:  defaultDatasetTTL,
		topProducts: DefaultTopProducts,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loader == nil {
		a.loader = dataset.NewLoader(dataset.WithLogger(a.logger))
	}
	if a.resolver == nil {
		a.resolver = geo.NewMemoResolver(geo.NewFuzzyResolver(), a.logger)
	}
	a.datasets = cache.NewMemo[*models.Dataset](datasetCacheName, 4, a.datasetTTL, a.observer)
	return a
}

// DatasetCache exposes the dataset memo for expiry cleanup.
func (a *Analytics) DatasetCache() cache.Cleaner {
	return a.datasets
}

// SetData replaces the source with an in-memory dataset built from records.
func (a *Analytics) SetData(records []models.Record) {
	ds := models.NewDataset(records, models.SourceColumns, "memory:"+uuid.NewString())
	ds = Enrich(ds, a.resolver)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixed = ds
	a.current = ds
	a.lastLoad = loadInfo{at: time.Now(), records: ds.Len()}
}

// Load warms the dataset cache.
func (a *Analytics) Load(ctx context.Context) error {
	_, err := a.Dataset(ctx)
	return err
}

// Dataset returns the enriched dataset, loading it when the cached copy is
// missing, expired, or stale against the source fingerprint.
func (a *Analytics) Dataset(ctx context.Context) (*models.Dataset, error) {
	a.mu.RLock()
	fixed := a.fixed
	a.mu.RUnlock()
	if fixed != nil {
		return fixed, nil
	}
	if a.source == nil {
		return nil, ErrNoSource
	}

	fingerprint, err := a.source.Fingerprint(ctx)
	if err != nil {
		a.recordFailure(err)
		return nil, err
	}

	ds, _, err := a.datasets.Do(ctx, fingerprint, func(ctx context.Context) (*models.Dataset, error) {
		return a.buildDataset(ctx, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.current = ds
	a.mu.Unlock()
	return ds, nil
}

// buildDataset loads the source version identified by fingerprint, from a
// snapshot when one exists.
func (a *Analytics) buildDataset(ctx context.Context, fingerprint string) (*models.Dataset, error) {
	ctx, span := observability.StartSpan(ctx, "dataset.load")
	defer span.Finish()
	span.SetTag("source", a.source.Name())

	start := time.Now()

	if a.snapshots != nil {
		if ds, err := a.snapshots.Load(fingerprint); err == nil {
			a.recordLoad(ds, time.Since(start), true)
			a.metrics.DatasetLoad("snapshot", time.Since(start))
			a.logger.Info("loaded dataset snapshot", "source", a.source.Name(), "records", ds.Len())
			return ds, nil
		}
	}

	raw, err := a.loader.LoadVersion(ctx, a.source, fingerprint)
	if err != nil {
		span.SetError(err)
		a.metrics.DatasetLoad("error", time.Since(start))
		a.recordFailure(err)
		a.logger.Error("dataset load failed", "source", a.source.Name(), "error", err)
		return nil, err
	}

	ds := Enrich(raw, a.resolver)
	duration := time.Since(start)
	a.recordLoad(ds, duration, false)
	a.metrics.DatasetLoad("ok", duration)

	if a.snapshots != nil {
		if err := a.snapshots.Save(ds); err != nil {
			a.logger.Warn("failed to save dataset snapshot", "error", err)
		}
	}

	a.logger.Info("dataset ready",
		"source", a.source.Name(),
		"records", ds.Len(),
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(ds.Len())/max(duration.Seconds(), 1e-9)))
	return ds, nil
}

func (a *Analytics) recordLoad(ds *models.Dataset, d time.Duration, fromSnapshot bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLoad = loadInfo{at: time.Now(), duration: d, records: ds.Len(), fromSnapshot: fromSnapshot}
}

func (a *Analytics) recordFailure(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLoad.at = time.Now()
	a.lastLoad.err = err.Error()
}

// Report runs the full pipeline for fs.
func (a *Analytics) Report(ctx context.Context, fs models.FilterState) (*models.ReportBundle, error) {
	ds, err := a.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	key := ds.Fingerprint + "|" + fs.Key()
	if a.reports != nil {
		if bundle, ok := a.reports.Get(ctx, key); ok {
			return bundle, nil
		}
	}

	_, span := observability.StartSpan(ctx, "report.assemble")
	span.SetTag("filter", fs.Key())
	start := time.Now()
	bundle := AssembleReport(ds, fs, ReportOptions{TopProducts: a.topProducts})
	a.metrics.PipelineRun(time.Since(start))
	span.Finish()

	if a.reports != nil {
		a.reports.Set(ctx, key, bundle)
	}
	return bundle, nil
}

func (a *Analytics) Options(ctx context.Context, fs models.FilterState) (models.FilterOptions, error) {
	ds, err := a.Dataset(ctx)
	if err != nil {
		return models.FilterOptions{}, err
	}
	return Options(ds, fs), nil
}

// Sample returns up to n random records of the selection as a dataset with
// the same columns as the source.
func (a *Analytics) Sample(ctx context.Context, fs models.FilterState, n int, rng *rand.Rand) (*models.Dataset, error) {
	ds, err := a.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	records := Sample(Filter(ds, fs), n, rng)
	return models.NewDataset(records, ds.Columns, ds.Fingerprint), nil
}

// Stats reports the state of the cached dataset for monitoring.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"dataset_cache_entries": a.datasets.Size(),
		"last_load": map[string]any{
			"at":            a.lastLoad.at,
			"duration":      a.lastLoad.duration.String(),
			"records":       a.lastLoad.records,
			"from_snapshot": a.lastLoad.fromSnapshot,
			"error":         a.lastLoad.err,
		},
	}
	if a.source != nil {
		stats["source"] = a.source.Name()
	}
	if a.current != nil {
		stats["record_count"] = a.current.Len()
		stats["fingerprint"] = a.current.Fingerprint
		stats["loaded_at"] = a.current.LoadedAt
		stats["columns"] = a.current.Columns
	}
	if m, ok := a.resolver.(*geo.MemoResolver); ok {
		stats["countries_resolved"] = m.Len()
		stats["resolver_failures"] = m.Failures()
	}
	return stats
}
