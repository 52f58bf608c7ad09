// Package engine is the public façade over the asset delivery pipeline:
// cache, compression negotiation, retrying source routing, dependency
// resolution, scheduled batch loading, and metrics.
package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/assetflow/assetflow/internal/cache"
	"github.com/assetflow/assetflow/internal/compression"
	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/internal/manifest"
	"github.com/assetflow/assetflow/internal/metrics"
	"github.com/assetflow/assetflow/internal/scheduler"
	"github.com/assetflow/assetflow/internal/source"
	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/retry"
	"github.com/assetflow/assetflow/pkg/types"
)

// Engine is the asset delivery engine. Per-asset failures are reported in
// LoadResult values; the only errors Engine methods return are construction
// and configuration errors.
type Engine struct {
	cfg *config.Config

	cache      types.Cache
	negotiator *compression.Negotiator
	router     *source.Router
	retryer    *retry.Retryer
	resolver   *manifest.Resolver
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Aggregator
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	disposed bool
}

// Option customizes engine construction, mainly for tests.
type Option func(*options)

type options struct {
	httpClient types.HTTPClient
	fallback   source.FallbackTier
	logger     *log.Logger
}

// WithHTTPClient replaces the default HTTP transport.
func WithHTTPClient(client types.HTTPClient) Option {
	return func(o *options) { o.httpClient = client }
}

// WithFallbackTier replaces the S3-backed fallback tier.
func WithFallbackTier(tier source.FallbackTier) Option {
	return func(o *options) { o.fallback = tier }
}

// WithLogger replaces the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New constructs an engine from the configuration. The configuration is
// validated up front; an invalid one fails construction and nothing is
// started.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "assetflow",
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := newCache(cfg.Cache)
	if err != nil {
		cancel()
		return nil, err
	}

	aggregator, err := metrics.NewAggregator(cfg.Metrics)
	if err != nil {
		cancel()
		return nil, err
	}

	negotiator := compression.NewNegotiator(cfg.Compression.Enabled, cfg.Compression.Adaptive)

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = source.NewClient(cfg.Loading.FetchTimeout)
	}

	router := source.NewRouter(cfg.CDN, httpClient, logger)
	router.SetRequestHeaders(negotiator.RequestHeaders)
	router.SetMetrics(aggregator)

	switch {
	case o.fallback != nil:
		router.SetFallback(o.fallback)
	case cfg.CDN.Fallback.Configured():
		tier, err := source.NewS3Fallback(ctx, cfg.CDN.Fallback)
		if err != nil {
			cancel()
			_ = aggregator.Stop(context.Background())
			return nil, err
		}
		router.SetFallback(tier)
	}

	retryer := retry.New(retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Strategy:   retry.Strategy(cfg.Retry.Strategy),
		Jitter:     true,
	})

	e := &Engine{
		cfg:        cfg,
		cache:      store,
		negotiator: negotiator,
		router:     router,
		retryer:    retryer,
		resolver:   manifest.NewResolver(),
		metrics:    aggregator,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	e.scheduler = scheduler.New(cfg.Loading.MaxConcurrentLoads, e.loadOne, logger)
	e.scheduler.SetMetrics(aggregator)

	logger.Info("engine started",
		"endpoints", len(cfg.CDN.Endpoints),
		"cache_bytes", cfg.Cache.MaxSize,
		"max_concurrent", cfg.Loading.MaxConcurrentLoads)

	return e, nil
}

func newCache(cfg config.CacheConfig) (types.Cache, error) {
	if cfg.Strategy == config.StrategyHybrid {
		return cache.NewHybrid(cfg.MaxSize, cfg.Directory)
	}
	return cache.NewStore(cfg.MaxSize), nil
}

// LoadAsset loads one asset through the full pipeline: cache lookup, routed
// fetch with retries, compression accounting, cache population, and metrics.
// The result carries any failure; the method itself never returns an error
// for per-asset failures.
func (e *Engine) LoadAsset(ctx context.Context, ref types.AssetReference) *types.LoadResult {
	if err := e.guard(); err != nil {
		return failedResult(ref.URL, err)
	}
	joined, cancel := e.joined(ctx)
	defer cancel()
	return e.loadOne(joined, ref)
}

// LoadAssetsFromManifest validates, orders, and loads a whole manifest.
// Structural manifest errors (unknown dependency targets, cycles) fail the
// call before any fetch starts.
func (e *Engine) LoadAssetsFromManifest(ctx context.Context, m *types.AssetManifest) (*types.ManifestReport, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	plan, err := e.resolver.Resolve(m)
	if err != nil {
		e.metrics.RecordError(string(errors.CodeOf(err)))
		return nil, err
	}

	e.logger.Info("loading manifest",
		"assets", plan.TotalAssets,
		"groups", len(plan.Groups),
		"critical_path", len(plan.CriticalPath))

	joined, cancel := e.joined(ctx)
	defer cancel()
	report := e.scheduler.Run(joined, plan)

	e.logger.Info("manifest loaded",
		"succeeded", len(report.Successful),
		"failed", len(report.Failed),
		"elapsed", report.Progress.Elapsed)
	return report, nil
}

// PreloadCriticalAssets warms the cache for the given references. Assets
// are fetched concurrently up to the configured pool size; results report
// per-asset success. Every successfully preloaded asset is cached by the
// time this returns.
func (e *Engine) PreloadCriticalAssets(ctx context.Context, refs []types.AssetReference) []*types.LoadResult {
	if err := e.guard(); err != nil {
		results := make([]*types.LoadResult, len(refs))
		for i, ref := range refs {
			results[i] = failedResult(ref.URL, err)
		}
		return results
	}

	joined, cancel := e.joined(ctx)
	defer cancel()
	results := make([]*types.LoadResult, len(refs))
	sem := make(chan struct{}, e.cfg.Loading.MaxConcurrentLoads)
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref types.AssetReference) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.loadOne(joined, ref)
		}(i, ref)
	}
	wg.Wait()
	return results
}

// loadOne is the single-asset pipeline shared by every load path.
func (e *Engine) loadOne(ctx context.Context, ref types.AssetReference) *types.LoadResult {
	start := time.Now()

	if data, ok := e.cache.Get(ref.URL); ok {
		e.metrics.RecordCacheHit()
		e.metrics.RecordLoad(types.SourceCache, time.Since(start), int64(len(data)), true)
		return &types.LoadResult{
			URL:       ref.URL,
			Success:   true,
			Data:      data,
			Source:    types.SourceCache,
			LoadTime:  time.Since(start),
			SizeBytes: int64(len(data)),
		}
	}
	e.metrics.RecordCacheMiss()

	var fetched *types.FetchResult
	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		result, fetchErr := e.router.Fetch(ctx, ref.URL)
		if fetchErr != nil {
			return fetchErr
		}
		fetched = result
		return nil
	})
	if err != nil {
		e.metrics.RecordError(string(errors.CodeOf(err)))
		e.metrics.RecordLoad(types.SourceNone, time.Since(start), 0, false)
		e.logger.Warn("asset load failed", "url", ref.URL, "err", err)
		res := failedResult(ref.URL, err)
		res.LoadTime = time.Since(start)
		return res
	}

	compressed, _ := e.negotiator.Observe(
		fetched.ContentEncoding, int64(len(fetched.Data)), fetched.ReceivedBytes)

	e.cache.Put(ref.URL, fetched.Data, compressed)
	e.metrics.UpdateCacheSize(e.cache.Size())
	e.metrics.RecordLoad(fetched.Source, time.Since(start), int64(len(fetched.Data)), true)

	return &types.LoadResult{
		URL:             ref.URL,
		Success:         true,
		Data:            fetched.Data,
		Source:          fetched.Source,
		LoadTime:        time.Since(start),
		SizeBytes:       int64(len(fetched.Data)),
		CompressionUsed: compressed,
	}
}

// GetCacheStatistics returns a snapshot of cache performance.
func (e *Engine) GetCacheStatistics() types.CacheStats {
	return e.cache.Stats()
}

// GetPerformanceMetrics returns the lifetime load metrics.
func (e *Engine) GetPerformanceMetrics() types.PerformanceMetrics {
	return e.metrics.Snapshot()
}

// GetLoadingMetrics returns the progress of the current or most recent
// manifest batch.
func (e *Engine) GetLoadingMetrics() types.LoadingMetrics {
	return e.scheduler.Progress()
}

// GetCDNHealthStatus returns a health snapshot per configured endpoint.
func (e *Engine) GetCDNHealthStatus() []types.EndpointHealth {
	return e.router.HealthStatus()
}

// GetCompressionStatistics returns transport compression observations.
func (e *Engine) GetCompressionStatistics() types.CompressionStats {
	return e.negotiator.Stats()
}

// ClearCache drops every cached payload. Lifetime counters are preserved.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.metrics.UpdateCacheSize(0)
	e.logger.Info("cache cleared")
}

// Dispose stops the engine: in-flight loads are canceled and the metrics
// endpoint shuts down. Cached payloads are kept unless clearCache is set,
// so a successor engine sharing the store starts warm. Dispose is
// idempotent.
func (e *Engine) Dispose(ctx context.Context, clearCache bool) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	e.mu.Unlock()

	e.cancel()
	if clearCache {
		e.cache.Clear()
	}
	err := e.metrics.Stop(ctx)
	e.logger.Info("engine disposed", "cache_cleared", clearCache)
	return err
}

// guard rejects operations on a disposed engine.
func (e *Engine) guard() *errors.AssetError {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return errors.NewError(errors.ErrCodeOperationCanceled, "engine is disposed")
	}
	return nil
}

// joined derives a context canceled by either the caller or Dispose. The
// returned cancel releases the bridging goroutine and must always be called.
func (e *Engine) joined(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return e.ctx, func() {}
	}
	merged, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-e.ctx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

func failedResult(url string, err error) *types.LoadResult {
	assetErr, ok := err.(*errors.AssetError)
	if !ok {
		assetErr = errors.NewError(errors.ErrCodeInternalError, err.Error()).WithURL(url)
	}
	return &types.LoadResult{URL: url, Success: false, Error: assetErr}
}
