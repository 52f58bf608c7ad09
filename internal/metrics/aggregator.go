// Package metrics accumulates load observations and exposes rolling statistics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

// Aggregator accumulates counters and timers from every load attempt and
// exposes read-only snapshots. Counters never reset implicitly; Reset is
// only called from the engine's dispose path.
type Aggregator struct {
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry

	// Prometheus metrics
	loadCounter     *prometheus.CounterVec
	attemptCounter  *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	loadSize        prometheus.Histogram
	cacheCounter    *prometheus.CounterVec
	cacheSizeGauge  prometheus.Gauge
	errorCounter    *prometheus.CounterVec
	endpointLatency *prometheus.HistogramVec

	// Internal tracking
	totalLoads      uint64
	successfulLoads uint64
	failedLoads     uint64
	totalAttempts   uint64
	failedAttempts  uint64
	totalLoadTime   time.Duration
	totalBytes      int64
	cacheHits       uint64
	cacheMisses     uint64
	latencySum      time.Duration
	latencyCount    uint64
	errorCounts     map[errors.ErrorCode]uint64
	loadsBySource   map[types.Source]uint64
	since           time.Time

	// HTTP server for the scrape endpoint
	server *http.Server
}

// NewAggregator creates a metrics aggregator. A disabled aggregator
// accepts observations and drops them.
func NewAggregator(cfg config.MetricsConfig) (*Aggregator, error) {
	a := &Aggregator{
		enabled:       cfg.Enabled,
		errorCounts:   make(map[errors.ErrorCode]uint64),
		loadsBySource: make(map[types.Source]uint64),
		since:         time.Now(),
	}
	if !cfg.Enabled {
		return a, nil
	}

	for _, code := range errors.Codes() {
		a.errorCounts[code] = 0
	}

	a.registry = prometheus.NewRegistry()
	a.initMetrics(cfg.Namespace)
	if err := a.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	if cfg.Port > 0 {
		a.startServer(cfg.Port)
	}

	return a, nil
}

func (a *Aggregator) initMetrics(namespace string) {
	a.loadCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Total number of asset load attempts",
		},
		[]string{"source", "status"},
	)

	a.attemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of source attempts by tier",
		},
		[]string{"source", "status"},
	)

	a.loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of asset loads in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"source"},
	)

	a.loadSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_size_bytes",
			Help:      "Size of loaded assets in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 16), // 1KB to ~64MB
		},
	)

	a.cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"result"},
	)

	a.cacheSizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_size_bytes",
			Help:      "Current cache size in bytes",
		},
	)

	a.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of load errors by kind",
		},
		[]string{"code"},
	)

	a.endpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_latency_seconds",
			Help:      "Observed network latency per endpoint",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"endpoint"},
	)
}

func (a *Aggregator) registerMetrics() error {
	collectors := []prometheus.Collector{
		a.loadCounter,
		a.attemptCounter,
		a.loadDuration,
		a.loadSize,
		a.cacheCounter,
		a.cacheSizeGauge,
		a.errorCounter,
		a.endpointLatency,
	}
	for _, c := range collectors {
		if err := a.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) startServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The scrape endpoint is best-effort; the engine keeps working
			_ = err
		}
	}()
}

// Stop shuts down the scrape endpoint, if one was started.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// RecordLoad records one load attempt with its tier, duration, and size.
func (a *Aggregator) RecordLoad(source types.Source, duration time.Duration, size int64, success bool) {
	if !a.enabled {
		return
	}

	a.mu.Lock()
	a.totalLoads++
	if success {
		a.successfulLoads++
		a.totalBytes += size
	} else {
		a.failedLoads++
	}
	a.totalLoadTime += duration
	a.loadsBySource[source]++
	a.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	a.loadCounter.With(prometheus.Labels{"source": string(source), "status": status}).Inc()
	a.loadDuration.With(prometheus.Labels{"source": string(source)}).Observe(duration.Seconds())
	if size > 0 {
		a.loadSize.Observe(float64(size))
	}
}

// RecordAttempt counts one source attempt by tier and outcome.
func (a *Aggregator) RecordAttempt(source types.Source, success bool) {
	if !a.enabled {
		return
	}

	a.mu.Lock()
	a.totalAttempts++
	if !success {
		a.failedAttempts++
	}
	a.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	a.attemptCounter.With(prometheus.Labels{"source": string(source), "status": status}).Inc()
}

// RecordError counts one error by kind.
func (a *Aggregator) RecordError(code string) {
	if !a.enabled {
		return
	}

	a.mu.Lock()
	a.errorCounts[errors.ErrorCode(code)]++
	a.mu.Unlock()

	a.errorCounter.With(prometheus.Labels{"code": code}).Inc()
}

// RecordCacheHit counts one cache hit.
func (a *Aggregator) RecordCacheHit() {
	if !a.enabled {
		return
	}
	a.mu.Lock()
	a.cacheHits++
	a.mu.Unlock()
	a.cacheCounter.With(prometheus.Labels{"result": "hit"}).Inc()
}

// RecordCacheMiss counts one cache miss.
func (a *Aggregator) RecordCacheMiss() {
	if !a.enabled {
		return
	}
	a.mu.Lock()
	a.cacheMisses++
	a.mu.Unlock()
	a.cacheCounter.With(prometheus.Labels{"result": "miss"}).Inc()
}

// RecordLatency records the observed network latency for one endpoint.
func (a *Aggregator) RecordLatency(endpoint string, latency time.Duration) {
	if !a.enabled {
		return
	}
	a.mu.Lock()
	a.latencySum += latency
	a.latencyCount++
	a.mu.Unlock()
	a.endpointLatency.With(prometheus.Labels{"endpoint": endpoint}).Observe(latency.Seconds())
}

// UpdateCacheSize reflects the current cache size on the gauge.
func (a *Aggregator) UpdateCacheSize(size int64) {
	if !a.enabled {
		return
	}
	a.cacheSizeGauge.Set(float64(size))
}

// Snapshot returns the lifetime performance metrics.
func (a *Aggregator) Snapshot() types.PerformanceMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := types.PerformanceMetrics{
		TotalLoads:      a.totalLoads,
		SuccessfulLoads: a.successfulLoads,
		FailedLoads:     a.failedLoads,
		TotalAttempts:   a.totalAttempts,
		FailedAttempts:  a.failedAttempts,
		TotalBytes:      a.totalBytes,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ErrorCounts:     make(map[errors.ErrorCode]uint64, len(a.errorCounts)),
		LoadsBySource:   make(map[types.Source]uint64, len(a.loadsBySource)),
		MeasuredSince:   a.since,
	}
	if a.totalLoads > 0 {
		m.AverageLoadTime = a.totalLoadTime / time.Duration(a.totalLoads)
	}
	if total := a.cacheHits + a.cacheMisses; total > 0 {
		m.CacheHitRate = float64(a.cacheHits) / float64(total)
	}
	if a.latencyCount > 0 {
		m.AverageLatency = a.latencySum / time.Duration(a.latencyCount)
	}
	for code, count := range a.errorCounts {
		m.ErrorCounts[code] = count
	}
	for source, count := range a.loadsBySource {
		m.LoadsBySource[source] = count
	}
	return m
}

// Reset clears the internal counters. Prometheus counters are cumulative
// by design and are left alone.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalLoads = 0
	a.successfulLoads = 0
	a.failedLoads = 0
	a.totalAttempts = 0
	a.failedAttempts = 0
	a.totalLoadTime = 0
	a.totalBytes = 0
	a.cacheHits = 0
	a.cacheMisses = 0
	a.latencySum = 0
	a.latencyCount = 0
	a.errorCounts = make(map[errors.ErrorCode]uint64)
	for _, code := range errors.Codes() {
		a.errorCounts[code] = 0
	}
	a.loadsBySource = make(map[types.Source]uint64)
	a.since = time.Now()
}
