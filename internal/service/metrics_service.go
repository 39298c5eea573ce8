package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

// Outcome labels for sync passes and digest sends.
const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	syncRuns        *prometheus.CounterVec
	syncDuration    prometheus.Observer
	syncChanges     *prometheus.CounterVec
	syncRowErrors   prometheus.Counter
	digestSends     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	syncPassCount        uint64

	mu       sync.RWMutex
	lastSync *models.SyncSummary
}

// NewMetricsService registers the service collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_cache_latency_seconds",
		Help:    "Latency for roster cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_cache_write_seconds",
		Help:    "Latency for roster cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_cache_hits_total",
		Help: "Total roster cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_cache_misses_total",
		Help: "Total roster cache misses",
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_sync_runs_total",
		Help: "Reconciliation passes by outcome",
	}, []string{"outcome"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_sync_duration_seconds",
		Help:    "Wall time of reconciliation passes",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	syncChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_sync_changes_total",
		Help: "Rows changed by reconciliation passes",
	}, []string{"entity", "change"})

	syncRowErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_sync_row_errors_total",
		Help: "Row-level faults collected by reconciliation passes",
	})

	digestSends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_digest_sends_total",
		Help: "Daily roster digest attempts by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		syncRuns, syncDuration, syncChanges, syncRowErrors, digestSends, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		syncRuns:        syncRuns,
		syncDuration:    syncDuration,
		syncChanges:     syncChanges,
		syncRowErrors:   syncRowErrors,
		digestSends:     digestSends,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite records cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSyncPass records the outcome of one reconciliation pass and keeps it for snapshots.
func (m *MetricsService) RecordSyncPass(summary models.SyncSummary) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	switch {
	case summary.Failed():
		outcome = outcomeFailed
	case summary.ErrorCount > 0:
		outcome = outcomePartial
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	m.syncDuration.Observe(float64(summary.ElapsedMS) / 1000)
	m.syncRowErrors.Add(float64(summary.ErrorCount))

	m.syncChanges.WithLabelValues("class", "inserted").Add(float64(summary.Classes.Inserted))
	m.syncChanges.WithLabelValues("class", "updated").Add(float64(summary.Classes.Updated))
	m.syncChanges.WithLabelValues("class", "deactivated").Add(float64(summary.Classes.Deactivated))
	m.syncChanges.WithLabelValues("enrollment", "inserted").Add(float64(summary.Enrollments.Inserted))
	m.syncChanges.WithLabelValues("enrollment", "updated").Add(float64(summary.Enrollments.Updated))
	m.syncChanges.WithLabelValues("enrollment", "deactivated").Add(float64(summary.Enrollments.Deactivated))

	atomic.AddUint64(&m.syncPassCount, 1)
	m.mu.Lock()
	last := summary
	m.lastSync = &last
	m.mu.Unlock()
}

// RecordDigest records one digest attempt.
func (m *MetricsService) RecordDigest(outcome string) {
	if m == nil {
		return
	}
	m.digestSends.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated metrics suitable for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.mu.RLock()
	last := m.lastSync
	m.mu.RUnlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		SyncPasses:               atomic.LoadUint64(&m.syncPassCount),
		LastSync:                 last,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
