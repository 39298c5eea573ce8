package models

import "time"

// SystemMetrics is the JSON snapshot served alongside the Prometheus endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64       `json:"requests_total"`
	AverageRequestDurationMs float64      `json:"average_request_duration_ms"`
	CacheHits                uint64       `json:"cache_hits"`
	CacheMisses              uint64       `json:"cache_misses"`
	CacheHitRatio            float64      `json:"cache_hit_ratio"`
	SyncPasses               uint64       `json:"sync_passes"`
	LastSync                 *SyncSummary `json:"last_sync,omitempty"`
	Goroutines               int          `json:"goroutines"`
	GeneratedAt              time.Time    `json:"generated_at"`
}
