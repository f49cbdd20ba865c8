package models

import "time"

// SystemMetrics is a JSON view over the process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SnapshotLoads            uint64    `json:"snapshot_loads"`
	SnapshotLoadFailures     uint64    `json:"snapshot_load_failures"`
	SkippedRecords           uint64    `json:"skipped_records"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
