package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes cache entries, watcher pending ops,
// per-synchronizer mtime-cache size, last full-scan timestamp, and
// per-pool connection counts.
type MetricsCollector struct {
	CacheEntries       prometheus.Gauge
	WatcherPendingOps  *prometheus.GaugeVec
	MtimeCacheSize     *prometheus.GaugeVec
	LastFullScanUnix   *prometheus.GaugeVec
	PoolConnections    *prometheus.GaugeVec

	SyncWorkflows    *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	SyncFilesChanged *prometheus.CounterVec
}

// NewMetricsCollector registers all metrics against the default registerer
// under the "syncore" namespace.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry is the test-friendly constructor: pass a
// fresh prometheus.NewRegistry() per test to avoid collector collisions.
func NewMetricsCollectorWithRegistry(reg prometheus.Registerer) *MetricsCollector {
	const ns = "syncore"

	return &MetricsCollector{
		CacheEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "freshness", Name: "cache_entries",
			Help: "Number of live SyncCacheEntry entries across all codebases.",
		}),
		WatcherPendingOps: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "watch", Name: "pending_ops",
			Help: "Number of armed debounce timers for a codebase's watcher.",
		}, []string{"codebase"}),
		MtimeCacheSize: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "hashstore", Name: "mtime_cache_size",
			Help: "Number of entries in a codebase's mtime cache.",
		}, []string{"codebase"}),
		LastFullScanUnix: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "detect", Name: "last_full_scan_unix_ms",
			Help: "Epoch-millisecond timestamp of a codebase's last full scan.",
		}, []string{"codebase"}),
		PoolConnections: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "vectorstore", Name: "pool_connections",
			Help: "Reference count of a pooled vector-store connection.",
		}, []string{"address"}),
		SyncWorkflows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "sync", Name: "workflows_total",
			Help: "Completed sync workflows by type and outcome.",
		}, []string{"workflow", "outcome"}),
		SyncDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "sync", Name: "workflow_duration_seconds",
			Help:    "Sync workflow duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow"}),
		SyncFilesChanged: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "sync", Name: "files_changed_total",
			Help: "Files added/modified/removed across completed sync workflows.",
		}, []string{"change"}),
	}
}
