package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_browser_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_browser_thumbnail_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_browser_thumbnail_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_thumbnail_cache_evictions_total",
			Help: "Total number of thumbnail cache evictions",
		},
		[]string{"reason"}, // "lru", "memory", "stale", "ttl", "explicit"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_thumbnail_cache_entries",
			Help: "Current number of entries in the thumbnail cache",
		},
	)

	CacheMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_thumbnail_cache_memory_bytes",
			Help: "Estimated memory used by cached thumbnail payloads",
		},
	)
)

// Thumbnail generation metrics
var (
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_browser_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"}, // "image", "video", "placeholder"
	)

	GenerationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_thumbnail_generation_results_total",
			Help: "Thumbnail generation outcomes",
		},
		[]string{"kind", "result"}, // result: "ok", "placeholder"
	)

	InFlightGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_thumbnail_inflight_generations",
			Help: "Number of thumbnail generations currently in flight",
		},
	)

	DeduplicatedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_browser_thumbnail_deduplicated_requests_total",
			Help: "Requests that joined an existing in-flight generation",
		},
	)
)

// Worker pool metrics
var (
	PoolWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_worker_pool_workers",
			Help: "Configured number of worker pool workers",
		},
	)

	PoolQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_worker_pool_queue_depth",
			Help: "Number of jobs waiting in the worker pool queue",
		},
	)

	PoolBusyWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_worker_pool_busy_workers",
			Help: "Number of workers currently executing a job",
		},
	)

	PoolJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_worker_pool_jobs_total",
			Help: "Total jobs processed by the worker pool",
		},
		[]string{"result"}, // "ok", "error", "panic"
	)
)

// Memory monitor metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_memory_usage_ratio",
			Help: "Current heap usage as a fraction of the configured limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_browser_memory_paused",
			Help: "Whether best-effort work is paused due to memory pressure (0 or 1)",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors encountered",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_browser_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)
)
