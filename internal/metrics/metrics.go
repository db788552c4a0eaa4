package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipvault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipvault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Index store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipvault_db_queries_total",
			Help: "Total number of index store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipvault_db_query_duration_seconds",
			Help:    "Index store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_db_connections_open",
			Help: "Number of open index store connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipvault_db_size_bytes",
			Help: "Size of SQLite index files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_files_processed_total",
			Help: "Total number of files processed by the indexer",
		},
	)

	IndexerFilesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_files_deleted_total",
			Help: "Total number of indexed files removed because their source no longer exists",
		},
	)

	IndexerDirsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_dirs_processed_total",
			Help: "Total number of directories walked by the indexer",
		},
	)

	IndexerDirsSkippedMtime = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_dirs_skipped_mtime_total",
			Help: "Total number of directories skipped because their mtime matched the last recorded scan",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)

	IndexerRunsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_indexer_runs_coalesced_total",
			Help: "Total number of reindex triggers folded into an already-running scan",
		},
	)
)

// Thumbnail store metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipvault_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"variant", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipvault_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"variant"},
	)

	ThumbnailFFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipvault_thumbnail_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe subprocess invocations during thumbnail generation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"}, // "image" fallback decode, "video" frame extraction, "probe"
	)

	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_thumbnail_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_thumbnail_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	ThumbnailCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_thumbnail_cache_size_bytes",
			Help: "Total size of the thumbnail cache in bytes",
		},
	)

	ThumbnailCacheCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_thumbnail_cache_count",
			Help: "Number of thumbnails in the cache",
		},
	)

	ThumbnailCacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipvault_thumbnail_cache_evictions_total",
			Help: "Total number of thumbnail cache entries removed by cleanup",
		},
		[]string{"reason"}, // "orphaned", "budget"
	)
)

// Query engine metrics
var (
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipvault_query_duration_seconds",
			Help:    "Duration of query engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"}, // "resources", "authors", "tags"
	)

	QueryGroupingFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_query_grouping_fallback_total",
			Help: "Total number of author/tag queries served by the in-process grouping fallback instead of SQL window functions",
		},
	)
)

// Reindex SSE metrics
var (
	ReindexStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_reindex_stream_clients",
			Help: "Number of clients currently subscribed to the reindex progress stream",
		},
	)

	ReindexStreamEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_reindex_stream_events_total",
			Help: "Total number of SSE progress events emitted across all reindex streams",
		},
	)
)

// Media library metrics
var (
	MediaItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipvault_media_items_total",
			Help: "Total number of indexed media items by kind",
		},
		[]string{"kind"},
	)

	MediaTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_media_tags_total",
			Help: "Total number of distinct tags in the index",
		},
	)
)

// Watcher metrics (fsnotify-driven indexer augmentation)
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipvault_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipvault_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipvault_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipvault_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric.
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
