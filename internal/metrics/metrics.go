package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filetool_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filetool_http_upload_bytes",
			Help:    "Size of uploaded source files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB .. 256MB
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_conversions_total",
			Help: "Total number of conversion requests by category, strategy and outcome",
		},
		[]string{"category", "strategy", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filetool_conversion_duration_seconds",
			Help:    "End-to-end conversion duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"category", "strategy"},
	)

	ConversionStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_conversion_state_transitions_total",
			Help: "Number of times a conversion request entered each state",
		},
		[]string{"state"},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)

	ConversionFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_conversion_fallbacks_total",
			Help: "Number of fallback paths taken, by kind",
		},
		[]string{"kind"}, // "preset", "remote", "passthrough"
	)
)

// Transcoding engine metrics
var (
	EngineState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_engine_state",
			Help: "Transcoding engine state (0 = uninitialized, 1 = loading, 2 = ready, 3 = failed)",
		},
	)

	EngineLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_engine_loads_total",
			Help: "Total number of engine load attempts",
		},
		[]string{"status"},
	)

	EngineLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filetool_engine_load_duration_seconds",
			Help:    "Engine load duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	EngineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_engine_runs_total",
			Help: "Total number of engine runs",
		},
		[]string{"status"},
	)

	EngineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filetool_engine_run_duration_seconds",
			Help:    "Engine run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	EngineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_engine_queue_depth",
			Help: "Number of runs waiting for the engine",
		},
	)

	EngineWorkDirBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_engine_workdir_bytes",
			Help: "Bytes currently held in the engine working directory",
		},
	)
)

// Worker pool metrics
var (
	WorkerSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filetool_worker_slots",
			Help: "Conversion worker slots by state",
		},
		[]string{"state"}, // "in_use", "total"
	)
)

// Remote fallback metrics
var (
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_remote_requests_total",
			Help: "Total number of requests sent to the remote conversion service",
		},
		[]string{"endpoint", "status"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filetool_remote_request_duration_seconds",
			Help:    "Remote conversion request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 60, 120, 300},
		},
		[]string{"endpoint"},
	)
)

// Work directory filesystem metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen on the engine work directory",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_filesystem_retry_attempts_total",
			Help: "Retries of work directory operations",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetool_filesystem_retry_failures_total",
			Help: "Work directory operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetool_memory_paused",
			Help: "1 while new conversions are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetool_memory_gc_pauses_total",
			Help: "Times memory pressure held back new conversions and forced a GC",
		},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filetool_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
