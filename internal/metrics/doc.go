// Package metrics provides Prometheus instrumentation for filetool.
//
// All metrics are prefixed with "filetool_" and registered through promauto,
// so they are exported as soon as the package is imported.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//   - HTTPUploadBytes: Histogram of uploaded file sizes
//
// ## Conversion Metrics
//
//   - ConversionsTotal: Counter by category, strategy and status
//   - ConversionDuration: Histogram of end-to-end duration
//   - ConversionStateTransitions: Counter of request state entries
//   - ConversionsInProgress: Gauge of running conversions
//   - ConversionFallbacksTotal: Counter of fallback paths by kind
//
// ## Engine Metrics
//
//   - EngineState: Gauge of the transcoding engine lifecycle state
//   - EngineLoadsTotal, EngineLoadDuration: load attempts and timing
//   - EngineRunsTotal, EngineRunDuration: transcode runs and timing
//   - EngineQueueDepth: runs waiting for the single engine slot
//   - EngineWorkDirBytes: bytes in the engine working directory
//
// ## Remote Metrics
//
//   - RemoteRequestsTotal: Counter by endpoint and status
//   - RemoteRequestDuration: Histogram by endpoint
//
// # Collector
//
// [Collector] samples values such as queue depth and worker usage on an
// interval from a [StatsProvider].
//
// # Observer
//
// [ConversionObserver] implements the dispatcher's observer interface so the
// convert package records metrics without importing Prometheus.
package metrics
