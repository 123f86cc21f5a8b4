// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads settings from three layers, each overriding the one
// before it:
//
//  1. A YAML file named by CONFIG_FILE (keys in camelCase, for example
//     maxFileSizeBytes, backendBaseUrl, backendTimeoutMs, defaultQuality)
//  2. A .env file (ENV_FILE, default ./.env), which never overrides variables
//     already present in the environment
//  3. Environment variables
//
// The following environment variables are supported:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - MAX_FILE_SIZE_BYTES: Largest accepted upload (default: 209715200)
//   - DEFAULT_QUALITY: Convert-mode quality, fraction or percent (default: 0.75)
//   - COMPRESS_QUALITY: Compress-mode quality (default: 0.65)
//   - COMPRESS_MAX_DIMENSION: Longest image side in compress mode, 0 disables (default: 2000)
//   - BACKEND_BASE_URL: Remote conversion backend; empty disables fallback
//   - BACKEND_TIMEOUT: Document request timeout (default: 20s)
//   - BACKEND_MEDIA_TIMEOUT: Media request timeout (default: 300s)
//   - REMOTE_MEDIA_ENABLED: Allow audio/video fallback to the backend (default: false)
//   - FFMPEG_PATH: ffmpeg binary; empty searches ./bin and PATH
//   - ENGINE_LOAD_TIMEOUT: Bound on loading the transcoding engine (default: 60s)
//   - WORK_DIR: Parent of the engine working directory (default: $TMPDIR/filetool)
//   - CONVERT_WORKERS: Concurrent image/document conversions (default: CPU count)
//   - UNIDOC_LICENSE_API_KEY: Enables unipdf for PDF text extraction
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// MEMORY_LIMIT, MEMORY_RATIO and GOMEMLIMIT are read separately by the
// memory package once LoadConfig has applied the .env file.
//
// Durations accept Go syntax ("20s") or a bare number of milliseconds.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogEngineInit], [LogImageInit], [LogRemoteInit], [LogHTTPRoutes] and
// [LogServerStarted] print the sectioned startup report; the LogShutdown
// functions mirror it on the way down.
package startup
