package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"filetool/internal/logging"
	"filetool/internal/transcoder"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults for the conversion settings.
const (
	DefaultMaxFileSizeBytes     int64 = 200 << 20
	DefaultBackendTimeout             = 20 * time.Second
	DefaultBackendMediaTimeout        = 300 * time.Second
	DefaultQuality                    = 0.75
	DefaultCompressQuality            = 0.65
	DefaultCompressMaxDimension       = 2000
	DefaultEngineLoadTimeout          = 60 * time.Second
)

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	// Conversion limits and quality
	MaxFileSizeBytes     int64
	DefaultQuality       float64
	CompressQuality      float64
	CompressMaxDimension int

	// Remote backend. An empty BackendBaseURL disables remote fallback.
	BackendBaseURL      string
	BackendTimeout      time.Duration
	BackendMediaTimeout time.Duration
	RemoteMediaEnabled  bool

	// Transcoding engine
	FFmpegPath        string
	EngineLoadTimeout time.Duration
	WorkDir           string

	// UniDocAPIKey enables unipdf for PDF text extraction.
	UniDocAPIKey string

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

// fileConfig mirrors the YAML overlay. Pointer fields distinguish "unset"
// from zero values.
type fileConfig struct {
	Port                 *string  `yaml:"port"`
	MetricsPort          *string  `yaml:"metricsPort"`
	MetricsEnabled       *bool    `yaml:"metricsEnabled"`
	MaxFileSizeBytes     *int64   `yaml:"maxFileSizeBytes"`
	BackendBaseURL       *string  `yaml:"backendBaseUrl"`
	BackendTimeoutMs     *int64   `yaml:"backendTimeoutMs"`
	BackendMediaTimeout  *int64   `yaml:"backendMediaTimeoutMs"`
	RemoteMediaEnabled   *bool    `yaml:"remoteMediaEnabled"`
	DefaultQuality       *float64 `yaml:"defaultQuality"`
	CompressQuality      *float64 `yaml:"compressQuality"`
	CompressMaxDimension *int     `yaml:"compressMaxDimension"`
	FFmpegPath           *string  `yaml:"ffmpegPath"`
	WorkDir              *string  `yaml:"workDir"`
}

// LoadConfig loads configuration from a .env file, an optional YAML file
// named by CONFIG_FILE and the environment, in increasing precedence.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	config, err := buildConfig()
	if err != nil {
		return nil, err
	}

	logging.Info("  PORT:                   %s", config.Port)
	logging.Info("  METRICS_PORT:           %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:        %v", config.MetricsEnabled)
	logging.Info("  MAX_FILE_SIZE_BYTES:    %d", config.MaxFileSizeBytes)
	logging.Info("  DEFAULT_QUALITY:        %.2f", config.DefaultQuality)
	logging.Info("  COMPRESS_QUALITY:       %.2f", config.CompressQuality)
	if config.CompressMaxDimension == 0 {
		logging.Info("  COMPRESS_MAX_DIMENSION: 0 (no downscaling)")
	} else {
		logging.Info("  COMPRESS_MAX_DIMENSION: %d", config.CompressMaxDimension)
	}
	if config.BackendBaseURL != "" {
		logging.Info("  BACKEND_BASE_URL:       %s", config.BackendBaseURL)
	} else {
		logging.Info("  BACKEND_BASE_URL:       (not set, remote fallback disabled)")
	}
	logging.Info("  BACKEND_TIMEOUT:        %v", config.BackendTimeout)
	logging.Info("  BACKEND_MEDIA_TIMEOUT:  %v", config.BackendMediaTimeout)
	logging.Info("  REMOTE_MEDIA_ENABLED:   %v", config.RemoteMediaEnabled)
	logging.Info("  ENGINE_LOAD_TIMEOUT:    %v", config.EngineLoadTimeout)
	logging.Info("  WORK_DIR:               %s", config.WorkDir)
	logging.Info("  UNIDOC_LICENSE_API_KEY: %s", maskSecret(config.UniDocAPIKey))
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.WorkDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}
	if err := testWriteAccess(config.WorkDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable (required for transcoding): %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	return config, nil
}

// ReadConfig resolves the same settings as LoadConfig without the startup
// report or directory checks. Command-line tools use it.
func ReadConfig() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	return buildConfig()
}

// buildConfig resolves every setting without logging the banner.
func buildConfig() (*Config, error) {
	var file fileConfig
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		loaded, err := loadFileConfig(configFile)
		if err != nil {
			return nil, err
		}
		file = *loaded
		logging.Info("  Loaded config file: %s", configFile)
	}

	config := &Config{
		Port:                 getEnv("PORT", deref(file.Port, "8080")),
		MetricsPort:          getEnv("METRICS_PORT", deref(file.MetricsPort, "9090")),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", deref(file.MetricsEnabled, true)),
		LogHealthChecks:      getEnvBool("LOG_HEALTH_CHECKS", true),
		MaxFileSizeBytes:     getEnvInt64("MAX_FILE_SIZE_BYTES", deref(file.MaxFileSizeBytes, DefaultMaxFileSizeBytes)),
		DefaultQuality:       getEnvQuality("DEFAULT_QUALITY", deref(file.DefaultQuality, DefaultQuality)),
		CompressQuality:      getEnvQuality("COMPRESS_QUALITY", deref(file.CompressQuality, DefaultCompressQuality)),
		CompressMaxDimension: int(getEnvInt64("COMPRESS_MAX_DIMENSION", int64(deref(file.CompressMaxDimension, DefaultCompressMaxDimension)))),
		BackendBaseURL:       strings.TrimRight(getEnv("BACKEND_BASE_URL", deref(file.BackendBaseURL, "")), "/"),
		BackendTimeout:       getEnvDuration("BACKEND_TIMEOUT", millis(file.BackendTimeoutMs, DefaultBackendTimeout)),
		BackendMediaTimeout:  getEnvDuration("BACKEND_MEDIA_TIMEOUT", millis(file.BackendMediaTimeout, DefaultBackendMediaTimeout)),
		RemoteMediaEnabled:   getEnvBool("REMOTE_MEDIA_ENABLED", deref(file.RemoteMediaEnabled, false)),
		FFmpegPath:           getEnv("FFMPEG_PATH", deref(file.FFmpegPath, "")),
		EngineLoadTimeout:    getEnvDuration("ENGINE_LOAD_TIMEOUT", DefaultEngineLoadTimeout),
		WorkDir:              getEnv("WORK_DIR", deref(file.WorkDir, filepath.Join(os.TempDir(), "filetool"))),
		UniDocAPIKey:         os.Getenv("UNIDOC_LICENSE_API_KEY"),
		ConfigFile:           configFile,
	}

	if config.MaxFileSizeBytes <= 0 {
		logging.Warn("  Invalid MAX_FILE_SIZE_BYTES, using default: %d", DefaultMaxFileSizeBytes)
		config.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	// Zero turns compress-mode downscaling off
	if config.CompressMaxDimension < 0 {
		logging.Warn("  Invalid COMPRESS_MAX_DIMENSION, using default: %d", DefaultCompressMaxDimension)
		config.CompressMaxDimension = DefaultCompressMaxDimension
	}

	workDir, err := filepath.Abs(config.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	config.WorkDir = workDir

	return config, nil
}

// loadDotEnv reads KEY=VALUE pairs from path. Variables already set in the
// environment win. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.Debug("  No env file at %s", path)
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	logging.Info("  Loaded env file: %s", path)
	return nil
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func millis(p *int64, def time.Duration) time.Duration {
	if p == nil || *p <= 0 {
		return def
	}
	return time.Duration(*p) * time.Millisecond
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "(set)"
}

// LogEngineInit logs the transcoding engine setup. The engine loads lazily,
// so a missing ffmpeg is a warning.
func LogEngineInit(config *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := checkFFmpeg(config.FFmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Audio and video conversions will report the engine as unavailable")
	} else {
		logging.Info("  [OK] FFmpeg is available (loaded on first use)")
	}
	logging.Info("  Load timeout: %v", config.EngineLoadTimeout)
}

// LogImageInit logs libvips initialization
func LogImageInit(vipsErr error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE PROCESSING")
	logging.Info("------------------------------------------------------------")
	if vipsErr != nil {
		logging.Warn("  libvips unavailable: %v", vipsErr)
		logging.Warn("  WebP output and SVG/HEIC input are disabled")
		return
	}
	logging.Info("  [OK] libvips initialized")
}

// LogRemoteInit logs the remote backend configuration
func LogRemoteInit(config *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("REMOTE BACKEND")
	logging.Info("------------------------------------------------------------")
	if config.BackendBaseURL == "" {
		logging.Info("  Remote fallback: DISABLED")
		return
	}
	logging.Info("  Remote fallback: ENABLED (%s)", config.BackendBaseURL)
	logging.Info("  Media fallback:  %s", enabledString(config.RemoteMediaEnabled))
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    _______ __     ______            __
   / ____(_) /__  /_  __/___  ____  / /
  / /_  / / / _ \  / / / __ \/ __ \/ /
 / __/ / / /  __/ / / / /_/ / /_/ / /
/_/   /_/_/\___/ /_/  \____/\____/_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(configured string) error {
	path, err := transcoder.FindFFmpeg(configured)
	if err != nil {
		return err
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	version, err := transcoder.ProbeVersion(ctx, path)
	if err != nil {
		return err
	}
	logging.Debug("  FFmpeg version: %s", version)

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvQuality accepts a fraction (0.75) or a percentage (75).
func getEnvQuality(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil && parsed > 1 && parsed <= 100 {
		parsed /= 100
	}
	if err != nil || parsed <= 0 || parsed > 1 {
		logging.Warn("Invalid quality for %s: %q, using default: %.2f", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts a Go duration ("20s") or a bare number of
// milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
