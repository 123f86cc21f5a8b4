package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filetool/internal/convert"
	"filetool/internal/document"
	"filetool/internal/handlers"
	"filetool/internal/logging"
	"filetool/internal/media"
	"filetool/internal/memory"
	"filetool/internal/metrics"
	"filetool/internal/middleware"
	"filetool/internal/remote"
	"filetool/internal/startup"
	"filetool/internal/transcoder"
	"filetool/internal/workers"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout         = 30 * time.Second
	metricsCollectInterval  = 15 * time.Second
	serverReadHeaderTimeout = 10 * time.Second
	serverIdleTimeout       = 60 * time.Second
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// GOMEMLIMIT from the container limit, then admission control
	memory.ConfigureFromEnv()
	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()

	// Image codecs
	vipsErr := media.InitVips()
	startup.LogImageInit(vipsErr)

	// Transcoding engine (loaded on first use)
	startup.LogEngineInit(config)
	engine := transcoder.NewHandle(transcoder.NewFFmpegLoader(transcoder.FFmpegConfig{
		BinaryPath: config.FFmpegPath,
		WorkDir:    config.WorkDir,
	}), config.EngineLoadTimeout)

	// Remote backend
	startup.LogRemoteInit(config)
	var remoteConverter convert.RemoteConverter
	if config.BackendBaseURL != "" {
		client, err := remote.New(remote.Config{
			BaseURL:      config.BackendBaseURL,
			Timeout:      config.BackendTimeout,
			MediaTimeout: config.BackendMediaTimeout,
		})
		if err != nil {
			startup.LogFatal("Remote backend error: %v", err)
		}
		remoteConverter = client
	}

	limiter := workers.NewLimiter(workers.ForCPU(0))
	uploads := workers.NewLimiter(workers.ForIO(0))
	logging.Info("Conversion workers: %d, remote uploads: %d", limiter.Size(), uploads.Size())

	dispatcher := convert.NewDispatcher(convert.Config{
		MaxFileSizeBytes:     config.MaxFileSizeBytes,
		ConvertQuality:       config.DefaultQuality,
		CompressQuality:      config.CompressQuality,
		CompressMaxDimension: config.CompressMaxDimension,
		RemoteMedia:          config.RemoteMediaEnabled,
	}, convert.Dependencies{
		Images:        media.NewTransform(),
		Engine:        engine,
		Documents:     document.NewBridge(document.Config{UniDocAPIKey: config.UniDocAPIKey}),
		Remote:        remoteConverter,
		Observer:      metrics.NewConversionObserver(),
		Limiter:       limiter,
		RemoteLimiter: uploads,
	})

	// Initialize handlers
	h := handlers.New(dispatcher, engine, limiter, handlers.Options{
		RemoteEnabled: remoteConverter != nil,
		Admission:     memMonitor,
	})

	// Setup router
	router := setupRouter(h)
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply compression middleware
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	// Create server. WriteTimeout stays zero: large results are delivered
	// with a rolling per-chunk deadline instead.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	// Metrics
	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		metrics.InitializeMetrics()

		collector = metrics.NewCollector(&statsAdapter{engine: engine, limiter: limiter}, metricsCollectInterval)
		collector.Start()

		metricsSrv = newMetricsServer(config.MetricsPort, h.MetricsHandler())
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, h, engine, memMonitor, collector)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", h.Convert).Methods("POST")
	api.HandleFunc("/formats", h.GetFormats).Methods("GET")
	api.HandleFunc("/engine", h.GetEngine).Methods("GET")
	api.HandleFunc("/engine/retry", h.RetryEngine).Methods("POST")

	return r
}

func newMetricsServer(port string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       serverIdleTimeout,
	}
}

// engineStats is the part of transcoder.Handle sampled for metrics.
type engineStats interface {
	QueueDepth() int
	WorkDirSize() int64
}

// statsAdapter implements metrics.StatsProvider
type statsAdapter struct {
	engine  engineStats
	limiter *workers.Limiter
}

// GetStats implements metrics.StatsProvider
func (a *statsAdapter) GetStats() metrics.Stats {
	var s metrics.Stats
	if a.engine != nil {
		s.EngineQueueDepth = a.engine.QueueDepth()
		s.EngineWorkDirBytes = a.engine.WorkDirSize()
	}
	if a.limiter != nil {
		s.WorkersInUse = a.limiter.InUse()
		s.WorkersTotal = a.limiter.Size()
	}
	return s
}

func handleShutdown(srv, metricsSrv *http.Server, h *handlers.Handlers, engine *transcoder.Handle, memMonitor *memory.Monitor, collector *metrics.Collector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	h.SetDraining()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing transcoding engine")
	if err := engine.Close(); err != nil {
		logging.Warn("Engine close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Engine work directory removed")
	}

	media.ShutdownVips()
	memMonitor.Stop()

	if collector != nil {
		collector.Stop()
	}
	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
