package handlers

import (
	"net/http"
	"runtime"
	"time"

	"filetool/internal/media"
	"filetool/internal/startup"
	"filetool/internal/transcoder"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusDraining = "draining"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Conversion backends
	Engine        string `json:"engine"`
	EngineError   string `json:"engineError,omitempty"`
	ImageCodecs   bool   `json:"vips"`
	RemoteEnabled bool   `json:"remoteEnabled"`

	// Load
	WorkersInUse int `json:"workersInUse"`
	WorkersTotal int `json:"workersTotal"`
	EngineQueue  int `json:"engineQueue"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports the state of every conversion backend. A failed engine
// load makes the service degraded, not unhealthy: images and documents
// still convert.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:        statusHealthy,
		Ready:         !h.draining.Load(),
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Engine:        transcoder.StateUninitialized.String(),
		ImageCodecs:   media.IsVipsAvailable(),
		RemoteEnabled: h.opts.RemoteEnabled,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}

	if h.engine != nil {
		state := h.engine.State()
		response.Engine = state.String()
		response.EngineQueue = h.engine.QueueDepth()
		if state == transcoder.StateFailed {
			response.Status = statusDegraded
			if err := h.engine.LastError(); err != nil {
				response.EngineError = err.Error()
			}
		}
	}

	if h.limiter != nil {
		response.WorkersInUse = h.limiter.InUse()
		response.WorkersTotal = h.limiter.Size()
	}

	status := http.StatusOK
	if !response.Ready {
		response.Status = statusDraining
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 until shutdown begins.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.draining.Load() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
