package handlers

import (
	"net/http"

	"filetool/internal/logging"
	"filetool/internal/transcoder"
)

// EngineStatus is the body of the engine endpoints.
type EngineStatus struct {
	State      string `json:"state"`
	Version    string `json:"version,omitempty"`
	LastError  string `json:"lastError,omitempty"`
	QueueDepth int    `json:"queueDepth"`
}

func (h *Handlers) engineStatus() EngineStatus {
	if h.engine == nil {
		return EngineStatus{State: transcoder.StateUninitialized.String()}
	}
	s := EngineStatus{
		State:      h.engine.State().String(),
		Version:    h.engine.Version(),
		QueueDepth: h.engine.QueueDepth(),
	}
	if err := h.engine.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// GetEngine reports the transcoding engine's lifecycle state.
func (h *Handlers) GetEngine(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, h.engineStatus())
}

// RetryEngine clears a failed engine load and tries again.
func (h *Handlers) RetryEngine(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSONError(w, "Audio and video processing is not configured.", "local_engine_unavailable", http.StatusServiceUnavailable)
		return
	}

	logging.Info("Engine retry requested from %s", r.RemoteAddr)
	if err := h.engine.Retry(r.Context()); err != nil {
		logging.Warn("Engine retry failed: %v", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, h.engineStatus())
		return
	}
	writeJSONStatus(w, http.StatusOK, h.engineStatus())
}
