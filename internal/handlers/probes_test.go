package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filetool/internal/convert"
	"filetool/internal/formats"
	"filetool/internal/startup"
	"filetool/internal/transcoder"
	"filetool/internal/workers"
)

func newProbeHandlers(engine EngineController) *Handlers {
	d := convert.NewDispatcher(convert.Config{MaxFileSizeBytes: 4096}, convert.Dependencies{})
	return New(d, engine, workers.NewLimiter(3), Options{RemoteEnabled: true})
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		engine     EngineController
		draining   bool
		wantStatus string
		wantCode   int
		wantEngine string
	}{
		{
			name:       "engine ready",
			engine:     &mockEngine{state: transcoder.StateReady},
			wantStatus: statusHealthy,
			wantCode:   http.StatusOK,
			wantEngine: "ready",
		},
		{
			name:       "engine not loaded yet",
			engine:     &mockEngine{state: transcoder.StateUninitialized},
			wantStatus: statusHealthy,
			wantCode:   http.StatusOK,
			wantEngine: "uninitialized",
		},
		{
			name:       "engine failed",
			engine:     &mockEngine{state: transcoder.StateFailed, err: errNoFFmpeg},
			wantStatus: statusDegraded,
			wantCode:   http.StatusOK,
			wantEngine: "failed",
		},
		{
			name:       "no engine",
			wantStatus: statusHealthy,
			wantCode:   http.StatusOK,
			wantEngine: "uninitialized",
		},
		{
			name:       "draining",
			engine:     &mockEngine{state: transcoder.StateReady},
			draining:   true,
			wantStatus: statusDraining,
			wantCode:   http.StatusServiceUnavailable,
			wantEngine: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newProbeHandlers(tt.engine)
			if tt.draining {
				h.SetDraining()
			}

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Engine != tt.wantEngine {
				t.Errorf("engine = %q, want %q", resp.Engine, tt.wantEngine)
			}
			if resp.WorkersTotal != 3 {
				t.Errorf("workersTotal = %d, want 3", resp.WorkersTotal)
			}
			if !resp.RemoteEnabled {
				t.Error("remoteEnabled = false")
			}
			if resp.Version != startup.Version {
				t.Errorf("version = %q", resp.Version)
			}
		})
	}
}

func TestHealthCheckEngineError(t *testing.T) {
	h := newProbeHandlers(&mockEngine{state: transcoder.StateFailed, err: errNoFFmpeg})

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !strings.Contains(w.Body.String(), errNoFFmpeg.Error()) {
		t.Errorf("body %s does not report the load error", w.Body.String())
	}
}

func TestLivenessCheck(t *testing.T) {
	h := newProbeHandlers(nil)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		w := httptest.NewRecorder()
		h.LivenessCheck(w, httptest.NewRequest(method, "/livez", nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", method, w.Code)
		}
		if method == http.MethodHead && w.Body.Len() != 0 {
			t.Errorf("HEAD body = %q", w.Body.String())
		}
	}
}

func TestReadinessCheck(t *testing.T) {
	h := newProbeHandlers(nil)

	w := httptest.NewRecorder()
	h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d before draining", w.Code)
	}

	h.SetDraining()
	w = httptest.NewRecorder()
	h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d while draining", w.Code)
	}
}

// =============================================================================
// Engine
// =============================================================================

func TestGetEngine(t *testing.T) {
	h := newProbeHandlers(&mockEngine{state: transcoder.StateLoading, queue: 2})

	w := httptest.NewRecorder()
	h.GetEngine(w, httptest.NewRequest(http.MethodGet, "/api/engine", nil))

	var resp EngineStatus
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "loading" || resp.QueueDepth != 2 || resp.LastError != "" || resp.Version != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetEngineReportsVersion(t *testing.T) {
	h := newProbeHandlers(&mockEngine{state: transcoder.StateReady, version: "ffmpeg version 7.1"})

	w := httptest.NewRecorder()
	h.GetEngine(w, httptest.NewRequest(http.MethodGet, "/api/engine", nil))

	if !strings.Contains(w.Body.String(), `"version":"ffmpeg version 7.1"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRetryEngine(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		engine := &mockEngine{state: transcoder.StateFailed, err: errNoFFmpeg}
		h := newProbeHandlers(engine)

		w := httptest.NewRecorder()
		h.RetryEngine(w, httptest.NewRequest(http.MethodPost, "/api/engine/retry", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if engine.retries != 1 {
			t.Errorf("retries = %d", engine.retries)
		}
		if !strings.Contains(w.Body.String(), `"state":"ready"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("still failing", func(t *testing.T) {
		engine := &mockEngine{state: transcoder.StateFailed, err: errNoFFmpeg, retryErr: errors.New("still missing")}
		h := newProbeHandlers(engine)

		w := httptest.NewRecorder()
		h.RetryEngine(w, httptest.NewRequest(http.MethodPost, "/api/engine/retry", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("real handle", func(t *testing.T) {
		handle := failingEngine()
		defer func() { _ = handle.Close() }()
		h := newProbeHandlers(handle)

		w := httptest.NewRecorder()
		h.RetryEngine(w, httptest.NewRequest(http.MethodPost, "/api/engine/retry", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if handle.State() != transcoder.StateFailed {
			t.Errorf("state = %v, want failed", handle.State())
		}
	})

	t.Run("no engine", func(t *testing.T) {
		h := newProbeHandlers(nil)
		w := httptest.NewRecorder()
		h.RetryEngine(w, httptest.NewRequest(http.MethodPost, "/api/engine/retry", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

// =============================================================================
// Formats and version
// =============================================================================

func TestGetFormats(t *testing.T) {
	h := newProbeHandlers(nil)

	w := httptest.NewRecorder()
	h.GetFormats(w, httptest.NewRequest(http.MethodGet, "/api/formats", nil))

	var resp FormatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.MaxFileSizeBytes != 4096 || !resp.RemoteEnabled {
		t.Errorf("limits = %d/%v", resp.MaxFileSizeBytes, resp.RemoteEnabled)
	}
	if len(resp.Categories) != len(catalogCategories) {
		t.Fatalf("categories = %d", len(resp.Categories))
	}
	for _, c := range resp.Categories {
		want := formats.Targets(formats.Category(c.Category))
		if strings.Join(c.Targets, ",") != strings.Join(want, ",") {
			t.Errorf("%s targets = %v, want %v", c.Category, c.Targets, want)
		}
		if len(c.Extensions) == 0 {
			t.Errorf("%s has no extensions", c.Category)
		}
	}
}

func TestGetVersion(t *testing.T) {
	h := newProbeHandlers(nil)

	w := httptest.NewRecorder()
	h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info startup.BuildInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != startup.Version {
		t.Errorf("version = %q, want %q", info.Version, startup.Version)
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, "nope", "bad_request", http.StatusBadRequest)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":"nope","code":"bad_request"}` {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	h := newProbeHandlers(nil)

	w := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("default collectors missing from output")
	}
}
