package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"filetool/internal/convert"
	"filetool/internal/handlers"
	"filetool/internal/metrics"
	"filetool/internal/startup"
	"filetool/internal/workers"
)

type mockEngineStats struct {
	queue   int
	workDir int64
}

func (m *mockEngineStats) QueueDepth() int    { return m.queue }
func (m *mockEngineStats) WorkDirSize() int64 { return m.workDir }

func TestStatsAdapter(t *testing.T) {
	t.Run("GetStats samples engine and workers", func(t *testing.T) {
		limiter := workers.NewLimiter(4)
		if err := limiter.Acquire(t.Context()); err != nil {
			t.Fatal(err)
		}
		defer limiter.Release()

		adapter := &statsAdapter{
			engine:  &mockEngineStats{queue: 3, workDir: 1 << 20},
			limiter: limiter,
		}

		// Verify the adapter implements the interface
		var _ metrics.StatsProvider = adapter

		stats := adapter.GetStats()
		if stats.EngineQueueDepth != 3 {
			t.Errorf("EngineQueueDepth = %d, want 3", stats.EngineQueueDepth)
		}
		if stats.EngineWorkDirBytes != 1<<20 {
			t.Errorf("EngineWorkDirBytes = %d, want %d", stats.EngineWorkDirBytes, 1<<20)
		}
		if stats.WorkersInUse != 1 {
			t.Errorf("WorkersInUse = %d, want 1", stats.WorkersInUse)
		}
		if stats.WorkersTotal != 4 {
			t.Errorf("WorkersTotal = %d, want 4", stats.WorkersTotal)
		}
	})

	t.Run("GetStats tolerates missing sources", func(t *testing.T) {
		stats := (&statsAdapter{}).GetStats()
		if stats != (metrics.Stats{}) {
			t.Errorf("GetStats() = %+v, want zero", stats)
		}
	})
}

func newTestRouterHandlers() *handlers.Handlers {
	d := convert.NewDispatcher(convert.DefaultConfig(), convert.Dependencies{})
	return handlers.New(d, nil, workers.NewLimiter(1), handlers.Options{})
}

func TestRouterEndpoints(t *testing.T) {
	router := setupRouter(newTestRouterHandlers())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/livez", http.StatusOK},
		{"HEAD", "/livez", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/api/formats", http.StatusOK},
		{"GET", "/api/engine", http.StatusOK},
		{"POST", "/api/engine/retry", http.StatusServiceUnavailable},
		{"GET", "/api/convert", http.StatusMethodNotAllowed},
		{"GET", "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHTTPRouteStructure(t *testing.T) {
	routes, err := startup.GetRoutes(setupRouter(newTestRouterHandlers()))
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	want := map[string]bool{
		"POST /api/convert":      false,
		"GET /api/formats":       false,
		"GET /api/engine":        false,
		"POST /api/engine/retry": false,
	}
	for _, r := range routes {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestMetricsServer(t *testing.T) {
	h := newTestRouterHandlers()
	srv := newMetricsServer("0", h.MetricsHandler())

	if srv.WriteTimeout <= 0 {
		t.Error("metrics server should bound writes")
	}

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("/health on metrics server = %d, want 404", w.Code)
	}
}
