package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"filetool/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResponseWriterCapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d/%d, want 201", rw.statusCode, rec.Code)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", rw.bytesWritten)
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := map[string]string{
		"plain":              "plain",
		"a\nb\rc":            "a b c",
		"nul\x00byte":        "nulbyte",
		"\x1b[31mred\x1b[0m": "[31mred[0m",
		"tab\tkept":          "tab\tkept",
	}
	for in, want := range tests {
		if got := sanitizeLogField(in); got != want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	cfg := DefaultLoggingConfig()
	if !shouldSkip("/metrics", cfg) {
		t.Error("/metrics should be skipped")
	}
	if shouldSkip("/healthz", cfg) {
		t.Error("health checks are logged by default")
	}
	cfg.LogHealthChecks = false
	if !shouldSkip("/healthz", cfg) {
		t.Error("/healthz should be skipped when health logging is off")
	}
	if shouldSkip("/api/convert", cfg) {
		t.Error("/api/convert should be logged")
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := getClientIP(r); got != "10.0.0.1" {
		t.Errorf("RemoteAddr ip = %q", got)
	}
	r.Header.Set("X-Real-IP", "10.0.0.2")
	if got := getClientIP(r); got != "10.0.0.2" {
		t.Errorf("X-Real-IP ip = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.3")
	if got := getClientIP(r); got != "203.0.113.5" {
		t.Errorf("X-Forwarded-For ip = %q", got)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(StrategyHeader, "image")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/convert?x=1", strings.NewReader("payload"))
	req.Header.Set("User-Agent", "test agent\ninjected")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{"POST /api/convert x=1 418 5 7", " image - ", `"test agent injected"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("expected exactly one log line, got %q", buf.String())
	}
}

func TestFormatLogLineDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/version", http.NoBody)
	rw := newResponseWriter(httptest.NewRecorder())
	line := formatLogLine(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), r, rw, 1500*time.Millisecond)

	if !strings.HasPrefix(line, "2024-05-01 12:00:00 ") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, "GET /version - 200 0 0 1500 - - -") {
		t.Errorf("line = %q", line)
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/items/{id}", strconv.Itoa(http.StatusAccepted))
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/"+id, http.NoBody))
	}

	if got := testutil.ToFloat64(counter); got != before+3 {
		t.Errorf("counter = %v, want %v", got, before+3)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	called := false
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if !called {
		t.Fatal("handler not called")
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")); got != before {
		t.Error("skipped path was recorded")
	}
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("response is not gzip: %v", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestCompressionMiddleware(t *testing.T) {
	bigText := strings.Repeat("converted text ", 200)

	tests := []struct {
		name           string
		contentType    string
		body           string
		contentLength  bool
		acceptEncoding string
		wantGzip       bool
	}{
		{"text output", "text/plain; charset=utf-8", bigText, true, "gzip, deflate", true},
		{"json without length", "application/json", `{"status":"ok"}`, false, "gzip", true},
		{"small declared body", "text/html", "<p>hi</p>", true, "gzip", false},
		{"binary output", "image/png", bigText, true, "gzip", false},
		{"client without gzip", "text/plain", bigText, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(tt.body)))
				}
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			gzipped := rec.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gzipped, tt.wantGzip)
			}
			if gzipped {
				if rec.Header().Get("Content-Length") != "" {
					t.Error("Content-Length kept on compressed response")
				}
				if got := gunzip(t, rec.Body.Bytes()); got != tt.body {
					t.Errorf("decompressed body mismatch: %q", got)
				}
			} else if rec.Body.String() != tt.body {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestCompressionKeepsStatus(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"error":"too large"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/convert", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if got := gunzip(t, rec.Body.Bytes()); got != `{"error":"too large"}` {
		t.Errorf("body = %q", got)
	}
}
