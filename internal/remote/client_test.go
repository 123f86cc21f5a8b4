package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"filetool/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("New(empty) error = %v, want ErrNotConfigured", err)
	}
	if _, err := New(Config{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("New(ftp) succeeded")
	}

	c, err := New(Config{BaseURL: " https://backend.example.com/ "})
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL() != "https://backend.example.com" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
	if c.timeout != DefaultTimeout || c.mediaTimeout != DefaultMediaTimeout {
		t.Errorf("timeouts = %v/%v, want defaults", c.timeout, c.mediaTimeout)
	}
}

func TestSendSuccess(t *testing.T) {
	var gotPath string
	var gotFields map[string]string
	var gotFile string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotFile = hdr.Filename + ":" + string(data)

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-converted"))
	}, Config{})

	before := testutil.ToFloat64(metrics.RemoteRequestsTotal.WithLabelValues(DocumentEndpoint, "success"))

	out, ct, err := c.Send(context.Background(),
		File{Name: "report.docx", Data: []byte("docx bytes")},
		Params{Kind: KindDocument, TargetFormat: "PDF", Mode: "convert", Quality: 80, Width: 640})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(out) != "%PDF-converted" || ct != "application/pdf" {
		t.Errorf("Send() = %q, %q", out, ct)
	}
	if gotPath != DocumentEndpoint {
		t.Errorf("path = %q, want %q", gotPath, DocumentEndpoint)
	}
	if gotFile != "report.docx:docx bytes" {
		t.Errorf("file part = %q", gotFile)
	}

	want := map[string]string{
		"targetFormat": "pdf",
		"target":       "pdf",
		"format":       "pdf",
		"targetExt":    ".pdf",
		"mode":         "convert",
		"quality":      "80",
		"width":        "640",
	}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}
	if _, ok := gotFields["height"]; ok {
		t.Error("zero height was sent")
	}

	after := testutil.ToFloat64(metrics.RemoteRequestsTotal.WithLabelValues(DocumentEndpoint, "success"))
	if after != before+1 {
		t.Errorf("success counter = %v, want %v", after, before+1)
	}
}

func TestSendMediaEndpoint(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("audio"))
	}, Config{})

	if _, ct, err := c.Send(context.Background(), File{Name: "a.mov", Data: []byte("x")}, Params{Kind: KindMedia, TargetFormat: "m4a"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	} else if ct != "video/mp4" {
		t.Errorf("content type = %q", ct)
	}
	if gotPath != MediaEndpoint {
		t.Errorf("path = %q, want %q", gotPath, MediaEndpoint)
	}
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{"json error", http.StatusUnprocessableEntity, "application/json", `{"error":"password protected"}`, 422, "password protected"},
		{"json error with 200", http.StatusOK, "application/json; charset=utf-8", `{"error":"unsupported input"}`, 200, "unsupported input"},
		{"plain text", http.StatusInternalServerError, "text/plain", "converter crashed\n", 500, "converter crashed"},
		{"html page", http.StatusBadGateway, "text/html", "<html>bad gateway</html>", 502, "Bad Gateway"},
		{"json without error field", http.StatusServiceUnavailable, "application/json", `{}`, 503, "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, Config{})

			_, _, err := c.Send(context.Background(), File{Name: "a.docx", Data: []byte("x")}, Params{TargetFormat: "pdf"})
			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RemoteError", err)
			}
			if re.Status != tt.wantStatus || re.Message != tt.wantMessage {
				t.Errorf("RemoteError = %+v, want {%d %q}", *re, tt.wantStatus, tt.wantMessage)
			}
		})
	}
}

func TestErrorMessageTruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes put the 200-byte cut inside the two-byte "é"
	body := strings.Repeat("x", 199) + strings.Repeat("é", 10)
	got := errorMessage(http.StatusInternalServerError, []byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("message is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("x", 199) {
		t.Errorf("message = %q (%d bytes)", got, len(got))
	}

	short := "Ошибка конвертации"
	if got := errorMessage(http.StatusBadGateway, []byte(short)); got != short {
		t.Errorf("short message = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"日本語", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestSendUnexpectedContentType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login</html>"))
	}, Config{})

	_, _, err := c.Send(context.Background(), File{Name: "a.docx", Data: []byte("x")}, Params{TargetFormat: "pdf"})
	if !errors.Is(err, ErrUnexpectedContentType) {
		t.Errorf("error = %v, want ErrUnexpectedContentType", err)
	}
}

func TestSendTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, _, err := c.Send(context.Background(), File{Name: "a.docx", Data: []byte("x")}, Params{TargetFormat: "pdf"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Send() took %v after timeout", elapsed)
	}
}

func TestSendCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := c.Send(ctx, File{Name: "a.docx", Data: []byte("x")}, Params{TargetFormat: "pdf"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAcceptable(t *testing.T) {
	tests := []struct {
		mediaType, target string
		want              bool
	}{
		{"", "pdf", true},
		{"application/octet-stream", "mp3", true},
		{"application/pdf", "pdf", true},
		{"application/zip", "docx", true},
		{"image/jpeg", "png", true},
		{"audio/mpeg", "mp3", true},
		{"video/mp4", "m4a", true},
		{"image/png", "mp3", false},
		{"text/plain", "txt", true},
		{"text/html", "html", true},
		{"text/html", "txt", false},
		{"text/plain", "pdf", false},
	}

	for _, tt := range tests {
		if got := acceptable(tt.mediaType, tt.target); got != tt.want {
			t.Errorf("acceptable(%q, %q) = %v, want %v", tt.mediaType, tt.target, got, tt.want)
		}
	}
}
