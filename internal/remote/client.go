package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"filetool/internal/formats"
	"filetool/internal/logging"
	"filetool/internal/metrics"
)

// Kind selects the backend endpoint and timeout.
type Kind string

const (
	// KindDocument routes to the document endpoint.
	KindDocument Kind = "document"
	// KindMedia routes to the media endpoint, which gets a longer timeout.
	KindMedia Kind = "media"
)

// Endpoint paths on the backend.
const (
	DocumentEndpoint = "/api/convert-doc"
	MediaEndpoint    = "/api/convert-media"
)

const (
	// DefaultTimeout bounds document requests.
	DefaultTimeout = 20 * time.Second
	// DefaultMediaTimeout bounds media requests.
	DefaultMediaTimeout = 300 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
	// maxResponseBody caps a successful response.
	maxResponseBody = 1 << 30
	// maxErrorMessage caps a plain-text error message, in bytes.
	maxErrorMessage = 200
)

var (
	// ErrTimeout is returned when the per-call timeout fires.
	ErrTimeout = errors.New("remote request timed out")

	// ErrUnexpectedContentType is returned for a success response whose
	// content type does not fit the requested target.
	ErrUnexpectedContentType = errors.New("unexpected response content type")

	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("remote backend not configured")
)

// RemoteError is a structured failure reported by the backend.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: status %d", e.Status)
	}
	return fmt.Sprintf("remote error: status %d: %s", e.Status, e.Message)
}

// File is the payload sent to the backend.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Params are the conversion parameters sent alongside the file.
type Params struct {
	Kind         Kind
	TargetFormat string
	Mode         string
	// Quality is 1-100; zero is not sent.
	Quality int
	Width   int
	Height  int
}

// Config configures the client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MediaTimeout time.Duration
}

// Client posts files to the conversion backend.
type Client struct {
	baseURL      string
	timeout      time.Duration
	mediaTimeout time.Duration
	httpClient   *http.Client
}

// New creates a client. Zero timeouts take their defaults.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", cfg.BaseURL)
	}

	c := &Client{
		baseURL:      base,
		timeout:      cfg.Timeout,
		mediaTimeout: cfg.MediaTimeout,
		httpClient:   &http.Client{},
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.mediaTimeout <= 0 {
		c.mediaTimeout = DefaultMediaTimeout
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) route(kind Kind) (string, time.Duration) {
	if kind == KindMedia {
		return MediaEndpoint, c.mediaTimeout
	}
	return DocumentEndpoint, c.timeout
}

// Send uploads file and returns the converted bytes and their content type.
// A JSON response, or any non-2xx status, is returned as *RemoteError.
// When the per-call timeout fires the error wraps ErrTimeout; cancellation
// of ctx itself returns ctx.Err().
func (c *Client) Send(ctx context.Context, file File, params Params) ([]byte, string, error) {
	endpoint, timeout := c.route(params.Kind)

	body, contentType, err := encodeForm(file, params)
	if err != nil {
		return nil, "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	logging.Debug("Remote %s: %s -> %s (%d bytes)", endpoint, file.Name, params.TargetFormat, len(file.Data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, "", c.transportError(ctx, callCtx, err, timeout)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("failed to close remote response body: %v", cerr)
		}
	}()

	data, respType, err := readResponse(resp, params.TargetFormat)
	metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if callCtx.Err() != nil {
			err = c.transportError(ctx, callCtx, err, timeout)
		}
		metrics.RemoteRequestsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode, err)).Inc()
		return nil, "", err
	}

	metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "success").Inc()
	logging.Debug("Remote %s returned %d bytes (%s) in %v", endpoint, len(data), respType, time.Since(start))
	return data, respType, nil
}

func (c *Client) transportError(parent, call context.Context, err error, timeout time.Duration) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return fmt.Errorf("remote request failed: %w", err)
}

func encodeForm(file File, params Params) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := file.Name
	if name == "" {
		name = "upload"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}

	target := formats.Normalize(params.TargetFormat)
	fields := [][2]string{
		{"targetFormat", target},
		{"target", target},
		{"format", target},
		{"targetExt", "." + target},
	}
	if params.Mode != "" {
		fields = append(fields, [2]string{"mode", params.Mode})
	}
	if params.Quality > 0 {
		fields = append(fields, [2]string{"quality", strconv.Itoa(min(params.Quality, 100))})
	}
	if params.Width > 0 {
		fields = append(fields, [2]string{"width", strconv.Itoa(params.Width)})
	}
	if params.Height > 0 {
		fields = append(fields, [2]string{"height", strconv.Itoa(params.Height)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func readResponse(resp *http.Response, target string) ([]byte, string, error) {
	ct := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || isJSON(mediaType) {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &RemoteError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if !acceptable(mediaType, target) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnexpectedContentType, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if mediaType == "" {
		mediaType = formats.MimeType(target)
	}
	return data, mediaType, nil
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// errorMessage pulls the {error} field out of a JSON body, falling back to
// the body text or the status text.
func errorMessage(status int, raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "<") && !strings.HasPrefix(text, "{") {
		return truncate(text, maxErrorMessage)
	}
	return http.StatusText(status)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// acceptable reports whether a success response with mediaType can be the
// converted form of target.
func acceptable(mediaType, target string) bool {
	if mediaType == "" || mediaType == "application/octet-stream" {
		return true
	}
	expected := formats.MimeType(target)
	if mediaType == expected {
		return true
	}

	family, _, _ := strings.Cut(mediaType, "/")
	expectedFamily, _, _ := strings.Cut(expected, "/")
	switch family {
	case "image":
		return expectedFamily == "image"
	case "audio", "video":
		return expectedFamily == "audio" || expectedFamily == "video"
	case "application":
		return true
	case "text":
		// HTML error pages are only a success when HTML was asked for.
		return expectedFamily == "text" && (mediaType != "text/html" || formats.Equivalent(target, "html"))
	}
	return false
}

func statusLabel(status int, err error) string {
	var re *RemoteError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &re):
		return strconv.Itoa(re.Status)
	}
	return strconv.Itoa(status)
}
