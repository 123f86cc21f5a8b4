package media

import (
	"testing"

	"filetool/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// NOTE: govips doesn't support stopping and restarting vips in the same process.
// Once vips.Shutdown() is called, vips.Startup() cannot be called again, so
// these tests never call ShutdownVips.

// requireVips initializes libvips or skips the test.
func requireVips(t *testing.T) {
	t.Helper()
	if IsVipsAvailable() {
		return
	}
	if err := InitVips(); err != nil || !IsVipsAvailable() {
		t.Skip("libvips not available in test environment")
	}
}

func TestInitVipsIdempotency(t *testing.T) {
	if err := InitVips(); err != nil {
		t.Skipf("libvips not available in test environment: %v", err)
	}
	if err := InitVips(); err != nil {
		t.Errorf("Second InitVips() call failed: %v", err)
	}
	if !IsVipsAvailable() {
		t.Error("After successful InitVips, IsVipsAvailable should return true")
	}
}

func TestVipsLogging(t *testing.T) {
	tests := []struct {
		level logging.LogLevel
		want  vips.LogLevel
	}{
		{logging.LevelDebug, vips.LogLevelInfo},
		{logging.LevelInfo, vips.LogLevelWarning},
		{logging.LevelWarn, vips.LogLevelError},
		{logging.LevelError, vips.LogLevelCritical},
	}

	for _, tt := range tests {
		got, handler := vipsLogging(tt.level)
		if got != tt.want {
			t.Errorf("vipsLogging(%s) level = %v, want %v", tt.level, got, tt.want)
		}
		if handler == nil {
			t.Fatalf("vipsLogging(%s) returned nil handler", tt.level)
		}
		// Must not panic for any level
		handler("VIPS", vips.LogLevelWarning, "test message")
		handler("VIPS", vips.LogLevelDebug, "test message")
	}
}

func TestDecodeSVGWithVips(t *testing.T) {
	requireVips(t)

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="40" height="30">` +
		`<rect width="40" height="30" fill="#ff0000"/></svg>`)

	img, err := decodeWithVips(svg)
	if err != nil {
		t.Fatalf("decodeWithVips() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("decoded size = %dx%d, want 40x30", b.Dx(), b.Dy())
	}
}
