package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"filetool/internal/logging"
)

var (
	// ErrClientGone indicates that the client disconnected before the
	// body was fully written.
	ErrClientGone = errors.New("client disconnected")

	// ErrWriteTimeout indicates that a chunk could not be written within
	// the configured timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")
)

// Config configures chunked delivery of a response body.
type Config struct {
	// WriteTimeout bounds each chunk write. Zero disables the deadline.
	WriteTimeout time.Duration
	// ChunkSize is the largest single write. Zero writes everything at once.
	ChunkSize int
	// OnProgress is called after each chunk with the running total.
	OnProgress func(written int64)
}

// DefaultConfig suits converted files of up to a few hundred megabytes.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    256 * 1024,
	}
}

// Send writes data to w in chunks. Before each chunk the connection's write
// deadline is pushed forward by WriteTimeout, so a slow but live client can
// download a large file while a stalled one is cut off. The caller sets
// headers and status first.
func Send(ctx context.Context, w http.ResponseWriter, data []byte, cfg Config) (int64, error) {
	rc := http.NewResponseController(w)
	deadlines := cfg.WriteTimeout > 0

	chunk := cfg.ChunkSize
	if chunk <= 0 || chunk > len(data) {
		chunk = len(data)
	}

	var written int64
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("%w after %d bytes", ErrClientGone, written)
		}

		if deadlines {
			if err := rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				if !errors.Is(err, http.ErrNotSupported) {
					logging.Debug("failed to set write deadline: %v", err)
				}
				deadlines = false
			}
		}

		n := min(chunk, len(data))
		m, err := w.Write(data[:n])
		written += int64(m)
		if err != nil {
			if isTimeout(err) {
				return written, fmt.Errorf("%w after %d bytes", ErrWriteTimeout, written)
			}
			if ctx.Err() != nil {
				return written, fmt.Errorf("%w after %d bytes", ErrClientGone, written)
			}
			return written, err
		}
		data = data[n:]

		if cfg.OnProgress != nil {
			cfg.OnProgress(written)
		}
	}

	if deadlines {
		// Leave the connection usable for keep-alive.
		_ = rc.SetWriteDeadline(time.Time{})
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return written, err
	}
	return written, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
