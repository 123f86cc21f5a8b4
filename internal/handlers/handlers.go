package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"filetool/internal/convert"
	"filetool/internal/streaming"
	"filetool/internal/transcoder"
	"filetool/internal/workers"
)

// EngineController is the part of transcoder.Handle the API exposes.
type EngineController interface {
	State() transcoder.State
	LastError() error
	QueueDepth() int
	Version() string
	Retry(ctx context.Context) error
}

// Options configures the handlers.
type Options struct {
	// MaxUploadBytes caps the request body. It should exceed the
	// dispatcher's file size limit by the multipart overhead.
	MaxUploadBytes int64
	// RemoteEnabled is reported by the formats and health endpoints.
	RemoteEnabled bool
	// Stream configures delivery of converted files.
	Stream streaming.Config
	// Admission, when set, is consulted before an upload is read.
	Admission Admitter
}

// Admitter gates the start of a conversion. Admit blocks until the
// conversion may proceed or ctx ends.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Handlers holds the dependencies of the HTTP API.
type Handlers struct {
	dispatcher *convert.Dispatcher
	engine     EngineController
	limiter    *workers.Limiter
	opts       Options
	startTime  time.Time
	draining   atomic.Bool
}

// New creates the API handlers. engine and limiter may be nil.
func New(d *convert.Dispatcher, engine EngineController, limiter *workers.Limiter, opts Options) *Handlers {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = d.Config().MaxFileSizeBytes + multipartOverhead
	}
	if opts.Stream.ChunkSize == 0 && opts.Stream.WriteTimeout == 0 {
		opts.Stream = streaming.DefaultConfig()
	}
	return &Handlers{
		dispatcher: d,
		engine:     engine,
		limiter:    limiter,
		opts:       opts,
		startTime:  time.Now(),
	}
}

// SetDraining makes the readiness probe fail so load balancers stop
// sending new conversions during shutdown.
func (h *Handlers) SetDraining() {
	h.draining.Store(true)
}
