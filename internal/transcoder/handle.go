package transcoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"filetool/internal/formats"
	"filetool/internal/logging"
	"filetool/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a single engine load.
const DefaultLoadTimeout = 60 * time.Second

// State is the lifecycle state of the engine handle.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Handle owns the process-wide transcoding engine. The engine is loaded
// lazily on first use, shared by all callers and used by one run at a time.
type Handle struct {
	loader      Loader
	loadTimeout time.Duration

	group singleflight.Group

	mu      sync.Mutex
	state   State
	engine  Engine
	loadErr error

	// queue is a single-slot semaphore serializing runs.
	queue   chan struct{}
	waiting atomic.Int64
	seq     atomic.Uint64
}

// NewHandle creates a handle that loads its engine with loader. A zero
// loadTimeout uses DefaultLoadTimeout.
func NewHandle(loader Loader, loadTimeout time.Duration) *Handle {
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	return &Handle{
		loader:      loader,
		loadTimeout: loadTimeout,
		queue:       make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastError returns the error that put the handle into StateFailed, if any.
func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadErr
}

// QueueDepth returns the number of runs waiting for the engine.
func (h *Handle) QueueDepth() int {
	return int(h.waiting.Load())
}

// Acquire makes sure the engine is loaded. Concurrent callers during a load
// share that load. A handle in StateFailed returns ErrEngineUnavailable
// without reloading; use Retry for that. ctx only bounds how long this
// caller waits: an in-flight load keeps running for the others.
func (h *Handle) Acquire(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		h.mu.Unlock()
		return nil
	case StateFailed:
		err := h.loadErr
		h.mu.Unlock()
		return unavailable(err)
	}
	h.mu.Unlock()

	ch := h.group.DoChan("load", func() (interface{}, error) {
		return nil, h.load()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry resets a failed handle and loads the engine again. On a handle that
// is not failed it behaves like Acquire.
func (h *Handle) Retry(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateFailed {
		logging.Info("Transcoding engine retry requested after failure: %v", h.loadErr)
		h.setState(StateUninitialized)
		h.loadErr = nil
	}
	h.mu.Unlock()
	return h.Acquire(ctx)
}

// load runs inside the singleflight group. It re-checks the state because a
// caller may join after a previous flight already finished.
func (h *Handle) load() error {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		h.mu.Unlock()
		return nil
	case StateFailed:
		err := h.loadErr
		h.mu.Unlock()
		return unavailable(err)
	}
	h.setState(StateLoading)
	h.mu.Unlock()

	logging.Info("Loading transcoding engine...")
	start := time.Now()

	// Detached from any caller so one cancelled request cannot fail the
	// load for everyone waiting on it.
	ctx, cancel := context.WithTimeout(context.Background(), h.loadTimeout)
	defer cancel()

	engine, err := h.loader(ctx)
	if err == nil && engine == nil {
		err = errors.New("loader returned no engine")
	}

	metrics.EngineLoadDuration.Observe(time.Since(start).Seconds())

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		metrics.EngineLoadsTotal.WithLabelValues("error").Inc()
		h.loadErr = err
		h.setState(StateFailed)
		logging.Error("Transcoding engine failed to load: %v", err)
		return unavailable(err)
	}

	metrics.EngineLoadsTotal.WithLabelValues("success").Inc()
	h.engine = engine
	h.setState(StateReady)
	logging.Info("Transcoding engine ready in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// setState must be called with h.mu held.
func (h *Handle) setState(s State) {
	logging.Debug("Transcoding engine state: %s -> %s", h.state, s)
	h.state = s
	metrics.EngineState.Set(float64(s))
}

// Run executes cmd on the engine, loading it first if needed. Runs are
// serialized; waiting for the engine honours ctx. Both working files are
// removed before Run returns, whatever the outcome. progress receives values
// clamped to [0, 0.99] and may be nil.
func (h *Handle) Run(ctx context.Context, cmd Command, progress func(float64)) ([]byte, error) {
	if err := h.Acquire(ctx); err != nil {
		return nil, err
	}

	h.waiting.Add(1)
	select {
	case h.queue <- struct{}{}:
		h.waiting.Add(-1)
	case <-ctx.Done():
		h.waiting.Add(-1)
		return nil, ctx.Err()
	}
	defer func() { <-h.queue }()

	h.mu.Lock()
	engine := h.engine
	h.mu.Unlock()
	if engine == nil {
		return nil, unavailable(errors.New("engine closed"))
	}

	start := time.Now()
	data, err := h.run(ctx, engine, cmd, clampProgress(progress))
	metrics.EngineRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EngineRunsTotal.WithLabelValues("success").Inc()
	return data, nil
}

func (h *Handle) run(ctx context.Context, engine Engine, cmd Command, progress func(float64)) ([]byte, error) {
	n := h.seq.Add(1)
	inName := fmt.Sprintf("in-%06d.%s", n, formats.Normalize(cmd.InputExt))
	outName := fmt.Sprintf("out-%06d.%s", n, formats.Normalize(cmd.OutputExt))

	defer removeQuietly(engine, inName)
	defer removeQuietly(engine, outName)

	if err := engine.WriteFile(inName, cmd.Input); err != nil {
		return nil, &TranscodeError{Reason: "writing input: " + err.Error(), Err: err}
	}

	args := make([]string, 0, len(cmd.Args)+3)
	args = append(args, "-i", inName)
	args = append(args, cmd.Args...)
	args = append(args, outName)

	logging.Debug("Engine run %d: %v", n, args)

	if err := engine.Exec(ctx, args, progress); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TranscodeError{Reason: err.Error(), Err: err}
	}

	data, err := engine.ReadFile(outName)
	if err != nil {
		return nil, &TranscodeError{Reason: "reading output: " + err.Error(), Err: err}
	}
	if len(data) == 0 {
		return nil, &TranscodeError{Reason: "engine produced empty output"}
	}
	return data, nil
}

// Close releases the engine. The handle returns to StateUninitialized and
// will load again on the next Acquire.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine == nil {
		return nil
	}
	err := h.engine.Close()
	h.engine = nil
	if h.state == StateReady {
		h.setState(StateUninitialized)
	}
	return err
}

// Version reports the loaded engine's version string, or "" before load
// or when the engine does not expose one.
func (h *Handle) Version() string {
	h.mu.Lock()
	engine := h.engine
	h.mu.Unlock()

	v, ok := engine.(interface{ Version() string })
	if !ok {
		return ""
	}
	return v.Version()
}

// WorkDirSize reports the bytes held by the engine's working area when the
// engine can measure it.
func (h *Handle) WorkDirSize() int64 {
	h.mu.Lock()
	engine := h.engine
	h.mu.Unlock()

	sizer, ok := engine.(interface{ WorkDirSize() (int64, error) })
	if !ok {
		return 0
	}
	size, err := sizer.WorkDirSize()
	if err != nil {
		logging.Debug("failed to measure engine working directory: %v", err)
		return 0
	}
	return size
}

func removeQuietly(engine Engine, name string) {
	if err := engine.Remove(name); err != nil {
		logging.Warn("failed to remove engine file %s: %v", name, err)
	}
}

func unavailable(cause error) error {
	if cause == nil {
		return ErrEngineUnavailable
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, cause)
}

func clampProgress(sink func(float64)) func(float64) {
	return func(p float64) {
		if sink == nil {
			return
		}
		switch {
		case p < 0:
			p = 0
		case p > 0.99:
			p = 0.99
		}
		sink(p)
	}
}
