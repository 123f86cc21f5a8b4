package transcoder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEngine is an in-memory Engine. execFn decides what a run produces.
type fakeEngine struct {
	mu     sync.Mutex
	files  map[string][]byte
	closed bool

	execFn func(ctx context.Context, args []string, progress func(float64)) error

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{files: make(map[string][]byte)}
	e.execFn = func(_ context.Context, args []string, progress func(float64)) error {
		in := args[1]
		out := args[len(args)-1]
		e.mu.Lock()
		data := e.files[in]
		e.files[out] = append([]byte("converted:"), data...)
		e.mu.Unlock()
		if progress != nil {
			progress(0.5)
		}
		return nil
	}
	return e
}

func (e *fakeEngine) WriteFile(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = data
	return nil
}

func (e *fakeEngine) ReadFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (e *fakeEngine) Remove(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, name)
	return nil
}

func (e *fakeEngine) Exec(ctx context.Context, args []string, progress func(float64)) error {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		cur := e.maxActive.Load()
		if n <= cur || e.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	return e.execFn(ctx, args, progress)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) fileCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.files)
}

func TestConcurrentAcquireLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	engine := newFakeEngine()
	h := NewHandle(func(context.Context) (Engine, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return engine, nil
	}, time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Acquire(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
	if h.State() != StateReady {
		t.Errorf("State() = %s, want ready", h.State())
	}
}

func TestFailedLoadIsTerminalUntilRetry(t *testing.T) {
	var loads atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	h := NewHandle(func(context.Context) (Engine, error) {
		loads.Add(1)
		if fail.Load() {
			return nil, errors.New("binary missing")
		}
		return newFakeEngine(), nil
	}, time.Second)

	err := h.Acquire(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("Acquire() error = %v, want ErrEngineUnavailable", err)
	}
	if h.State() != StateFailed {
		t.Fatalf("State() = %s, want failed", h.State())
	}
	if h.LastError() == nil {
		t.Error("LastError() = nil after failed load")
	}

	// Passive callers must not reload.
	for i := 0; i < 3; i++ {
		if err := h.Acquire(context.Background()); !errors.Is(err, ErrEngineUnavailable) {
			t.Errorf("Acquire() after failure = %v, want ErrEngineUnavailable", err)
		}
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}

	fail.Store(false)
	if err := h.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if h.State() != StateReady {
		t.Errorf("State() after Retry = %s, want ready", h.State())
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loader called %d times after Retry, want 2", got)
	}
}

func TestLoaderReturningNilEngineFails(t *testing.T) {
	h := NewHandle(func(context.Context) (Engine, error) { return nil, nil }, time.Second)

	if err := h.Acquire(context.Background()); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("Acquire() error = %v, want ErrEngineUnavailable", err)
	}
}

func TestAcquireCallerCancellationDoesNotFailLoad(t *testing.T) {
	release := make(chan struct{})
	h := NewHandle(func(context.Context) (Engine, error) {
		<-release
		return newFakeEngine(), nil
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Acquire(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}

	close(release)
	if err := h.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if h.State() != StateReady {
		t.Errorf("State() = %s, want ready", h.State())
	}
}

func TestRunProducesOutputAndCleansUp(t *testing.T) {
	engine := newFakeEngine()
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	var reported []float64
	out, err := h.Run(context.Background(), Command{
		Input:     []byte("movie"),
		InputExt:  "mov",
		OutputExt: "mp3",
		Args:      []string{"-vn"},
	}, func(p float64) { reported = append(reported, p) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != "converted:movie" {
		t.Errorf("Run() output = %q", out)
	}
	if n := engine.fileCount(); n != 0 {
		t.Errorf("%d working files left after Run", n)
	}
	if len(reported) != 1 || reported[0] != 0.5 {
		t.Errorf("progress = %v, want [0.5]", reported)
	}
}

func TestRunArgumentOrder(t *testing.T) {
	engine := newFakeEngine()
	var got []string
	engine.execFn = func(_ context.Context, args []string, _ func(float64)) error {
		got = append([]string(nil), args...)
		engine.mu.Lock()
		engine.files[args[len(args)-1]] = []byte("x")
		engine.mu.Unlock()
		return nil
	}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	_, err := h.Run(context.Background(), Command{
		Input: []byte("a"), InputExt: ".MOV", OutputExt: "mp4", Args: []string{"-c", "copy"},
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != 5 || got[0] != "-i" || got[2] != "-c" || got[3] != "copy" {
		t.Fatalf("args = %v", got)
	}
	if !strings.HasSuffix(got[1], ".mov") || !strings.HasSuffix(got[4], ".mp4") {
		t.Errorf("pseudo-filenames = %q, %q", got[1], got[4])
	}
	if got[1] == got[4] {
		t.Error("input and output names must differ")
	}
}

func TestRunFailureCleansUpAndWraps(t *testing.T) {
	engine := newFakeEngine()
	engine.execFn = func(_ context.Context, args []string, _ func(float64)) error {
		// Partial output before failing
		engine.mu.Lock()
		engine.files[args[len(args)-1]] = []byte("partial")
		engine.mu.Unlock()
		return errors.New("Unknown encoder 'libfoo'")
	}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	_, err := h.Run(context.Background(), Command{Input: []byte("a"), InputExt: "wav", OutputExt: "mp3"}, nil)

	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want *TranscodeError", err)
	}
	if !strings.Contains(te.Reason, "libfoo") {
		t.Errorf("Reason = %q, want engine message", te.Reason)
	}
	if n := engine.fileCount(); n != 0 {
		t.Errorf("%d working files left after failed Run", n)
	}
}

func TestRunEmptyOutputIsError(t *testing.T) {
	engine := newFakeEngine()
	engine.execFn = func(_ context.Context, args []string, _ func(float64)) error {
		engine.mu.Lock()
		engine.files[args[len(args)-1]] = nil
		engine.mu.Unlock()
		return nil
	}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	_, err := h.Run(context.Background(), Command{Input: []byte("a"), InputExt: "wav", OutputExt: "mp3"}, nil)
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Errorf("Run() error = %v, want *TranscodeError", err)
	}
}

func TestRunsAreSerialized(t *testing.T) {
	engine := newFakeEngine()
	base := engine.execFn
	engine.execFn = func(ctx context.Context, args []string, p func(float64)) error {
		time.Sleep(10 * time.Millisecond)
		return base(ctx, args, p)
	}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Run(context.Background(), Command{Input: []byte("a"), InputExt: "wav", OutputExt: "mp3"}, nil); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := engine.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent engine runs = %d, want 1", got)
	}
}

func TestRunWaitingHonoursContext(t *testing.T) {
	engine := newFakeEngine()
	block := make(chan struct{})
	base := engine.execFn
	engine.execFn = func(ctx context.Context, args []string, p func(float64)) error {
		<-block
		return base(ctx, args, p)
	}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	go func() {
		_, _ = h.Run(context.Background(), Command{Input: []byte("a"), InputExt: "wav", OutputExt: "mp3"}, nil)
	}()
	// Let the first run take the slot
	for h.State() != StateReady || engine.active.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Run(ctx, Command{Input: []byte("b"), InputExt: "wav", OutputExt: "mp3"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued Run() error = %v, want deadline exceeded", err)
	}
	if h.QueueDepth() != 0 {
		t.Errorf("QueueDepth() = %d after cancelled wait, want 0", h.QueueDepth())
	}
	close(block)
}

func TestProgressClamped(t *testing.T) {
	var got []float64
	sink := clampProgress(func(p float64) { got = append(got, p) })

	for _, p := range []float64{-0.5, 0.3, 1, 1.7} {
		sink(p)
	}

	want := []float64{0, 0.3, 0.99, 0.99}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("clamped[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// nil sinks are allowed
	clampProgress(nil)(0.5)
}

func TestCloseResetsHandle(t *testing.T) {
	engine := newFakeEngine()
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	if err := h.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !engine.closed {
		t.Error("engine not closed")
	}
	if h.State() != StateUninitialized {
		t.Errorf("State() after Close = %s, want uninitialized", h.State())
	}
}

// versionedEngine reports a version like the ffmpeg-backed engine does.
type versionedEngine struct {
	*fakeEngine
	version string
}

func (e versionedEngine) Version() string { return e.version }

func TestHandleVersion(t *testing.T) {
	engine := versionedEngine{fakeEngine: newFakeEngine(), version: "ffmpeg version 7.1"}
	h := NewHandle(func(context.Context) (Engine, error) { return engine, nil }, time.Second)

	if got := h.Version(); got != "" {
		t.Errorf("Version() before load = %q, want empty", got)
	}
	if err := h.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.Version(); got != "ffmpeg version 7.1" {
		t.Errorf("Version() = %q, want %q", got, "ffmpeg version 7.1")
	}

	plain := NewHandle(func(context.Context) (Engine, error) { return newFakeEngine(), nil }, time.Second)
	if err := plain.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := plain.Version(); got != "" {
		t.Errorf("Version() for engine without version = %q, want empty", got)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateLoading:       "loading",
		StateReady:         "ready",
		StateFailed:        "failed",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
