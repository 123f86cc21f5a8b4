package convert

import (
	"context"
	"errors"
	"strings"
	"sync"

	"filetool/internal/media"
	"filetool/internal/remote"
	"filetool/internal/transcoder"
)

type fakeImages struct {
	calls   int
	lastOpt media.Options
	out     []byte
	err     error
}

func (f *fakeImages) Convert(_ context.Context, data []byte, _, targetExt string, opts media.Options) ([]byte, error) {
	f.calls++
	f.lastOpt = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return []byte(targetExt + ":" + string(data)), nil
}

// fakeEngine fails the first failures runs with a TranscodeError.
type fakeEngine struct {
	mu         sync.Mutex
	acquireErr error
	failures   int
	runs       [][]string
	progress   []float64
}

func (f *fakeEngine) Acquire(context.Context) error {
	return f.acquireErr
}

func (f *fakeEngine) Run(_ context.Context, cmd transcoder.Command, progress func(float64)) ([]byte, error) {
	f.mu.Lock()
	f.runs = append(f.runs, cmd.Args)
	fail := len(f.runs) <= f.failures
	f.mu.Unlock()

	for _, p := range f.progress {
		progress(p)
	}
	if fail {
		return nil, &transcoder.TranscodeError{Reason: "Unknown encoder"}
	}
	return []byte(cmd.OutputExt + ":" + strings.Join(cmd.Args, " ")), nil
}

type fakeDocuments struct {
	supported map[string]bool
	calls     int
	err       error
}

func (f *fakeDocuments) Supports(sourceExt, targetExt string) bool {
	return f.supported[sourceExt+">"+targetExt]
}

func (f *fakeDocuments) Convert(_ context.Context, data []byte, _, targetExt string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(targetExt + ":" + string(data)), nil
}

type fakeRemote struct {
	calls  int
	params remote.Params
	file   remote.File
	out    []byte
	err    error
}

func (f *fakeRemote) Send(_ context.Context, file remote.File, params remote.Params) ([]byte, string, error) {
	f.calls++
	f.file = file
	f.params = params
	if f.err != nil {
		return nil, "", f.err
	}
	if f.out != nil {
		return f.out, "application/octet-stream", nil
	}
	return []byte("remote:" + params.TargetFormat), "application/octet-stream", nil
}

type recordingObserver struct {
	mu        sync.Mutex
	states    []string
	fallbacks []string
	outcomes  []string
	started   int
}

func (o *recordingObserver) ObserveState(state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) ObserveStart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) ObserveConversion(category, strategy, status string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, category+"/"+strategy+"/"+status)
}

func (o *recordingObserver) ObserveFallback(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, kind)
}

// progressRecorder collects progress values.
type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) sink(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressRecorder) last() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.values) == 0 {
		return -1
	}
	return p.values[len(p.values)-1]
}

func (p *progressRecorder) nonDecreasing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 1; i < len(p.values); i++ {
		if p.values[i] < p.values[i-1] {
			return false
		}
	}
	return true
}

var errBoom = errors.New("boom")

type fixture struct {
	images   *fakeImages
	engine   *fakeEngine
	docs     *fakeDocuments
	remote   *fakeRemote
	observer *recordingObserver
}

func newFixture() *fixture {
	return &fixture{
		images: &fakeImages{},
		engine: &fakeEngine{},
		docs: &fakeDocuments{supported: map[string]bool{
			"txt>pdf":  true,
			"pdf>txt":  true,
			"md>html":  true,
			"png>pdf":  true,
			"jpg>pdf":  true,
			"html>txt": true,
		}},
		remote:   &fakeRemote{},
		observer: &recordingObserver{},
	}
}

func (f *fixture) dispatcher(cfg Config, withRemote bool) *Dispatcher {
	deps := Dependencies{
		Images:    f.images,
		Engine:    f.engine,
		Documents: f.docs,
		Observer:  f.observer,
	}
	if withRemote {
		deps.Remote = f.remote
	}
	return NewDispatcher(cfg, deps)
}

func file(name string, size int) SourceFile {
	data := make([]byte, size)
	for i := range data {
		data[i] = 'x'
	}
	return SourceFile{Name: name, Data: data}
}
