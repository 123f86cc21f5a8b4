package convert

import "sync"

// progress enforces the reporting rules for one request: values never
// decrease, stay below 1 until the output is confirmed and reset to 0 on
// failure. Engine callbacks may arrive from other goroutines.
type progress struct {
	mu   sync.Mutex
	sink ProgressFunc
	last float64
	done bool
}

func newProgress(sink ProgressFunc) *progress {
	return &progress{sink: sink}
}

func (p *progress) report(v float64) {
	if v > 0.99 {
		v = 0.99
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || v <= p.last {
		return
	}
	p.last = v
	p.emit(v)
}

func (p *progress) succeed() {
	p.finish(1)
}

func (p *progress) fail() {
	p.finish(0)
}

func (p *progress) finish(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.last = v
	p.emit(v)
}

// emit must be called with p.mu held.
func (p *progress) emit(v float64) {
	if p.sink != nil {
		p.sink(v)
	}
}
