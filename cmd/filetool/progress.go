package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	defaultTermWidth = 80
	minBarWidth      = 10
)

// progressBar renders a single-line bar on a terminal. Update may be
// called from the engine's progress goroutine.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	label string
	last  int
	done  bool
}

func newProgressBar(w io.Writer, termWidth int, label string) *progressBar {
	if termWidth <= 0 {
		termWidth = defaultTermWidth
	}
	// label, space, brackets, space, "100%"
	barWidth := termWidth - len(label) - 8
	if barWidth < minBarWidth {
		label = ""
		barWidth = max(minBarWidth, termWidth-7)
	}
	return &progressBar{w: w, width: barWidth, label: label, last: -1}
}

// Update draws the bar at ratio v. Redraws are skipped until the
// percentage changes.
func (p *progressBar) Update(v float64) {
	v = min(max(v, 0), 1)
	pct := int(v * 100)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || pct == p.last {
		return
	}
	p.last = pct
	fmt.Fprint(p.w, "\r"+p.render(v))
}

// Done ends the bar's line.
func (p *progressBar) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}

func (p *progressBar) render(v float64) string {
	filled := int(v * float64(p.width))
	bar := strings.Repeat("#", filled) + strings.Repeat(" ", p.width-filled)
	line := fmt.Sprintf("[%s] %3d%%", bar, int(v*100))
	if p.label != "" {
		line = p.label + " " + line
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultTermWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTermWidth
	}
	return width
}
