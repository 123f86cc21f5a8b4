package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"filetool/internal/filesystem"
	"filetool/internal/logging"
)

// FFmpegConfig configures the ffmpeg-backed engine.
type FFmpegConfig struct {
	// BinaryPath overrides binary discovery when set.
	BinaryPath string
	// WorkDir is the parent of the engine's private working directory.
	// Empty means the system temp directory.
	WorkDir string
}

// FFmpeg runs the ffmpeg binary against files in a private working
// directory.
type FFmpeg struct {
	path    string
	dir     string
	version string
	retry   filesystem.RetryConfig

	processes map[string]*exec.Cmd
	processMu sync.Mutex
	closed    bool
}

var errInvalidName = errors.New("invalid working file name")

// NewFFmpegLoader returns a Loader that locates and probes ffmpeg.
func NewFFmpegLoader(cfg FFmpegConfig) Loader {
	return func(ctx context.Context) (Engine, error) {
		return LoadFFmpeg(ctx, cfg)
	}
}

// LoadFFmpeg locates the ffmpeg binary, checks that it runs and creates the
// working directory.
func LoadFFmpeg(ctx context.Context, cfg FFmpegConfig) (*FFmpeg, error) {
	path, err := FindFFmpeg(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	logging.Debug("  FFmpeg path: %s", path)

	version, err := ProbeVersion(ctx, path)
	if err != nil {
		return nil, err
	}
	logging.Info("  FFmpeg version: %s", version)

	if cfg.WorkDir != "" {
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create engine work directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(cfg.WorkDir, "filetool-engine-")
	if err != nil {
		return nil, fmt.Errorf("failed to create engine work directory: %w", err)
	}

	return &FFmpeg{
		path:      path,
		dir:       dir,
		version:   version,
		retry:     filesystem.DefaultRetryConfig(),
		processes: make(map[string]*exec.Cmd),
	}, nil
}

// ErrFFmpegNotFound is returned when no ffmpeg binary is configured or found.
var ErrFFmpegNotFound = errors.New("ffmpeg not found in ./bin or PATH")

// FindFFmpeg returns configured when it is set, otherwise the first ffmpeg
// found by findBinary.
func FindFFmpeg(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	found, ok := findBinary("ffmpeg")
	if !ok {
		return "", ErrFFmpegNotFound
	}
	return found, nil
}

// ProbeVersion runs `ffmpeg -version` and returns the first line.
func ProbeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version() string {
	return f.version
}

func (f *FFmpeg) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return filepath.Join(f.dir, name), nil
}

// WriteFile stores data under name in the working directory.
func (f *FFmpeg) WriteFile(name string, data []byte) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	return filesystem.WriteFile(path, data, 0o600, f.retry)
}

// ReadFile returns the content of a working file.
func (f *FFmpeg) ReadFile(name string) ([]byte, error) {
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return filesystem.ReadFile(path, f.retry)
}

// Remove deletes a working file.
func (f *FFmpeg) Remove(name string) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	return filesystem.Remove(path, f.retry)
}

var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// Exec runs ffmpeg with args inside the working directory.
func (f *FFmpeg) Exec(ctx context.Context, args []string, progress func(float64)) error {
	if len(args) == 0 {
		return errors.New("no ffmpeg arguments")
	}

	full := make([]string, 0, len(args)+7)
	full = append(full, "-hide_banner", "-nostdin", "-y", "-progress", "pipe:1", "-nostats")
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, f.path, full...)
	cmd.Dir = f.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	key := args[len(args)-1]
	f.processMu.Lock()
	if f.closed {
		f.processMu.Unlock()
		return errors.New("engine closed")
	}
	f.processes[key] = cmd
	f.processMu.Unlock()

	defer func() {
		f.processMu.Lock()
		delete(f.processes, key)
		f.processMu.Unlock()
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tracker := &progressTracker{sink: progress}
	var tail []string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tail = tracker.scanStderr(stderr)
	}()
	go func() {
		defer wg.Done()
		tracker.scanProgress(stdout)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := strings.Join(tail, "; ")
		if reason == "" {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, reason)
	}
	return nil
}

// Close kills running processes and removes the working directory.
func (f *FFmpeg) Close() error {
	f.processMu.Lock()
	f.closed = true
	for name, cmd := range f.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoding process for: %s", name)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for %s: %v", name, err)
			}
		}
	}
	f.processMu.Unlock()

	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("failed to remove engine work directory: %w", err)
	}
	return nil
}

// WorkDirSize returns the total size of files in the working directory.
func (f *FFmpeg) WorkDirSize() (int64, error) {
	var size int64
	err := filepath.Walk(f.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// progressTracker turns ffmpeg's -progress output into a completion ratio.
// The total duration comes from the "Duration:" line ffmpeg prints to
// stderr while probing the input.
type progressTracker struct {
	sink func(float64)

	mu       sync.Mutex
	duration time.Duration
}

const stderrTailLines = 5

func (p *progressTracker) scanStderr(r io.Reader) []string {
	var tail []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if m := durationPattern.FindStringSubmatch(line); m != nil {
			p.setDuration(parseClock(m[1], m[2], m[3]))
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	// Keep draining so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
	return tail
}

func (p *progressTracker) scanProgress(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		// out_time_ms is in microseconds as well
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 {
				continue
			}
			p.report(time.Duration(us) * time.Microsecond)
		case "progress":
			if strings.TrimSpace(value) == "end" && p.sink != nil {
				p.sink(1)
			}
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

func (p *progressTracker) setDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// First Duration line belongs to the input
	if p.duration == 0 {
		p.duration = d
	}
}

func (p *progressTracker) report(elapsed time.Duration) {
	p.mu.Lock()
	total := p.duration
	p.mu.Unlock()

	if p.sink == nil || total <= 0 {
		return
	}
	p.sink(float64(elapsed) / float64(total))
}

func parseClock(h, m, s string) time.Duration {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.ParseFloat(s, 64)
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
}

// findBinary searches for an executable in the following order:
// 1. ./bin/ directory relative to the executable
// 2. ./bin/ directory relative to the current working directory
// 3. System PATH
func findBinary(name string) (string, bool) {
	if runtime.GOOS == "windows" && filepath.Ext(name) != ".exe" {
		name += ".exe"
	}

	if execPath, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(execPath), "bin", name)
		if _, err := os.Stat(bundled); err == nil {
			return bundled, true
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, "bin", name)
		if _, err := os.Stat(local); err == nil {
			return local, true
		}
	}

	if systemPath, err := exec.LookPath(name); err == nil {
		return systemPath, true
	}

	return "", false
}
