package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"filetool/internal/logging"
)

const (
	// DefaultMemoryRatio is the share of the container limit given to the Go
	// heap. ffmpeg runs as a child process and libvips allocates through
	// cgo, so neither counts against GOMEMLIMIT.
	DefaultMemoryRatio = 0.7

	cgroupMemoryMax = "/sys/fs/cgroup/memory.max"
)

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether GOMEMLIMIT was set
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", "cgroup" or "none"
	Source string

	// ContainerLimit is the container memory limit in bytes (0 if unknown)
	ContainerLimit int64

	// GoMemLimit is the configured GOMEMLIMIT in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the memory ratio used (0 if not applicable)
	Ratio float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container memory limit. Call it
// early in main, before large allocations.
//
// Environment variables:
//   - GOMEMLIMIT: if set, left alone
//   - MEMORY_LIMIT: container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: share of the limit for the Go heap (default 0.7)
//
// Without MEMORY_LIMIT the cgroup v2 memory.max file is consulted.
func ConfigureFromEnv() ConfigResult {
	return configure(os.Getenv, readCgroupLimit, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, cgroupLimit func() int64, setLimit func(int64) int64) ConfigResult {
	result := ConfigResult{Source: "none"}

	if env := getenv("GOMEMLIMIT"); env != "" {
		if limit := setLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	var limit int64
	if s := getenv("MEMORY_LIMIT"); s != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || v <= 0 {
			logging.Warn("Failed to parse MEMORY_LIMIT %q, GOMEMLIMIT not configured", s)
			return result
		}
		limit = v
		result.Source = "MEMORY_LIMIT"
	} else if v := cgroupLimit(); v > 0 {
		limit = v
		result.Source = "cgroup"
	} else {
		logging.Debug("No container memory limit found, GOMEMLIMIT will not be configured")
		return result
	}

	ratio := DefaultMemoryRatio
	if s := getenv("MEMORY_RATIO"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", s, err, DefaultMemoryRatio)
		case v <= 0 || v > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		default:
			ratio = v
		}
	}

	goMemLimit := int64(float64(limit) * ratio)
	setLimit(goMemLimit)

	result.Configured = true
	result.ContainerLimit = limit
	result.GoMemLimit = goMemLimit
	result.Ratio = ratio

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s %s limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(limit), result.Source)
	return result
}

// readCgroupLimit returns the cgroup v2 memory limit, or 0 when there is
// none or it is "max".
func readCgroupLimit() int64 {
	data, err := os.ReadFile(cgroupMemoryMax)
	if err != nil {
		return 0
	}
	return parseCgroupLimit(string(data))
}

func parseCgroupLimit(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "max" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
