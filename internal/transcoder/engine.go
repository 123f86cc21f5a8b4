package transcoder

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngineUnavailable is returned when the engine failed to load. The
// handle stays in the failed state until Retry is called.
var ErrEngineUnavailable = errors.New("transcoding engine unavailable")

// Engine is the minimal surface a transcoding backend exposes. File names
// are pseudo-filenames inside the engine's private working area.
type Engine interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	// Remove deletes a working file. Removing a missing file is not an error.
	Remove(name string) error
	// Exec runs one command. args use ffmpeg argv grammar and reference
	// files by the names given to WriteFile. progress receives the fraction
	// of the input processed so far and may be nil.
	Exec(ctx context.Context, args []string, progress func(float64)) error
	Close() error
}

// Loader creates a ready Engine. It is called at most once per successful
// load; ctx carries the load timeout.
type Loader func(ctx context.Context) (Engine, error)

// Command is a single transcode job.
type Command struct {
	// Input is the source file content.
	Input []byte
	// InputExt and OutputExt become the pseudo-filename extensions. The
	// engine infers containers from them.
	InputExt  string
	OutputExt string
	// Args are the codec arguments placed between the input and the output.
	Args []string
}

// TranscodeError reports a failed engine execution.
type TranscodeError struct {
	Reason string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Reason == "" {
		return "transcode failed"
	}
	return fmt.Sprintf("transcode failed: %s", e.Reason)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
