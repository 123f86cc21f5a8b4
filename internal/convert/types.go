package convert

import (
	"fmt"
	"strings"

	"filetool/internal/formats"
	"filetool/internal/media"
)

// Mode selects between changing the format and shrinking the file.
type Mode string

const (
	ModeConvert  Mode = "convert"
	ModeCompress Mode = "compress"
)

// ParseMode parses a mode name. An empty string means ModeConvert.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeConvert:
		return ModeConvert, nil
	case ModeCompress:
		return ModeCompress, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Strategy names the execution path chosen for a request.
type Strategy string

const (
	StrategyImage        Strategy = "image"
	StrategyImageToPDF   Strategy = "image_to_pdf"
	StrategyTranscode    Strategy = "transcode"
	StrategyAudioExtract Strategy = "audio_extract"
	StrategyDocument     Strategy = "document"
	StrategyRemote       Strategy = "remote"
	StrategyPassthrough  Strategy = "passthrough"
	StrategyNone         Strategy = "none"
)

// State is a step of a single request's lifecycle.
type State string

const (
	StateValidating      State = "validating"
	StateClassifying     State = "classifying"
	StateDispatching     State = "dispatching"
	StateLocalProcessing State = "local_processing"
	StateRemoteFallback  State = "remote_fallback"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// SourceFile is the caller's input. The dispatcher only reads it.
type SourceFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the length of the file in bytes.
func (f SourceFile) Size() int64 {
	return int64(len(f.Data))
}

// Ext returns the normalized extension of the file name.
func (f SourceFile) Ext() string {
	return formats.Ext(f.Name)
}

// Request is one conversion or compression of one file.
type Request struct {
	File         SourceFile
	TargetFormat string
	Mode         Mode
	// Quality in (0, 1]. Zero uses the configured default for the mode.
	Quality float64
	// Width and Height are optional dimension hints. Zero means unset.
	Width  int
	Height int
	// Edits are applied to image sources before encoding.
	Edits *media.Edits
}

// Result is a produced output. The caller owns Data.
type Result struct {
	Data     []byte
	Name     string
	MimeType string
	Strategy Strategy
}

// ProgressFunc receives completion ratios in [0, 1].
type ProgressFunc func(float64)

// Observer receives dispatcher events. metrics.ConversionObserver
// implements it.
type Observer interface {
	ObserveState(state string)
	ObserveStart()
	ObserveConversion(category, strategy, status string, durationSeconds float64)
	ObserveFallback(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveState(string) {}
func (nopObserver) ObserveStart() {}
func (nopObserver) ObserveConversion(string, string, string, float64) {}
func (nopObserver) ObserveFallback(string) {}
