package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"filetool/internal/remote"
	"filetool/internal/transcoder"
)

// Code identifies the kind of failure.
type Code string

const (
	CodeFileTooLarge           Code = "file_too_large"
	CodeIdenticalFormat        Code = "identical_format"
	CodeUnsupportedConversion  Code = "unsupported_conversion"
	CodeLocalEngineUnavailable Code = "local_engine_unavailable"
	CodeExtractionUnsupported  Code = "extraction_unsupported"
	CodeRemoteError            Code = "remote_error"
	CodeTimeout                Code = "timeout"
	CodeRemoteConversionFailed Code = "remote_conversion_failed"
	CodeCanceled               Code = "canceled"
)

// Error is the only error type Run returns.
type Error struct {
	Code Code
	// Limit and Actual are set for CodeFileTooLarge.
	Limit  int64
	Actual int64
	// Status and Message carry the backend's answer for CodeRemoteError.
	Status  int
	Message string
	// Reason is an internal detail for logs. It is never shown to users.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	switch {
	case e.Code == CodeFileTooLarge:
		fmt.Fprintf(&b, ": %d bytes exceeds limit of %d", e.Actual, e.Limit)
	case e.Code == CodeRemoteError:
		fmt.Fprintf(&b, ": status %d: %s", e.Status, e.Message)
	case e.Reason != "":
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a dispatcher error, or "" for other errors.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// UserMessage returns a human-readable description of err that is safe to
// show to end users.
func UserMessage(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return "The file could not be converted."
	}

	switch ce.Code {
	case CodeFileTooLarge:
		return fmt.Sprintf("The file is too large (%s). The maximum size is %s.",
			formatBytes(ce.Actual), formatBytes(ce.Limit))
	case CodeIdenticalFormat:
		return "The file is already in the requested format. Choose a different target format."
	case CodeUnsupportedConversion:
		return "This conversion is not supported."
	case CodeLocalEngineUnavailable:
		return "Audio and video processing is currently unavailable."
	case CodeExtractionUnsupported:
		return "No text could be extracted. The document may contain only scanned images."
	case CodeRemoteError:
		if ce.Message != "" {
			return "Conversion failed: " + ce.Message
		}
		return "The conversion service reported an error."
	case CodeTimeout:
		return "The conversion took too long and was stopped."
	case CodeCanceled:
		return "The conversion was canceled."
	}
	return "The file could not be converted."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func newError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// contextError maps a context error, or returns nil if err is not one.
func contextError(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return newError(CodeCanceled, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, "deadline exceeded", err)
	}
	return nil
}

// remoteFailure maps an error returned by the remote client.
func remoteFailure(err error) *Error {
	var re *remote.RemoteError
	switch {
	case errors.As(err, &re):
		return &Error{Code: CodeRemoteError, Status: re.Status, Message: re.Message, Reason: re.Error(), Err: err}
	case errors.Is(err, remote.ErrTimeout):
		return newError(CodeTimeout, "remote request timed out", err)
	}
	if ce := contextError(err); ce != nil {
		return ce
	}
	return newError(CodeRemoteConversionFailed, err.Error(), err)
}

// engineFailure maps an error from the transcoding engine.
func engineFailure(err error) *Error {
	if ce := contextError(err); ce != nil {
		return ce
	}
	var te *transcoder.TranscodeError
	if errors.As(err, &te) {
		return newError(CodeLocalEngineUnavailable, te.Reason, err)
	}
	// ErrEngineUnavailable and anything else the engine returns
	return newError(CodeLocalEngineUnavailable, err.Error(), err)
}
