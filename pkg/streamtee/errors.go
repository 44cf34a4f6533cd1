package streamtee

import (
	"errors"
	"fmt"
)

// Kind classifies a session failure; the process exit code is derived
// from it so that operators can tell the category apart without reading
// the log.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInputOpen: the source could not be opened at all.
	KindInputOpen
	// KindStreamSetup: stream discovery, stream selection or
	// decoder/encoder open failed.
	KindStreamSetup
	// KindStreamIO: an output could not be opened, or an unrecoverable
	// mid-stream decode/scale/encode/write fault occurred.
	KindStreamIO
	// KindAlloc: a local resource allocation failed.
	KindAlloc
)

func (k Kind) ExitCode() int {
	switch k {
	case KindInputOpen:
		return 2
	case KindStreamSetup:
		return 3
	case KindStreamIO:
		return 4
	case KindAlloc:
		return 5
	}
	return 1
}

func (k Kind) String() string {
	switch k {
	case KindInputOpen:
		return "input-open"
	case KindStreamSetup:
		return "stream-setup"
	case KindStreamIO:
		return "stream-io"
	case KindAlloc:
		return "alloc"
	}
	return "unknown"
}

// Error is a session failure of a specific Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ExitCode extracts the category-specific exit code from err; an error
// without a Kind maps to the generic failure code 1.
func ExitCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}

// ErrNoVideoStream is reported when the probed source carries no video
// stream at all; it is a stream-setup fault.
var ErrNoVideoStream = errors.New("no video stream found in the input")
