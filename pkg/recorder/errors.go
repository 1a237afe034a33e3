package recorder

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("recorder: already recording")

	// ErrNotRecording is returned by WriteFrame while idle.
	ErrNotRecording = errors.New("recorder: not recording")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("recorder: session closed")

	// ErrFrameSize is returned when a frame does not match the negotiated size.
	ErrFrameSize = errors.New("recorder: frame size does not match recording")

	// ErrStopTimeout is logged when the encoder does not exit in time.
	ErrStopTimeout = errors.New("recorder: encoder did not exit in time")

	// ErrInvalidParams is returned for a start request missing required fields.
	ErrInvalidParams = errors.New("recorder: invalid parameters")
)

// LaunchError is returned when the encoder process cannot be started.
type LaunchError struct {
	Encoder string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("recorder: launch %s for %s: %v", e.Encoder, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a frame could not be written to the encoder.
// The frame is dropped; the recording continues.
type WriteError struct {
	Frame uint64
	Err   error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("recorder: write frame %d: %v", e.Frame, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
