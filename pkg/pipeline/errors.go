package pipeline

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrConfirmationCancelled is returned by a Confirmer when the user
	// dismisses the request or it times out.
	ErrConfirmationCancelled = errors.New("pipeline: confirmation cancelled")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("pipeline: closed")

	// ErrEmptyCode is returned when a recording is requested without a code.
	ErrEmptyCode = errors.New("pipeline: empty code")

	// ErrNoFrames is returned when a recording is requested before the
	// camera has delivered a frame.
	ErrNoFrames = errors.New("pipeline: no frames from camera yet")

	// ErrRecordingActive is returned when the camera is reconfigured while
	// recording.
	ErrRecordingActive = errors.New("pipeline: recording in progress")
)
