package camera

import (
	"github.com/teslashibe/parcelcam/pkg/frame"
)

// FrameFunc receives each captured frame on the source's goroutine. The
// frame belongs to the callee.
type FrameFunc func(f *frame.Frame)

// Source is a running camera.
type Source interface {
	// Start opens the device and begins calling onFrame from a capture
	// goroutine. It returns ErrUnavailable (possibly wrapped) when the
	// device cannot be opened.
	Start(onFrame FrameFunc) error

	// Stop ends capture and waits for the capture goroutine to return.
	// After Stop returns, onFrame is never called again. Idempotent.
	Stop()

	// Running reports whether the capture goroutine is alive.
	Running() bool

	// Mode reports the negotiated capture format.
	Mode() Mode
}

// Opener builds a Source for a config. The pipeline reopens the camera
// through it when the camera config changes.
type Opener func(cfg Config) Source
