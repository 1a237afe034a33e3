package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrUnavailable is returned when the camera cannot be opened or stops
	// delivering frames.
	ErrUnavailable = errors.New("camera: unavailable")

	// ErrRunning is returned by Start on a source that is already running.
	ErrRunning = errors.New("camera: already running")

	// ErrInvalidConfig is returned by SetConfig for out-of-range values.
	ErrInvalidConfig = errors.New("camera: invalid config")

	// ErrUnknownPreset is returned for an unrecognised preset name.
	ErrUnknownPreset = errors.New("camera: unknown preset")
)

// OpenError is returned when a device cannot be opened.
type OpenError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("camera: open %s: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is makes every OpenError match ErrUnavailable.
func (e *OpenError) Is(target error) bool {
	return target == ErrUnavailable
}
