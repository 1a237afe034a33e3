package scanner

import "errors"

// ErrEmptyFrame is returned when asked to decode a frame with no pixels.
var ErrEmptyFrame = errors.New("scanner: empty frame")
