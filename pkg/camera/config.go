// Package camera provides the runtime-configurable camera settings and the
// Source interface the capture pipeline reads frames from.
package camera

// Config holds all camera configuration parameters.
// These can be modified via the camera API while idle.
type Config struct {
	// Device is a camera index ("0") or a device path / stream URL.
	Device string `json:"device" yaml:"device"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Target FPS
	Quality   int `json:"quality" yaml:"quality"`     // Preview JPEG quality 1-100

	// === Image controls ===
	// Brightness adjustment (-1.0 to +1.0). 0 leaves the driver default.
	Brightness float64 `json:"brightness" yaml:"brightness"`

	// AutoFocus enables continuous autofocus where the driver supports it.
	// Labels are read at close range, so it defaults on.
	AutoFocus bool `json:"auto_focus" yaml:"auto_focus"`

	// BufferSize is the driver frame queue depth. 1 keeps latency low.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// Limits for USB UVC cameras.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 1920x1080 at 15 fps, the resolution shipment labels
// stay readable at from a fixed packing-station mount.
func DefaultConfig() Config {
	return Config{
		Device:     "0",
		Width:      1920,
		Height:     1080,
		Framerate:  15,
		Quality:    80,
		Brightness: 0.0,
		AutoFocus:  true,
		BufferSize: 1,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	// Brightness
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errors = append(errors, "brightness must be between -1.0 and 1.0")
	}

	if c.BufferSize < 0 || c.BufferSize > 16 {
		errors = append(errors, "buffer_size must be between 0 and 16")
	}

	return errors
}

// Mode is the negotiated capture format. Drivers may deliver a different
// size or rate than requested; Mode reports what was actually granted.
type Mode struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`
}

// Capabilities returns what can be requested from a camera.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
		"pixel_format":  "bgr24",
	}
}
