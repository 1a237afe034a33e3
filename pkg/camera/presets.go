package camera

// Preset names.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	Preset1080p30 = "1080p30"
	Preset4K      = "4k"
	PresetBright  = "bright"
)

// Preset is a named capture mode. Applying one keeps the device and the
// image controls it does not set.
type Preset struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Framerate   int     `json:"framerate"`
	Brightness  float64 `json:"brightness,omitempty"`
}

// presets in the order the dashboard lists them.
var presets = []Preset{
	{Name: PresetDefault, Description: "1080p at 15 fps, labels readable from a fixed mount", Width: 1920, Height: 1080, Framerate: 15},
	{Name: PresetLegacy, Description: "640x480 at 30 fps for old USB 2.0 webcams", Width: 640, Height: 480, Framerate: 30},
	{Name: Preset720p, Description: "smaller files, large labels only", Width: 1280, Height: 720, Framerate: 30},
	{Name: Preset1080p, Description: "full HD at 15 fps", Width: 1920, Height: 1080, Framerate: 15},
	{Name: Preset1080p30, Description: "full HD at 30 fps, needs a hardware encoder", Width: 1920, Height: 1080, Framerate: 30},
	{Name: Preset4K, Description: "maximum detail at 10 fps", Width: 3840, Height: 2160, Framerate: 10},
	{Name: PresetBright, Description: "1080p darkened for glossy labels under strong light", Width: 1920, Height: 1080, Framerate: 15, Brightness: -0.3},
}

// Presets returns every preset.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// PresetNames returns the preset names in listing order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}

// LookupPreset finds a preset by name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// GetPreset returns the preset applied to the defaults, or nil if unknown.
func GetPreset(name string) *Config {
	p, ok := LookupPreset(name)
	if !ok {
		return nil
	}
	cfg := p.Apply(DefaultConfig())
	return &cfg
}

// Apply sets the preset's mode on c.
func (p Preset) Apply(c Config) Config {
	c.Width = p.Width
	c.Height = p.Height
	c.Framerate = p.Framerate
	c.Brightness = p.Brightness
	return c
}
