package camera

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Manager holds the current camera configuration. Changes go through
// OnConfigChange so the pipeline can reopen the camera, and only stick if
// it succeeds.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange applies a new config to the running camera. A non-nil
	// error keeps the previous config.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, applies it through OnConfigChange and stores it.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}

	m.mu.RLock()
	apply := m.OnConfigChange
	m.mu.RUnlock()

	if apply != nil {
		if err := apply(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// setter assigns one decoded JSON value. It reports false on a type it
// cannot use.
type setter func(c *Config, v interface{}) bool

var fields = map[string]setter{
	"device": func(c *Config, v interface{}) bool {
		s, ok := v.(string)
		c.Device = s
		return ok
	},
	"width":       intField(func(c *Config) *int { return &c.Width }),
	"height":      intField(func(c *Config) *int { return &c.Height }),
	"framerate":   intField(func(c *Config) *int { return &c.Framerate }),
	"quality":     intField(func(c *Config) *int { return &c.Quality }),
	"buffer_size": intField(func(c *Config) *int { return &c.BufferSize }),
	"brightness": func(c *Config, v interface{}) bool {
		f, ok := number(v)
		c.Brightness = f
		return ok
	},
	"auto_focus": func(c *Config, v interface{}) bool {
		b, ok := v.(bool)
		c.AutoFocus = b
		return ok
	},
}

func intField(field func(*Config) *int) setter {
	return func(c *Config, v interface{}) bool {
		f, ok := number(v)
		if !ok || f != float64(int(f)) {
			return false
		}
		*field(c) = int(f)
		return true
	}
}

// number accepts the numeric types a JSON or YAML decoder produces.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// UpdateConfig changes some fields of the current configuration. An
// optional "preset" is applied first, then the remaining fields override
// it. Unknown fields and values of the wrong type are rejected.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if raw, ok := params["preset"]; ok {
		name, _ := raw.(string)
		p, found := LookupPreset(name)
		if !found {
			return fmt.Errorf("%w: %v", ErrUnknownPreset, raw)
		}
		cfg = p.Apply(cfg)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "preset" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := fields[k]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidConfig, k)
		}
		if !set(&cfg, params[k]) {
			return fmt.Errorf("%w: bad value for %q: %v", ErrInvalidConfig, k, params[k])
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config keyed by its JSON field names.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()
	return map[string]interface{}{
		"device":      cfg.Device,
		"width":       cfg.Width,
		"height":      cfg.Height,
		"framerate":   cfg.Framerate,
		"quality":     cfg.Quality,
		"brightness":  cfg.Brightness,
		"auto_focus":  cfg.AutoFocus,
		"buffer_size": cfg.BufferSize,
	}
}
