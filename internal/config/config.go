// Package config loads the parcelcam configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/parcelcam/pkg/archive"
	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/carrier"
	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/pipeline"
	"github.com/teslashibe/parcelcam/pkg/recorder"
	"github.com/teslashibe/parcelcam/pkg/scanner"
	"github.com/teslashibe/parcelcam/pkg/web"
)

// Config represents the complete parcelcam configuration.
type Config struct {
	LogLevel string            `yaml:"log_level"` // debug, info, warn, error
	Camera   camera.Config     `yaml:"camera"`
	Output   OutputConfig      `yaml:"output"`
	Encoder  EncoderConfig     `yaml:"encoder"`
	Scanner  ScannerConfig     `yaml:"scanner"`
	Display  DisplayConfig     `yaml:"display"`
	Overlay  OverlayConfig     `yaml:"overlay"`
	Web      WebConfig         `yaml:"web"`
	MQTT     events.MQTTConfig `yaml:"mqtt"`    // disabled when broker is empty
	Archive  archive.Config    `yaml:"archive"` // disabled when bucket is empty
	Carriers []carrier.Spec    `yaml:"carriers"`
}

// OutputConfig contains recording output settings.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"` // container, e.g. mp4 or mkv
}

// EncoderConfig contains ffmpeg settings.
type EncoderConfig struct {
	Path        string        `yaml:"path"`      // ffmpeg binary
	Name        string        `yaml:"name"`      // selected encoder; defaults to the first available
	Available   []string      `yaml:"available"` // choices offered on the dashboard
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ScannerConfig contains barcode scanning settings.
type ScannerConfig struct {
	Interval time.Duration `yaml:"interval"` // minimum time between decode attempts
}

// DisplayConfig contains preview settings.
type DisplayConfig struct {
	Interval      time.Duration `yaml:"interval"`
	PreviewWidth  int           `yaml:"preview_width"`
	PreviewHeight int           `yaml:"preview_height"`
}

// OverlayConfig contains overlay text settings.
type OverlayConfig struct {
	FontPath string  `yaml:"font_path"` // a CJK-capable TTF/OTF for carrier names
	FontSize float64 `yaml:"font_size"`
}

// WebConfig contains dashboard settings.
type WebConfig struct {
	Port           string        `yaml:"port"`
	StaticDir      string        `yaml:"static_dir"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	pc := pipeline.DefaultConfig()
	wc := web.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Camera:   camera.DefaultConfig(),
		Output: OutputConfig{
			Dir:       pc.OutputDir,
			Extension: recorder.DefaultExtension,
		},
		Encoder: EncoderConfig{
			Path:        "ffmpeg",
			Name:        recorder.DefaultEncoder,
			Available:   []string{"libx264", "h264_nvenc", "h264_amf", "h264_qsv", "libx265", "hevc_nvenc"},
			StopTimeout: recorder.DefaultStopTimeout,
		},
		Scanner: ScannerConfig{Interval: scanner.DefaultInterval},
		Display: DisplayConfig{
			Interval:      pc.DisplayInterval,
			PreviewWidth:  pc.PreviewWidth,
			PreviewHeight: pc.PreviewHeight,
		},
		Overlay: OverlayConfig{FontSize: 24},
		Web: WebConfig{
			Port:           wc.Port,
			StaticDir:      wc.StaticDir,
			JPEGQuality:    wc.JPEGQuality,
			ConfirmTimeout: pc.ConfirmTimeout,
		},
		MQTT: events.MQTTConfig{
			TopicPrefix: "parcelcam",
			QoS:         1,
			Timeout:     5 * time.Second,
		},
		Archive: archive.Config{
			Prefix:  "recordings",
			Region:  "us-east-1",
			Timeout: 10 * time.Minute,
		},
		Carriers: carrier.DefaultSpecs(),
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate returns a list of problems, empty when the config is usable.
func (c *Config) Validate() []string {
	var errs []string

	for _, e := range c.Camera.Validate() {
		errs = append(errs, "camera: "+e)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, "output.dir is required")
	}
	if c.Encoder.Name == "" && len(c.Encoder.Available) == 0 {
		errs = append(errs, "encoder.name or encoder.available is required")
	}
	if c.Encoder.Name != "" && len(c.Encoder.Available) > 0 && !contains(c.Encoder.Available, c.Encoder.Name) {
		errs = append(errs, fmt.Sprintf("encoder.name %q is not in encoder.available", c.Encoder.Name))
	}
	if c.Scanner.Interval < 0 {
		errs = append(errs, "scanner.interval must not be negative")
	}
	if c.Display.Interval < 0 {
		errs = append(errs, "display.interval must not be negative")
	}
	if c.Display.PreviewWidth < 0 || c.Display.PreviewHeight < 0 {
		errs = append(errs, "display preview size must not be negative")
	}
	if c.Overlay.FontPath != "" && c.Overlay.FontSize <= 0 {
		errs = append(errs, "overlay.font_size must be positive")
	}
	if c.Web.JPEGQuality < 0 || c.Web.JPEGQuality > 100 {
		errs = append(errs, "web.jpeg_quality must be 0-100")
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	if _, err := c.Classifier(); err != nil {
		errs = append(errs, "carriers: "+err.Error())
	}
	return errs
}

// Classifier compiles the carrier table.
func (c *Config) Classifier() (*carrier.Classifier, error) {
	rules, err := carrier.Compile(c.Carriers)
	if err != nil {
		return nil, err
	}
	return carrier.New(rules)
}

// EncoderName returns the configured encoder, or the first available one.
func (c *Config) EncoderName() string {
	if c.Encoder.Name != "" {
		return c.Encoder.Name
	}
	if len(c.Encoder.Available) > 0 {
		return c.Encoder.Available[0]
	}
	return recorder.DefaultEncoder
}

// Pipeline returns the pipeline settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		OutputDir:       c.Output.Dir,
		Encoder:         c.EncoderName(),
		Encoders:        c.Encoder.Available,
		DisplayInterval: c.Display.Interval,
		PreviewWidth:    c.Display.PreviewWidth,
		PreviewHeight:   c.Display.PreviewHeight,
		ConfirmTimeout:  c.Web.ConfirmTimeout,
	}
}

// Dashboard returns the web server settings.
func (c *Config) Dashboard() web.Config {
	return web.Config{
		Port:        c.Web.Port,
		StaticDir:   c.Web.StaticDir,
		JPEGQuality: c.Web.JPEGQuality,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
