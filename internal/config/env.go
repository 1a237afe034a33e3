package config

import (
	"os"
	"strings"
)

// Environment variables that override the file.
const (
	EnvOutputDir  = "PARCELCAM_OUTPUT_DIR"
	EnvEncoder    = "PARCELCAM_ENCODER"
	EnvCamera     = "PARCELCAM_CAMERA"
	EnvWebPort    = "PARCELCAM_WEB_PORT"
	EnvMQTTBroker = "PARCELCAM_MQTT_BROKER"
	EnvS3Bucket   = "PARCELCAM_S3_BUCKET"
	EnvLogLevel   = "LOG_LEVEL"
	EnvFFmpegPath = "FFMPEG_PATH"
)

// Env returns the value of key, or def if it is unset or blank.
func Env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ApplyEnv overrides file values with any set environment variables.
func (c *Config) ApplyEnv() {
	c.Output.Dir = Env(EnvOutputDir, c.Output.Dir)
	c.Camera.Device = Env(EnvCamera, c.Camera.Device)
	c.Web.Port = Env(EnvWebPort, c.Web.Port)
	c.MQTT.Broker = Env(EnvMQTTBroker, c.MQTT.Broker)
	c.Archive.Bucket = Env(EnvS3Bucket, c.Archive.Bucket)
	c.LogLevel = Env(EnvLogLevel, c.LogLevel)
	c.Encoder.Path = Env(EnvFFmpegPath, c.Encoder.Path)

	if enc := Env(EnvEncoder, ""); enc != "" {
		c.SelectEncoder(enc)
	}
}

// SelectEncoder makes name the encoder, adding it to the offered list if
// it is missing.
func (c *Config) SelectEncoder(name string) {
	c.Encoder.Name = name
	if len(c.Encoder.Available) > 0 && !contains(c.Encoder.Available, name) {
		c.Encoder.Available = append(c.Encoder.Available, name)
	}
}
