// parcelcam records a video of each parcel being packed, named after the
// shipment barcode scanned from the camera feed.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/parcelcam/internal/config"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	app, err := New(cfg)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		stdlog.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the config file, applies the environment and then the
// command line, in increasing precedence.
func parseFlags() (*config.Config, error) {
	path := flag.String("config", config.Env("PARCELCAM_CONFIG", "parcelcam.yaml"), "YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	device := flag.String("camera", "", "Camera index, device path or stream URL")
	preset := flag.String("preset", "", "Camera preset (default, legacy, 720p, 1080p, 1080p30, 4k, bright)")
	outputDir := flag.String("output", "", "Recording output directory")
	encoder := flag.String("encoder", "", "ffmpeg video encoder, e.g. libx264 or h264_nvenc")
	port := flag.String("port", "", "Dashboard port")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if *preset != "" {
		if err := applyPreset(cfg, *preset); err != nil {
			return nil, err
		}
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *encoder != "" {
		cfg.SelectEncoder(*encoder)
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	return cfg, nil
}
