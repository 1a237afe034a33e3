package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/parcelcam/internal/config"
	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/archive"
	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/camera/capture"
	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/overlay"
	"github.com/teslashibe/parcelcam/pkg/pipeline"
	"github.com/teslashibe/parcelcam/pkg/recorder"
	"github.com/teslashibe/parcelcam/pkg/scanner"
	"github.com/teslashibe/parcelcam/pkg/web"
)

// App is the parcelcam application.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	renderer *overlay.Renderer
	pipeline *pipeline.Pipeline
	web      *web.Server
	mqtt     *events.MQTTEmitter
}

// New validates cfg and sets up logging.
func New(cfg *config.Config) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	log.Init(cfg.LogLevel)
	return &App{
		cfg:    cfg,
		logger: log.With("component", "app"),
	}, nil
}

// Init builds every component. Call this after New() and before Run().
func (a *App) Init() error {
	fmt.Println("📦 parcelcam - Parcel Packing Recorder")
	fmt.Println("======================================")
	if a.cfg.LogLevel == "debug" {
		fmt.Println("🐛 Debug mode enabled")
	}

	if err := os.MkdirAll(a.cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	fmt.Printf("📁 Recordings: %s\n", a.cfg.Output.Dir)

	a.initOverlay()

	classifier, err := a.cfg.Classifier()
	if err != nil {
		return fmt.Errorf("carriers: %w", err)
	}
	scan := scanner.New(scanner.NewZXingDecoder(), classifier, scanner.Config{Interval: a.cfg.Scanner.Interval})

	session := recorder.NewSession(recorder.Config{
		Launcher:    recorder.NewExecLauncher(a.cfg.Encoder.Path, log.With("component", "ffmpeg")),
		Extension:   a.cfg.Output.Extension,
		StopTimeout: a.cfg.Encoder.StopTimeout,
	})
	fmt.Printf("🎬 Encoder: %s (%s)\n", a.cfg.EncoderName(), recorder.FamilyOf(a.cfg.EncoderName()))

	a.web = web.NewServer(a.cfg.Dashboard())

	emitters := events.Multi{a.web}
	if mqttEmitter := a.initMQTT(); mqttEmitter != nil {
		emitters = append(emitters, mqttEmitter)
	}

	var archiver pipeline.Archiver
	if arch := a.initArchive(); arch != nil {
		archiver = arch
	}

	p, err := pipeline.New(a.cfg.Pipeline(), pipeline.Deps{
		Camera:     camera.NewManager(a.cfg.Camera),
		Open:       capture.Opener,
		Scanner:    scan,
		Classifier: classifier,
		Session:    session,
		Renderer:   a.renderer,
		Confirmer:  a.web,
		Presenter:  a.web,
		Emitter:    emitters,
		Archiver:   archiver,
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	a.pipeline = p
	a.web.Attach(p)
	return nil
}

func (a *App) initOverlay() {
	if a.cfg.Overlay.FontPath == "" {
		fmt.Println("🔤 Overlay font: built-in (no CJK glyphs, set overlay.font_path)")
		a.renderer = overlay.Default()
		return
	}
	fmt.Print("🔤 Loading overlay font... ")
	r, err := overlay.New(overlay.Options{FontPath: a.cfg.Overlay.FontPath, FontSize: a.cfg.Overlay.FontSize})
	if err != nil {
		fmt.Printf("⚠️  %v (using built-in)\n", err)
		a.renderer = overlay.Default()
		return
	}
	fmt.Println("✅")
	a.renderer = r
}

func (a *App) initMQTT() *events.MQTTEmitter {
	if a.cfg.MQTT.Broker == "" {
		return nil
	}
	fmt.Printf("📡 Connecting to MQTT broker %s... ", a.cfg.MQTT.Broker)
	em := events.NewMQTTEmitter(a.cfg.MQTT)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := em.Connect(ctx); err != nil {
		fmt.Printf("⚠️  %v (events disabled)\n", err)
		return nil
	}
	fmt.Println("✅")
	a.mqtt = em
	return em
}

func (a *App) initArchive() *archive.Archiver {
	if a.cfg.Archive.Bucket == "" {
		return nil
	}
	arch, err := archive.New(a.cfg.Archive)
	if err != nil {
		fmt.Printf("⚠️  Archive: %v (recordings stay local)\n", err)
		return nil
	}
	fmt.Printf("☁️  Archiving to s3://%s/%s\n", a.cfg.Archive.Bucket, a.cfg.Archive.Prefix)
	return arch
}

// Run starts the dashboard and the pipeline. Blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	fmt.Print("📹 Opening camera... ")
	if err := a.pipeline.Start(); err != nil {
		if errors.Is(err, pipeline.ErrClosed) {
			return err
		}
		// The dashboard stays up so the camera can be reconfigured.
		fmt.Printf("⚠️  %v\n", err)
		a.web.AddLog("error", err.Error())
	} else {
		mode := a.pipeline.Status().Camera
		fmt.Printf("✅ %dx%d@%d\n", mode.Width, mode.Height, mode.Framerate)
		a.web.AddLog("info", "parcelcam started")
	}

	a.web.StartAsync()

	fmt.Println("\n🔎 Scanning for shipment barcodes...")
	fmt.Println("   (Ctrl+C to exit)")

	<-ctx.Done()
	return nil
}

// Shutdown stops any recording, then the camera, dashboard and broker
// connection.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.pipeline != nil {
		a.pipeline.Shutdown()
	}
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Debug("dashboard shutdown", "error", err)
		}
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
}

// applyPreset replaces the camera mode with a named preset, keeping the
// configured device.
func applyPreset(cfg *config.Config, name string) error {
	preset := camera.GetPreset(name)
	if preset == nil {
		return fmt.Errorf("%w: %s", camera.ErrUnknownPreset, name)
	}
	device := cfg.Camera.Device
	cfg.Camera = *preset
	cfg.Camera.Device = device
	return nil
}
