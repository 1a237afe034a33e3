// Package pipeline wires the camera, scanner, recorder and overlay into the
// capture and display loops.
//
// The capture callback runs on the camera goroutine: it publishes each
// frame into the single-slot store, scans for barcodes while idle, and
// streams overlaid frames to the encoder while recording. The display loop
// runs on a ticker, renders a scaled preview from a store snapshot and
// hands it to the Presenter. It never touches the encoder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/carrier"
	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/frame"
	"github.com/teslashibe/parcelcam/pkg/overlay"
	"github.com/teslashibe/parcelcam/pkg/recorder"
	"github.com/teslashibe/parcelcam/pkg/scanner"
)

// Config holds pipeline settings.
type Config struct {
	// OutputDir receives the recordings.
	OutputDir string

	// Encoder is the ffmpeg encoder used for new recordings.
	Encoder string

	// Encoders is the selectable encoder list. Empty allows any name.
	Encoders []string

	// DisplayInterval is the preview refresh period.
	DisplayInterval time.Duration

	// Preview bounds; the frame is scaled to fit with its aspect ratio.
	PreviewWidth  int
	PreviewHeight int

	// ConfirmTimeout cancels an unanswered confirmation. Zero waits forever.
	ConfirmTimeout time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		OutputDir:       "Videos",
		Encoder:         recorder.DefaultEncoder,
		DisplayInterval: 40 * time.Millisecond,
		PreviewWidth:    960,
		PreviewHeight:   720,
		ConfirmTimeout:  2 * time.Minute,
	}
}

// Presenter shows preview frames. Present is called from the display loop
// with a frame the presenter may keep.
type Presenter interface {
	Present(preview *frame.Frame, st Status)
}

// Archiver stores a finished recording somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, info recorder.Info) (string, error)
}

// Deps are the collaborators the pipeline drives.
type Deps struct {
	Camera     *camera.Manager
	Open       camera.Opener
	Scanner    *scanner.Scanner
	Classifier *carrier.Classifier
	Session    *recorder.Session
	Renderer   *overlay.Renderer
	Confirmer  Confirmer

	// Optional.
	Presenter Presenter
	Emitter   events.Emitter
	Archiver  Archiver
}

// Status is a point-in-time view of the pipeline for the dashboard.
type Status struct {
	State         string           `json:"state"`
	Recording     *recorder.Info   `json:"recording,omitempty"`
	Elapsed       string           `json:"elapsed"`
	Detection     *frame.Detection `json:"detection,omitempty"`
	Carrier       string           `json:"carrier,omitempty"`
	Pending       bool             `json:"pending"`
	Camera        camera.Mode      `json:"camera"`
	CameraRunning bool             `json:"camera_running"`
	Frames        uint64           `json:"frames"`
	ScanAttempts  uint64           `json:"scan_attempts"`
	ScanHits      uint64           `json:"scan_hits"`
	Encoder       string           `json:"encoder"`
	OutputDir     string           `json:"output_dir"`
}

// Pipeline is the capture/record/display orchestrator.
type Pipeline struct {
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	store      *frame.Store
	cameras    *camera.Manager
	open       camera.Opener
	scanner    *scanner.Scanner
	classifier *carrier.Classifier
	session    *recorder.Session
	renderer   *overlay.Renderer
	confirmer  Confirmer
	presenter  Presenter
	emitter    events.Emitter
	archiver   Archiver

	// ctx bounds confirmations and uploads; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// lifeMu orders spawn against Shutdown so wg.Add never races wg.Wait.
	lifeMu   sync.Mutex
	closing  bool
	closed   atomic.Bool
	wg       sync.WaitGroup
	dispStop chan struct{}

	srcMu  sync.Mutex
	source camera.Source

	encMu   sync.RWMutex
	encoder string

	// detMu guards the detection state shared with the display loop.
	detMu      sync.Mutex
	detection  *frame.Detection
	detCarrier string
	pending    bool
	size       image.Point
}

// New creates a pipeline. Nothing runs until Start.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Camera == nil || deps.Open == nil:
		return nil, errors.New("pipeline: camera manager and opener required")
	case deps.Scanner == nil || deps.Classifier == nil:
		return nil, errors.New("pipeline: scanner and classifier required")
	case deps.Session == nil:
		return nil, errors.New("pipeline: recording session required")
	case deps.Confirmer == nil:
		return nil, errors.New("pipeline: confirmer required")
	}
	def := DefaultConfig()
	if cfg.DisplayInterval <= 0 {
		cfg.DisplayInterval = def.DisplayInterval
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Encoder == "" {
		cfg.Encoder = def.Encoder
		if len(cfg.Encoders) > 0 {
			cfg.Encoder = cfg.Encoders[0]
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Renderer == nil {
		deps.Renderer = overlay.Default()
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:        cfg,
		logger:     log.With("component", "pipeline"),
		now:        cfg.Now,
		store:      frame.NewStore(),
		cameras:    deps.Camera,
		open:       deps.Open,
		scanner:    deps.Scanner,
		classifier: deps.Classifier,
		session:    deps.Session,
		renderer:   deps.Renderer,
		confirmer:  deps.Confirmer,
		presenter:  deps.Presenter,
		emitter:    deps.Emitter,
		archiver:   deps.Archiver,
		ctx:        ctx,
		cancel:     cancel,
		dispStop:   make(chan struct{}),
		encoder:    cfg.Encoder,
	}, nil
}

// Start opens the camera and starts the display loop. A camera failure is
// returned, but the display loop still runs so the dashboard stays up and
// the camera can be reconfigured.
func (p *Pipeline) Start() error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.cameras.OnConfigChange = p.ApplyCamera

	p.spawn(p.displayLoop)

	cfg := p.cameras.GetConfig()
	src := p.open(cfg)
	if err := src.Start(p.onFrame); err != nil {
		p.logger.Error("camera unavailable", "device", cfg.Device, "error", err)
		return fmt.Errorf("start camera: %w", err)
	}
	p.srcMu.Lock()
	p.source = src
	p.srcMu.Unlock()

	mode := src.Mode()
	p.logger.Info("pipeline started",
		"camera", fmt.Sprintf("%dx%d@%d", mode.Width, mode.Height, mode.Framerate),
		"encoder", p.Encoder(),
		"output_dir", p.cfg.OutputDir,
	)
	return nil
}

// Shutdown stops everything in order: no new work, stop the recording,
// stop the camera, stop the display loop, release the held frame.
// Idempotent.
func (p *Pipeline) Shutdown() {
	p.lifeMu.Lock()
	if p.closing {
		p.lifeMu.Unlock()
		return
	}
	p.closing = true
	p.closed.Store(true)
	p.lifeMu.Unlock()

	// Unblocks pending confirmations.
	p.cancel()

	if info, ok := p.session.Close(); ok {
		p.recordingStopped(info, false)
	}

	p.srcMu.Lock()
	src := p.source
	p.source = nil
	p.srcMu.Unlock()
	if src != nil {
		src.Stop()
	}

	close(p.dispStop)
	p.wg.Wait()

	p.store.Release()
	p.logger.Info("pipeline stopped")
}

// spawn runs fn on a tracked goroutine unless shutdown has begun.
func (p *Pipeline) spawn(fn func()) bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.closing {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return true
}

// StartRecording begins a recording for code. An empty carrier is filled
// in by the classifier. Used by confirmation and by the manual start API.
func (p *Pipeline) StartRecording(code, carrierName string) (recorder.Info, error) {
	if p.closed.Load() {
		return recorder.Info{}, ErrClosed
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return recorder.Info{}, ErrEmptyCode
	}
	carrierName = strings.TrimSpace(carrierName)
	if carrierName == "" {
		carrierName = p.classifier.Classify(code)
	}

	p.detMu.Lock()
	size := p.size
	p.detMu.Unlock()
	if size.X == 0 || size.Y == 0 {
		return recorder.Info{}, ErrNoFrames
	}

	// srcMu is held across the start so ApplyCamera cannot swap the source
	// between the camera check and the launch.
	p.srcMu.Lock()
	if p.source == nil || !p.source.Running() {
		p.srcMu.Unlock()
		return recorder.Info{}, fmt.Errorf("%w: camera not running", camera.ErrUnavailable)
	}
	fps := p.cameras.GetConfig().Framerate
	if m := p.source.Mode(); m.Framerate > 0 {
		fps = m.Framerate
	}
	info, err := p.session.Start(recorder.Params{
		Code:      code,
		Carrier:   carrierName,
		Width:     size.X,
		Height:    size.Y,
		FrameRate: fps,
		Encoder:   p.Encoder(),
		OutputDir: p.cfg.OutputDir,
	})
	p.srcMu.Unlock()
	if err != nil {
		ev := events.New(events.KindRecordingFailed, p.now())
		ev.Code, ev.Carrier, ev.Error = code, carrierName, err.Error()
		p.emit(ev)
		return recorder.Info{}, err
	}

	p.detMu.Lock()
	p.detection = nil
	p.detCarrier = ""
	p.detMu.Unlock()

	ev := events.New(events.KindRecordingStarted, p.now())
	ev.Code, ev.Carrier, ev.RecordingID, ev.Path = info.Code, info.Carrier, info.ID, info.Path
	p.emit(ev)
	return info, nil
}

// StopRecording ends the active recording. ok is false when idle.
func (p *Pipeline) StopRecording() (recorder.Info, bool) {
	info, ok := p.session.Stop()
	if ok {
		p.recordingStopped(info, true)
	}
	return info, ok
}

func (p *Pipeline) recordingStopped(info recorder.Info, archive bool) {
	ev := events.New(events.KindRecordingStopped, p.now())
	ev.Code, ev.Carrier, ev.RecordingID, ev.Path = info.Code, info.Carrier, info.ID, info.Path
	ev.Frames, ev.Dropped = info.Frames, info.Dropped
	ev.Duration = info.StoppedAt.Sub(info.StartedAt)
	p.emit(ev)

	if p.archiver == nil {
		return
	}
	if !archive || !p.spawn(func() { p.archive(info) }) {
		p.logger.Info("recording kept local, shutting down", "path", info.Path)
	}
}

func (p *Pipeline) archive(info recorder.Info) {
	loc, err := p.archiver.Archive(p.ctx, info)
	if err != nil {
		p.logger.Error("archive failed", "path", info.Path, "error", err)
		return
	}
	ev := events.New(events.KindRecordingArchived, p.now())
	ev.Code, ev.Carrier, ev.RecordingID, ev.Path, ev.Location = info.Code, info.Carrier, info.ID, info.Path, loc
	p.emit(ev)
}

// ApplyCamera reopens the camera with cfg. It is installed as the camera
// manager's change callback and refuses while recording.
func (p *Pipeline) ApplyCamera(cfg camera.Config) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.srcMu.Lock()
	defer p.srcMu.Unlock()

	if p.session.Status().Recording() {
		return ErrRecordingActive
	}

	old := p.source
	if old != nil {
		old.Stop()
	}
	src := p.open(cfg)
	if err := src.Start(p.onFrame); err != nil {
		p.logger.Error("camera reconfigure failed", "device", cfg.Device, "error", err)
		if old != nil {
			if rerr := old.Start(p.onFrame); rerr != nil {
				p.logger.Error("previous camera did not restart", "error", rerr)
				p.source = nil
			}
		}
		return err
	}
	p.source = src

	mode := src.Mode()
	p.logger.Info("camera reconfigured", "mode", fmt.Sprintf("%dx%d@%d", mode.Width, mode.Height, mode.Framerate))
	return nil
}

// Encoder returns the encoder for new recordings.
func (p *Pipeline) Encoder() string {
	p.encMu.RLock()
	defer p.encMu.RUnlock()
	return p.encoder
}

// Encoders returns the selectable encoders.
func (p *Pipeline) Encoders() []string {
	return append([]string(nil), p.cfg.Encoders...)
}

// SetEncoder selects the encoder for the next recording.
func (p *Pipeline) SetEncoder(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty encoder", recorder.ErrInvalidParams)
	}
	if len(p.cfg.Encoders) > 0 {
		found := false
		for _, e := range p.cfg.Encoders {
			if e == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown encoder %q", recorder.ErrInvalidParams, name)
		}
	}
	p.encMu.Lock()
	p.encoder = name
	p.encMu.Unlock()
	p.logger.Info("encoder selected", "encoder", name, "family", recorder.FamilyOf(name))
	return nil
}

// Carriers returns the carrier labels in table order.
func (p *Pipeline) Carriers() []string {
	return p.classifier.Names()
}

// Cameras returns the camera config manager.
func (p *Pipeline) Cameras() *camera.Manager {
	return p.cameras
}

// Status returns a snapshot for the dashboard.
func (p *Pipeline) Status() Status {
	rs := p.session.Status()
	st := Status{
		State:     rs.State.String(),
		Recording: rs.Info,
		Elapsed:   overlay.Elapsed(rs.Elapsed(p.now())),
		Frames:    p.store.Seq(),
		Encoder:   p.Encoder(),
		OutputDir: p.cfg.OutputDir,
	}
	st.ScanAttempts, st.ScanHits = p.scanner.Stats()

	p.detMu.Lock()
	st.Detection = p.detection.Clone()
	st.Carrier = p.detCarrier
	st.Pending = p.pending
	p.detMu.Unlock()

	p.srcMu.Lock()
	if p.source != nil {
		st.Camera = p.source.Mode()
		st.CameraRunning = p.source.Running()
	}
	p.srcMu.Unlock()
	return st
}

func (p *Pipeline) emit(ev events.Event) {
	if err := p.emitter.Emit(ev); err != nil {
		p.logger.Debug("event not delivered", "kind", ev.Kind, "error", err)
	}
}
