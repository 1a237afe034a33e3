// Package web provides the real-time parcelcam dashboard: live preview,
// pipeline status, barcode confirmation and recording controls.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/frame"
	"github.com/teslashibe/parcelcam/pkg/hub"
	"github.com/teslashibe/parcelcam/pkg/pipeline"
	"github.com/teslashibe/parcelcam/pkg/recorder"
)

const (
	// maxLogs is the dashboard log buffer size.
	maxLogs = 500

	// DefaultStatusInterval throttles status pushes from the preview path.
	DefaultStatusInterval = 250 * time.Millisecond
)

// Controller is the pipeline surface the dashboard drives.
type Controller interface {
	Status() pipeline.Status
	StartRecording(code, carrier string) (recorder.Info, error)
	StopRecording() (recorder.Info, bool)
	Carriers() []string
	Encoders() []string
	Encoder() string
	SetEncoder(name string) error
	Cameras() *camera.Manager
}

// Config holds dashboard settings.
type Config struct {
	Port           string
	StaticDir      string
	JPEGQuality    int
	StatusInterval time.Duration
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Port:           "8080",
		StaticDir:      "./web",
		JPEGQuality:    75,
		StatusInterval: DefaultStatusInterval,
	}
}

// LogEntry is one line in the dashboard log.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, event, error, confirm
	Message string `json:"message"`
}

// StatusMessage is pushed on /ws/status.
type StatusMessage struct {
	Type         string                   `json:"type"` // status, confirmation, confirmation_closed
	Status       *pipeline.Status         `json:"status,omitempty"`
	Confirmation *pipeline.ConfirmRequest `json:"confirmation,omitempty"`
}

type confirmAnswer struct {
	conf   pipeline.Confirmation
	accept bool
}

type pendingConfirm struct {
	req    pipeline.ConfirmRequest
	answer chan confirmAnswer
}

// Server is the web dashboard server. It is also the pipeline's Presenter,
// Confirmer and an events.Emitter feeding the dashboard log.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ctrlMu sync.RWMutex
	ctrl   Controller

	// Log buffer (last maxLogs entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Latest preview, encoded on demand for /api/preview.jpg
	previewMu  sync.Mutex
	preview    *frame.Frame
	lastStatus time.Time

	confMu  sync.Mutex
	pending *pendingConfirm

	// Hubs for websocket broadcast
	statusHub  *hub.Hub
	logHub     *hub.Hub
	previewHub *hub.Hub

	startOnce sync.Once
}

// NewServer creates a new dashboard server. Attach a controller before
// serving API requests.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.Port == "" {
		cfg.Port = def.Port
	}

	s := &Server{
		cfg:        cfg,
		logger:     log.With("component", "web"),
		now:        time.Now,
		logs:       make([]LogEntry, 0, maxLogs),
		statusHub:  hub.New("status"),
		logHub:     hub.New("logs"),
		previewHub: hub.NewWithPolicy("preview", hub.SkipMessage),
	}

	app := fiber.New(fiber.Config{
		AppName:               "parcelcam",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/carriers", s.handleCarriers)
	api.Get("/encoders", s.handleEncoders)
	api.Post("/encoders", s.handleSetEncoder)
	api.Post("/recording/start", s.handleStartRecording)
	api.Post("/recording/stop", s.handleStopRecording)
	api.Get("/confirmation", s.handleGetConfirmation)
	api.Post("/confirmation", s.handleAnswerConfirmation)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Get("/preview.jpg", s.handlePreview)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// Attach sets the controller the API drives.
func (s *Server) Attach(ctrl Controller) {
	s.ctrlMu.Lock()
	s.ctrl = ctrl
	s.ctrlMu.Unlock()
}

func (s *Server) controller() Controller {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.ctrl
}

func (s *Server) runHubs() {
	s.startOnce.Do(func() {
		go s.statusHub.Run()
		go s.logHub.Run()
		go s.previewHub.Run()
	})
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	fmt.Printf("🌐 Dashboard: http://localhost:%s\n", s.cfg.Port)
	s.runHubs()
	return s.app.Listen(":" + s.cfg.Port)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.runHubs()
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown dismisses any open confirmation, disconnects websocket clients
// and stops the server.
func (s *Server) Shutdown() error {
	s.dismiss()
	s.statusHub.Close()
	s.logHub.Close()
	s.previewHub.Close()
	return s.app.Shutdown()
}

// Present implements pipeline.Presenter. It keeps the preview for
// /api/preview.jpg, pushes it to preview clients and throttles status
// pushes.
func (s *Server) Present(preview *frame.Frame, st pipeline.Status) {
	now := s.now()
	s.previewMu.Lock()
	s.preview = preview
	pushStatus := now.Sub(s.lastStatus) >= s.cfg.StatusInterval
	if pushStatus {
		s.lastStatus = now
	}
	s.previewMu.Unlock()

	if s.previewHub.ClientCount() > 0 {
		data, err := preview.EncodeJPEG(s.cfg.JPEGQuality)
		if err != nil {
			s.logger.Debug("preview encode failed", "error", err)
		} else {
			s.previewHub.BroadcastBinary(data)
		}
	}
	if pushStatus && s.statusHub.ClientCount() > 0 {
		s.statusHub.BroadcastJSON(StatusMessage{Type: "status", Status: &st})
	}
}

// Confirm implements pipeline.Confirmer. The request is shown to status
// clients and answered through POST /api/confirmation. A newer request
// replaces an unanswered one.
func (s *Server) Confirm(ctx context.Context, req pipeline.ConfirmRequest) (pipeline.Confirmation, error) {
	pc := &pendingConfirm{req: req, answer: make(chan confirmAnswer, 1)}

	s.confMu.Lock()
	prev := s.pending
	s.pending = pc
	s.confMu.Unlock()
	if prev != nil {
		prev.answer <- confirmAnswer{}
	}

	s.AddLog("confirm", fmt.Sprintf("confirm %s (%s)", req.Code, req.Carrier))
	s.statusHub.BroadcastJSON(StatusMessage{Type: "confirmation", Confirmation: &req})

	defer func() {
		s.confMu.Lock()
		if s.pending == pc {
			s.pending = nil
		}
		s.confMu.Unlock()
		s.statusHub.BroadcastJSON(StatusMessage{Type: "confirmation_closed", Confirmation: &req})
	}()

	select {
	case a := <-pc.answer:
		if !a.accept {
			return pipeline.Confirmation{}, pipeline.ErrConfirmationCancelled
		}
		return a.conf, nil
	case <-ctx.Done():
		return pipeline.Confirmation{}, pipeline.ErrConfirmationCancelled
	}
}

// Pending returns the open confirmation request, if any.
func (s *Server) Pending() (pipeline.ConfirmRequest, bool) {
	s.confMu.Lock()
	defer s.confMu.Unlock()
	if s.pending == nil {
		return pipeline.ConfirmRequest{}, false
	}
	return s.pending.req, true
}

// answer resolves the open confirmation. An empty id matches any request.
func (s *Server) answer(id string, a confirmAnswer) error {
	s.confMu.Lock()
	pc := s.pending
	if pc == nil {
		s.confMu.Unlock()
		return errNoConfirmation
	}
	if id != "" && id != pc.req.ID {
		s.confMu.Unlock()
		return errStaleConfirmation
	}
	s.pending = nil
	s.confMu.Unlock()

	pc.answer <- a
	return nil
}

func (s *Server) dismiss() {
	s.confMu.Lock()
	pc := s.pending
	s.pending = nil
	s.confMu.Unlock()
	if pc != nil {
		pc.answer <- confirmAnswer{}
	}
}

// Emit implements events.Emitter by writing events to the dashboard log.
func (s *Server) Emit(e events.Event) error {
	logType := "event"
	if e.Kind == events.KindRecordingFailed {
		logType = "error"
	}
	s.AddLog(logType, describe(e))
	return nil
}

func describe(e events.Event) string {
	switch e.Kind {
	case events.KindDetected:
		return fmt.Sprintf("detected %s (%s)", e.Code, e.Carrier)
	case events.KindConfirmationCancelled:
		return fmt.Sprintf("confirmation cancelled for %s", e.Code)
	case events.KindRecordingStarted:
		return fmt.Sprintf("recording %s (%s) to %s", e.Code, e.Carrier, e.Path)
	case events.KindRecordingStopped:
		return fmt.Sprintf("saved %s: %d frames, %d dropped, %s", e.Path, e.Frames, e.Dropped, e.Duration.Round(time.Second))
	case events.KindRecordingFailed:
		return fmt.Sprintf("recording %s failed: %s", e.Code, e.Error)
	case events.KindRecordingArchived:
		return fmt.Sprintf("archived %s to %s", e.Path, e.Location)
	}
	return string(e.Kind)
}

// AddLog adds a log entry and broadcasts to clients.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    s.now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// Logs returns a copy of the log buffer.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}
