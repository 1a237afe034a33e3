package web

import (
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/hub"
	"github.com/teslashibe/parcelcam/pkg/pipeline"
	"github.com/teslashibe/parcelcam/pkg/recorder"
)

var (
	errNoController      = errors.New("web: pipeline not attached")
	errNoConfirmation    = errors.New("web: no confirmation pending")
	errStaleConfirmation = errors.New("web: confirmation id does not match")
)

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyCode),
		errors.Is(err, recorder.ErrInvalidParams),
		errors.Is(err, camera.ErrInvalidConfig),
		errors.Is(err, camera.ErrUnknownPreset):
		return fiber.StatusBadRequest
	case errors.Is(err, errNoConfirmation):
		return fiber.StatusNotFound
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, pipeline.ErrRecordingActive),
		errors.Is(err, errStaleConfirmation):
		return fiber.StatusConflict
	case errors.Is(err, pipeline.ErrNoFrames),
		errors.Is(err, pipeline.ErrClosed),
		errors.Is(err, recorder.ErrClosed),
		errors.Is(err, camera.ErrUnavailable),
		errors.Is(err, errNoController):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleStatus returns the pipeline status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	return c.JSON(ctrl.Status())
}

// handleCarriers returns the carrier labels for the confirmation picker
func (s *Server) handleCarriers(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	return c.JSON(fiber.Map{"carriers": ctrl.Carriers()})
}

// handleEncoders returns the selectable encoders and the current one
func (s *Server) handleEncoders(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	return c.JSON(fiber.Map{
		"encoders": ctrl.Encoders(),
		"selected": ctrl.Encoder(),
		"family":   string(recorder.FamilyOf(ctrl.Encoder())),
	})
}

// EncoderRequest selects the encoder for the next recording.
type EncoderRequest struct {
	Encoder string `json:"encoder"`
}

// handleSetEncoder selects an encoder
func (s *Server) handleSetEncoder(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	var req EncoderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := ctrl.SetEncoder(req.Encoder); err != nil {
		return fail(c, err)
	}
	s.AddLog("info", "encoder: "+ctrl.Encoder())
	return c.JSON(fiber.Map{"selected": ctrl.Encoder()})
}

// RecordingRequest starts a recording without a scan.
type RecordingRequest struct {
	Code    string `json:"code"`
	Carrier string `json:"carrier"`
}

// handleStartRecording starts a manual recording
func (s *Server) handleStartRecording(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	var req RecordingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	info, err := ctrl.StartRecording(req.Code, req.Carrier)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(info)
}

// handleStopRecording stops the active recording
func (s *Server) handleStopRecording(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	info, ok := ctrl.StopRecording()
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": recorder.ErrNotRecording.Error()})
	}
	return c.JSON(info)
}

// handleGetConfirmation returns the open confirmation request
func (s *Server) handleGetConfirmation(c *fiber.Ctx) error {
	req, ok := s.Pending()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(req)
}

// ConfirmationAnswer answers an open confirmation. Code and Carrier
// override the detected values when set.
type ConfirmationAnswer struct {
	ID      string `json:"id"`
	Accept  bool   `json:"accept"`
	Code    string `json:"code"`
	Carrier string `json:"carrier"`
}

// handleAnswerConfirmation accepts or dismisses the open confirmation
func (s *Server) handleAnswerConfirmation(c *fiber.Ctx) error {
	var req ConfirmationAnswer
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	a := confirmAnswer{
		accept: req.Accept,
		conf: pipeline.Confirmation{
			Code:    strings.TrimSpace(req.Code),
			Carrier: strings.TrimSpace(req.Carrier),
		},
	}
	if err := s.answer(req.ID, a); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"accepted": req.Accept})
}

// handleGetCamera returns the camera config, capabilities and presets
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	return c.JSON(fiber.Map{
		"config":       ctrl.Cameras().GetConfigJSON(),
		"capabilities": camera.Capabilities(),
		"presets":      camera.PresetNames(),
	})
}

// handleSetCamera applies a preset and/or field overrides
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fail(c, errNoController)
	}
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := ctrl.Cameras().UpdateConfig(params); err != nil {
		return fail(c, err)
	}
	cfg := ctrl.Cameras().GetConfig()
	s.AddLog("info", "camera: "+cfg.Device)
	return c.JSON(fiber.Map{"config": ctrl.Cameras().GetConfigJSON()})
}

// handlePreview returns the latest preview as a JPEG
func (s *Server) handlePreview(c *fiber.Ctx) error {
	s.previewMu.Lock()
	f := s.preview
	s.previewMu.Unlock()
	if f == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	data, err := f.EncodeJPEG(s.cfg.JPEGQuality)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handlePreviewWS streams preview JPEGs
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.Serve(s.previewHub, c)
}

// handleStatusWS streams status and confirmation messages
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if ctrl := s.controller(); ctrl != nil {
		st := ctrl.Status()
		if err := c.WriteJSON(StatusMessage{Type: "status", Status: &st}); err != nil {
			return
		}
	}
	if req, ok := s.Pending(); ok {
		if err := c.WriteJSON(StatusMessage{Type: "confirmation", Confirmation: &req}); err != nil {
			return
		}
	}
	hub.Serve(s.statusHub, c)
}

// handleLogsWS replays the log buffer then streams new entries
func (s *Server) handleLogsWS(c *websocket.Conn) {
	for _, entry := range s.Logs() {
		if err := c.WriteJSON(entry); err != nil {
			return
		}
	}
	hub.Serve(s.logHub, c)
}
