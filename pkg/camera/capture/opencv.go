// Package capture reads frames from a real camera through OpenCV.
package capture

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/camera"
	"github.com/teslashibe/parcelcam/pkg/frame"
)

// maxReadFailures is how many consecutive empty reads end capture.
const maxReadFailures = 50

// OpenCV is a camera.Source backed by gocv.VideoCapture.
type OpenCV struct {
	cfg    camera.Config
	logger *slog.Logger

	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mode    camera.Mode
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an OpenCV source for cfg. The device is opened by Start.
func New(cfg camera.Config) *OpenCV {
	return &OpenCV{
		cfg:    cfg,
		logger: log.With("component", "camera", "device", cfg.Device),
	}
}

// Opener adapts New to camera.Opener.
func Opener(cfg camera.Config) camera.Source {
	return New(cfg)
}

// deviceID turns "0" into the integer index OpenCV expects and passes
// paths and URLs through.
func deviceID(device string) interface{} {
	if i, err := strconv.Atoi(device); err == nil {
		return i
	}
	return device
}

// Start implements camera.Source.
func (o *OpenCV) Start(onFrame camera.FrameFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return camera.ErrRunning
	}

	vc, err := gocv.OpenVideoCapture(deviceID(o.cfg.Device))
	if err != nil {
		return &camera.OpenError{Device: o.cfg.Device, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return &camera.OpenError{Device: o.cfg.Device, Err: fmt.Errorf("device not opened")}
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(o.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(o.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(o.cfg.Framerate))
	if o.cfg.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(o.cfg.BufferSize))
	}
	if o.cfg.AutoFocus {
		vc.Set(gocv.VideoCaptureAutoFocus, 1)
	}
	if o.cfg.Brightness != 0 {
		vc.Set(gocv.VideoCaptureBrightness, o.cfg.Brightness)
	}

	// Drivers round to the nearest supported mode.
	o.mode = camera.Mode{
		Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
		Framerate: int(vc.Get(gocv.VideoCaptureFPS) + 0.5),
	}
	if o.mode.Framerate <= 0 {
		o.mode.Framerate = o.cfg.Framerate
	}

	o.logger.Info("camera opened",
		"requested", fmt.Sprintf("%dx%d@%d", o.cfg.Width, o.cfg.Height, o.cfg.Framerate),
		"negotiated", fmt.Sprintf("%dx%d@%d", o.mode.Width, o.mode.Height, o.mode.Framerate),
	)

	o.vc = vc
	o.running = true
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	go o.loop(vc, onFrame, o.stop, o.done)
	return nil
}

func (o *OpenCV) loop(vc *gocv.VideoCapture, onFrame camera.FrameFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer vc.Close()

	mat := gocv.NewMat()
	defer mat.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()

	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures >= maxReadFailures {
				o.logger.Error("camera stopped delivering frames", "error", camera.ErrUnavailable, "failures", failures)
				o.mu.Lock()
				o.running = false
				o.mu.Unlock()
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		f, err := toFrame(mat, &bgr)
		if err != nil {
			o.logger.Warn("dropping frame", "error", err)
			continue
		}
		f.CapturedAt = time.Now()
		onFrame(f)
	}
}

// toFrame copies a Mat into a BGR24 frame, converting gray and BGRA input.
func toFrame(mat gocv.Mat, scratch *gocv.Mat) (*frame.Frame, error) {
	src := mat
	switch mat.Channels() {
	case 3:
	case 1:
		gocv.CvtColor(mat, scratch, gocv.ColorGrayToBGR)
		src = *scratch
	case 4:
		gocv.CvtColor(mat, scratch, gocv.ColorBGRAToBGR)
		src = *scratch
	default:
		return nil, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("unsupported mat type %v", src.Type())
	}
	return frame.FromBGR(src.Cols(), src.Rows(), src.ToBytes())
}

// Stop implements camera.Source.
func (o *OpenCV) Stop() {
	o.mu.Lock()
	stop, done := o.stop, o.done
	o.stop = nil
	o.running = false
	o.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	o.logger.Info("camera closed")
}

// Running implements camera.Source.
func (o *OpenCV) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Mode implements camera.Source.
func (o *OpenCV) Mode() camera.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}
