// Package recorder owns the recording state machine and the external
// encoder process that turns raw frames into a video file.
//
// A Session is Idle or Recording. Start launches one ffmpeg process reading
// BGR24 frames on stdin; WriteFrame streams frames into it; Stop closes the
// stream and waits a bounded time for the process to finish the file.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/frame"
)

// State is the recording state.
type State int

const (
	// Idle means no encoder process and no frames written.
	Idle State = iota
	// Recording means an encoder process is alive and accepting frames.
	Recording
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	default:
		return "idle"
	}
}

// Defaults.
const (
	DefaultExtension   = "mp4"
	DefaultStopTimeout = 5 * time.Second
)

// Params describes a recording to start.
type Params struct {
	Code      string
	Carrier   string
	Width     int
	Height    int
	FrameRate int
	Encoder   string
	OutputDir string
}

func (p Params) validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidParams, p.Width, p.Height)
	case p.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate %d", ErrInvalidParams, p.FrameRate)
	case p.OutputDir == "":
		return fmt.Errorf("%w: output directory required", ErrInvalidParams)
	}
	return nil
}

// Info describes an active or finished recording.
type Info struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Carrier   string    `json:"carrier"`
	Path      string    `json:"path"`
	Encoder   string    `json:"encoder"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FrameRate int       `json:"frame_rate"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Frames    uint64    `json:"frames"`
	Dropped   uint64    `json:"dropped"`
}

// Status is an immutable snapshot of the session.
type Status struct {
	State State `json:"-"`
	Info  *Info `json:"info,omitempty"`

	rec *recording
}

// Recording reports whether the snapshot was taken while recording.
func (s Status) Recording() bool {
	return s.State == Recording
}

// Elapsed returns the recording time at now, or zero when idle.
func (s Status) Elapsed(now time.Time) time.Duration {
	if s.State != Recording || s.Info == nil {
		return 0
	}
	if d := now.Sub(s.Info.StartedAt); d > 0 {
		return d
	}
	return 0
}

// Config holds session settings.
type Config struct {
	// Launcher starts the encoder. Required.
	Launcher Launcher

	// Extension is the container file extension.
	Extension string

	// StopTimeout bounds how long Stop waits for the encoder to exit.
	StopTimeout time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// recording is one encoder run. Writers hold a pointer to it, so a write
// that returns after Stop never counts against the next recording.
type recording struct {
	sink Sink
	info Info

	frames   atomic.Uint64
	dropped  atomic.Uint64
	stopping atomic.Bool
}

// Session is the recording state machine. It owns at most one encoder
// process at a time.
type Session struct {
	cfg    Config
	logger *slog.Logger

	// mu guards rec, used and closed. It is never held across a sink
	// write, so Stop can always reach the encoder.
	mu     sync.Mutex
	rec    *recording
	used   map[string]bool
	closed bool

	// writeMu keeps frames in callback order. Stop does not take it.
	writeMu sync.Mutex

	// status is read lock-free by the display loop.
	status atomic.Pointer[Status]
}

// NewSession creates an idle session.
func NewSession(cfg Config) *Session {
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		cfg:    cfg,
		logger: log.With("component", "recorder"),
		used:   make(map[string]bool),
	}
	s.status.Store(&Status{State: Idle})
	return s
}

// Start launches the encoder and moves to Recording. It fails without
// side effects when a recording is active or still stopping.
func (s *Session) Start(p Params) (Info, error) {
	if err := p.validate(); err != nil {
		return Info{}, err
	}
	if p.Encoder == "" {
		p.Encoder = DefaultEncoder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Info{}, ErrClosed
	}
	if s.rec != nil {
		return Info{}, ErrAlreadyRecording
	}

	now := s.cfg.Now()
	path := uniquePath(p.OutputDir, FileName(now, p.Code, p.Carrier, s.cfg.Extension), s.used)

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return Info{}, &LaunchError{Encoder: p.Encoder, Path: path, Err: err}
	}

	sink, err := s.cfg.Launcher.Launch(EncoderArgs(p, path))
	if err != nil {
		s.logger.Error("encoder launch failed", "encoder", p.Encoder, "path", path, "error", err)
		return Info{}, &LaunchError{Encoder: p.Encoder, Path: path, Err: err}
	}

	s.used[path] = true
	r := &recording{
		sink: sink,
		info: Info{
			ID:        uuid.NewString(),
			Code:      p.Code,
			Carrier:   p.Carrier,
			Path:      path,
			Encoder:   p.Encoder,
			Width:     p.Width,
			Height:    p.Height,
			FrameRate: p.FrameRate,
			StartedAt: now,
		},
	}
	s.rec = r
	s.publish(r)

	s.logger.Info("recording started",
		"id", r.info.ID,
		"code", p.Code,
		"carrier", p.Carrier,
		"path", path,
		"encoder", p.Encoder,
		"family", FamilyOf(p.Encoder),
		"size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"fps", p.FrameRate,
	)
	return r.info, nil
}

// WriteFrame streams one frame to the encoder. A failed write drops the
// frame and returns a *WriteError; the recording stays active. Once Stop
// has begun it returns ErrNotRecording.
func (s *Session) WriteFrame(f *frame.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	r := s.rec
	s.mu.Unlock()

	if r == nil || r.stopping.Load() {
		return ErrNotRecording
	}
	if f.Width != r.info.Width || f.Height != r.info.Height || len(f.Pix) != f.Width*f.Height*frame.BytesPerPixel {
		r.dropped.Add(1)
		return fmt.Errorf("%w: got %dx%d, recording %dx%d",
			ErrFrameSize, f.Width, f.Height, r.info.Width, r.info.Height)
	}

	if _, err := r.sink.Write(f.Pix); err != nil {
		if r.stopping.Load() {
			// Stop closed the input under this write.
			return ErrNotRecording
		}
		d := r.dropped.Add(1)
		n := r.frames.Load() + d
		// The first failure and then every 100th, so a stalled encoder
		// does not flood the log at camera rate.
		if d == 1 || d%100 == 0 {
			s.logger.Warn("frame write failed, dropping", "frame", n, "dropped", d, "error", err)
		}
		return &WriteError{Frame: n, Err: err}
	}
	r.frames.Add(1)
	return nil
}

// Stop ends the recording. It returns within about StopTimeout even when a
// write is stuck in the encoder pipe. It is idempotent: on an idle session,
// or one already stopping, it returns ok=false and does nothing.
func (s *Session) Stop() (info Info, ok bool) {
	s.mu.Lock()
	r := s.claim()
	s.mu.Unlock()
	if r == nil {
		return Info{}, false
	}
	return s.finish(r), true
}

// Close stops any active recording and refuses later starts.
func (s *Session) Close() (Info, bool) {
	s.mu.Lock()
	s.closed = true
	r := s.claim()
	s.mu.Unlock()
	if r == nil {
		return Info{}, false
	}
	return s.finish(r), true
}

// claim marks the active recording as stopping. Only one caller wins.
// Caller holds mu.
func (s *Session) claim() *recording {
	if s.rec == nil || !s.rec.stopping.CompareAndSwap(false, true) {
		return nil
	}
	return s.rec
}

// finish closes the encoder input, which also fails a write blocked on
// the pipe, then waits for the process and kills it on timeout.
func (s *Session) finish(r *recording) Info {
	if err := r.sink.CloseInput(); err != nil {
		s.logger.Warn("closing encoder input failed", "error", err)
	}
	if err := r.sink.Wait(s.cfg.StopTimeout); err != nil {
		if errors.Is(err, ErrStopTimeout) {
			s.logger.Warn("encoder did not exit, killing", "timeout", s.cfg.StopTimeout)
			if kerr := r.sink.Kill(); kerr != nil {
				s.logger.Warn("killing encoder failed", "error", kerr)
			}
		} else {
			s.logger.Warn("encoder exited with error", "error", err)
		}
	}

	info := r.info
	info.StoppedAt = s.cfg.Now()
	info.Frames = r.frames.Load()
	info.Dropped = r.dropped.Load()

	s.mu.Lock()
	if s.rec == r {
		s.rec = nil
		s.publish(nil)
	}
	s.mu.Unlock()

	s.logger.Info("recording stopped",
		"id", info.ID,
		"path", info.Path,
		"frames", info.Frames,
		"dropped", info.Dropped,
		"duration", info.StoppedAt.Sub(info.StartedAt).Round(time.Second),
	)
	return info
}

// Status returns the current snapshot without waiting on the encoder.
func (s *Session) Status() Status {
	st := *s.status.Load()
	if st.rec != nil {
		info := st.rec.info
		info.Frames = st.rec.frames.Load()
		info.Dropped = st.rec.dropped.Load()
		st.Info = &info
	}
	return st
}

// publish stores a new status snapshot; nil means Idle. Caller holds mu.
func (s *Session) publish(r *recording) {
	if r == nil {
		s.status.Store(&Status{State: Idle})
		return
	}
	info := r.info
	s.status.Store(&Status{State: Recording, Info: &info, rec: r})
}
