// Package scanner looks for shipment barcodes in camera frames.
//
// A Scanner rate-limits decode attempts, filters the decoded text for
// plausibility and classifies what is left against the carrier table.
package scanner

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/carrier"
	"github.com/teslashibe/parcelcam/pkg/frame"
)

// DefaultInterval is the minimum time between decode attempts. It keeps a
// label held in front of the camera from re-triggering and bounds the CPU
// spent decoding.
const DefaultInterval = 2 * time.Second

// Result is the outcome of one TryDetect call.
type Result struct {
	// Attempted is false when the call fell inside the debounce window and
	// nothing was decoded.
	Attempted bool

	// Rejected is true when a code was decoded but failed the
	// plausibility filter.
	Rejected bool

	// Detection is set for a plausible decoded code.
	Detection *frame.Detection

	// Carrier is the classified label; empty without a detection.
	Carrier string

	// Confirmable is true when Carrier is a specific carrier rather than the
	// catch-all. Only confirmable detections may start a recording.
	Confirmable bool
}

// Found reports whether the attempt produced a detection.
func (r Result) Found() bool {
	return r.Detection != nil
}

// Config holds scanner settings.
type Config struct {
	Interval time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the standard scanner settings.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Scanner debounces, decodes and classifies.
type Scanner struct {
	decoder    Decoder
	classifier *carrier.Classifier
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu          sync.Mutex
	lastAttempt time.Time
	attempts    uint64
	hits        uint64
}

// New creates a scanner.
func New(d Decoder, c *carrier.Classifier, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		decoder:    d,
		classifier: c,
		interval:   cfg.Interval,
		now:        cfg.Now,
		logger:     log.With("component", "scanner"),
	}
}

// TryDetect attempts a decode if the debounce window has passed.
//
// Every attempt, hit or miss, restarts the window. Decode failures and
// implausible text are normal outcomes, not errors.
func (s *Scanner) TryDetect(f *frame.Frame) Result {
	now := s.now()

	s.mu.Lock()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.interval {
		s.mu.Unlock()
		return Result{}
	}
	s.lastAttempt = now
	s.attempts++
	s.mu.Unlock()

	decoded, ok, err := s.decoder.Decode(f)
	if err != nil {
		s.logger.Debug("decode failed", "error", err)
		return Result{Attempted: true}
	}
	if !ok {
		return Result{Attempted: true}
	}

	if !s.classifier.Plausible(decoded.Text) {
		s.logger.Debug("discarding implausible code", "text", decoded.Text)
		return Result{Attempted: true, Rejected: true}
	}

	label := s.classifier.Classify(decoded.Text)

	s.mu.Lock()
	s.hits++
	s.mu.Unlock()

	s.logger.Info("barcode detected", "code", decoded.Text, "carrier", label)

	return Result{
		Attempted: true,
		Detection: &frame.Detection{
			Text:   decoded.Text,
			Points: decoded.Points,
			At:     now,
		},
		Carrier:     label,
		Confirmable: !s.classifier.IsFallback(label),
	}
}

// Stats returns the number of decode attempts and plausible hits.
func (s *Scanner) Stats() (attempts, hits uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, s.hits
}
