package camera

import (
	"sync"
	"time"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// MockSource is a synthetic camera. With a zero interval it only delivers
// frames passed to Emit; otherwise it also generates gray frames at the
// configured rate.
type MockSource struct {
	mode     Mode
	interval time.Duration

	// StartErr makes Start fail.
	StartErr error

	mu      sync.Mutex
	onFrame FrameFunc
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
	starts  int
	emitted int
}

// NewMockSource creates a mock camera delivering width x height frames.
func NewMockSource(width, height, fps int, interval time.Duration) *MockSource {
	return &MockSource{
		mode:     Mode{Width: width, Height: height, Framerate: fps},
		interval: interval,
	}
}

// MockOpener returns an Opener producing manual MockSources of cfg's size.
// Every source it creates is appended to *out when out is non-nil.
func MockOpener(out *[]*MockSource) Opener {
	var mu sync.Mutex
	return func(cfg Config) Source {
		s := NewMockSource(cfg.Width, cfg.Height, cfg.Framerate, 0)
		if out != nil {
			mu.Lock()
			*out = append(*out, s)
			mu.Unlock()
		}
		return s
	}
}

// Start implements Source.
func (m *MockSource) Start(onFrame FrameFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.running {
		return ErrRunning
	}
	m.onFrame = onFrame
	m.running = true
	m.starts++
	m.stop = make(chan struct{})

	if m.interval > 0 {
		m.wg.Add(1)
		go m.generate(m.stop)
	}
	return nil
}

func (m *MockSource) generate(stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var shade byte
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f := frame.New(m.mode.Width, m.mode.Height)
			for i := range f.Pix {
				f.Pix[i] = shade
			}
			shade += 8
			m.deliver(f)
		}
	}
}

// Emit delivers f synchronously as if the camera produced it. It reports
// false when the source is not running.
func (m *MockSource) Emit(f *frame.Frame) bool {
	return m.deliver(f)
}

func (m *MockSource) deliver(f *frame.Frame) bool {
	m.mu.Lock()
	cb := m.onFrame
	running := m.running
	if running {
		m.emitted++
	}
	m.mu.Unlock()
	if !running || cb == nil {
		return false
	}
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	cb(f)
	return true
}

// Stop implements Source.
func (m *MockSource) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
}

// Running implements Source.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Mode implements Source.
func (m *MockSource) Mode() Mode {
	return m.mode
}

// Starts returns how many times Start succeeded.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Emitted returns how many frames were delivered.
func (m *MockSource) Emitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitted
}
