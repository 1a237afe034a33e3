package recorder

import (
	"sync"
	"time"
)

// MockLauncher records launches and hands out MockSinks.
type MockLauncher struct {
	mu       sync.Mutex
	launches [][]string
	sinks    []*MockSink

	// LaunchErr makes every Launch fail.
	LaunchErr error
	// WriteErr makes every sink Write fail.
	WriteErr error
	// Hang makes sinks ignore CloseInput so Wait times out.
	Hang bool
	// Block makes every sink Write wait until the channel is closed, like
	// an encoder that stopped reading its input.
	Block chan struct{}
}

// NewMockLauncher creates a launcher whose sinks accept everything.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{}
}

// Launch implements Launcher.
func (m *MockLauncher) Launch(args []string) (Sink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LaunchErr != nil {
		return nil, m.LaunchErr
	}
	cp := append([]string(nil), args...)
	m.launches = append(m.launches, cp)
	s := &MockSink{args: cp, writeErr: m.WriteErr, hang: m.Hang, block: m.Block}
	m.sinks = append(m.sinks, s)
	return s, nil
}

// Launches returns the argument lists of every launch so far.
func (m *MockLauncher) Launches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.launches...)
}

// Sinks returns every sink handed out so far.
func (m *MockLauncher) Sinks() []*MockSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSink(nil), m.sinks...)
}

// MockSink is an in-memory encoder.
type MockSink struct {
	mu       sync.Mutex
	args     []string
	writes   int
	bytes    int
	closed   bool
	killed   bool
	writeErr error
	hang     bool
	block    chan struct{}
	blocked  int
}

// Write implements Sink.
func (s *MockSink) Write(p []byte) (int, error) {
	if s.block != nil {
		s.mu.Lock()
		s.blocked++
		s.mu.Unlock()
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.closed || s.killed {
		return 0, ErrNotRecording
	}
	s.writes++
	s.bytes += len(p)
	return len(p), nil
}

// CloseInput implements Sink.
func (s *MockSink) CloseInput() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Wait implements Sink.
func (s *MockSink) Wait(timeout time.Duration) error {
	s.mu.Lock()
	hang := s.hang
	s.mu.Unlock()
	if hang {
		time.Sleep(timeout)
		return ErrStopTimeout
	}
	return nil
}

// Kill implements Sink.
func (s *MockSink) Kill() error {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()
	return nil
}

// Path returns the output path, the last launch argument.
func (s *MockSink) Path() string {
	if len(s.args) == 0 {
		return ""
	}
	return s.args[len(s.args)-1]
}

// Blocked returns how many writes have entered the Block wait.
func (s *MockSink) Blocked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// Stats returns the write count, byte count, and whether the input was
// closed and the process killed.
func (s *MockSink) Stats() (writes, bytes int, closed, killed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes, s.bytes, s.closed, s.killed
}
