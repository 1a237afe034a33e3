package scanner

import (
	"sync"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// MockDecoder returns scripted results and counts calls.
type MockDecoder struct {
	mu      sync.Mutex
	results []Decoded
	repeat  bool
	err     error
	calls   int
}

// NewMockDecoder creates a decoder that returns results in order. An entry
// with empty Text is a miss. Once the script is exhausted every call misses.
func NewMockDecoder(results ...Decoded) *MockDecoder {
	return &MockDecoder{results: results}
}

// Always returns a decoder that reports the same code on every call.
func Always(text string, points ...frame.Point) *MockDecoder {
	return &MockDecoder{results: []Decoded{{Text: text, Points: points}}, repeat: true}
}

// WithError returns a decoder that fails every call with err.
func WithError(err error) *MockDecoder {
	return &MockDecoder{err: err}
}

// Decode implements Decoder.
func (m *MockDecoder) Decode(f *frame.Frame) (Decoded, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return Decoded{}, false, m.err
	}
	if len(m.results) == 0 {
		return Decoded{}, false, nil
	}
	d := m.results[0]
	if !m.repeat {
		m.results = m.results[1:]
	}
	return d, d.Text != "", nil
}

// Calls returns how many times Decode ran.
func (m *MockDecoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
