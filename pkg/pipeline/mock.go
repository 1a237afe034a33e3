package pipeline

import (
	"context"
	"sync"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// MockConfirmer hands each request to Requests and waits for an answer on
// Answer. Nil answers cancel.
type MockConfirmer struct {
	Requests chan ConfirmRequest
	answers  chan *Confirmation

	mu    sync.Mutex
	calls int
}

// NewMockConfirmer creates a confirmer with buffered channels.
func NewMockConfirmer() *MockConfirmer {
	return &MockConfirmer{
		Requests: make(chan ConfirmRequest, 16),
		answers:  make(chan *Confirmation, 16),
	}
}

// Confirm implements Confirmer.
func (m *MockConfirmer) Confirm(ctx context.Context, req ConfirmRequest) (Confirmation, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	m.Requests <- req
	select {
	case a := <-m.answers:
		if a == nil {
			return Confirmation{}, ErrConfirmationCancelled
		}
		return *a, nil
	case <-ctx.Done():
		return Confirmation{}, ErrConfirmationCancelled
	}
}

// Accept answers the next request with code and carrier.
func (m *MockConfirmer) Accept(code, carrier string) {
	m.answers <- &Confirmation{Code: code, Carrier: carrier}
}

// Cancel dismisses the next request.
func (m *MockConfirmer) Cancel() {
	m.answers <- nil
}

// Calls returns how many confirmations were requested.
func (m *MockConfirmer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPresenter keeps the last preview.
type MockPresenter struct {
	mu     sync.Mutex
	last   *frame.Frame
	status Status
	count  int
}

// Present implements Presenter.
func (m *MockPresenter) Present(preview *frame.Frame, st Status) {
	m.mu.Lock()
	m.last = preview
	m.status = st
	m.count++
	m.mu.Unlock()
}

// Last returns the latest preview, its status and the number presented.
func (m *MockPresenter) Last() (*frame.Frame, Status, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.status, m.count
}
