package scanner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/teslashibe/parcelcam/pkg/carrier"
	"github.com/teslashibe/parcelcam/pkg/frame"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScanner(d Decoder, clock *fakeClock) *Scanner {
	return New(d, carrier.Default(), Config{Interval: 2 * time.Second, Now: clock.Now})
}

func TestTryDetect_ConfirmableCarrier(t *testing.T) {
	clock := newFakeClock()
	pts := []frame.Point{{X: 10, Y: 10}, {X: 110, Y: 60}}
	s := newTestScanner(Always("SF1234567890123", pts...), clock)

	res := s.TryDetect(frame.New(4, 4))
	if !res.Attempted || !res.Found() {
		t.Fatalf("expected a detection, got %+v", res)
	}
	if res.Carrier != "顺丰" {
		t.Errorf("carrier = %q, want 顺丰", res.Carrier)
	}
	if !res.Confirmable {
		t.Error("expected a specific carrier to be confirmable")
	}
	if len(res.Detection.Points) != 2 {
		t.Errorf("expected 2 points, got %d", len(res.Detection.Points))
	}
	if !res.Detection.At.Equal(clock.Now()) {
		t.Errorf("detection time %v, want %v", res.Detection.At, clock.Now())
	}
}

func TestTryDetect_CatchAllIsNotConfirmable(t *testing.T) {
	clock := newFakeClock()
	s := newTestScanner(Always("ABCDEFGHIJKL"), clock)

	res := s.TryDetect(frame.New(4, 4))
	if !res.Found() {
		t.Fatalf("expected detection kept for overlay, got %+v", res)
	}
	if res.Carrier != carrier.Other || res.Confirmable {
		t.Errorf("expected unconfirmable catch-all, got %q confirmable=%v", res.Carrier, res.Confirmable)
	}
}

// Scenario C: a 9-character code never reaches the classifier.
func TestTryDetect_ImplausibleRejected(t *testing.T) {
	clock := newFakeClock()
	s := newTestScanner(Always("random123"), clock)

	res := s.TryDetect(frame.New(4, 4))
	if !res.Attempted || !res.Rejected || res.Found() {
		t.Errorf("expected rejected attempt, got %+v", res)
	}
	if res.Carrier != "" {
		t.Errorf("classifier should not run, got carrier %q", res.Carrier)
	}
}

func TestTryDetect_MissIsNotAnError(t *testing.T) {
	clock := newFakeClock()
	s := newTestScanner(NewMockDecoder(), clock)

	res := s.TryDetect(frame.New(4, 4))
	if !res.Attempted || res.Found() || res.Rejected {
		t.Errorf("expected plain miss, got %+v", res)
	}

	s2 := newTestScanner(WithError(errors.New("boom")), clock)
	res = s2.TryDetect(frame.New(4, 4))
	if !res.Attempted || res.Found() {
		t.Errorf("decoder error should read as a miss, got %+v", res)
	}
}

func TestTryDetect_Debounce(t *testing.T) {
	clock := newFakeClock()
	dec := Always("SF1234567890123")
	s := newTestScanner(dec, clock)
	f := frame.New(4, 4)

	if res := s.TryDetect(f); !res.Found() {
		t.Fatal("first attempt should detect")
	}

	// Inside the window: gated, decoder not called.
	clock.Advance(1500 * time.Millisecond)
	if res := s.TryDetect(f); res.Attempted {
		t.Error("attempt inside the window should be gated")
	}
	if dec.Calls() != 1 {
		t.Errorf("decoder called %d times, want 1", dec.Calls())
	}

	// Exactly at the window edge: allowed.
	clock.Advance(500 * time.Millisecond)
	if res := s.TryDetect(f); !res.Found() {
		t.Error("attempt 2s after the last one should run")
	}
	if dec.Calls() != 2 {
		t.Errorf("decoder called %d times, want 2", dec.Calls())
	}
}

// A failed attempt also restarts the window.
func TestTryDetect_DebounceCountsMisses(t *testing.T) {
	clock := newFakeClock()
	dec := NewMockDecoder(Decoded{}, Decoded{Text: "SF1234567890123"})
	s := newTestScanner(dec, clock)
	f := frame.New(4, 4)

	if res := s.TryDetect(f); !res.Attempted || res.Found() {
		t.Fatalf("expected miss, got %+v", res)
	}
	clock.Advance(time.Second)
	if res := s.TryDetect(f); res.Attempted {
		t.Error("miss should restart the debounce window")
	}
	clock.Advance(time.Second)
	if res := s.TryDetect(f); !res.Found() {
		t.Error("expected detection once the window passed")
	}
}

func TestTryDetect_ManyCallsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	dec := Always("9123456789012")
	s := newTestScanner(dec, clock)
	f := frame.New(4, 4)

	found := 0
	for i := 0; i < 30; i++ { // 30 frames at ~15 fps = 2s minus one tick
		if s.TryDetect(f).Found() {
			found++
		}
		clock.Advance(66 * time.Millisecond)
	}
	if found != 1 {
		t.Errorf("got %d classification cycles inside one window, want 1", found)
	}
	attempts, hits := s.Stats()
	if attempts != 1 || hits != 1 {
		t.Errorf("stats = %d/%d, want 1/1", attempts, hits)
	}
}

func TestZXingDecoder_EmptyFrame(t *testing.T) {
	z := NewZXingDecoder()
	if _, _, err := z.Decode(&frame.Frame{}); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestZXingDecoder_BlankFrame(t *testing.T) {
	z := NewZXingDecoder()
	f := frame.New(320, 240)
	for i := range f.Pix {
		f.Pix[i] = 255
	}
	_, ok, err := z.Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no barcode in a blank frame")
	}
}

func TestZXingDecoder_Code128(t *testing.T) {
	const code = "SF1234567890123"

	bm, err := oned.NewCode128Writer().Encode(code, gozxing.BarcodeFormat_CODE_128, 480, 120, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Render onto a white canvas with extra quiet zone.
	const pad = 20
	f := frame.New(bm.GetWidth()+2*pad, bm.GetHeight()+2*pad)
	for i := range f.Pix {
		f.Pix[i] = 255
	}
	for y := 0; y < bm.GetHeight(); y++ {
		for x := 0; x < bm.GetWidth(); x++ {
			if bm.Get(x, y) {
				i := ((y+pad)*f.Width + x + pad) * frame.BytesPerPixel
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = 0, 0, 0
			}
		}
	}

	d, ok, err := NewZXingDecoder().Decode(f)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !ok {
		t.Fatal("expected the barcode to decode")
	}
	if d.Text != code {
		t.Errorf("decoded %q, want %q", d.Text, code)
	}
	if len(d.Points) < 2 {
		t.Errorf("expected at least 2 result points, got %d", len(d.Points))
	}
}
