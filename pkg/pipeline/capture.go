package pipeline

import (
	"errors"
	"fmt"

	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/frame"
	"github.com/teslashibe/parcelcam/pkg/overlay"
	"github.com/teslashibe/parcelcam/pkg/recorder"
)

// onFrame is the capture callback. It runs on the camera goroutine and
// must never panic out of it.
func (p *Pipeline) onFrame(f *frame.Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture callback panic", "panic", fmt.Sprint(r))
		}
	}()

	if p.closed.Load() || f.Empty() {
		return
	}
	p.store.Publish(f)

	p.detMu.Lock()
	p.size.X, p.size.Y = f.Width, f.Height
	pending := p.pending
	p.detMu.Unlock()

	if st := p.session.Status(); st.Recording() {
		out := p.renderer.Render(f, p.overlayState(st, nil, f.Width, f.Height))
		if err := p.session.WriteFrame(out); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
			// The session logs write failures itself.
			p.logger.Debug("frame not recorded", "error", err)
		}
		return
	}

	if pending {
		return
	}
	res := p.scanner.TryDetect(f)
	if !res.Attempted {
		return
	}

	p.detMu.Lock()
	switch {
	case res.Found():
		p.detection = res.Detection
		p.detCarrier = res.Carrier
	case !res.Rejected:
		// A failed decode clears the box; implausible text leaves it.
		p.detection = nil
		p.detCarrier = ""
	}
	p.detMu.Unlock()

	if !res.Found() {
		return
	}
	ev := events.New(events.KindDetected, p.now())
	ev.Code, ev.Carrier = res.Detection.Text, res.Carrier
	p.emit(ev)

	if res.Confirmable {
		p.beginConfirmation(res)
	}
}

// overlayState builds the overlay input from a recorder snapshot. det is
// only drawn while idle.
func (p *Pipeline) overlayState(st recorder.Status, det *frame.Detection, srcW, srcH int) overlay.State {
	now := p.now()
	ov := overlay.State{
		Now:          now,
		Recording:    st.Recording(),
		Elapsed:      st.Elapsed(now),
		Detection:    det,
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}
	if st.Info != nil {
		ov.Code = st.Info.Code
		ov.Carrier = st.Info.Carrier
	}
	return ov
}
