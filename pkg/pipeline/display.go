package pipeline

import (
	"time"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// displayLoop refreshes the preview until Shutdown.
func (p *Pipeline) displayLoop() {
	ticker := time.NewTicker(p.cfg.DisplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.dispStop:
			return
		case <-ticker.C:
			p.renderPreview()
		}
	}
}

// renderPreview draws one preview frame. It reads the session status
// snapshot only, so a slow encoder never stalls the preview.
func (p *Pipeline) renderPreview() *frame.Frame {
	f, ok := p.store.Snapshot()
	if !ok {
		return nil
	}

	preview := f
	if w, h := frame.FitSize(f.Width, f.Height, p.cfg.PreviewWidth, p.cfg.PreviewHeight); w != f.Width || h != f.Height {
		preview = frame.Fit(f, p.cfg.PreviewWidth, p.cfg.PreviewHeight)
	}

	p.detMu.Lock()
	det := p.detection.Clone()
	p.detMu.Unlock()

	p.renderer.Draw(preview, p.overlayState(p.session.Status(), det, f.Width, f.Height))

	if p.presenter != nil {
		p.presenter.Present(preview, p.Status())
	}
	return preview
}
