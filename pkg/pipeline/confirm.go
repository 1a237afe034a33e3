package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/parcelcam/pkg/events"
	"github.com/teslashibe/parcelcam/pkg/frame"
	"github.com/teslashibe/parcelcam/pkg/scanner"
)

// ConfirmRequest asks the user to confirm a detected code.
type ConfirmRequest struct {
	ID        string           `json:"id"`
	Code      string           `json:"code"`
	Carrier   string           `json:"carrier"`
	Carriers  []string         `json:"carriers"`
	Detection *frame.Detection `json:"detection,omitempty"`
	At        time.Time        `json:"at"`
}

// Confirmation is the user's answer. Both fields may differ from the
// request when the user corrected them.
type Confirmation struct {
	Code    string `json:"code"`
	Carrier string `json:"carrier"`
}

// Confirmer is the user confirmation surface. Confirm blocks until the
// user answers, ctx ends, or the request is dismissed, in which case it
// returns ErrConfirmationCancelled.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Confirmation, error)
}

// beginConfirmation marks a confirmation pending and asks the confirmer on
// its own goroutine. Detection is suppressed until the outcome is handled.
func (p *Pipeline) beginConfirmation(res scanner.Result) {
	p.detMu.Lock()
	if p.pending {
		p.detMu.Unlock()
		return
	}
	p.pending = true
	p.detMu.Unlock()

	req := ConfirmRequest{
		ID:        uuid.NewString(),
		Code:      res.Detection.Text,
		Carrier:   res.Carrier,
		Carriers:  p.classifier.Names(),
		Detection: res.Detection.Clone(),
		At:        p.now(),
	}

	if !p.spawn(func() {
		defer p.clearPending()
		p.confirm(req)
	}) {
		p.clearPending()
	}
}

func (p *Pipeline) confirm(req ConfirmRequest) {
	ctx := p.ctx
	if p.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
		defer cancel()
	}

	p.logger.Info("awaiting confirmation", "request", req.ID, "code", req.Code, "carrier", req.Carrier)
	c, err := p.confirmer.Confirm(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrConfirmationCancelled) && ctx.Err() == nil {
			p.logger.Warn("confirmation failed", "request", req.ID, "error", err)
		} else {
			p.logger.Info("confirmation cancelled", "request", req.ID)
		}
		ev := events.New(events.KindConfirmationCancelled, p.now())
		ev.Code, ev.Carrier = req.Code, req.Carrier
		p.emit(ev)
		return
	}

	code := strings.TrimSpace(c.Code)
	carrier := strings.TrimSpace(c.Carrier)
	if code == "" {
		code = req.Code
	}
	if carrier == "" {
		carrier = req.Carrier
	}
	if _, err := p.StartRecording(code, carrier); err != nil {
		p.logger.Error("failed to start confirmed recording", "code", code, "error", err)
	}
}

func (p *Pipeline) clearPending() {
	p.detMu.Lock()
	p.pending = false
	p.detMu.Unlock()
}
