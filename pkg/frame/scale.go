package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// FitSize returns the largest size with the aspect ratio of w x h that fits
// inside maxW x maxH. A zero bound leaves that axis unconstrained.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Fit scales f down to fit inside maxW x maxH, preserving aspect ratio.
// It never upscales; a frame that already fits is returned as a clone.
func Fit(f *Frame, maxW, maxH int) *Frame {
	w, h := FitSize(f.Width, f.Height, maxW, maxH)
	if w == f.Width && h == f.Height {
		return f.Clone()
	}
	dst := New(w, h)
	dst.CapturedAt = f.CapturedAt
	draw.ApproxBiLinear.Scale(dst.Image(), image.Rect(0, 0, w, h), f.Image(), f.Image().Bounds(), draw.Src, nil)
	return dst
}
