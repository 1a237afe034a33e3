package frame

import (
	"image"
	"math"
	"time"
)

// Point is a position in source-frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is a decoded barcode and where it was found.
type Detection struct {
	Text   string    `json:"text"`
	Points []Point   `json:"points"`
	At     time.Time `json:"at"`
}

// Bounds returns the axis-aligned extent of the detection polygon scaled by
// (sx, sy). ok is false when the polygon has fewer than two points.
func (d *Detection) Bounds(sx, sy float64) (r image.Rectangle, ok bool) {
	if d == nil || len(d.Points) < 2 {
		return image.Rectangle{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range d.Points {
		minX = math.Min(minX, p.X*sx)
		minY = math.Min(minY, p.Y*sy)
		maxX = math.Max(maxX, p.X*sx)
		maxY = math.Max(maxY, p.Y*sy)
	}
	return image.Rect(
		int(math.Round(minX)), int(math.Round(minY)),
		int(math.Round(maxX)), int(math.Round(maxY)),
	), true
}

// Clone returns a deep copy.
func (d *Detection) Clone() *Detection {
	if d == nil {
		return nil
	}
	pts := make([]Point, len(d.Points))
	copy(pts, d.Points)
	return &Detection{Text: d.Text, Points: pts, At: d.At}
}
