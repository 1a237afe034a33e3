// Package overlay draws the watermark burned into previews and recordings:
// wall clock, elapsed time, REC indicator, the confirmed carrier line and,
// while idle, the box around the last detected barcode.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// Layout.
const (
	Margin        = 10
	LineClock     = 10
	LineElapsed   = 40
	LineRec       = 70
	LineCarrier   = 100
	BoxThickness  = 3
	LabelMaxRunes = 20
)

// Colors.
var (
	Black = color.RGBA{A: 0xff}
	White = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	Green = color.RGBA{G: 0xff, A: 0xff}
	Red   = color.RGBA{R: 0xff, A: 0xff}
)

// State is everything the overlay shows for one frame. It is a value copy
// taken by the caller; the renderer never reads shared state.
type State struct {
	Now       time.Time
	Recording bool
	Elapsed   time.Duration
	Code      string
	Carrier   string

	// Detection is drawn only while idle. Its points are in the coordinate
	// space of SourceWidth x SourceHeight.
	Detection    *frame.Detection
	SourceWidth  int
	SourceHeight int
}

// Options configures the renderer.
type Options struct {
	// FontPath is a TrueType/OpenType file. Empty uses the built-in 7x13
	// bitmap face, which has no CJK glyphs.
	FontPath string
	FontSize float64
}

// Renderer draws overlays. It is safe for concurrent use.
type Renderer struct {
	// font.Face implementations cache glyphs and are not goroutine safe.
	mu   sync.Mutex
	face font.Face
}

// New creates a renderer, loading the configured font if any.
func New(opts Options) (*Renderer, error) {
	if opts.FontPath == "" {
		return Default(), nil
	}
	face, err := loadFace(opts.FontPath, opts.FontSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{face: face}, nil
}

// Default creates a renderer with the built-in bitmap face.
func Default() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

func loadFace(path string, size float64) (font.Face, error) {
	if size <= 0 {
		size = 20
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("overlay: read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("overlay: parse font %s: %w", path, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("overlay: font face: %w", err)
	}
	return face, nil
}

// Close releases the font face.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.face.Close()
}

// Render returns an overlaid copy of src. src is not modified.
func (r *Renderer) Render(src *frame.Frame, st State) *frame.Frame {
	dst := src.Clone()
	r.Draw(dst, st)
	return dst
}

// Draw paints the overlay onto dst in place.
func (r *Renderer) Draw(dst *frame.Frame, st State) {
	if dst.Empty() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	img := dst.Image()
	fg := TextColor(dst)

	r.text(img, Margin, LineClock, st.Now.Format("2006-01-02 15:04:05"), fg)
	elapsed := time.Duration(0)
	if st.Recording {
		elapsed = st.Elapsed
	}
	r.text(img, Margin, LineElapsed, Elapsed(elapsed), fg)

	if st.Recording {
		r.recIndicator(img, Margin, LineRec)
		r.text(img, Margin, LineCarrier, fmt.Sprintf("%s: %s", st.Carrier, st.Code), fg)
		return
	}

	box, ok := DetectionBox(st.Detection, st.SourceWidth, st.SourceHeight, dst.Width, dst.Height)
	if !ok {
		return
	}
	strokeRect(img, box, BoxThickness, Green)
	r.label(img, box, Truncate(st.Detection.Text, LabelMaxRunes))
}

// text draws s with its top-left corner at (x, y).
func (r *Renderer) text(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y+r.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func (r *Renderer) recIndicator(dst draw.Image, x, y int) {
	h := r.face.Metrics().Height.Ceil()
	rad := h / 2
	fillCircle(dst, image.Pt(x+rad, y+rad), rad, Red)
	r.text(dst, x+2*rad+6, y, "REC", Red)
}

// label draws text in green on a filled black strip just above box.
func (r *Renderer) label(dst draw.Image, box image.Rectangle, s string) {
	const pad = 2
	w := font.MeasureString(r.face, s).Ceil()
	h := r.face.Metrics().Height.Ceil()

	top := box.Min.Y - h - 2*pad
	if top < 0 {
		top = 0
	}
	bg := image.Rect(box.Min.X, top, box.Min.X+w+2*pad, top+h+2*pad)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(Black), image.Point{}, draw.Src)
	r.text(dst, bg.Min.X+pad, bg.Min.Y+pad, s, Green)
}

// DetectionBox scales the axis-aligned extent of d from a srcW x srcH frame
// into a dstW x dstH frame. ok is false when there is nothing to draw.
func DetectionBox(d *frame.Detection, srcW, srcH, dstW, dstH int) (image.Rectangle, bool) {
	if d == nil {
		return image.Rectangle{}, false
	}
	sx, sy := 1.0, 1.0
	if srcW > 0 && srcH > 0 {
		sx = float64(dstW) / float64(srcW)
		sy = float64(dstH) / float64(srcH)
	}
	return d.Bounds(sx, sy)
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// TextColor picks black or white text from the average luminance of the
// region (W-100, H-50, 50x30), sampled every second pixel.
func TextColor(f *frame.Frame) color.RGBA {
	region := image.Rect(f.Width-100, f.Height-50, f.Width-50, f.Height-20).
		Intersect(image.Rect(0, 0, f.Width, f.Height))
	if region.Empty() {
		return White
	}

	var sum, n uint64
	for y := region.Min.Y; y < region.Max.Y; y += 2 {
		for x := region.Min.X; x < region.Max.X; x += 2 {
			b, g, r := f.BGR(x, y)
			sum += (114*uint64(b) + 587*uint64(g) + 299*uint64(r)) / 1000
			n++
		}
	}
	if float64(sum)/float64(n)/255 > 0.5 {
		return Black
	}
	return White
}

// Elapsed formats d as hh:mm:ss. Hours do not wrap at 24.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

func strokeRect(dst draw.Image, r image.Rectangle, t int, c color.Color) {
	u := image.NewUniform(c)
	b := dst.Bounds()
	sides := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, s := range sides {
		draw.Draw(dst, s.Intersect(b), u, image.Point{}, draw.Src)
	}
}

func fillCircle(dst draw.Image, center image.Point, rad int, c color.Color) {
	for y := -rad; y <= rad; y++ {
		for x := -rad; x <= rad; x++ {
			if x*x+y*y <= rad*rad {
				dst.Set(center.X+x, center.Y+y, c)
			}
		}
	}
}
