// Package frame defines the pixel buffer that flows through the capture
// pipeline and the single-slot store that hands the latest frame from the
// camera goroutine to its consumers.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"
)

// BytesPerPixel is the size of one BGR24 pixel.
const BytesPerPixel = 3

// ErrSize is returned when a pixel buffer does not match its dimensions.
var ErrSize = errors.New("frame: pixel buffer does not match dimensions")

// Frame is a BGR24 image: 3 bytes per pixel, row-major, no row padding and
// no alpha. This is exactly the layout ffmpeg reads as -pixel_format bgr24.
//
// A published frame is immutable. Anything that needs to keep a frame past
// the current tick must Clone it.
type Frame struct {
	Width  int
	Height int
	Pix    []byte

	// CapturedAt is when the camera delivered the frame.
	CapturedAt time.Time
}

// New allocates a black frame.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// FromBGR wraps an existing BGR24 buffer. The frame takes ownership of pix.
func FromBGR(width, height int, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrSize, width, height, len(pix))
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image to a BGR24 frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := f.offset(x, y)
			f.Pix[i] = uint8(bl >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(r >> 8)
		}
	}
	return f
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{
		Width:      f.Width,
		Height:     f.Height,
		Pix:        pix,
		CapturedAt: f.CapturedAt,
	}
}

// Size returns the frame dimensions as a point.
func (f *Frame) Size() image.Point {
	return image.Pt(f.Width, f.Height)
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width == 0 || f.Height == 0 || len(f.Pix) == 0
}

func (f *Frame) offset(x, y int) int {
	return (y*f.Width + x) * BytesPerPixel
}

// BGR returns the pixel at (x, y). Out-of-range coordinates return black.
func (f *Frame) BGR(x, y int) (b, g, r uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0
	}
	i := f.offset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGBA writes a color at (x, y). Out-of-range coordinates are ignored.
func (f *Frame) SetRGBA(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := f.offset(x, y)
	f.Pix[i] = c.B
	f.Pix[i+1] = c.G
	f.Pix[i+2] = c.R
}

// Image returns a view of the frame that implements draw.Image. Drawing
// through the view writes into the frame's pixel buffer.
func (f *Frame) Image() *BGRImage {
	return &BGRImage{f: f}
}

// RGBA converts the frame to a new *image.RGBA.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*BytesPerPixel : (y+1)*f.Width*BytesPerPixel]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3+2]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// Luma returns the 8-bit ITU-R BT.601 luminance plane of the frame.
func (f *Frame) Luma() []byte {
	out := make([]byte, f.Width*f.Height)
	for i := range out {
		p := f.Pix[i*BytesPerPixel:]
		out[i] = uint8((114*uint32(p[0]) + 587*uint32(p[1]) + 299*uint32(p[2])) / 1000)
	}
	return out
}

// EncodeJPEG encodes the frame as JPEG at the given quality (1-100).
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BGRImage adapts a Frame to the image/draw interfaces.
type BGRImage struct {
	f *Frame
}

// ColorModel implements image.Image.
func (b *BGRImage) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (b *BGRImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.f.Width, b.f.Height)
}

// At implements image.Image.
func (b *BGRImage) At(x, y int) color.Color {
	bl, g, r := b.f.BGR(x, y)
	return color.RGBA{R: r, G: g, B: bl, A: 0xff}
}

// Set implements draw.Image.
func (b *BGRImage) Set(x, y int, c color.Color) {
	b.f.SetRGBA(x, y, color.RGBAModel.Convert(c).(color.RGBA))
}
