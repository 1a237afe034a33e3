package scanner

import (
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

// Decoded is a raw decode result before any filtering.
type Decoded struct {
	Text   string
	Points []frame.Point
}

// Decoder finds a barcode in a frame. A frame without a readable code is
// not an error: Decode returns ok=false.
type Decoder interface {
	Decode(f *frame.Frame) (d Decoded, ok bool, err error)
}

// ZXingDecoder decodes the label formats found on shipment waybills:
// CODE_128 and CODE_39 for the tracking number, QR_CODE for the 2D label.
//
// The try-harder and inverted-image passes are off and pure-barcode mode is
// on. Labels are printed at high contrast, so the extra passes buy little
// recall and cost false positives.
type ZXingDecoder struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder creates a decoder for the shipment label formats.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		readers: []gozxing.Reader{
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			qrcode.NewQRCodeReader(),
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_PURE_BARCODE: true,
		},
	}
}

// Decode runs each reader in turn and returns the first hit.
func (z *ZXingDecoder) Decode(f *frame.Frame) (Decoded, bool, error) {
	if f.Empty() {
		return Decoded{}, false, ErrEmptyFrame
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(f.Image())
	if err != nil {
		return Decoded{}, false, err
	}

	for _, r := range z.readers {
		res, err := r.Decode(bmp, z.hints)
		if err != nil {
			// NotFound, Checksum and Format exceptions all mean "no code".
			continue
		}
		text := strings.TrimSpace(res.GetText())
		if text == "" {
			continue
		}
		pts := res.GetResultPoints()
		out := Decoded{Text: text, Points: make([]frame.Point, 0, len(pts))}
		for _, p := range pts {
			out.Points = append(out.Points, frame.Point{X: p.GetX(), Y: p.GetY()})
		}
		return out, true, nil
	}
	return Decoded{}, false, nil
}
