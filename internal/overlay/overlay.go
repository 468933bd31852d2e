// Package overlay rasterizes caption text onto generated images. Drawing
// happens entirely locally, after the vendor call has returned.
package overlay

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	_ "golang.org/x/image/webp"
)

// FontSize is the single caption size. Size control is deliberately not
// exposed; the UI only offers text and color.
const FontSize = 48.0

// bottomMargin keeps the caption baseline off the lower edge.
const bottomMargin = 20.0

// Spec describes the caption to draw.
type Spec struct {
	Text  string
	Color colorful.Color
}

// DecodeError reports input bytes that are not a supported image format.
type DecodeError struct {
	cause error
}

func (e *DecodeError) Error() string {
	return "overlay: unsupported image format: " + e.cause.Error()
}

func (e *DecodeError) Unwrap() error { return e.cause }

// ParseColor converts a form hex value ("#FF0000") into a color.
func ParseColor(hex string) (colorful.Color, error) {
	return colorful.Hex(hex)
}

var captionFace font.Face

func init() {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		panic("overlay: parse embedded font: " + err.Error())
	}
	captionFace = truetype.NewFace(f, &truetype.Options{Size: FontSize})
}

// Apply draws the caption anchored bottom-center onto a copy of the image
// and returns the copy re-encoded as PNG. The input bytes are never touched,
// and the output keeps the input's pixel dimensions.
func Apply(img []byte, spec Spec) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, &DecodeError{cause: err}
	}

	// gg copies the decoded pixels into its own RGBA backing store, so the
	// source image stays intact.
	dc := gg.NewContextForImage(decoded)
	if spec.Text != "" {
		dc.SetFontFace(captionFace)
		dc.SetRGB(spec.Color.R, spec.Color.G, spec.Color.B)
		w := float64(dc.Width())
		h := float64(dc.Height())
		dc.DrawStringAnchored(spec.Text, w/2, h-bottomMargin, 0.5, 0)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
