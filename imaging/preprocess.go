package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	xdraw "golang.org/x/image/draw"
)

// DefaultTargetSize is the canonical embedding input edge length.
const DefaultTargetSize = 224

// Preprocessor produces the canonical embedding input: flatten to RGB over
// black, optional contrast enhancement, pad to square with black borders,
// centered, then a Catmull-Rom resize to TargetSize. Index builds and
// queries must run the identical transformation, so the build records its
// parameters in the manifest and the query side reads them back.
type Preprocessor struct {
	// TargetSize is the output edge length in pixels.
	TargetSize int

	// Contrast scales contrast around the image's mean luminance.
	// 1.0 leaves the image untouched.
	Contrast float64
}

// NewPreprocessor returns a preprocessor with the canonical defaults.
func NewPreprocessor() Preprocessor {
	return Preprocessor{TargetSize: DefaultTargetSize, Contrast: 1.0}
}

// Load decodes the image at path and applies the canonical transformation.
func (p Preprocessor) Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return p.Process(img), nil
}

// Process applies the canonical transformation to a decoded image.
func (p Preprocessor) Process(img image.Image) image.Image {
	rgba := flattenRGB(img)

	if p.Contrast > 1.0 {
		rgba = adjustContrast(rgba, p.Contrast)
	}

	rgba = padToSquare(rgba)

	size := p.TargetSize
	if size <= 0 {
		size = DefaultTargetSize
	}
	if rgba.Bounds().Dx() == size {
		return rgba
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), rgba, rgba.Bounds(), xdraw.Over, nil)
	return dst
}

// flattenRGB composites the image over black at origin, dropping alpha.
// Card scans with transparent corners must land on black, matching the
// padding color.
func flattenRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// padToSquare centers the image on a black square canvas whose edge is the
// larger dimension. Black borders keep the whole card visible: name, mana
// cost, text box and P/T all matter for matching.
func padToSquare(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}

	s := max(w, h)
	canvas := image.NewRGBA(image.Rect(0, 0, s, s))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	x := (s - w) / 2
	y := (s - h) / 2
	draw.Draw(canvas, image.Rect(x, y, x+w, y+h), img, b.Min, draw.Src)
	return canvas
}

// adjustContrast blends each channel against the image's mean luminance:
// out = mean + factor*(px - mean), clamped to [0, 255].
func adjustContrast(img *image.RGBA, factor float64) *image.RGBA {
	b := img.Bounds()
	if b.Empty() {
		return img
	}

	var lumSum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			lumSum += 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}
	mean := lumSum / float64(b.Dx()*b.Dy())

	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: clamp8(mean + factor*(float64(c.R)-mean)),
				G: clamp8(mean + factor*(float64(c.G)-mean)),
				B: clamp8(mean + factor*(float64(c.B)-mean)),
				A: c.A,
			})
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
