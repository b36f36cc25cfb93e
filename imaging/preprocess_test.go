package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocessor_OutputSize(t *testing.T) {
	p := Preprocessor{TargetSize: 64, Contrast: 1.0}
	out := p.Process(solidRGBA(100, 140, color.RGBA{R: 200, A: 255}))

	b := out.Bounds()
	assert.Equal(t, 64, b.Dx())
	assert.Equal(t, 64, b.Dy())
}

func TestPreprocessor_PadsPortraitWithBlackBorders(t *testing.T) {
	// 30x60 portrait: after padding the card occupies the middle half.
	p := Preprocessor{TargetSize: 60, Contrast: 1.0}
	out := p.Process(solidRGBA(30, 60, color.RGBA{R: 255, A: 255}))

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)

	left := rgba.RGBAAt(2, 30)
	assert.Equal(t, uint8(0), left.R, "left border should be black padding")

	center := rgba.RGBAAt(30, 30)
	assert.Greater(t, center.R, uint8(200), "card pixels stay in the middle")

	right := rgba.RGBAAt(57, 30)
	assert.Equal(t, uint8(0), right.R, "right border should be black padding")
}

func TestPreprocessor_SquareInputNotPadded(t *testing.T) {
	p := Preprocessor{TargetSize: 50, Contrast: 1.0}
	out := p.Process(solidRGBA(50, 50, color.RGBA{R: 10, G: 200, B: 30, A: 255}))

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	corner := rgba.RGBAAt(0, 0)
	assert.Greater(t, corner.G, uint8(150), "square input keeps its corners")
}

func TestPreprocessor_ContrastSpreadsAroundMean(t *testing.T) {
	// Left half dark gray (50), right half bright gray (200); mean is 125.
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(50)
			if x >= 20 {
				v = 200
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	p := Preprocessor{TargetSize: 40, Contrast: 1.5}
	out := p.Process(img)

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)

	dark := rgba.RGBAAt(5, 20)
	bright := rgba.RGBAAt(35, 20)
	assert.Less(t, dark.R, uint8(50), "dark side darkens")
	assert.Greater(t, bright.R, uint8(200), "bright side brightens")
}

func TestPreprocessor_ContrastOneIsIdentity(t *testing.T) {
	img := solidRGBA(20, 20, color.RGBA{R: 77, G: 88, B: 99, A: 255})

	p := Preprocessor{TargetSize: 20, Contrast: 1.0}
	out := p.Process(img)

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	got := rgba.RGBAAt(10, 10)
	assert.Equal(t, color.RGBA{R: 77, G: 88, B: 99, A: 255}, got)
}

func TestPreprocessor_FlattensAlphaOntoBlack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	// Fully transparent everywhere; underlying color must not leak through.
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetRGBA(x, y, color.RGBA{})
		}
	}

	p := Preprocessor{TargetSize: 10, Contrast: 1.0}
	out := p.Process(img)

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	px := rgba.RGBAAt(5, 5)
	assert.Equal(t, uint8(0), px.R)
	assert.Equal(t, uint8(0), px.G)
	assert.Equal(t, uint8(0), px.B)
	assert.Equal(t, uint8(255), px.A, "output is opaque")
}

func TestPreprocessor_Load(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "card.png", 31, 44)

	p := NewPreprocessor()
	out, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetSize, out.Bounds().Dx())
	assert.Equal(t, DefaultTargetSize, out.Bounds().Dy())
}

func TestPreprocessor_Load_MissingFile(t *testing.T) {
	p := NewPreprocessor()
	_, err := p.Load("/definitely/not/here.png")
	assert.Error(t, err)
}
