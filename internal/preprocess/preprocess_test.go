package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

var leafDescriptor = domain.Descriptor{InputHeight: 32, InputWidth: 24, InputChannels: 3, NumClasses: 38}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 0xFF})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, &gif.Options{NumColors: 256}))
	return buf.Bytes()
}

func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func newPreprocessor(t *testing.T) *Preprocessor {
	t.Helper()
	p, err := New("bicubic")
	require.NoError(t, err)
	return p
}

func assertShapeAndRange(t *testing.T, tensor domain.Tensor, d domain.Descriptor) {
	t.Helper()
	require.Equal(t, []int64{1, int64(d.InputHeight), int64(d.InputWidth), 3}, tensor.Shape)
	require.Len(t, tensor.Data, d.InputHeight*d.InputWidth*3)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("element %d = %v outside [0, 1]", i, v)
		}
	}
}

func TestPreprocessShapeAndRange(t *testing.T) {
	p := newPreprocessor(t)

	gray := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 256)
	}
	paletted := image.NewPaletted(image.Rect(0, 0, 17, 9), palette.Plan9)
	for i := range paletted.Pix {
		paletted.Pix[i] = uint8(i % len(palette.Plan9))
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"png rgba", encodePNG(t, gradient(64, 48))},
		{"png gray", encodePNG(t, gray)},
		{"png paletted", encodePNG(t, paletted)},
		{"png translucent", encodePNG(t, solid(10, 10, color.NRGBA{R: 10, G: 200, B: 30, A: 40}))},
		{"jpeg", encodeJPEG(t, gradient(300, 120))},
		{"gif", encodeGIF(t, gradient(20, 20))},
		{"bmp", encodeBMP(t, gradient(33, 77))},
		{"single pixel", encodePNG(t, solid(1, 1, color.White))},
		{"already model size", encodePNG(t, gradient(24, 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := p.Preprocess(tt.content, leafDescriptor)
			require.NoError(t, err)
			assertShapeAndRange(t, tensor, leafDescriptor)
		})
	}
}

func TestPreprocessSolidColourScaling(t *testing.T) {
	p := newPreprocessor(t)
	content := encodePNG(t, solid(50, 20, color.NRGBA{R: 255, G: 0, B: 51, A: 255}))

	tensor, err := p.Preprocess(content, leafDescriptor)
	require.NoError(t, err)

	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, 1.0, tensor.Data[i+0], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[i+1], 1e-6)
		assert.InDelta(t, 0.2, tensor.Data[i+2], 1e-6)
	}
}

func TestPreprocessDiscardsAlpha(t *testing.T) {
	p := newPreprocessor(t)
	content := encodePNG(t, solid(8, 8, color.NRGBA{R: 204, G: 102, B: 51, A: 0}))

	tensor, err := p.Preprocess(content, leafDescriptor)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, tensor.Data[0], 1e-6)
	assert.InDelta(t, 0.4, tensor.Data[1], 1e-6)
	assert.InDelta(t, 0.2, tensor.Data[2], 1e-6)
}

func TestPreprocessGrayscaleToRGB(t *testing.T) {
	p := newPreprocessor(t)
	gray := image.NewGray(image.Rect(0, 0, 12, 12))
	for i := range gray.Pix {
		gray.Pix[i] = 102
	}

	tensor, err := p.Preprocess(encodePNG(t, gray), leafDescriptor)
	require.NoError(t, err)

	for i := 0; i < len(tensor.Data); i += 3 {
		assert.Equal(t, tensor.Data[i], tensor.Data[i+1])
		assert.Equal(t, tensor.Data[i], tensor.Data[i+2])
		assert.InDelta(t, 0.4, tensor.Data[i], 1e-6)
	}
}

func TestPreprocessStretchesWithoutLetterbox(t *testing.T) {
	p, err := New("nearest")
	require.NoError(t, err)

	// left half green, right half blue; a letterboxed resize would add
	// black rows at the top and bottom of a wide image
	img := image.NewNRGBA(image.Rect(0, 0, 200, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 200; x++ {
			if x < 100 {
				img.Set(x, y, color.NRGBA{G: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}

	d := domain.Descriptor{InputHeight: 10, InputWidth: 10, InputChannels: 3, NumClasses: 2}
	tensor, err := p.Preprocess(encodePNG(t, img), d)
	require.NoError(t, err)

	at := func(x, y, c int) float32 { return tensor.Data[(y*10+x)*3+c] }
	for y := 0; y < 10; y++ {
		assert.Equal(t, float32(1), at(0, y, 1), "row %d left", y)
		assert.Equal(t, float32(1), at(9, y, 2), "row %d right", y)
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	p := newPreprocessor(t)
	content := encodeJPEG(t, gradient(97, 61))

	a, err := p.Preprocess(content, leafDescriptor)
	require.NoError(t, err)
	b, err := p.Preprocess(content, leafDescriptor)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestPreprocessUnreadable(t *testing.T) {
	p := newPreprocessor(t)

	valid := encodePNG(t, gradient(8, 8))
	tests := map[string][]byte{
		"empty":       nil,
		"text":        []byte("this is not an image"),
		"truncated":   valid[:len(valid)/2],
		"header only": {0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A},
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Preprocess(content, leafDescriptor)
			assert.ErrorIs(t, err, domain.ErrUnreadable)
		})
	}
}

func TestPreprocessRejectsNonRGBModel(t *testing.T) {
	p := newPreprocessor(t)
	d := leafDescriptor
	d.InputChannels = 1

	_, err := p.Preprocess(encodePNG(t, gradient(4, 4)), d)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnreadable)
}

func TestNewInterpolation(t *testing.T) {
	for name := range interpolations {
		_, err := New(name)
		assert.NoError(t, err, name)
	}

	_, err := New("")
	assert.NoError(t, err)

	_, err = New("Lanczos3")
	assert.NoError(t, err)

	_, err = New("sinc")
	assert.Error(t, err)
}
