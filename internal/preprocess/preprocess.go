// Package preprocess turns uploaded image bytes into the normalized NHWC
// float32 tensor the classifier was trained on.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

// pixelMax maps 8-bit intensities onto [0, 1]. The model was trained on
// exactly this scaling; mean/std standardization would not match it.
const pixelMax = 255.0

// maxPixels bounds the decoded canvas so a tiny compressed payload cannot
// expand into an unbounded allocation.
const maxPixels = 64 << 20

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

type Preprocessor struct {
	interp resize.InterpolationFunction
}

// New returns a Preprocessor resizing with the named interpolation
// (nearest, bilinear, bicubic, mitchell, lanczos2, lanczos3).
func New(interpolation string) (*Preprocessor, error) {
	if interpolation == "" {
		interpolation = "bicubic"
	}
	interp, ok := interpolations[strings.ToLower(interpolation)]
	if !ok {
		return nil, fmt.Errorf("unknown interpolation %q", interpolation)
	}
	return &Preprocessor{interp: interp}, nil
}

// Preprocess decodes content, converts it to opaque RGB, stretches it to the
// descriptor's input size and returns a (1, H, W, 3) tensor in [0, 1].
func (p *Preprocessor) Preprocess(content []byte, d domain.Descriptor) (domain.Tensor, error) {
	if d.InputChannels != 3 {
		return domain.Tensor{}, fmt.Errorf("model expects %d input channels, only RGB is supported", d.InputChannels)
	}
	if d.InputHeight <= 0 || d.InputWidth <= 0 {
		return domain.Tensor{}, fmt.Errorf("invalid model input size %dx%d", d.InputWidth, d.InputHeight)
	}

	img, err := decode(content)
	if err != nil {
		return domain.Tensor{}, err
	}

	rgb := toOpaqueRGB(img)
	resized := resize.Resize(uint(d.InputWidth), uint(d.InputHeight), rgb, p.interp)

	return toTensor(resized, d.InputWidth, d.InputHeight), nil
}

func decode(content []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnreadable)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("image dimensions %dx%d: %w", cfg.Width, cfg.Height, domain.ErrUnreadable)
	}

	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnreadable)
	}
	return img, nil
}

// toOpaqueRGB drops alpha without compositing, keeping the stored colour
// channels, and expands grayscale or paletted pixels to three channels.
func toOpaqueRGB(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xFF
		}
	}
	return dst
}

func toTensor(img image.Image, width, height int) domain.Tensor {
	b := img.Bounds()
	data := make([]float32, height*width*3)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()

			i := (y*width + x) * 3
			data[i+0] = float32(r>>8) / pixelMax
			data[i+1] = float32(g>>8) / pixelMax
			data[i+2] = float32(bl>>8) / pixelMax
		}
	}

	return domain.Tensor{
		Shape: []int64{1, int64(height), int64(width), 3},
		Data:  data,
	}
}
