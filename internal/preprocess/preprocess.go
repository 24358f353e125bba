// Package preprocess turns decoded pixels into the int8 input buffer of the classifier.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

// Channels is the number of interleaved colour channels in the input buffer (R, G, B).
const Channels = 3

// MaxSide bounds each side of a raw RGB image.
const MaxSide = 1 << 15

// BufferSize returns the length of the encoded input for a side x side image.
func BufferSize(side int) int {
	return Channels * side * side
}

// Encode resizes img to side x side and encodes every pixel, row-major, as R,G,B bytes
// re-centred by subtracting 128.
func Encode(img image.Image, side int) ([]int8, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", model.ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has zero size (%dx%d)", model.ErrInvalidImage, b.Dx(), b.Dy())
	}
	if side <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", model.ErrInvalidImage, side)
	}

	resized, err := resample(img, side)
	if err != nil {
		return nil, fmt.Errorf("%w: resize failed: %v", model.ErrInvalidImage, err)
	}
	rb := resized.Bounds()
	if rb.Dx() != side || rb.Dy() != side {
		return nil, fmt.Errorf("%w: resize produced %dx%d, expected %dx%d", model.ErrInvalidImage, rb.Dx(), rb.Dy(), side, side)
	}

	out := make([]int8, 0, BufferSize(side))
	for y := rb.Min.Y; y < rb.Max.Y; y++ {
		for x := rb.Min.X; x < rb.Max.X; x++ {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			out = append(out, center(c.R), center(c.G), center(c.B))
		}
	}
	return out, nil
}

// center maps [0,255] onto [-128,127] with gray level 128 at zero.
func center(v uint8) int8 {
	return int8(int(v) - 128)
}

// Decode reads a JPEG or PNG image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}
	return img, format, nil
}

// FromRGB builds an image from a row-major, interleaved R,G,B array.
func FromRGB(width, height int, pixels []int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image has zero size (%dx%d)", model.ErrInvalidImage, width, height)
	}
	if width > MaxSide || height > MaxSide {
		return nil, fmt.Errorf("%w: image is too large (%dx%d), max side is %d", model.ErrInvalidImage, width, height, MaxSide)
	}
	if len(pixels) != Channels*width*height {
		return nil, fmt.Errorf("%w: expected %d values, got %d", model.ErrInvalidImage, Channels*width*height, len(pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		r, g, b := pixels[i*3], pixels[i*3+1], pixels[i*3+2]
		if !inByteRange(r) || !inByteRange(g) || !inByteRange(b) {
			return nil, fmt.Errorf("%w: pixel %d has a channel outside [0,255]", model.ErrInvalidImage, i)
		}
		img.Pix[i*4] = uint8(r)
		img.Pix[i*4+1] = uint8(g)
		img.Pix[i*4+2] = uint8(b)
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

func inByteRange(v int) bool {
	return v >= 0 && v <= 255
}
