//go:build !gocv
// +build !gocv

package preprocess

import (
	"image"

	"github.com/nfnt/resize"
)

// Resampler names the resize implementation compiled into this binary.
const Resampler = "nfnt/bilinear"

func resample(img image.Image, side int) (image.Image, error) {
	return resize.Resize(uint(side), uint(side), img, resize.Bilinear), nil
}
