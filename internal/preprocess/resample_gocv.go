//go:build gocv
// +build gocv

package preprocess

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Resampler names the resize implementation compiled into this binary.
const Resampler = "gocv/linear"

func resample(img image.Image, side int) (image.Image, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if src.Empty() {
		return nil, errors.New("empty image")
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(side, side), 0, 0, gocv.InterpolationLinear)

	return dst.ToImage()
}
