//go:build !tflite
// +build !tflite

package inference

import (
	"fmt"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

// loadTFLite fails when the binary is built without the tflite tag.
func loadTFLite(cfg LoadConfig) (Backend, error) {
	_ = cfg
	return nil, fmt.Errorf("%w: tflite build tag is not enabled", model.ErrModelLoad)
}
