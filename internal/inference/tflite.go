//go:build tflite
// +build tflite

package inference

import (
	"fmt"
	"os"

	"github.com/mattn/go-tflite"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

type tfliteBackend struct {
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	input   *tflite.Tensor
	output  *tflite.Tensor
	info    TensorInfo
}

// loadTFLite opens a quantized .tflite model. Shapes and output quantization come from the
// model itself; metadata shapes, when given, must agree.
func loadTFLite(cfg LoadConfig) (Backend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	b := &tfliteBackend{}
	b.model = tflite.NewModelFromFile(cfg.ModelPath)
	if b.model == nil {
		return nil, fmt.Errorf("%w: cannot read tflite model %v", model.ErrModelLoad, cfg.ModelPath)
	}

	b.options = tflite.NewInterpreterOptions()
	if cfg.Threads > 0 {
		b.options.SetNumThread(cfg.Threads)
	}

	b.interp = tflite.NewInterpreter(b.model, b.options)
	if b.interp == nil {
		b.Close()
		return nil, fmt.Errorf("%w: cannot create tflite interpreter", model.ErrModelLoad)
	}
	if status := b.interp.AllocateTensors(); status != tflite.OK {
		b.Close()
		return nil, fmt.Errorf("%w: tensor allocation failed", model.ErrModelLoad)
	}
	if b.interp.GetInputTensorCount() != 1 || b.interp.GetOutputTensorCount() != 1 {
		b.Close()
		return nil, fmt.Errorf("%w: expected 1 input and 1 output, model has %d and %d",
			model.ErrModelLoad, b.interp.GetInputTensorCount(), b.interp.GetOutputTensorCount())
	}

	b.input = b.interp.GetInputTensor(0)
	b.output = b.interp.GetOutputTensor(0)
	if b.input.Type() != tflite.Int8 || b.output.Type() != tflite.Int8 {
		b.Close()
		return nil, fmt.Errorf("%w: expected int8 tensors, got %v in and %v out", model.ErrModelLoad, b.input.Type(), b.output.Type())
	}

	qp := b.output.QuantizationParams()
	b.info = TensorInfo{
		InputShape:   tensorShape(b.input),
		OutputShape:  tensorShape(b.output),
		InputSide:    cfg.InputSide,
		Quantization: model.QuantizationParams{Scale: float32(qp.Scale), ZeroPoint: int32(qp.ZeroPoint)},
	}
	b.info.OutputSize = int(elements(b.info.OutputShape))

	if md := cfg.Metadata; md != nil && len(md.OutputShape) > 0 && elements(md.OutputShape) != int64(b.info.OutputSize) {
		b.Close()
		return nil, fmt.Errorf("%w: metadata output shape %v disagrees with model %v", model.ErrModelLoad, md.OutputShape, b.info.OutputShape)
	}
	return b, nil
}

func tensorShape(t *tflite.Tensor) []int64 {
	shape := make([]int64, t.NumDims())
	for i := range shape {
		shape[i] = int64(t.Dim(i))
	}
	return shape
}

func (b *tfliteBackend) Run(input []int8) ([]int8, error) {
	if status := b.input.CopyFromBuffer(input); status != tflite.OK {
		return nil, fmt.Errorf("copy input failed")
	}
	if status := b.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke failed")
	}
	out := make([]int8, b.info.OutputSize)
	if status := b.output.CopyToBuffer(out); status != tflite.OK {
		return nil, fmt.Errorf("copy output failed")
	}
	return out, nil
}

func (b *tfliteBackend) Info() TensorInfo {
	return b.info
}

func (b *tfliteBackend) Close() error {
	if b.interp != nil {
		b.interp.Delete()
	}
	if b.options != nil {
		b.options.Delete()
	}
	if b.model != nil {
		b.model.Delete()
	}
	return nil
}
