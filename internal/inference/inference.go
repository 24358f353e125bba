// Package inference owns the loaded classifier and runs it on encoded input buffers.
//
// The runtime behind a model (ONNX Runtime, or TensorFlow Lite when built with the
// "tflite" tag) is hidden behind Backend. Handle is the single owner of a Backend:
// every Run is serialised, and Close releases the runtime exactly once.
package inference

import (
	"fmt"
	"sync"

	"github.com/cyclopcam/logs"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/preprocess"
)

const (
	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
)

// TensorInfo describes the fixed input/output contract of a loaded model.
type TensorInfo struct {
	InputShape   []int64
	OutputShape  []int64
	InputSide    int
	OutputSize   int
	Quantization model.QuantizationParams
}

// InputSize is the number of int8 values the model consumes.
func (t TensorInfo) InputSize() int {
	return preprocess.BufferSize(t.InputSide)
}

// Backend is a loaded model runtime. Backends are not safe for concurrent use.
type Backend interface {
	Run(input []int8) ([]int8, error)
	Info() TensorInfo
	Close() error
}

type LoadConfig struct {
	Backend     string
	ModelPath   string
	Metadata    *model.Metadata // optional for tflite, required for onnx
	LibraryPath string          // onnxruntime shared library
	InputSide   int
	Threads     int
}

type Handle struct {
	mu      sync.Mutex
	backend Backend
	info    TensorInfo
	log     logs.Log
	closed  bool
}

// Load opens the model artifact and returns a handle that owns it.
// The resolved tensor shapes are logged.
func Load(cfg LoadConfig, log logs.Log) (*Handle, error) {
	if cfg.InputSide <= 0 {
		cfg.InputSide = model.InputSize
	}
	if cfg.Metadata != nil && cfg.Metadata.ImageSize > 0 {
		cfg.InputSide = cfg.Metadata.ImageSize
	}

	var backend Backend
	var err error
	switch cfg.Backend {
	case BackendONNX, "":
		backend, err = loadONNX(cfg)
	case BackendTFLite:
		backend, err = loadTFLite(cfg)
	default:
		err = fmt.Errorf("%w: unknown backend %q", model.ErrModelLoad, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	h, err := NewHandle(backend, log)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return h, nil
}

// NewHandle takes ownership of an already loaded backend after checking its tensor contract.
func NewHandle(backend Backend, log logs.Log) (*Handle, error) {
	info := backend.Info()
	if err := checkInfo(info); err != nil {
		return nil, err
	}
	log.Infof("Model ready. Input shape: %v, Output shape: %v, Quantization: scale=%v zeroPoint=%v",
		info.InputShape, info.OutputShape, info.Quantization.Scale, info.Quantization.ZeroPoint)
	return &Handle{
		backend: backend,
		info:    info,
		log:     log,
	}, nil
}

func checkInfo(info TensorInfo) error {
	if info.InputSide <= 0 {
		return fmt.Errorf("%w: input side must be positive", model.ErrModelLoad)
	}
	if n := elements(info.InputShape); n != int64(info.InputSize()) {
		return fmt.Errorf("%w: input shape %v holds %d values, expected 3*%d*%d = %d",
			model.ErrModelLoad, info.InputShape, n, info.InputSide, info.InputSide, info.InputSize())
	}
	if info.OutputSize <= 0 {
		return fmt.Errorf("%w: output shape %v is empty", model.ErrModelLoad, info.OutputShape)
	}
	return info.Quantization.Validate()
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Run executes the model on one encoded image. Calls are serialised.
func (h *Handle) Run(input []int8) ([]int8, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: model is not loaded", model.ErrModelInvocation)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("%w: model has been closed", model.ErrModelInvocation)
	}
	if len(input) != h.info.InputSize() {
		return nil, fmt.Errorf("%w: input has %d values, model expects %d", model.ErrModelInvocation, len(input), h.info.InputSize())
	}

	out, err := h.backend.Run(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelInvocation, err)
	}
	return out, nil
}

func (h *Handle) Info() TensorInfo {
	return h.info
}

func (h *Handle) Quantization() model.QuantizationParams {
	return h.info.Quantization
}

// LabelCount is the number of scores the model produces.
func (h *Handle) LabelCount() int {
	return h.info.OutputSize
}

// Close releases the runtime. Safe to call more than once.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if err := h.backend.Close(); err != nil {
		h.log.Warnf("Error releasing model: %v", err)
	}
}

// resolveShape prefers the metadata shape, then the shape reported by the runtime.
// Dynamic dimensions (-1) become 1 since we never batch.
func resolveShape(fromMetadata, fromModel []int64) []int64 {
	src := fromModel
	if len(fromMetadata) > 0 {
		src = fromMetadata
	}
	shape := make([]int64, len(src))
	for i, d := range src {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}
