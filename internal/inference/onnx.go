package inference

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

// The onnxruntime environment is process wide and shared by every loaded onnx model.
// Replaced in tests.
var (
	ortIsInitialized = ort.IsInitialized
	ortInitialize    = func() error { return ort.InitializeEnvironment() }
	ortDestroy       = ort.DestroyEnvironment
)

var ortEnv struct {
	sync.Mutex
	refs  int
	owned bool // initialized by acquireEnvironment rather than by the embedding program
}

// acquireEnvironment initializes the runtime on first use and takes a reference to it.
func acquireEnvironment(libraryPath string) error {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	if ortEnv.refs == 0 && !ortIsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ortInitialize(); err != nil {
			return err
		}
		ortEnv.owned = true
	}
	ortEnv.refs++
	return nil
}

// releaseEnvironment drops a reference. The runtime is destroyed with the last reference,
// and only if acquireEnvironment created it.
func releaseEnvironment() error {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	if ortEnv.refs == 0 {
		return nil
	}
	ortEnv.refs--
	if ortEnv.refs > 0 || !ortEnv.owned {
		return nil
	}
	ortEnv.owned = false
	return ortDestroy()
}

type onnxBackend struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[int8]
	outputTensor *ort.Tensor[int8]
	info         TensorInfo
}

func loadONNX(cfg LoadConfig) (*onnxBackend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}
	md := cfg.Metadata
	if md == nil || md.OutputQuantization == nil {
		return nil, fmt.Errorf("%w: onnx models need output_quantization in their metadata", model.ErrModelLoad)
	}

	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %v", model.ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: failed to read model inputs/outputs: %v", model.ErrModelLoad, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: expected 1 input and 1 output, model has %d and %d", model.ErrModelLoad, len(inputs), len(outputs))
	}

	info := TensorInfo{
		InputShape:   resolveShape(md.InputShape, inputs[0].Dimensions),
		OutputShape:  resolveShape(md.OutputShape, outputs[0].Dimensions),
		InputSide:    cfg.InputSide,
		Quantization: *md.OutputQuantization,
	}
	info.OutputSize = int(elements(info.OutputShape))
	if err := checkInfo(info); err != nil {
		releaseEnvironment()
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[int8](ort.NewShape(info.InputShape...))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", model.ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[int8](ort.NewShape(info.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("%w: failed to create output tensor: %v", model.ErrModelLoad, err)
	}

	var options *ort.SessionOptions
	if cfg.Threads > 0 {
		options, err = ort.NewSessionOptions()
		if err == nil {
			defer options.Destroy()
			err = options.SetIntraOpNumThreads(cfg.Threads)
		}
		if err != nil {
			outputTensor.Destroy()
			inputTensor.Destroy()
			releaseEnvironment()
			return nil, fmt.Errorf("%w: failed to set session options: %v", model.ErrModelLoad, err)
		}
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		outputTensor.Destroy()
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", model.ErrModelLoad, err)
	}

	return &onnxBackend{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		info:         info,
	}, nil
}

func (b *onnxBackend) Run(input []int8) ([]int8, error) {
	copy(b.inputTensor.GetData(), input)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := b.outputTensor.GetData()
	out := make([]int8, len(outputData))
	copy(out, outputData)
	return out, nil
}

func (b *onnxBackend) Info() TensorInfo {
	return b.info
}

func (b *onnxBackend) Close() error {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
	return releaseEnvironment()
}
