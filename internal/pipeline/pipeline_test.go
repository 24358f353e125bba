package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/crop-disease-api/internal/inference"
	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

type fakeModel struct {
	info   inference.TensorInfo
	out    []int8
	err    error
	panic  bool
	inputs [][]int8
}

func newFakeModel(classes int) *fakeModel {
	return &fakeModel{
		info: inference.TensorInfo{
			InputShape:   []int64{1, model.InputSize, model.InputSize, 3},
			OutputShape:  []int64{1, int64(classes)},
			InputSide:    model.InputSize,
			OutputSize:   classes,
			Quantization: model.QuantizationParams{Scale: 1.0 / 128, ZeroPoint: 0},
		},
		out: make([]int8, classes),
	}
}

func (f *fakeModel) Run(input []int8) ([]int8, error) {
	if f.panic {
		panic("native crash")
	}
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]int8, len(f.out))
	copy(out, f.out)
	return out, nil
}

func (f *fakeModel) Info() inference.TensorInfo { return f.info }

func leaf(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: 160, B: uint8(y), A: 255})
		}
	}
	return img
}

func newPipeline(t *testing.T, m Invoker, labels []string) (*Pipeline, *[]error) {
	p := New(m, labels, logs.NewTestingLog(t))
	var failures []error
	p.OnFailure(func(err error) { failures = append(failures, err) })
	return p, &failures
}

func TestPredictAllZeroScores(t *testing.T) {
	fm := newFakeModel(16)
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.Run(leaf(50, 40))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result.Index)
	assert.Equal(t, "Corn_Blight", out.Result.Label)
	assert.InDelta(t, 1.0/16, out.Result.Confidence, 1e-6)
	for _, v := range out.Probabilities {
		assert.InDelta(t, 1.0/16, v, 1e-6)
	}
	assert.Equal(t, "Corn_Blight (6.2%)", p.Predict(leaf(50, 40)))
	assert.Empty(t, *failures)

	require.Len(t, fm.inputs, 2)
	assert.Len(t, fm.inputs[0], 3*model.InputSize*model.InputSize)
}

func TestPredictPicksHighestScore(t *testing.T) {
	fm := newFakeModel(16)
	fm.out[13] = 127 // Wheat_Healthy, dequantizes to ~0.99
	fm.out[2] = 64
	p, _ := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.Run(leaf(10, 10))
	require.NoError(t, err)
	assert.Equal(t, "Wheat_Healthy", out.Result.Label)
	assert.Equal(t, 13, out.Ranking[0].Index)
	assert.Equal(t, 2, out.Ranking[1].Index)
	assert.Equal(t, out.Result.Display(), p.Predict(leaf(10, 10)))
}

func TestPredictIdempotent(t *testing.T) {
	fm := newFakeModel(16)
	fm.out[5] = 90
	fm.out[7] = 90
	p, _ := newPipeline(t, fm, model.DefaultLabels)

	img := leaf(300, 200)
	first := p.Predict(img)
	second := p.Predict(img)
	assert.Equal(t, first, second)
	assert.Len(t, fm.inputs[0], len(fm.inputs[1]))
	assert.Contains(t, first, "Rice_Blast")
}

func TestPredictOnePixelImage(t *testing.T) {
	p, _ := newPipeline(t, newFakeModel(16), model.DefaultLabels)
	assert.NotEqual(t, model.FailureText, p.Predict(leaf(1, 1)))
}

func TestPredictInvalidImage(t *testing.T) {
	fm := newFakeModel(16)
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.Run(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, model.ErrInvalidImage)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Preprocessing, se.Stage)
	assert.Empty(t, fm.inputs)
	assert.Len(t, *failures, 1)

	assert.Equal(t, model.FailureText, p.Predict(nil))
	assert.Len(t, *failures, 2)
}

func TestRunReader(t *testing.T) {
	fm := newFakeModel(16)
	fm.out[4] = 90
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, leaf(20, 12)))
	out, err := p.RunReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLabels[4], out.Result.Label)
	require.Len(t, fm.inputs, 1)

	want, err := p.Run(leaf(20, 12))
	require.NoError(t, err)
	assert.Len(t, fm.inputs[0], len(fm.inputs[1]))
	assert.Equal(t, want.Result, out.Result)
	assert.Empty(t, *failures)
}

func TestRunReaderUndecodable(t *testing.T) {
	fm := newFakeModel(16)
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	_, err := p.RunReader(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, model.ErrInvalidImage)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Preprocessing, se.Stage)
	assert.Empty(t, fm.inputs)
	assert.Len(t, *failures, 1)

	assert.Equal(t, model.FailureText, p.PredictReader(strings.NewReader("")))
	assert.Len(t, *failures, 2)
}

func TestRunRGB(t *testing.T) {
	fm := newFakeModel(16)
	fm.out[2] = 50
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.RunRGB(2, 1, []int{10, 20, 30, 40, 50, 60})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLabels[2], out.Result.Label)
	assert.Empty(t, *failures)

	_, err = p.RunRGB(1<<32, 1<<32, nil)
	assert.ErrorIs(t, err, model.ErrInvalidImage)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Preprocessing, se.Stage)
	assert.Len(t, fm.inputs, 1)
	assert.Len(t, *failures, 1)
}

func TestPredictLabelCountMismatch(t *testing.T) {
	fm := newFakeModel(15)
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.Run(leaf(8, 8))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, model.ErrLabelCountMismatch)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Classifying, se.Stage)
	assert.Len(t, *failures, 1)
	assert.Equal(t, model.FailureText, p.Predict(leaf(8, 8)))
}

func TestPredictShapeMismatch(t *testing.T) {
	fm := newFakeModel(16)
	fm.out = make([]int8, 15)
	p, _ := newPipeline(t, fm, model.DefaultLabels)

	_, err := p.Run(leaf(8, 8))
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Decoding, se.Stage)
}

func TestPredictInvocationError(t *testing.T) {
	fm := newFakeModel(16)
	fm.err = errors.New("tensor shapes mismatch")
	p, _ := newPipeline(t, fm, model.DefaultLabels)

	_, err := p.Run(leaf(8, 8))
	assert.ErrorContains(t, err, "tensor shapes mismatch")
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Invoking, se.Stage)
}

func TestPredictRecoversPanic(t *testing.T) {
	fm := newFakeModel(16)
	fm.panic = true
	p, failures := newPipeline(t, fm, model.DefaultLabels)

	assert.Equal(t, model.FailureText, p.Predict(leaf(8, 8)))
	require.Len(t, *failures, 1)
	assert.ErrorIs(t, (*failures)[0], model.ErrModelInvocation)
}

func TestPredictWithoutModel(t *testing.T) {
	var h *inference.Handle
	p, failures := newPipeline(t, h, model.DefaultLabels)
	assert.False(t, p.Ready())

	_, err := p.Run(leaf(8, 8))
	assert.ErrorIs(t, err, model.ErrModelInvocation)
	assert.Equal(t, model.FailureText, p.Predict(leaf(8, 8)))
	assert.Len(t, *failures, 2)

	p2, _ := newPipeline(t, nil, model.DefaultLabels)
	assert.False(t, p2.Ready())
	assert.Equal(t, model.FailureText, p2.Predict(leaf(8, 8)))
}

func TestOutcomeResponse(t *testing.T) {
	fm := newFakeModel(16)
	fm.out[3] = 100
	p, _ := newPipeline(t, fm, model.DefaultLabels)

	out, err := p.Run(leaf(8, 8))
	require.NoError(t, err)

	resp := out.Response(3)
	assert.Equal(t, "Corn_Healthy", resp.Class)
	assert.Len(t, resp.Top, 3)
	assert.Len(t, resp.Predictions, 16)
	assert.Equal(t, out.Result.Display(), resp.Display)

	assert.Len(t, out.Response(0).Top, 16)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "preprocessing", Preprocessing.String())
	assert.Equal(t, "failed", Failed.String())
	err := &StageError{Stage: Decoding, Err: model.ErrShapeMismatch}
	assert.Equal(t, "decoding: output shape mismatch", err.Error())
}
