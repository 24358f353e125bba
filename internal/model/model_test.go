package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatConfidence(t *testing.T) {
	assert.Equal(t, "87.3%", FormatConfidence(0.873))
	assert.Equal(t, "100.0%", FormatConfidence(1))
	assert.Equal(t, "0.0%", FormatConfidence(0))
	assert.Equal(t, "6.2%", FormatConfidence(0.0625))
}

func TestPredictionResultDisplay(t *testing.T) {
	r := PredictionResult{Label: "Wheat_Septoria", Index: 14, Confidence: 0.5}
	assert.Equal(t, "Wheat_Septoria (50.0%)", r.Display())
}

func TestDefaultLabels(t *testing.T) {
	require.Len(t, DefaultLabels, 16)
	assert.Equal(t, "Corn_Blight", DefaultLabels[0])
	assert.Equal(t, "Wheat_Yellow_Rust", DefaultLabels[15])
}

func TestQuantizationParamsValidate(t *testing.T) {
	require.NoError(t, QuantizationParams{Scale: 1.0 / 128}.Validate())

	for _, scale := range []float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
		err := QuantizationParams{Scale: scale}.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrModelLoad))
	}

	require.NoError(t, QuantizationParams{Scale: 1, ZeroPoint: -128}.Validate())
	require.NoError(t, QuantizationParams{Scale: 1, ZeroPoint: 127}.Validate())
	for _, zp := range []int32{-129, 128, math.MinInt32, math.MaxInt32} {
		err := QuantizationParams{Scale: 1.0 / 256, ZeroPoint: zp}.Validate()
		assert.ErrorIs(t, err, ErrModelLoad, "zero point %d", zp)
	}
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_metadata.json")
	body := `{
		"input_shape": [1, 224, 224, 3],
		"output_shape": [1, 16],
		"classes": ["a", "b"],
		"image_size": 224,
		"output_quantization": {"scale": 0.00390625, "zero_point": -128}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	md, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 224, 224, 3}, md.InputShape)
	assert.Equal(t, 224, md.ImageSize)
	require.NotNil(t, md.OutputQuantization)
	assert.Equal(t, int32(-128), md.OutputQuantization.ZeroPoint)
	assert.InDelta(t, 0.00390625, md.OutputQuantization.Scale, 1e-9)
}

func TestLoadMetadataFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMetadata(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrModelLoad)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadMetadata(bad)
	assert.ErrorIs(t, err, ErrModelLoad)

	zeroScale := filepath.Join(dir, "zero.json")
	require.NoError(t, os.WriteFile(zeroScale, []byte(`{"output_quantization": {"scale": 0, "zero_point": 0}}`), 0644))
	_, err = LoadMetadata(zeroScale)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestResolveLabels(t *testing.T) {
	dir := t.TempDir()
	classFile := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(classFile, []byte("one\n\n  two  \nthree\n"), 0644))

	labels, err := ResolveLabels(classFile, &Metadata{Classes: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, labels)

	labels, err = ResolveLabels("", &Metadata{Classes: []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, labels)

	labels, err = ResolveLabels("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels, labels)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0644))
	_, err = ResolveLabels(empty, nil)
	assert.ErrorIs(t, err, ErrModelLoad)
}
