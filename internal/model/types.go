package model

import (
	"fmt"
	"math"
)

// InputSize is the side length of the square image the classifier consumes.
const InputSize = 224

// FailureText is returned to callers in place of a prediction when any stage fails.
const FailureText = "Prediction failed"

type Metadata struct {
	InputShape         []int64             `json:"input_shape"`
	OutputShape        []int64             `json:"output_shape"`
	Classes            []string            `json:"classes"`
	ImageSize          int                 `json:"image_size"`
	OutputQuantization *QuantizationParams `json:"output_quantization,omitempty"`
}

// QuantizationParams maps the int8 output tensor back to real scores.
type QuantizationParams struct {
	Scale     float32 `json:"scale"`
	ZeroPoint int32   `json:"zero_point"`
}

func (q QuantizationParams) Validate() error {
	s := float64(q.Scale)
	if math.IsNaN(s) || math.IsInf(s, 0) || q.Scale <= 0 {
		return fmt.Errorf("%w: quantization scale must be positive, got %v", ErrModelLoad, q.Scale)
	}
	if q.ZeroPoint < math.MinInt8 || q.ZeroPoint > math.MaxInt8 {
		return fmt.Errorf("%w: int8 zero point must be in [%d,%d], got %d", ErrModelLoad, math.MinInt8, math.MaxInt8, q.ZeroPoint)
	}
	return nil
}

// PredictionResult is the winning class for one image.
type PredictionResult struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float32 `json:"confidence"`
}

// Display renders the result the way it is shown to users, eg "Corn_Blight (87.3%)".
func (r PredictionResult) Display() string {
	return fmt.Sprintf("%s (%s)", r.Label, FormatConfidence(r.Confidence))
}

// FormatConfidence renders a probability as a percentage with one decimal place.
func FormatConfidence(p float32) string {
	return fmt.Sprintf("%.1f%%", float64(p)*100)
}

type LabelScore struct {
	Label string  `json:"label"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type PredictionRequest struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Pixels []int `json:"pixels"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Display     string             `json:"display"`
	Predictions map[string]float32 `json:"predictions"`
	Top         []LabelScore       `json:"top,omitempty"`
}
