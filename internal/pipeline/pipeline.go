// Package pipeline runs one image through preprocessing, the model, score decoding and
// classification, and converts any failure into a single fallback result.
package pipeline

import (
	"fmt"
	"image"
	"io"

	"github.com/cyclopcam/logs"

	"github.com/Brownie44l1/crop-disease-api/internal/classify"
	"github.com/Brownie44l1/crop-disease-api/internal/inference"
	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/preprocess"
	"github.com/Brownie44l1/crop-disease-api/internal/scores"
)

// Invoker is the model as seen by the pipeline. *inference.Handle implements it.
type Invoker interface {
	Run(input []int8) ([]int8, error)
	Info() inference.TensorInfo
}

// NotifyFunc is told about every failed prediction, once per failure.
type NotifyFunc func(err error)

type Pipeline struct {
	model  Invoker
	labels []string
	log    logs.Log
	notify NotifyFunc
}

// Outcome is everything one successful run produces.
type Outcome struct {
	Result        model.PredictionResult
	Probabilities []float32
	Ranking       []model.LabelScore // every label, most probable first
}

// New creates a pipeline. m may be nil when the model failed to load; every run then fails fast.
func New(m Invoker, labels []string, log logs.Log) *Pipeline {
	if h, ok := m.(*inference.Handle); ok && h == nil {
		m = nil
	}
	p := &Pipeline{
		model:  m,
		labels: labels,
		log:    log,
	}
	p.notify = func(err error) {
		p.log.Errorf("Prediction failed: %v", err)
	}
	if m != nil {
		if n := m.Info().OutputSize; n != len(labels) {
			log.Warnf("Model produces %d scores but the label table has %d entries; predictions will fail", n, len(labels))
		}
	}
	return p
}

// OnFailure replaces the default failure notification, which logs the error.
func (p *Pipeline) OnFailure(fn NotifyFunc) {
	p.notify = fn
}

// Ready reports whether a model is attached.
func (p *Pipeline) Ready() bool {
	return p.model != nil
}

func (p *Pipeline) Labels() []string {
	return p.labels
}

// Predict returns "<Label> (<Confidence%>)", or model.FailureText if any stage fails.
func (p *Pipeline) Predict(img image.Image) string {
	return display(p.Run(img))
}

// PredictReader is Predict for an encoded JPEG or PNG.
func (p *Pipeline) PredictReader(r io.Reader) string {
	return display(p.RunReader(r))
}

func display(out *Outcome, err error) string {
	if err != nil {
		return model.FailureText
	}
	return out.Result.Display()
}

// Run classifies img. On failure the returned error is a *StageError that unwraps to one of
// the model.Err* values, and no partial outcome is returned.
func (p *Pipeline) Run(img image.Image) (*Outcome, error) {
	return p.run(func() (image.Image, error) {
		return img, nil
	})
}

// RunReader decodes a JPEG or PNG as part of preprocessing and classifies it.
func (p *Pipeline) RunReader(r io.Reader) (*Outcome, error) {
	return p.run(func() (image.Image, error) {
		img, _, err := preprocess.Decode(r)
		return img, err
	})
}

// RunRGB builds the image from a row-major R,G,B array as part of preprocessing and classifies it.
func (p *Pipeline) RunRGB(width, height int, pixels []int) (*Outcome, error) {
	return p.run(func() (image.Image, error) {
		return preprocess.FromRGB(width, height, pixels)
	})
}

func (p *Pipeline) run(source func() (image.Image, error)) (out *Outcome, err error) {
	stage := Idle
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &StageError{Stage: stage, Err: fmt.Errorf("%w: panic: %v", model.ErrModelInvocation, rec)}
		}
		if err != nil && p.notify != nil {
			p.notify(err)
		}
	}()
	fail := func(cause error) error {
		return &StageError{Stage: stage, Err: cause}
	}

	if p.model == nil {
		stage = Invoking
		return nil, fail(fmt.Errorf("%w: model is not loaded", model.ErrModelInvocation))
	}
	info := p.model.Info()

	stage = Preprocessing
	img, err := source()
	if err != nil {
		return nil, fail(err)
	}
	input, err := preprocess.Encode(img, info.InputSide)
	if err != nil {
		return nil, fail(err)
	}

	stage = Invoking
	raw, err := p.model.Run(input)
	if err != nil {
		return nil, fail(err)
	}

	stage = Decoding
	if len(raw) != info.OutputSize {
		return nil, fail(fmt.Errorf("%w: model returned %d scores, expected %d", model.ErrShapeMismatch, len(raw), info.OutputSize))
	}
	if n := scores.OutOfRange(raw, info.Quantization); n > 0 {
		p.log.Debugf("%d of %d dequantized scores fell outside [0,1] and were clipped", n, len(raw))
	}
	probs := scores.Decode(raw, info.Quantization)

	stage = Classifying
	result, err := classify.Classify(probs, p.labels)
	if err != nil {
		return nil, fail(err)
	}
	ranking, err := classify.Rank(probs, p.labels, 0)
	if err != nil {
		return nil, fail(err)
	}

	stage = Done
	p.log.Debugf("Predicted %v", result.Display())
	return &Outcome{
		Result:        result,
		Probabilities: probs,
		Ranking:       ranking,
	}, nil
}

// Response converts the outcome into the JSON body served to clients, keeping the top k
// labels (all of them when k <= 0).
func (o *Outcome) Response(k int) model.PredictionResponse {
	predictions := make(map[string]float32, len(o.Ranking))
	for _, s := range o.Ranking {
		predictions[s.Label] = s.Score
	}
	top := o.Ranking
	if k > 0 && k < len(top) {
		top = top[:k]
	}
	return model.PredictionResponse{
		Class:       o.Result.Label,
		Confidence:  o.Result.Confidence,
		Display:     o.Result.Display(),
		Predictions: predictions,
		Top:         top,
	}
}
