package classify

import (
	"fmt"
	"sort"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

// ArgMax returns the index of the largest value. The first occurrence wins on ties.
// Returns -1 for an empty slice.
func ArgMax(p []float32) int {
	if len(p) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// Classify picks the most probable label.
func Classify(p []float32, labels []string) (model.PredictionResult, error) {
	if err := checkCounts(p, labels); err != nil {
		return model.PredictionResult{}, err
	}
	idx := ArgMax(p)
	return model.PredictionResult{
		Label:      labels[idx],
		Index:      idx,
		Confidence: p[idx],
	}, nil
}

// Rank returns the k most probable labels, highest first. Equal scores keep label order.
// k <= 0 or k > len(p) ranks every label.
func Rank(p []float32, labels []string, k int) ([]model.LabelScore, error) {
	if err := checkCounts(p, labels); err != nil {
		return nil, err
	}
	ranked := make([]model.LabelScore, len(p))
	for i, v := range p {
		ranked[i] = model.LabelScore{Label: labels[i], Index: i, Score: v}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func checkCounts(p []float32, labels []string) error {
	if len(p) != len(labels) {
		return fmt.Errorf("%w: %d scores for %d labels", model.ErrLabelCountMismatch, len(p), len(labels))
	}
	if len(p) == 0 {
		return fmt.Errorf("%w: no labels", model.ErrLabelCountMismatch)
	}
	return nil
}
