// Package scores converts the int8 output tensor of a quantized classifier into probabilities.
package scores

import (
	"github.com/chewxy/math32"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

// Decode dequantizes raw, clamps every score into [0,1] and normalises with softmax.
func Decode(raw []int8, q model.QuantizationParams) []float32 {
	return Softmax(Clamp(Dequantize(raw, q)))
}

// Dequantize reconstructs real scores as (raw - zeroPoint) * scale.
func Dequantize(raw []int8, q model.QuantizationParams) []float32 {
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(int64(v)-int64(q.ZeroPoint)) * q.Scale
	}
	return out
}

// Clamp clips every value into [0,1] in place and returns v. NaN becomes 0.
func Clamp(v []float32) []float32 {
	for i, x := range v {
		switch {
		case math32.IsNaN(x) || x < 0:
			v[i] = 0
		case x > 1:
			v[i] = 1
		}
	}
	return v
}

// Softmax returns exp(v_i - max) / sum_j exp(v_j - max).
func Softmax(v []float32) []float32 {
	out := make([]float32, len(v))
	if len(v) == 0 {
		return out
	}

	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}

	var sum float32
	for i, x := range v {
		out[i] = math32.Exp(x - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// OutOfRange counts dequantized scores that fall outside [0,1] and would be clipped by Clamp.
func OutOfRange(raw []int8, q model.QuantizationParams) int {
	n := 0
	for _, x := range Dequantize(raw, q) {
		if x < 0 || x > 1 || math32.IsNaN(x) {
			n++
		}
	}
	return n
}
