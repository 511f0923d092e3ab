package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type Performance struct {
	Return     float64
	Variance   float64
	Volatility float64
}

// Evaluate computes the expected return m·w and variance w·C·w of a weight
// vector. Negative variance can only come from rounding and is clamped to
// zero before the volatility is taken.
func Evaluate(weights, mean []float64, cov mat.Symmetric) Performance {
	if len(weights) == 0 {
		return Performance{}
	}

	var ret float64
	for i, w := range weights {
		ret += w * mean[i]
	}

	w := mat.NewVecDense(len(weights), weights)
	variance := math.Max(mat.Inner(w, cov, w), 0)

	return Performance{
		Return:     ret,
		Variance:   variance,
		Volatility: math.Sqrt(variance),
	}
}
