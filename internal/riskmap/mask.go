package riskmap

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the alert cutoff used when none is supplied.
const DefaultThreshold = 0.6

// ClampThreshold bounds a cutoff to [0, 1]. NaN falls back to the default.
func ClampThreshold(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultThreshold
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ThresholdMask returns a matrix shaped like z holding 1 where z >= threshold
// and 0 elsewhere.
func ThresholdMask(z *mat.Dense, threshold float64) *mat.Dense {
	r, c := z.Dims()
	mask := mat.NewDense(r, c, nil)
	mask.Apply(func(_, _ int, v float64) float64 {
		if v >= threshold {
			return 1
		}
		return 0
	}, z)
	return mask
}

// CountAbove returns how many mask cells are set.
func CountAbove(mask *mat.Dense) int {
	return int(mat.Sum(mask))
}
