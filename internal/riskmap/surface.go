package riskmap

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GridResolution is the fixed side length of interpolated and fallback grids.
const GridResolution = 200

// fallbackNoiseMax bounds the placeholder values of a RandomFallback surface.
const fallbackNoiseMax = 0.1

// Surface is a dense probability raster. X, Y and Z share one shape: row i
// follows the Y axis, column j follows the X axis. Z never holds NaN.
type Surface struct {
	X, Y, Z *mat.Dense
	Mode    Mode

	// Degraded is set when the table had no usable spatial structure and Z
	// holds placeholder noise rather than data.
	Degraded bool
}

// Dims returns the raster shape as (rows, cols).
func (s *Surface) Dims() (int, int) {
	return s.Z.Dims()
}

// XAxis returns the X coordinate of each column.
func (s *Surface) XAxis() []float64 {
	return mat.Row(nil, 0, s.X)
}

// YAxis returns the Y coordinate of each row.
func (s *Surface) YAxis() []float64 {
	return mat.Col(nil, 0, s.Y)
}

// BuildSurface rasterizes t according to geo. src seeds the RandomFallback
// noise; nil uses the global source.
func BuildSurface(t *Table, geo Georeference, src rand.Source) (*Surface, error) {
	probs := t.Probabilities()
	for i, p := range probs {
		probs[i] = finiteOrZero(p)
	}

	switch geo.Mode {
	case Geographic:
		lats, err := t.Floats(geo.LatColumn)
		if err != nil {
			return nil, err
		}
		lons, err := t.Floats(geo.LonColumn)
		if err != nil {
			return nil, err
		}
		return geographicSurface(lons, lats, probs), nil
	case GridIndex:
		side, ok := perfectSquare(len(probs))
		if !ok {
			return nil, fmt.Errorf("grid-index mode needs a perfect-square row count, got %d", len(probs))
		}
		return gridIndexSurface(side, probs), nil
	case RandomFallback:
		return fallbackSurface(src), nil
	default:
		return nil, fmt.Errorf("unknown georeference mode %d", geo.Mode)
	}
}

func geographicSurface(lons, lats, probs []float64) *Surface {
	var xs, ys, vs []float64
	for i := range probs {
		if math.IsNaN(lons[i]) || math.IsInf(lons[i], 0) || math.IsNaN(lats[i]) || math.IsInf(lats[i], 0) {
			continue
		}
		xs = append(xs, lons[i])
		ys = append(ys, lats[i])
		vs = append(vs, probs[i])
	}

	xi := make([]float64, GridResolution)
	yi := make([]float64, GridResolution)
	if len(xs) == 0 {
		// Nothing to interpolate: an all-zero surface over the unit square.
		floats.Span(xi, 0, 1)
		floats.Span(yi, 0, 1)
		X, Y := meshgrid(xi, yi)
		return &Surface{X: X, Y: Y, Z: mat.NewDense(GridResolution, GridResolution, nil), Mode: Geographic}
	}

	floats.Span(xi, floats.Min(xs), floats.Max(xs))
	floats.Span(yi, floats.Min(ys), floats.Max(ys))
	X, Y := meshgrid(xi, yi)
	Z := interpolateLinear(xs, ys, vs, xi, yi)
	return &Surface{X: X, Y: Y, Z: Z, Mode: Geographic}
}

func gridIndexSurface(side int, probs []float64) *Surface {
	axis := make([]float64, side)
	for i := range axis {
		axis[i] = float64(i)
	}
	X, Y := meshgrid(axis, axis)
	z := make([]float64, len(probs))
	copy(z, probs)
	return &Surface{X: X, Y: Y, Z: mat.NewDense(side, side, z), Mode: GridIndex}
}

func fallbackSurface(src rand.Source) *Surface {
	xi := make([]float64, GridResolution)
	yi := make([]float64, GridResolution)
	floats.Span(xi, 0, 1)
	floats.Span(yi, 0, 1)
	X, Y := meshgrid(xi, yi)

	noise := distuv.Uniform{Min: 0, Max: fallbackNoiseMax, Src: src}
	z := make([]float64, GridResolution*GridResolution)
	for i := range z {
		z[i] = noise.Rand()
	}
	return &Surface{X: X, Y: Y, Z: mat.NewDense(GridResolution, GridResolution, z), Mode: RandomFallback, Degraded: true}
}

// meshgrid expands axis vectors into coordinate matrices of shape len(yi)×len(xi).
func meshgrid(xi, yi []float64) (*mat.Dense, *mat.Dense) {
	r, c := len(yi), len(xi)
	X := mat.NewDense(r, c, nil)
	Y := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		X.SetRow(i, xi)
		for j := 0; j < c; j++ {
			Y.Set(i, j, yi[i])
		}
	}
	return X, Y
}
