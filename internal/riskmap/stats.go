package riskmap

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the probability column of a table.
type Summary struct {
	Rows   int     `json:"rows"`
	Finite int     `json:"finite"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P90    float64 `json:"p90"`
	AtRisk int     `json:"at_risk"`
	Cutoff float64 `json:"cutoff"`
}

// Summarize computes statistics over the finite probabilities of t and
// counts rows at or above cutoff.
func Summarize(t *Table, cutoff float64) Summary {
	probs := t.Probabilities()
	finite := make([]float64, 0, len(probs))
	for _, p := range probs {
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			finite = append(finite, p)
		}
	}

	s := Summary{Rows: len(probs), Finite: len(finite), Cutoff: cutoff}
	if len(finite) == 0 {
		return s
	}

	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
	if len(finite) < 2 {
		s.StdDev = 0
	}
	sorted := slices.Clone(finite)
	slices.Sort(sorted)
	s.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	for _, p := range finite {
		if p >= cutoff {
			s.AtRisk++
		}
	}
	return s
}
