package riskmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tbl := mustParse(t, "probability\n0.1\n0.2\n0.3\n0.4\n0.5\n0.6\n0.7\n0.8\n0.9\n1.0\nn/a\n")
	s := Summarize(tbl, 0.6)

	assert.Equal(t, 11, s.Rows)
	assert.Equal(t, 10, s.Finite)
	assert.InDelta(t, 0.1, s.Min, 1e-12)
	assert.InDelta(t, 1.0, s.Max, 1e-12)
	assert.InDelta(t, 0.55, s.Mean, 1e-12)
	assert.Greater(t, s.StdDev, 0.0)
	assert.InDelta(t, 0.9, s.P90, 1e-12)
	assert.Equal(t, 5, s.AtRisk)
}

func TestSummarize_Degenerate(t *testing.T) {
	empty := Summarize(mustParse(t, "probability\n"), 0.6)
	assert.Equal(t, Summary{Cutoff: 0.6}, empty)

	one := Summarize(mustParse(t, "probability\n0.7\n"), 0.6)
	assert.Equal(t, 0.0, one.StdDev)
	assert.Equal(t, 1, one.AtRisk)
}
