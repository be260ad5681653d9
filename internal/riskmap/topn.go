package riskmap

import (
	"cmp"
	"math"
	"slices"
)

// Top-N bounds.
const (
	DefaultTopN = 20
	MinTopN     = 1
	MaxTopN     = 200

	// PreviewRows caps the side-panel table.
	PreviewRows = 30
)

// previewColumns are shown next to probability in the side-panel table when present.
var previewColumns = []string{"lat", "lon", "latitude", "longitude", "x", "y"}

// Row is one input row carried into a top-N selection.
type Row struct {
	// Source is the 0-based position of the row in the input table.
	Source      int
	Probability float64
	Cells       []string
}

// TopRows is the input table sorted by probability descending and truncated.
// Rows[0] is position 0, the highest probability.
type TopRows struct {
	Columns []string
	Rows    []Row
}

// ClampTopN bounds n to [MinTopN, MaxTopN].
func ClampTopN(n int) int {
	return max(MinTopN, min(n, MaxTopN))
}

// TopN returns the n most probable rows. The sort is stable, so rows with
// equal probability keep their input order; unparsable probabilities sort last.
// Asking for more rows than exist returns them all.
func TopN(t *Table, n int) *TopRows {
	n = ClampTopN(n)
	probs := t.Probabilities()

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		pa, pb := probs[a], probs[b]
		switch na, nb := math.IsNaN(pa), math.IsNaN(pb); {
		case na && nb:
			return 0
		case na:
			return 1
		case nb:
			return -1
		}
		return cmp.Compare(pb, pa)
	})

	if n > len(order) {
		n = len(order)
	}
	rows := make([]Row, n)
	for pos, src := range order[:n] {
		rows[pos] = Row{Source: src, Probability: probs[src], Cells: t.Rows[src]}
	}
	return &TopRows{Columns: t.Columns, Rows: rows}
}

// Len returns the number of selected rows.
func (tr *TopRows) Len() int {
	return len(tr.Rows)
}

// Select returns the row at a 1-based inspector index, clamped to the
// selection. It reports false only when the selection is empty.
func (tr *TopRows) Select(index int) (Row, int, bool) {
	if len(tr.Rows) == 0 {
		return Row{}, 0, false
	}
	index = max(1, min(index, len(tr.Rows)))
	return tr.Rows[index-1], index, true
}

// Value returns the named cell of r, or "" when absent.
func (tr *TopRows) Value(r Row, column string) string {
	for i, c := range tr.Columns {
		if c == column && i < len(r.Cells) {
			return r.Cells[i]
		}
	}
	return ""
}

// PreviewColumns lists probability followed by any coordinate columns present.
func (tr *TopRows) PreviewColumns() []string {
	cols := []string{ProbabilityColumn}
	for _, c := range previewColumns {
		if slices.Contains(tr.Columns, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Preview projects the first PreviewRows rows onto PreviewColumns.
func (tr *TopRows) Preview() [][]string {
	cols := tr.PreviewColumns()
	n := min(len(tr.Rows), PreviewRows)
	out := make([][]string, n)
	for i, r := range tr.Rows[:n] {
		line := make([]string, len(cols))
		for k, c := range cols {
			line[k] = tr.Value(r, c)
		}
		out[i] = line
	}
	return out
}
