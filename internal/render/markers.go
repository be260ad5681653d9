// Package render draws a riskmap.View as an interactive ECharts page or a
// static PNG. Both renderers share one marker placement.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// Placement says where top-N markers get their position from.
type Placement int

const (
	// PlaceGeographic positions markers at their lon/lat.
	PlaceGeographic Placement = iota
	// PlaceXY positions markers at their x/y columns.
	PlaceXY
	// PlaceOrdinal has no spatial position: marker k sits at diagonal cell k.
	PlaceOrdinal
)

func (p Placement) String() string {
	switch p {
	case PlaceGeographic:
		return "geographic"
	case PlaceXY:
		return "xy"
	default:
		return "ordinal"
	}
}

// Marker is one top-N row placed on the surface.
type Marker struct {
	Rank        int
	Probability float64

	// X and Y are data coordinates; Col and Row the nearest surface cell.
	X, Y     float64
	Col, Row int
}

// Label is the text drawn next to the marker.
func (m Marker) Label() string {
	return fmt.Sprintf("%.2f", m.Probability)
}

// PlaceMarkers positions every top-N row of v. Rows whose coordinates do not
// parse are left out.
func PlaceMarkers(v *riskmap.View) ([]Marker, Placement) {
	xs, ys := v.Surface.XAxis(), v.Surface.YAxis()
	top := v.Top

	placement := PlaceOrdinal
	var xcol, ycol string
	switch {
	case v.Dataset.Georef.Mode == riskmap.Geographic:
		placement = PlaceGeographic
		xcol, ycol = v.Dataset.Georef.LonColumn, v.Dataset.Georef.LatColumn
	case hasColumns(top.Columns, "x", "y"):
		placement = PlaceXY
		xcol, ycol = "x", "y"
	}

	markers := make([]Marker, 0, top.Len())
	for k, r := range top.Rows {
		m := Marker{Rank: k + 1, Probability: r.Probability}
		if placement == PlaceOrdinal {
			m.Col, m.Row = min(k, len(xs)-1), min(k, len(ys)-1)
			m.X, m.Y = xs[m.Col], ys[m.Row]
		} else {
			x, errX := strconv.ParseFloat(strings.TrimSpace(top.Value(r, xcol)), 64)
			y, errY := strconv.ParseFloat(strings.TrimSpace(top.Value(r, ycol)), 64)
			if errX != nil || errY != nil || !finite(x) || !finite(y) {
				continue
			}
			m.X, m.Y = x, y
			m.Col, m.Row = nearestIndex(xs, x), nearestIndex(ys, y)
		}
		markers = append(markers, m)
	}
	return markers, placement
}

// nearestIndex maps v onto an evenly spaced axis, clamped to its ends.
func nearestIndex(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 {
		return 0
	}
	step := (axis[n-1] - axis[0]) / float64(n-1)
	if step == 0 {
		return 0
	}
	i := int(math.Round((v - axis[0]) / step))
	return max(0, min(i, n-1))
}

func hasColumns(columns []string, names ...string) bool {
	for _, n := range names {
		found := false
		for _, c := range columns {
			if c == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
