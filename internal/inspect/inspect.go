// Package inspect describes one selected top-N row and loads the photo or
// thumbnail the row may reference.
package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// ImageColumns are checked in order; the first one present names the image.
var ImageColumns = []string{"thumbnail", "image", "thumb", "photo", "url"}

// Details is the inspector panel for one selected row.
type Details struct {
	Index       int     `json:"index"`
	Count       int     `json:"count"`
	Source      int     `json:"source_row"`
	Probability float64 `json:"probability"`

	// Position is a human readable location line, empty when the table has none.
	Position string `json:"position,omitempty"`

	ImageColumn string `json:"image_column,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`

	Fields map[string]string `json:"fields"`
}

// ImageColumn returns the first of ImageColumns present in columns, or "".
func ImageColumn(columns []string) string {
	for _, name := range ImageColumns {
		for _, c := range columns {
			if c == name {
				return c
			}
		}
	}
	return ""
}

// Describe builds the inspector panel for the selected row of v. ok is false
// when the selection is empty.
func Describe(v *riskmap.View) (Details, bool) {
	if !v.HasSelection {
		return Details{}, false
	}
	tr := v.Top
	row := v.Selected

	d := Details{
		Index:       v.SelectedIndex,
		Count:       tr.Len(),
		Source:      row.Source,
		Probability: row.Probability,
		Fields:      make(map[string]string, len(tr.Columns)),
	}
	for _, c := range tr.Columns {
		d.Fields[c] = tr.Value(row, c)
	}

	geo := v.Dataset.Georef
	switch {
	case geo.Mode == riskmap.Geographic:
		d.Position = fmt.Sprintf("Lat / Lon: %s / %s",
			formatCoord(tr.Value(row, geo.LatColumn)), formatCoord(tr.Value(row, geo.LonColumn)))
	case hasColumn(tr.Columns, "x") && hasColumn(tr.Columns, "y"):
		d.Position = fmt.Sprintf("Grid x / y: %s / %s", tr.Value(row, "x"), tr.Value(row, "y"))
	}

	if col := ImageColumn(tr.Columns); col != "" {
		d.ImageColumn = col
		d.ImageRef = strings.TrimSpace(tr.Value(row, col))
	}
	return d, true
}

// ProbabilityText formats the probability the way the panel shows it.
func (d Details) ProbabilityText() string {
	return strconv.FormatFloat(d.Probability, 'f', 4, 64)
}

func formatCoord(s string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
