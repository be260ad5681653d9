package riskmap

import (
	"math"
	"strings"
)

// Mode selects how the grid constructor rasterizes a table.
type Mode int

const (
	// Geographic interpolates scattered lon/lat samples onto a regular grid.
	Geographic Mode = iota
	// GridIndex reshapes a perfect-square row count into a raster, row-major.
	GridIndex
	// RandomFallback means the table has no usable spatial structure.
	RandomFallback
)

func (m Mode) String() string {
	switch m {
	case Geographic:
		return "geographic"
	case GridIndex:
		return "grid-index"
	case RandomFallback:
		return "random-fallback"
	default:
		return "unknown"
	}
}

// Georeference is the result of schema detection for one loaded table.
type Georeference struct {
	Mode      Mode   `json:"-"`
	LatColumn string `json:"lat_column,omitempty"`
	LonColumn string `json:"lon_column,omitempty"`
}

var (
	latNames = []string{"lat", "latitude"}
	lonNames = []string{"lon", "longitude"}
)

// DetectGeoreference picks the first latitude and longitude columns (case-insensitive)
// and derives the rasterization mode. A missing georeference is not an error.
func DetectGeoreference(columns []string, rows int) Georeference {
	lat := firstMatch(columns, latNames)
	lon := firstMatch(columns, lonNames)
	if lat != "" && lon != "" {
		return Georeference{Mode: Geographic, LatColumn: lat, LonColumn: lon}
	}
	if _, ok := perfectSquare(rows); ok {
		return Georeference{Mode: GridIndex}
	}
	return Georeference{Mode: RandomFallback}
}

func firstMatch(columns, names []string) string {
	for _, c := range columns {
		lc := strings.ToLower(c)
		for _, n := range names {
			if lc == n {
				return c
			}
		}
	}
	return ""
}

// perfectSquare returns the side length when n is a positive perfect square.
// An empty table is not treated as a 0x0 raster.
func perfectSquare(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	side := int(math.Round(math.Sqrt(float64(n))))
	return side, side*side == n
}
