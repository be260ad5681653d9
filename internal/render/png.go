package render

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// Static image size.
const (
	PNGWidth  = 10 * vg.Inch
	PNGHeight = 7.5 * vg.Inch
)

// grid adapts a surface matrix to plotter.GridXYZ. plotter indexes cells as
// (column, row); mat indexes them as (row, column).
type grid struct {
	z      *mat.Dense
	xs, ys []float64
}

func (g grid) Dims() (c, r int) {
	r, c = g.z.Dims()
	return c, r
}

func (g grid) Z(c, r int) float64 { return g.z.At(r, c) }
func (g grid) X(c int) float64    { return g.xs[c] }
func (g grid) Y(r int) float64    { return g.ys[r] }

// NewPlot builds the static counterpart of NewHeatMap.
func NewPlot(v *riskmap.View) (*plot.Plot, error) {
	s := v.Surface
	xs, ys := spreadAxis(s.XAxis()), spreadAxis(s.YAxis())

	p := plot.New()
	p.Title.Text = "Rockfall Probability"
	if s.Degraded {
		p.Title.Text += " (" + DegradedNotice + ")"
	}
	p.X.Label.Text, p.Y.Label.Text = "x", "y"
	if s.Mode == riskmap.Geographic {
		p.X.Label.Text, p.Y.Label.Text = "lon", "lat"
	}
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	pal := Cividis(256)
	heat := plotter.NewHeatMap(grid{z: s.Z, xs: xs, ys: ys}, pal)
	heat.Min, heat.Max = 0, 1
	colors := pal.Colors()
	heat.Underflow, heat.Overflow = colors[0], colors[len(colors)-1]
	p.Add(heat)

	// Unmasked cells fall below Min and, with no Underflow color, are not drawn.
	overlay := plotter.NewHeatMap(grid{z: v.Mask, xs: xs, ys: ys}, maskPalette{})
	overlay.Min, overlay.Max = 0.5, 1
	p.Add(overlay)

	markers, placement := PlaceMarkers(v)
	if len(markers) > 0 {
		xys := make(plotter.XYs, len(markers))
		labels := make([]string, len(markers))
		for k, m := range markers {
			xys[k].X, xys[k].Y = m.X, m.Y
			labels[k] = m.Label()
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("failed to build marker series: %w", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: markerFill, Radius: vg.Points(4), Shape: outlinedGlyph{fill: draw.CircleGlyph{}}}
		name := SeriesTopN
		if placement == PlaceOrdinal {
			sc.GlyphStyle.Color = ordinalFill
			sc.GlyphStyle.Shape = outlinedGlyph{fill: draw.PyramidGlyph{}}
			name = SeriesOrdinal
		}
		p.Add(sc)
		p.Legend.Add(name, sc)

		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return nil, fmt.Errorf("failed to build marker labels: %w", err)
		}
		lbl.Offset = vg.Point{X: -vg.Points(6), Y: vg.Points(6)}
		p.Add(lbl)
	}
	return p, nil
}

// WritePNG renders the static chart for v to w.
func WritePNG(w io.Writer, v *riskmap.View) error {
	p, err := NewPlot(v)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PNGWidth, PNGHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// spreadAxis widens a collapsed axis (every sample on one coordinate) to a
// unit span centred on it, so heatmap cells keep a drawable width.
func spreadAxis(axis []float64) []float64 {
	n := len(axis)
	if n < 2 || axis[0] != axis[n-1] {
		return axis
	}
	out := make([]float64, n)
	floats.Span(out, axis[0]-0.5, axis[0]+0.5)
	return out
}

// outlinedGlyph draws a filled glyph with a thin dark outline.
type outlinedGlyph struct {
	fill draw.GlyphDrawer
}

func (g outlinedGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	g.fill.DrawGlyph(c, sty, pt)
	outline := sty
	outline.Color = markerStroke
	switch g.fill.(type) {
	case draw.PyramidGlyph:
		draw.TriangleGlyph{}.DrawGlyph(c, outline, pt)
	default:
		draw.RingGlyph{}.DrawGlyph(c, outline, pt)
	}
}

var _ draw.GlyphDrawer = outlinedGlyph{}
