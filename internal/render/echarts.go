package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// Series names, also used as legend entries.
const (
	SeriesProbability = "probability"
	SeriesMask        = "risk mask"
	SeriesTopN        = "top-N"
	SeriesOrdinal     = "ordinal (no spatial position)"
)

// ChartHeight is the height of the interactive chart.
const ChartHeight = "720px"

// DegradedNotice is shown whenever the surface is placeholder noise.
const DegradedNotice = "no usable spatial structure: showing placeholder noise, not data"

// ChartOptions tune the interactive page.
type ChartOptions struct {
	// AssetsHost serves echarts.min.js. Empty uses the go-echarts CDN.
	AssetsHost string
	Width      string
}

// NewHeatMap builds the interactive chart for v: the probability heatmap,
// the threshold overlay and the top-N markers.
func NewHeatMap(v *riskmap.View, o ChartOptions) *charts.HeatMap {
	s := v.Surface
	rows, cols := s.Dims()
	xs, ys := s.XAxis(), s.YAxis()

	width := o.Width
	if width == "" {
		width = "100%"
	}

	subtitle := fmt.Sprintf("mode=%s threshold=%.2f cells>=threshold=%d top=%d",
		s.Mode, v.Threshold, riskmap.CountAbove(v.Mask), v.Top.Len())
	if s.Degraded {
		subtitle = DegradedNotice + "\n" + subtitle
	}

	xName, yName := "x", "y"
	if s.Mode == riskmap.Geographic {
		xName, yName = "lon", "lat"
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Rockfall Risk Map", Width: width, Height: ChartHeight, AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Rockfall Probability (interactive)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: xName, Data: axisLabels(xs, s.Mode)}),
		// Row 0 is drawn at the top.
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: yName, Data: axisLabels(ys, s.Mode), Inverse: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			Right:      "0",
			Top:        "middle",
			Text:       []string{"1", "0"},
			InRange:    &opts.VisualMapInRange{Color: cividisStops},
		}),
	)
	// The visual map colors the probability series only; the overlay and
	// markers keep their own item colors.
	hm.AddJSFuncs("%MY_ECHARTS%.setOption({visualMap: [{seriesIndex: 0}]});")

	cells := make([]opts.HeatMapData, 0, rows*cols)
	var masked []opts.HeatMapData
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			z := s.Z.At(i, j)
			cells = append(cells, opts.HeatMapData{Value: [3]interface{}{j, i, math.Round(z*1e4) / 1e4}})
			if v.Mask.At(i, j) == 1 {
				masked = append(masked, opts.HeatMapData{Value: [3]interface{}{j, i, 1}})
			}
		}
	}
	hm.AddSeries(SeriesProbability, cells)
	hm.AddSeries(SeriesMask, masked,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: maskColorCSS}),
	)

	markers, placement := PlaceMarkers(v)
	points := make([]opts.ScatterData, len(markers))
	for k, m := range markers {
		points[k] = opts.ScatterData{Name: m.Label(), Value: []interface{}{m.Col, m.Row, m.Probability}}
	}

	name, symbol, fill := SeriesTopN, "circle", "#ffffff"
	if placement == PlaceOrdinal {
		name, symbol, fill = SeriesOrdinal, "diamond", ordinalColorCSS
	}
	scatter := charts.NewScatter()
	scatter.AddSeries(name, points,
		charts.WithScatterChartOpts(opts.ScatterChart{Symbol: symbol, SymbolSize: 9}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: fill, BorderColor: "#000000", BorderWidth: 1}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top", Formatter: "{b}"}),
	)
	hm.Overlap(scatter)

	return hm
}

// WriteChart renders the interactive page for v to w.
func WriteChart(w io.Writer, v *riskmap.View, o ChartOptions) error {
	if err := NewHeatMap(v, o).Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func axisLabels(vals []float64, mode riskmap.Mode) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if mode == riskmap.GridIndex {
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		} else {
			out[i] = strconv.FormatFloat(v, 'f', 5, 64)
		}
	}
	return out
}
