package api

import (
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/inspect"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/render"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
	"github.com/banshee-data/rockfall.report/internal/version"
)

//go:embed dashboard.html
var DashboardHTML embed.FS

var pageFuncs = template.FuncMap{
	"fixed": func(v float64, prec int) string {
		return strconv.FormatFloat(v, 'f', prec, 64)
	},
}

type inspectorPanel struct {
	Details     inspect.Details
	Probability string
	ImageData   template.URL
	ImageError  string
}

type dashboardPage struct {
	Version string
	Error   string
	Loaded  bool

	Source   string
	Rows     int
	Mode     string
	Degraded string

	Threshold  float64
	TopN       int
	Index      int
	CellsAbove int
	Summary    riskmap.Summary

	ChartURL template.URL
	PNGURL   template.URL
	CSVURL   template.URL

	PreviewColumns []string
	Preview        [][]string

	Inspector *inspectorPanel
}

// showDashboard renders the main page for the current dataset. It never
// loads data; the page's forms post to /api/upload and /api/load.
func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	page := dashboardPage{
		Version:   version.String(),
		Threshold: s.threshold,
		TopN:      s.topN,
		Index:     1,
	}

	params, err := s.viewParams(r)
	if err != nil {
		page.Error = err.Error()
		s.writePage(w, http.StatusBadRequest, page)
		return
	}
	page.Threshold = riskmap.ClampThreshold(params.Threshold)
	page.TopN = riskmap.ClampTopN(params.TopN)

	v, err := s.pipeline.View(params)
	if errors.Is(err, riskmap.ErrNoDataset) {
		s.writePage(w, http.StatusOK, page)
		return
	}
	if err != nil {
		page.Error = err.Error()
		s.writePage(w, http.StatusInternalServerError, page)
		return
	}

	ds := v.Dataset
	page.Loaded = true
	page.Source = ds.Source
	page.Rows = ds.Table.Len()
	page.Mode = v.Surface.Mode.String()
	if v.Surface.Degraded {
		page.Degraded = render.DegradedNotice
	}
	page.Threshold = v.Threshold
	page.TopN = v.Top.Len()
	page.Index = v.SelectedIndex
	page.CellsAbove = riskmap.CountAbove(v.Mask)
	page.Summary = riskmap.Summarize(ds.Table, v.Threshold)
	page.PreviewColumns = v.Top.PreviewColumns()
	page.Preview = v.Top.Preview()
	q := queryParams{Threshold: v.Threshold, TopN: riskmap.ClampTopN(params.TopN), Index: v.SelectedIndex}.String()
	page.ChartURL = template.URL("/chart?" + q)
	page.PNGURL = template.URL("/chart.png?" + q)
	page.CSVURL = template.URL("/api/top.csv?" + q)

	if d, ok := inspect.Describe(v); ok {
		panel := &inspectorPanel{Details: d, Probability: d.ProbabilityText()}
		if d.ImageColumn != "" {
			res := s.images.Load(r.Context(), d.ImageRef)
			if res.OK() {
				var buf bytes.Buffer
				if err := inspect.WritePNG(&buf, res.Image); err == nil {
					panel.ImageData = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
				} else {
					panel.ImageError = "Failed to load thumbnail: " + err.Error()
				}
			} else {
				panel.ImageError = res.ErrText()
			}
		}
		page.Inspector = panel
	}

	s.writePage(w, http.StatusOK, page)
}

func (s *Server) writePage(w http.ResponseWriter, status int, page dashboardPage) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, page); err != nil {
		monitoring.Logf("failed to render dashboard: %v", err)
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
