// Package api serves the rockfall dashboard page, its charts and the JSON
// endpoints behind them.
package api

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rockfall.report/internal/config"
	"github.com/banshee-data/rockfall.report/internal/db"
	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/inspect"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxUploadBytes bounds the multipart form held in memory for one upload.
const maxUploadBytes = 64 << 20

// Server serves the dashboard page, its chart frames and the JSON API over
// one Pipeline. A nil db disables /api/history.
type Server struct {
	pipeline *riskmap.Pipeline
	images   *inspect.Loader
	db       *db.DB

	threshold float64
	topN      int

	page *template.Template
}

// NewServer wires the pipeline, the inspector image loader and the optional
// session database. cfg supplies the initial control values.
func NewServer(p *riskmap.Pipeline, images *inspect.Loader, database *db.DB, cfg *config.DashboardConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyDashboardConfig()
	}
	if images == nil {
		images = &inspect.Loader{}
	}
	return &Server{
		pipeline:  p,
		images:    images,
		db:        database,
		threshold: riskmap.ClampThreshold(cfg.GetDefaultThreshold()),
		topN:      riskmap.ClampTopN(cfg.GetDefaultTopN()),
		page:      template.Must(template.New("dashboard.html").Funcs(pageFuncs).ParseFS(DashboardHTML, "dashboard.html")),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.showDashboard)
	mux.HandleFunc("/api/upload", s.uploadDataset)
	mux.HandleFunc("/api/load", s.loadDataset)
	mux.HandleFunc("/api/dataset", s.showDataset)
	mux.HandleFunc("/api/surface", s.showSurface)
	mux.HandleFunc("/api/mask", s.showMask)
	mux.HandleFunc("/api/top", s.listTopRows)
	mux.HandleFunc("/api/top.csv", s.downloadTopRows)
	mux.HandleFunc("/api/inspect", s.showInspector)
	mux.HandleFunc("/api/inspect/image", s.showInspectorImage)
	mux.HandleFunc("/api/history", s.listLoadHistory)
	mux.HandleFunc("/chart", s.showChart)
	mux.HandleFunc("/chart.png", s.showChartPNG)
	return mux
}

// writeViewError maps pipeline errors to responses: nothing loaded is a 404,
// anything else is a server fault.
func writeViewError(w http.ResponseWriter, err error) {
	if errors.Is(err, riskmap.ErrNoDataset) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
