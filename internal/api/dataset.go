package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/rockfall.report/internal/db"
	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
	"github.com/banshee-data/rockfall.report/internal/security"
	"github.com/banshee-data/rockfall.report/internal/version"
)

type datasetResponse struct {
	ID          string             `json:"id"`
	Source      string             `json:"source"`
	Fingerprint string             `json:"fingerprint"`
	Columns     []string           `json:"columns"`
	Rows        int                `json:"rows"`
	Mode        string             `json:"mode"`
	LatColumn   string             `json:"lat_column,omitempty"`
	LonColumn   string             `json:"lon_column,omitempty"`
	Degraded    bool               `json:"degraded"`
	LoadedAt    time.Time          `json:"loaded_at"`
	Summary     riskmap.Summary    `json:"summary"`
	Cache       riskmap.CacheStats `json:"cache"`
	Version     string             `json:"version"`
}

func (s *Server) describeDataset(ds *riskmap.Dataset, cutoff float64) datasetResponse {
	return datasetResponse{
		ID:          ds.ID,
		Source:      ds.Source,
		Fingerprint: ds.Table.Fingerprint,
		Columns:     ds.Table.Columns,
		Rows:        ds.Table.Len(),
		Mode:        ds.Georef.Mode.String(),
		LatColumn:   ds.Georef.LatColumn,
		LonColumn:   ds.Georef.LonColumn,
		Degraded:    ds.Georef.Mode == riskmap.RandomFallback,
		LoadedAt:    ds.LoadedAt,
		Summary:     riskmap.Summarize(ds.Table, cutoff),
		Cache:       s.pipeline.CacheStats(),
		Version:     version.String(),
	}
}

// uploadDataset replaces the current dataset with the multipart "file" field.
// A form field redirect=1 sends browsers back to the dashboard.
func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to parse upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing 'file' field")
		return
	}
	defer file.Close()

	// the client's filename is logged and stored, never opened
	ds, err := s.pipeline.LoadReader(security.SanitizeFilename(header.Filename), file)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	httputil.WriteJSONOK(w, s.describeDataset(ds, s.threshold))
}

// loadDataset replaces the current dataset with the CSV at ?path= (or the
// "path" form field). Paths outside the data directories are refused with
// 403. A form field redirect=1 sends browsers back to the dashboard.
func (s *Server) loadDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		path = strings.TrimSpace(r.FormValue("path"))
	}
	if path == "" {
		httputil.BadRequest(w, "missing 'path' parameter")
		return
	}
	ds, err := s.pipeline.LoadPath(path)
	if errors.Is(err, riskmap.ErrPathNotAllowed) {
		httputil.WriteJSONError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	httputil.WriteJSONOK(w, s.describeDataset(ds, s.threshold))
}

func (s *Server) showDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	params, err := s.viewParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.pipeline.Current()
	if err != nil {
		writeViewError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.describeDataset(ds, riskmap.ClampThreshold(params.Threshold)))
}

type surfaceResponse struct {
	Mode     string      `json:"mode"`
	Degraded bool        `json:"degraded"`
	X        []float64   `json:"x"`
	Y        []float64   `json:"y"`
	Z        [][]float64 `json:"z"`
}

func (s *Server) showSurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	_, surf, err := s.pipeline.Surface()
	if err != nil {
		writeViewError(w, err)
		return
	}
	httputil.WriteJSONOK(w, surfaceResponse{
		Mode:     surf.Mode.String(),
		Degraded: surf.Degraded,
		X:        surf.XAxis(),
		Y:        surf.YAxis(),
		Z:        denseRows(surf.Z),
	})
}

type maskResponse struct {
	Threshold float64     `json:"threshold"`
	Above     int         `json:"cells_above"`
	Mask      [][]float64 `json:"mask"`
}

func (s *Server) showMask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	params, err := s.viewParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	v, err := s.pipeline.View(params)
	if err != nil {
		writeViewError(w, err)
		return
	}
	httputil.WriteJSONOK(w, maskResponse{
		Threshold: v.Threshold,
		Above:     riskmap.CountAbove(v.Mask),
		Mask:      denseRows(v.Mask),
	})
}

type topRow struct {
	Rank   int `json:"rank"`
	Source int `json:"source_row"`
	// Probability is null when the cell did not parse.
	Probability *float64 `json:"probability"`
	Cells       []string `json:"cells"`
}

type topResponse struct {
	Columns []string `json:"columns"`
	Rows    []topRow `json:"rows"`
}

func (s *Server) listTopRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tr, ok := s.topRows(w, r)
	if !ok {
		return
	}
	resp := topResponse{Columns: tr.Columns, Rows: make([]topRow, len(tr.Rows))}
	for i, row := range tr.Rows {
		resp.Rows[i] = topRow{Rank: i + 1, Source: row.Source, Cells: row.Cells}
		if !math.IsNaN(row.Probability) && !math.IsInf(row.Probability, 0) {
			p := row.Probability
			resp.Rows[i].Probability = &p
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) downloadTopRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tr, ok := s.topRows(w, r)
	if !ok {
		return
	}
	httputil.SetAttachment(w, riskmap.ExportFilename, riskmap.ExportContentType+"; charset=utf-8")
	if err := riskmap.WriteCSV(w, tr); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) topRows(w http.ResponseWriter, r *http.Request) (*riskmap.TopRows, bool) {
	params, err := s.viewParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	tr, err := s.pipeline.Top(params.TopN)
	if err != nil {
		writeViewError(w, err)
		return nil, false
	}
	return tr, true
}

func (s *Server) listLoadHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "session database disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	history, err := s.db.LoadHistory(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve load history: %v", err))
		return
	}
	entries := make([]historyEntry, len(history))
	for i, rec := range history {
		entries[i].LoadRecord = rec
		entries[i].Samples, entries[i].WithProbability, err = s.db.SampleCount(rec.ID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to count samples: %v", err))
			return
		}
	}
	httputil.WriteJSONOK(w, entries)
}

// historyEntry is one load_history row with its stored sample counts.
type historyEntry struct {
	db.LoadRecord
	Samples         int `json:"samples"`
	WithProbability int `json:"samples_with_probability"`
}

func denseRows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
