package api

import (
	"bytes"
	"net/http"

	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/inspect"
	"github.com/banshee-data/rockfall.report/internal/render"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// view parses the controls and runs the pipeline, writing the error response
// itself when either fails.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*riskmap.View, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, false
	}
	params, err := s.viewParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	v, err := s.pipeline.View(params)
	if err != nil {
		writeViewError(w, err)
		return nil, false
	}
	return v, true
}

type imageStatus struct {
	Ref    string `json:"ref"`
	Remote bool   `json:"remote"`
	OK     bool   `json:"ok"`
	Format string `json:"format,omitempty"`
	Error  string `json:"error,omitempty"`
}

type inspectResponse struct {
	Details inspect.Details `json:"details"`
	Image   *imageStatus    `json:"image,omitempty"`
}

func (s *Server) showInspector(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	d, ok := inspect.Describe(v)
	if !ok {
		httputil.NotFound(w, "no rows to inspect")
		return
	}
	resp := inspectResponse{Details: d}
	if d.ImageColumn != "" {
		res := s.images.Load(r.Context(), d.ImageRef)
		resp.Image = &imageStatus{
			Ref:    res.Ref,
			Remote: res.Remote,
			OK:     res.OK(),
			Format: res.Format,
			Error:  res.ErrText(),
		}
	}
	httputil.WriteJSONOK(w, resp)
}

// showInspectorImage re-encodes the selected row's image as PNG.
func (s *Server) showInspectorImage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	d, ok := inspect.Describe(v)
	if !ok {
		httputil.NotFound(w, "no rows to inspect")
		return
	}
	res := s.images.Load(r.Context(), d.ImageRef)
	if !res.OK() {
		httputil.NotFound(w, res.ErrText())
		return
	}
	var buf bytes.Buffer
	if err := inspect.WritePNG(&buf, res.Image); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WriteChart(&buf, v, render.ChartOptions{}); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) showChartPNG(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, v); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
