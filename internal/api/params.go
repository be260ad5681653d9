package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// viewParams reads the dashboard controls from the query string. Missing
// values fall back to the server defaults; out-of-range values are clamped
// later by the pipeline, but text that is not a number is a 400.
func (s *Server) viewParams(r *http.Request) (riskmap.ViewParams, error) {
	q := r.URL.Query()
	p := riskmap.ViewParams{Threshold: s.threshold, TopN: s.topN, Index: 1}

	if v := strings.TrimSpace(q.Get("threshold")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid 'threshold' parameter %q", v)
		}
		p.Threshold = f
	}

	n := q.Get("top_n")
	if n == "" {
		n = q.Get("n")
	}
	if n = strings.TrimSpace(n); n != "" {
		i, err := strconv.Atoi(n)
		if err != nil {
			return p, fmt.Errorf("invalid 'top_n' parameter %q", n)
		}
		p.TopN = i
	}

	if v := strings.TrimSpace(q.Get("index")); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid 'index' parameter %q", v)
		}
		p.Index = i
	}
	return p, nil
}

// queryParams encodes view controls into links between views.
type queryParams riskmap.ViewParams

func (p queryParams) String() string {
	return fmt.Sprintf("threshold=%s&top_n=%d&index=%d",
		strconv.FormatFloat(p.Threshold, 'f', -1, 64), p.TopN, p.Index)
}
