package riskmap

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/rockfall.report/internal/fsutil"
)

func TestParseCSV(t *testing.T) {
	tbl, err := ParseCSV(strings.NewReader("\xef\xbb\xbfLat, lon ,probability,note\n46.1,7.2,0.8,\"a, b\"\n46.2,7.3,n/a,\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if got := strings.Join(tbl.Columns, "|"); got != "Lat|lon|probability|note" {
		t.Errorf("Columns = %q", got)
	}
	if got := tbl.Value(0, "note"); got != "a, b" {
		t.Errorf("Value(0, note) = %q", got)
	}

	probs := tbl.Probabilities()
	if probs[0] != 0.8 {
		t.Errorf("probs[0] = %f, want 0.8", probs[0])
	}
	if !math.IsNaN(probs[1]) {
		t.Errorf("probs[1] = %f, want NaN for unparsable cell", probs[1])
	}
	if len(tbl.Fingerprint) != 64 {
		t.Errorf("Fingerprint length = %d, want 64 hex chars", len(tbl.Fingerprint))
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", nil},
		{"missing probability", "lat,lon\n1,2\n", ErrMissingProbability},
		{"case sensitive probability", "Probability\n0.5\n", ErrMissingProbability},
		{"ragged rows", "probability,x\n0.5\n", nil},
		{"bad quoting", "probability\n\"0.5\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	tbl, err := ParseCSV(strings.NewReader("probability\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	a, _ := ParseCSV(strings.NewReader("probability\n0.1\n"))
	b, _ := ParseCSV(strings.NewReader("probability\n0.1\n"))
	c, _ := ParseCSV(strings.NewReader("probability\n0.2\n"))
	if a.Fingerprint != b.Fingerprint {
		t.Error("identical content should share a fingerprint")
	}
	if a.Fingerprint == c.Fingerprint {
		t.Error("different content should not share a fingerprint")
	}
}

func TestLoadCSVFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	fs.WriteFile("/data/map.csv", []byte("x,y,probability\n0,0,0.3\n"))

	tbl, err := LoadCSVFile(fs, "/data/map.csv")
	if err != nil {
		t.Fatalf("LoadCSVFile failed: %v", err)
	}
	if !tbl.HasColumn("x") || tbl.HasColumn("lat") {
		t.Errorf("unexpected columns %v", tbl.Columns)
	}

	if _, err := LoadCSVFile(fs, "/data/missing.csv"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFloats(t *testing.T) {
	tbl, _ := ParseCSV(strings.NewReader("x,probability\n1.5,0\n,0\nabc,0\n"))
	xs, err := tbl.Floats("x")
	if err != nil {
		t.Fatal(err)
	}
	if xs[0] != 1.5 || !math.IsNaN(xs[1]) || !math.IsNaN(xs[2]) {
		t.Errorf("Floats(x) = %v", xs)
	}
	if _, err := tbl.Floats("nope"); err == nil {
		t.Error("expected error for unknown column")
	}
}
