// Package testutil provides shared test helpers and risk-table fixtures.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request with an optional body.
func NewTestRequest(method, path string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, path, body)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// GeoCSV returns a lat/lon risk table with n rows laid out on a diagonal
// from (46.0, 7.0). Probabilities rise linearly from 0 to just under 1.
func GeoCSV(n int) string {
	var b strings.Builder
	b.WriteString("lat,lon,probability\n")
	for i := 0; i < n; i++ {
		p := float64(i) / float64(n)
		fmt.Fprintf(&b, "%.4f,%.4f,%.4f\n", 46.0+0.001*float64(i), 7.0+0.002*float64(i%7), p)
	}
	return b.String()
}

// GridCSV returns a k*k table with no geographic columns. Row i carries
// probability i/(k*k), so the reshaped surface is a ramp.
func GridCSV(k int) string {
	var b strings.Builder
	b.WriteString("x,y,probability\n")
	n := k * k
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d,%g\n", i%k, i/k, float64(i)/float64(n))
	}
	return b.String()
}

// ProbabilityCSV returns a single-column table with the given probability cells.
func ProbabilityCSV(cells ...string) string {
	return "probability\n" + strings.Join(cells, "\n") + "\n"
}
