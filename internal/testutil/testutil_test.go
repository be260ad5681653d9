package testutil

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestAssertStatusCode_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("status mismatch", func(t *testing.T) {
		AssertStatusCode(t, http.StatusOK, http.StatusBadRequest)
	})
	if ok {
		t.Fatal("expected subtest to fail on mismatched status code")
	}
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("boom"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
	ok := t.Run("missing error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/api/upload", strings.NewReader("probability\n0.5\n"))
	if req.Method != http.MethodPost || req.URL.Path != "/api/upload" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if rec := NewTestRecorder(); rec.Code != http.StatusOK {
		t.Errorf("recorder default code = %d", rec.Code)
	}
}

func TestFixtures(t *testing.T) {
	tests := []struct {
		name  string
		csv   string
		lines int
	}{
		{"geo", GeoCSV(5), 6},
		{"grid", GridCSV(3), 10},
		{"probability only", ProbabilityCSV("0.1", "0.9"), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Count(tt.csv, "\n")
			if got != tt.lines {
				t.Errorf("lines = %d, want %d", got, tt.lines)
			}
			if !strings.Contains(strings.SplitN(tt.csv, "\n", 2)[0], "probability") {
				t.Error("header missing probability column")
			}
		})
	}
}
