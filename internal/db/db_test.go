package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/rockfall.report/internal/riskmap"
	"github.com/banshee-data/rockfall.report/internal/testutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testDataset(t *testing.T, id, source, csv string, loadedAt time.Time) *riskmap.Dataset {
	t.Helper()
	tbl, err := riskmap.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	return &riskmap.Dataset{
		ID:       id,
		Source:   source,
		Table:    tbl,
		Georef:   riskmap.DetectGeoreference(tbl.Columns, tbl.Len()),
		LoadedAt: loadedAt,
	}
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	for _, table := range []string{"load_history", "samples"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestNewDB_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rockfall.db")

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	ds := testDataset(t, "load-1", "a.csv", testutil.GeoCSV(5), time.Unix(100, 0))
	if err := db.RecordLoad(ds); err != nil {
		t.Fatalf("RecordLoad failed: %v", err)
	}
	db.Close()

	// migrations are already applied; reopening must not fail or lose data
	db, err = NewDB(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	history, err := db.LoadHistory(10)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != "load-1" {
		t.Errorf("history after reopen = %+v", history)
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := setupTestDB(t)
	if err := db.MigrateUp(nil); err == nil {
		t.Error("expected error for nil migrations filesystem")
	}
}

func TestRecordLoad_Geographic(t *testing.T) {
	db := setupTestDB(t)
	ds := testDataset(t, "geo", "cliff.csv", testutil.GeoCSV(12), time.Unix(1700000000, 0))

	if err := db.RecordLoad(ds); err != nil {
		t.Fatalf("RecordLoad failed: %v", err)
	}

	history, err := db.LoadHistory(0)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	got := history[0]
	if got.Source != "cliff.csv" || got.Rows != 12 || got.Mode != "geographic" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.LatColumn != "lat" || got.LonColumn != "lon" {
		t.Errorf("georeference columns = %q/%q", got.LatColumn, got.LonColumn)
	}
	if got.Fingerprint != ds.Table.Fingerprint {
		t.Errorf("fingerprint = %q, want %q", got.Fingerprint, ds.Table.Fingerprint)
	}
	if !got.LoadedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("LoadedAt = %v", got.LoadedAt)
	}
	if strings.Join(got.Columns, ",") != "lat,lon,probability" {
		t.Errorf("Columns = %v", got.Columns)
	}

	var lat, lon float64
	if err := db.QueryRow(`SELECT lat, lon FROM samples WHERE load_id = ? AND row_index = 3`, "geo").Scan(&lat, &lon); err != nil {
		t.Fatalf("sample query failed: %v", err)
	}
	if lat != 46.003 || lon != 7.006 {
		t.Errorf("sample 3 = (%v, %v), want (46.003, 7.006)", lat, lon)
	}
}

func TestRecordLoad_UnparsableProbabilityIsNull(t *testing.T) {
	db := setupTestDB(t)
	ds := testDataset(t, "plain", "plain.csv", testutil.ProbabilityCSV("0.5", "n/a", `""`, "0.9"), time.Now())

	if err := db.RecordLoad(ds); err != nil {
		t.Fatalf("RecordLoad failed: %v", err)
	}
	total, withProb, err := db.SampleCount("plain")
	if err != nil {
		t.Fatalf("SampleCount failed: %v", err)
	}
	if total != 4 || withProb != 2 {
		t.Errorf("SampleCount = (%d, %d), want (4, 2)", total, withProb)
	}

	history, err := db.LoadHistory(1)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if history[0].LatColumn != "" || history[0].Mode != "grid-index" {
		t.Errorf("unexpected record: %+v", history[0])
	}
}

func TestRecordLoad_DuplicateIDRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ds := testDataset(t, "dup", "a.csv", testutil.GeoCSV(3), time.Now())
	if err := db.RecordLoad(ds); err != nil {
		t.Fatalf("RecordLoad failed: %v", err)
	}
	if err := db.RecordLoad(ds); err == nil {
		t.Fatal("expected error recording the same load twice")
	}
	total, _, err := db.SampleCount("dup")
	if err != nil {
		t.Fatalf("SampleCount failed: %v", err)
	}
	if total != 3 {
		t.Errorf("samples after failed insert = %d, want 3", total)
	}
}

func TestLoadHistory_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Unix(1000, 0)
	for i, id := range []string{"first", "second", "third"} {
		ds := testDataset(t, id, id+".csv", testutil.GeoCSV(2), base.Add(time.Duration(i)*time.Minute))
		if err := db.RecordLoad(ds); err != nil {
			t.Fatalf("RecordLoad %s failed: %v", id, err)
		}
	}

	history, err := db.LoadHistory(2)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].ID != "third" || history[1].ID != "second" {
		t.Errorf("history order = %+v", history)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	if err := db.RecordLoad(testDataset(t, "admin", "a.csv", testutil.GeoCSV(4), time.Now())); err != nil {
		t.Fatalf("RecordLoad failed: %v", err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	t.Run("backup endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))

		// Should be registered (might return 403 due to auth or 200 if auth passes)
		if w.Code == http.StatusNotFound {
			t.Fatal("Route /debug/backup should be registered, got 404")
		}
		if w.Code != http.StatusOK {
			return
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/gzip" {
			t.Errorf("Content-Type = %q", ct)
		}
		zr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("backup is not gzip: %v", err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if !strings.HasPrefix(string(raw), "SQLite format 3") {
			t.Errorf("backup does not look like a SQLite file")
		}
	})

	t.Run("tailsql endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil))

		// Should be registered (might return 403 due to auth)
		if w.Code == http.StatusNotFound {
			t.Error("Route /debug/tailsql/ should be registered, got 404")
		}
	})
}
