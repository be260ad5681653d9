// Package db keeps a session log of loaded risk tables in SQLite so they can
// be queried live through the tailsql debug console.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is the session database.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and applies the embedded migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == MemoryPath {
		// every pooled connection to :memory: would be a separate database
		sqlDB.SetMaxOpenConns(1)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	version, dirty, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if dirty {
		sqlDB.Close()
		return nil, fmt.Errorf("session database %s is dirty at migration %d", path, version)
	}
	monitoring.Debugf("session database %s at schema version %d", path, version)
	return db, nil
}

// LoadRecord is one row of load_history.
type LoadRecord struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	Rows        int       `json:"rows"`
	Columns     []string  `json:"columns"`
	Mode        string    `json:"mode"`
	LatColumn   string    `json:"lat_column,omitempty"`
	LonColumn   string    `json:"lon_column,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// RecordLoad stores a dataset and its per-row samples in one transaction.
// It satisfies riskmap.LoadRecorder.
func (db *DB) RecordLoad(ds *riskmap.Dataset) error {
	t := ds.Table
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO load_history (
			load_id, source, fingerprint, row_count, column_names,
			mode, lat_column, lon_column, loaded_unix_nano
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID, ds.Source, t.Fingerprint, t.Len(), strings.Join(t.Columns, ","),
		ds.Georef.Mode.String(), nullString(ds.Georef.LatColumn), nullString(ds.Georef.LonColumn),
		ds.LoadedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert load %s: %w", ds.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (load_id, row_index, probability, lat, lon) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	probs := t.Probabilities()
	lats := columnOrNaN(t, ds.Georef.LatColumn)
	lons := columnOrNaN(t, ds.Georef.LonColumn)
	for i := range probs {
		if _, err := stmt.Exec(ds.ID, i, nullFloat(probs[i]), nullFloat(lats[i]), nullFloat(lons[i])); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load %s: %w", ds.ID, err)
	}
	return nil
}

// LoadHistory returns the most recent loads, newest first.
func (db *DB) LoadHistory(limit int) ([]LoadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT load_id, source, fingerprint, row_count, column_names,
			mode, lat_column, lon_column, loaded_unix_nano
		FROM load_history
		ORDER BY loaded_unix_nano DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query load history: %w", err)
	}
	defer rows.Close()

	var out []LoadRecord
	for rows.Next() {
		var (
			r        LoadRecord
			cols     string
			lat, lon sql.NullString
			nanos    int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Fingerprint, &r.Rows, &cols, &r.Mode, &lat, &lon, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan load history: %w", err)
		}
		if cols != "" {
			r.Columns = strings.Split(cols, ",")
		}
		r.LatColumn = lat.String
		r.LonColumn = lon.String
		r.LoadedAt = time.Unix(0, nanos).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SampleCount returns how many samples were stored for a load, and how many
// of those carry a probability.
func (db *DB) SampleCount(loadID string) (total, withProbability int, err error) {
	err = db.QueryRow(`
		SELECT COUNT(*), COUNT(probability) FROM samples WHERE load_id = ?`, loadID,
	).Scan(&total, &withProbability)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count samples for %s: %w", loadID, err)
	}
	return total, withProbability, nil
}

func columnOrNaN(t *riskmap.Table, name string) []float64 {
	if name != "" {
		if vals, err := t.Floats(name); err == nil {
			return vals
		}
	}
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AttachAdminRoutes mounts the tsweb debug index with a live SQL console and
// a gzipped database backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://rockfall.db", db.DB, &tailsql.DBOptions{
		Label: "Rockfall session DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the session database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("rockfall-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("Failed to stream backup: %v", err)
	}
}
