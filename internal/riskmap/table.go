// Package riskmap turns a table of rockfall probability samples into a dense
// probability surface, a threshold mask and a ranked list of the riskiest rows.
package riskmap

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/rockfall.report/internal/fsutil"
)

// ProbabilityColumn is the only column a risk table must carry.
const ProbabilityColumn = "probability"

// ErrMissingProbability is returned when the CSV header has no probability column.
var ErrMissingProbability = errors.New("CSV must contain a 'probability' column")

// Table is an immutable snapshot of a parsed risk CSV. Cells are kept as the
// original text so exports reproduce the input exactly.
type Table struct {
	Columns []string
	Rows    [][]string

	// Fingerprint is the hex SHA-256 of the raw CSV bytes.
	Fingerprint string

	probIdx int
}

// ParseCSV reads a comma-delimited, header-first CSV and checks for the
// probability column.
func ParseCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return parseBytes(raw)
}

// LoadCSVFile reads and parses the CSV at path through fsys.
func LoadCSVFile(fsys fsutil.FileSystem, path string) (*Table, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV from path %q: %w", path, err)
	}
	return parseBytes(raw)
}

func parseBytes(raw []byte) (*Table, error) {
	sum := sha256.Sum256(raw)

	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("failed to parse CSV: missing header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{
		Columns:     header,
		Rows:        records[1:],
		Fingerprint: hex.EncodeToString(sum[:]),
		probIdx:     -1,
	}
	t.probIdx = t.ColumnIndex(ProbabilityColumn)
	if t.probIdx < 0 {
		return nil, ErrMissingProbability
	}
	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the exactly named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the exactly named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Floats parses the named column. Empty or non-numeric cells become NaN.
func (t *Table) Floats(name string) ([]float64, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = parseCell(row, idx)
	}
	return out, nil
}

// Probabilities returns the probability column. Unparsable cells are NaN.
func (t *Table) Probabilities() []float64 {
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = parseCell(row, t.probIdx)
	}
	return out
}

// Value returns the cell text of row i in the named column.
func (t *Table) Value(i int, name string) string {
	idx := t.ColumnIndex(name)
	if idx < 0 || i < 0 || i >= len(t.Rows) || idx >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][idx]
}

func parseCell(row []string, idx int) float64 {
	if idx < 0 || idx >= len(row) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// finiteOrZero replaces NaN and ±Inf with 0 so they never reach a rendered surface.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
