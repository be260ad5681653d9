package riskmap

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Export metadata for the top-N download.
const (
	ExportFilename    = "top_risky_cells.csv"
	ExportContentType = "text/csv"
)

// WriteCSV writes the full selection with the input's header and cell text,
// so parsing the output yields the same table.
func WriteCSV(w io.Writer, tr *TopRows) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tr.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range tr.Rows {
		if err := cw.Write(r.Cells); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", r.Source, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
