package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OccurrenceRecord is one discovered identifier occurrence, reported by
// the scan mode for provenance.
type OccurrenceRecord struct {
	Dataset    string
	RowID      string
	Field      string
	Normalized string
	Raw        string
}

// CoverageRecord summarizes which of a dataset's fields were inspected
// as identifier carriers.
type CoverageRecord struct {
	Dataset         string
	Fields          []string
	CandidateFields []string
}

// WriteOccurrences writes the scan provenance report:
// <prefix>_occurrences_<ts>.csv.
func WriteOccurrences(dir, prefix, ts string, records []OccurrenceRecord) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_occurrences_%s.csv", prefix, ts))
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{"dataset", "row_id", "field", "normalized", "raw"})
	for _, r := range records {
		rows = append(rows, []string{r.Dataset, r.RowID, r.Field, r.Normalized, r.Raw})
	}
	return path, writeCSV(path, rows)
}

// WriteCoverage writes the per-dataset field coverage report:
// <prefix>_coverage_<ts>.csv.
func WriteCoverage(dir, prefix, ts string, records []CoverageRecord) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_coverage_%s.csv", prefix, ts))
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{"dataset", "fields", "candidate_fields"})
	for _, r := range records {
		rows = append(rows, []string{r.Dataset, strings.Join(r.Fields, ";"), strings.Join(r.CandidateFields, ";")})
	}
	return path, writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
