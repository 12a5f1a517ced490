package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths names the four report files produced by one flush.
type Paths struct {
	Updated string
	Skipped string
	Errors  string
	Log     string
}

// Flush writes the partitioned reports under dir using the naming
// scheme <prefix>_<stream>_<ts>.csv and <prefix>_<ts>.log.
//
// Each stream flushes independently: a failure writing one file does
// not block the others. The returned error joins every stream failure.
func (l *Ledger) Flush(dir, prefix, ts string) (Paths, error) {
	paths := Paths{
		Updated: filepath.Join(dir, fmt.Sprintf("%s_updated_%s.csv", prefix, ts)),
		Skipped: filepath.Join(dir, fmt.Sprintf("%s_skipped_%s.csv", prefix, ts)),
		Errors:  filepath.Join(dir, fmt.Sprintf("%s_error_%s.csv", prefix, ts)),
		Log:     filepath.Join(dir, fmt.Sprintf("%s_%s.log", prefix, ts)),
	}

	var errs []error
	if err := l.writeStream(paths.Updated, OutcomeUpdated); err != nil {
		errs = append(errs, err)
	}
	if err := l.writeStream(paths.Skipped, OutcomeSkipped); err != nil {
		errs = append(errs, err)
	}
	if err := l.writeStream(paths.Errors, OutcomeError); err != nil {
		errs = append(errs, err)
	}
	if err := l.writeLog(paths.Log); err != nil {
		errs = append(errs, err)
	}
	return paths, errors.Join(errs...)
}

// streamHeader returns the column contract for one outcome stream.
// Downstream QA tooling consumes these; the columns are fixed.
func streamHeader(outcome Outcome) []string {
	switch outcome {
	case OutcomeUpdated:
		return []string{"dataset", "row_id", "field", "previous_value", "new_value"}
	case OutcomeSkipped:
		return []string{"dataset", "row_id", "field", "reason"}
	default:
		return []string{"dataset", "row_id", "field", "reason", "raw_detail"}
	}
}

func streamRecord(outcome Outcome, e Entry) []string {
	switch outcome {
	case OutcomeUpdated:
		return []string{e.Dataset, e.RowID, e.Field, e.Previous, e.New}
	case OutcomeSkipped:
		return []string{e.Dataset, e.RowID, e.Field, e.Reason}
	default:
		return []string{e.Dataset, e.RowID, e.Field, e.Reason, e.Detail}
	}
}

func (l *Ledger) writeStream(path string, outcome Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s stream: %w", outcome, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(streamHeader(outcome)); err != nil {
		return fmt.Errorf("write %s header: %w", outcome, err)
	}
	for _, e := range l.entries {
		if e.Outcome != outcome {
			continue
		}
		if err := w.Write(streamRecord(outcome, e)); err != nil {
			return fmt.Errorf("write %s record: %w", outcome, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s stream: %w", outcome, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", outcome, err)
	}
	return nil
}

func (l *Ledger) writeLog(path string) error {
	content := strings.Join(l.trace, "\n")
	if len(l.trace) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
