package govern

import (
	"context"
	"strconv"

	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/guid"
	"github.com/fieldstone/gdbgov/internal/layer"
)

// runScan produces full read-only audit coverage: the provenance of
// every discovered identifier occurrence and the per-dataset field
// coverage, across writable and read-only targets alike. Nothing is
// mutated.
func (r *runner) runScan(ctx context.Context, writable, readOnly []layer.Target, summary *Summary) error {
	targets := make([]layer.Target, 0, len(writable)+len(readOnly))
	targets = append(targets, writable...)
	targets = append(targets, readOnly...)
	for _, tgt := range readOnly {
		r.ledger.Tracef("read-only target: %s (%s)", tgt.Dataset, tgt.Reason)
	}

	occurrences, coverage, err := r.collectIdentifiers(ctx, targets)
	if err != nil {
		return err
	}
	summary.Occurrences = len(occurrences)

	// Group by canonical key to report duplicate pressure without
	// planning any rewrite.
	counts := make(map[guid.Key]int)
	records := make([]audit.OccurrenceRecord, len(occurrences))
	for i, occ := range occurrences {
		rec := audit.OccurrenceRecord{
			Dataset: occ.Dataset,
			RowID:   strconv.FormatInt(occ.RowID, 10),
			Field:   occ.Field.Name,
			Raw:     occ.Raw,
		}
		if key, err := guid.Normalize(occ.Raw); err == nil {
			rec.Normalized = string(key)
			counts[key]++
		}
		records[i] = rec
	}
	for key, n := range counts {
		if n >= 2 {
			summary.DuplicateGroups++
			r.ledger.Tracef("duplicate group: %s (%d occurrences)", key, n)
		}
	}

	occCSV, err := audit.WriteOccurrences(r.cfg.OutDir, r.cfg.Prefix, r.ts, records)
	if err != nil {
		return NewRunError(ErrCodeReportFailure, "writing occurrence report", err)
	}
	covCSV, err := audit.WriteCoverage(r.cfg.OutDir, r.cfg.Prefix, r.ts, coverage)
	if err != nil {
		return NewRunError(ErrCodeReportFailure, "writing coverage report", err)
	}
	summary.OccurrencesCSV = occCSV
	summary.CoverageCSV = covCSV
	return nil
}
