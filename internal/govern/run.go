package govern

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/dedupe"
	"github.com/fieldstone/gdbgov/internal/gdb"
	"github.com/fieldstone/gdbgov/internal/guid"
	"github.com/fieldstone/gdbgov/internal/layer"
	"github.com/fieldstone/gdbgov/internal/mutate"
	"github.com/fieldstone/gdbgov/internal/policy"
)

// Mode selects the governance operation.
type Mode string

const (
	ModeScan   Mode = "scan"
	ModeDedupe Mode = "dedupe"
	ModeAssign Mode = "assign"
	ModeCalc   Mode = "calc"
)

// Config parameterizes one run.
type Config struct {
	Mode          Mode
	WorkspacePath string
	MapPath       string
	// PolicyDir is a directory of CUE policy files; empty uses the
	// default policy.
	PolicyDir string
	// OutDir receives the timestamped reports.
	OutDir string
	// Prefix names the report files; defaults to the mode name.
	Prefix string
	// DryRun plans but never writes; every planned edit is reported
	// as skipped.
	DryRun bool

	// Generator overrides identifier generation (tests). Nil uses
	// random generation.
	Generator guid.Generator
	// Now overrides the clock (tests). Nil uses time.Now.
	Now func() time.Time
	// Logger receives diagnostics; nil uses slog.Default().
	Logger *slog.Logger
}

// Summary reports what one run did. Skips and errors live in the CSV
// reports; the summary only carries counts.
type Summary struct {
	Mode            Mode
	Datasets        int
	ReadOnly        int
	Occurrences     int
	DuplicateGroups int
	Updated         int
	Skipped         int
	Errors          int
	Reports         audit.Paths
	OccurrencesCSV  string
	CoverageCSV     string
}

// runner carries the shared state of one run.
type runner struct {
	cfg    Config
	pol    policy.Policy
	ws     *gdb.Workspace
	ledger *audit.Ledger
	log    *slog.Logger
	gen    guid.Generator
	ts     string
}

// Run executes one governance run end to end: resolve targets, execute
// the mode, flush reports. The returned error is always fatal
// (*RunError); recoverable conditions are in the reports.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = string(cfg.Mode)
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	gen := cfg.Generator
	if gen == nil {
		gen = guid.RandomGenerator{}
	}

	pol, err := policy.Load(cfg.PolicyDir)
	if err != nil {
		return nil, NewRunError(ErrCodePolicyInvalid, "loading governance policy", err)
	}
	if cfg.Mode == ModeCalc && pol.FillValue == "" {
		return nil, NewRunError(ErrCodePolicyInvalid, "calc mode requires a fillValue in the policy", nil)
	}

	doc, err := layer.LoadMapDoc(cfg.MapPath)
	if err != nil {
		return nil, NewRunError(ErrCodeWorkspaceUnavailable, "loading map document", err)
	}
	includeReadOnly := cfg.Mode == ModeScan
	writable, readOnly, err := layer.ResolveTargets(doc, includeReadOnly)
	if err != nil {
		return nil, NewRunError(ErrCodeRootTraversalFailure, "resolving layer tree", err)
	}

	ws, err := gdb.Open(cfg.WorkspacePath)
	if err != nil {
		return nil, NewRunError(ErrCodeWorkspaceUnavailable, "opening workspace", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Error("error closing workspace", "error", cerr)
		}
	}()

	r := &runner{
		cfg:    cfg,
		pol:    pol,
		ws:     ws,
		ledger: audit.New(audit.WithNow(now)),
		log:    log,
		gen:    gen,
		ts:     now().Format("20060102_150405"),
	}
	r.ledger.Tracef("run start: mode=%s map=%q datasets=%d", cfg.Mode, doc.Name, len(writable))

	summary := &Summary{Mode: cfg.Mode, Datasets: len(writable), ReadOnly: len(readOnly)}
	switch cfg.Mode {
	case ModeScan:
		err = r.runScan(ctx, writable, readOnly, summary)
	case ModeDedupe:
		err = r.runDedupe(ctx, writable, summary)
	case ModeAssign:
		err = r.runAssign(ctx, writable, summary)
	case ModeCalc:
		err = r.runCalc(ctx, writable, summary)
	default:
		return nil, NewRunError(ErrCodePolicyInvalid, fmt.Sprintf("unknown mode %q", cfg.Mode), nil)
	}
	if err != nil {
		// Mode failures are already fatal; still flush what we have so
		// the abort leaves a reconcilable trail.
		r.ledger.Tracef("run aborted: %v", err)
		if _, ferr := r.ledger.Flush(cfg.OutDir, cfg.Prefix, r.ts); ferr != nil {
			log.Error("failed to flush reports after abort", "error", ferr)
		}
		return nil, err
	}

	summary.Updated = r.ledger.Count(audit.OutcomeUpdated)
	summary.Skipped = r.ledger.Count(audit.OutcomeSkipped)
	summary.Errors = r.ledger.Count(audit.OutcomeError)
	r.ledger.Tracef("run complete: %d updated, %d skipped, %d errors",
		summary.Updated, summary.Skipped, summary.Errors)

	paths, err := r.ledger.Flush(cfg.OutDir, cfg.Prefix, r.ts)
	if err != nil {
		return nil, NewRunError(ErrCodeReportFailure, "flushing audit reports", err)
	}
	summary.Reports = paths

	log.Info("run complete",
		"mode", cfg.Mode,
		"datasets", summary.Datasets,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

// identifierCandidates returns the fields of a dataset that can carry
// governed identifiers: declared identifier fields plus TEXT fields
// wide enough to hold one.
func (r *runner) identifierCandidates(fields []gdb.Field) []gdb.Field {
	var out []gdb.Field
	for _, f := range fields {
		switch f.Type {
		case gdb.TypeGUID, gdb.TypeGlobalID:
			out = append(out, f)
		case gdb.TypeText:
			if f.Length == 0 || f.Length >= r.pol.MinTextGUIDLength {
				out = append(out, f)
			}
		}
	}
	return out
}

// collectIdentifiers reads every candidate field of every target and
// returns the identifier occurrences in traversal order, together with
// per-dataset coverage records. Empty and placeholder values are not
// occurrences; they carry no identity.
func (r *runner) collectIdentifiers(ctx context.Context, targets []layer.Target) ([]dedupe.Occurrence, []audit.CoverageRecord, error) {
	var occurrences []dedupe.Occurrence
	var coverage []audit.CoverageRecord

	for _, tgt := range targets {
		r.ledger.Tracef("dataset enter: %s (layers: %v)", tgt.Dataset, tgt.Layers)
		fields, err := r.ws.Fields(ctx, tgt.Dataset)
		if err != nil {
			r.ledger.Tracef("dataset skipped: %s: %v", tgt.Dataset, err)
			r.ledger.Append(audit.Entry{
				Dataset: tgt.Dataset,
				Outcome: audit.OutcomeSkipped,
				Reason:  "dataset not readable",
			})
			continue
		}
		candidates := r.identifierCandidates(fields)
		coverage = append(coverage, audit.CoverageRecord{
			Dataset:         tgt.Dataset,
			Fields:          fieldNames(fields),
			CandidateFields: fieldNames(candidates),
		})
		if len(candidates) == 0 {
			r.ledger.Tracef("dataset exit: %s (no identifier-capable fields)", tgt.Dataset)
			continue
		}

		cur, err := r.ws.Search(ctx, tgt.Dataset, fieldNames(candidates))
		if err != nil {
			r.ledger.Append(audit.Entry{
				Dataset: tgt.Dataset,
				Outcome: audit.OutcomeSkipped,
				Reason:  "dataset not readable",
				Detail:  err.Error(),
			})
			continue
		}
		rows := 0
		for cur.Next() {
			id, vals := cur.Row()
			rows++
			for i, f := range candidates {
				if r.pol.IsPlaceholder(vals[i]) {
					continue
				}
				occurrences = append(occurrences, dedupe.Occurrence{
					Dataset: tgt.Dataset,
					RowID:   id,
					Field:   f,
					Raw:     vals[i],
				})
			}
		}
		iterErr := cur.Err()
		cur.Close()
		if iterErr != nil {
			r.ledger.Append(audit.Entry{
				Dataset: tgt.Dataset,
				Outcome: audit.OutcomeError,
				Reason:  "cursor failure",
				Detail:  iterErr.Error(),
			})
		}
		r.ledger.Tracef("dataset exit: %s (%d rows, %d candidate fields)", tgt.Dataset, rows, len(candidates))
	}
	return occurrences, coverage, nil
}

// applyPlan hands each dataset's planned edits to the mutator, or
// reports them as skipped when dry-running. Infrastructure failures are
// dataset-scoped: recorded and survived.
func (r *runner) applyPlan(ctx context.Context, plan *dedupe.Plan) {
	m := mutate.New(r.ws, r.ledger, r.log)
	for _, ds := range plan.Datasets {
		if r.cfg.DryRun {
			for _, e := range ds.Edits {
				r.ledger.Append(audit.Entry{
					Dataset: ds.Dataset,
					RowID:   strconv.FormatInt(e.RowID, 10),
					Field:   e.Field.Name,
					Outcome: audit.OutcomeSkipped,
					Reason:  "dry run",
				})
			}
			continue
		}

		edits := make([]mutate.Edit, len(ds.Edits))
		for i, e := range ds.Edits {
			edits[i] = mutate.Edit{
				RowID:    e.RowID,
				Field:    e.Field,
				NewValue: e.NewValue,
				Reason:   e.Rationale,
			}
		}
		state, err := m.Apply(ctx, ds.Dataset, edits)
		if err != nil && ctx.Err() != nil {
			// Cooperative cancellation at dataset granularity: the
			// remaining datasets are reported untouched.
			r.reportCancelled(plan, ds.Dataset)
			return
		}
		if err != nil {
			r.log.Error("dataset batch failed", "dataset", ds.Dataset, "state", state, "error", err)
		}
	}
}

// reportCancelled records skipped entries for every dataset after the
// one that observed cancellation.
func (r *runner) reportCancelled(plan *dedupe.Plan, after string) {
	past := false
	for _, ds := range plan.Datasets {
		if ds.Dataset == after {
			past = true
			continue
		}
		if !past {
			continue
		}
		for _, e := range ds.Edits {
			r.ledger.Append(audit.Entry{
				Dataset: ds.Dataset,
				RowID:   strconv.FormatInt(e.RowID, 10),
				Field:   e.Field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "run cancelled",
			})
		}
	}
}

// freshKey generates a key absent from used, bounded by the policy's
// collision retry limit.
func (r *runner) freshKey(used map[guid.Key]struct{}) (guid.Key, bool) {
	for attempt := 0; attempt < r.pol.CollisionRetryLimit; attempt++ {
		k := r.gen.NewKey()
		if _, taken := used[k]; taken {
			continue
		}
		used[k] = struct{}{}
		return k, true
	}
	return "", false
}

func fieldNames(fields []gdb.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
