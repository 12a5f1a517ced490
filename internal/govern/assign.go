package govern

import (
	"context"
	"strconv"
	"strings"

	"github.com/fieldstone/gdbgov/internal/alias"
	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/gdb"
	"github.com/fieldstone/gdbgov/internal/guid"
	"github.com/fieldstone/gdbgov/internal/layer"
	"github.com/fieldstone/gdbgov/internal/mutate"
)

// assignPlanned is one dataset's missing-identifier rows awaiting
// generation.
type assignPlanned struct {
	dataset string
	field   gdb.Field
	rowIDs  []int64
}

// runAssign resolves the policy's target alias per dataset and fills
// rows whose identifier is empty or a placeholder sentinel with fresh,
// run-wide non-colliding identifiers.
func (r *runner) runAssign(ctx context.Context, targets []layer.Target, summary *Summary) error {
	// Pass 1: resolve fields and collect both existing keys (the
	// collision set) and the rows needing assignment.
	used := make(map[guid.Key]struct{})
	var plans []assignPlanned
	for _, tgt := range targets {
		field, ok := r.resolveTargetField(ctx, tgt, func(f gdb.Field) (string, bool) {
			switch f.Type {
			case gdb.TypeGUID:
				return "", true
			case gdb.TypeText:
				if f.Length > 0 && f.Length < 36 {
					return "text field too short for identifier", false
				}
				return "", true
			default:
				return "unsupported field type", false
			}
		})
		if !ok {
			continue
		}

		cur, err := r.ws.Search(ctx, tgt.Dataset, []string{field.Name})
		if err != nil {
			r.ledger.Append(audit.Entry{
				Dataset: tgt.Dataset, Field: field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "dataset not readable",
				Detail:  err.Error(),
			})
			continue
		}
		plan := assignPlanned{dataset: tgt.Dataset, field: field}
		for cur.Next() {
			id, vals := cur.Row()
			if r.pol.IsPlaceholder(vals[0]) {
				plan.rowIDs = append(plan.rowIDs, id)
				continue
			}
			if key, err := guid.Normalize(vals[0]); err == nil {
				used[key] = struct{}{}
			} else {
				r.ledger.Tracef("malformed identifier left in place: %s row %d", tgt.Dataset, id)
			}
		}
		iterErr := cur.Err()
		cur.Close()
		if iterErr != nil {
			r.ledger.Append(audit.Entry{
				Dataset: tgt.Dataset, Field: field.Name,
				Outcome: audit.OutcomeError,
				Reason:  "cursor failure",
				Detail:  iterErr.Error(),
			})
			continue
		}
		if len(plan.rowIDs) == 0 {
			r.ledger.Tracef("dataset %s: no missing identifiers", tgt.Dataset)
			continue
		}
		plans = append(plans, plan)
	}

	// Pass 2: generate and apply per dataset.
	m := mutate.New(r.ws, r.ledger, r.log)
	for pi, p := range plans {
		var edits []mutate.Edit
		for _, rowID := range p.rowIDs {
			key, ok := r.freshKey(used)
			if !ok {
				r.ledger.Append(audit.Entry{
					Dataset: p.dataset,
					RowID:   strconv.FormatInt(rowID, 10),
					Field:   p.field.Name,
					Outcome: audit.OutcomeError,
					Reason:  "collision retry limit exceeded",
				})
				continue
			}
			edits = append(edits, mutate.Edit{
				RowID:    rowID,
				Field:    p.field,
				NewValue: string(key),
				Reason:   "assigned missing identifier",
			})
		}
		summary.Occurrences += len(edits)

		if r.cfg.DryRun {
			for _, e := range edits {
				r.ledger.Append(audit.Entry{
					Dataset: p.dataset,
					RowID:   strconv.FormatInt(e.RowID, 10),
					Field:   e.Field.Name,
					Outcome: audit.OutcomeSkipped,
					Reason:  "dry run",
				})
			}
			continue
		}
		if _, err := m.Apply(ctx, p.dataset, edits); err != nil {
			if ctx.Err() != nil {
				r.reportAssignCancelled(plans[pi+1:])
				return nil
			}
			r.log.Error("dataset batch failed", "dataset", p.dataset, "error", err)
		}
	}
	return nil
}

func (r *runner) reportAssignCancelled(rest []assignPlanned) {
	for _, p := range rest {
		for _, rowID := range p.rowIDs {
			r.ledger.Append(audit.Entry{
				Dataset: p.dataset,
				RowID:   strconv.FormatInt(rowID, 10),
				Field:   p.field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "run cancelled",
			})
		}
	}
}

// resolveTargetField runs alias resolution for one dataset and applies
// a mode-specific field acceptance check. Ambiguity, absence, and
// rejection are recorded as skipped entries; ok=false means the caller
// moves on to the next dataset.
func (r *runner) resolveTargetField(ctx context.Context, tgt layer.Target, accept func(gdb.Field) (string, bool)) (gdb.Field, bool) {
	fields, err := r.ws.Fields(ctx, tgt.Dataset)
	if err != nil {
		r.ledger.Append(audit.Entry{
			Dataset: tgt.Dataset,
			Outcome: audit.OutcomeSkipped,
			Reason:  "dataset not readable",
			Detail:  err.Error(),
		})
		return gdb.Field{}, false
	}

	res := alias.Resolve(fields, r.pol.TargetAlias)
	switch res.Kind {
	case alias.Ambiguous:
		r.ledger.Append(audit.Entry{
			Dataset: tgt.Dataset,
			Outcome: audit.OutcomeSkipped,
			Reason:  "ambiguous alias",
			Detail:  "candidates: " + strings.Join(res.Candidates, ", "),
		})
		r.ledger.Tracef("alias %q ambiguous in %s: %v", r.pol.TargetAlias, tgt.Dataset, res.Candidates)
		return gdb.Field{}, false
	case alias.NotFound:
		r.ledger.Append(audit.Entry{
			Dataset: tgt.Dataset,
			Outcome: audit.OutcomeSkipped,
			Reason:  "alias not found",
		})
		return gdb.Field{}, false
	}
	r.ledger.Tracef("alias resolved: %s.%s (%s match)", tgt.Dataset, res.Field.Name, res.Kind)

	if r.pol.IsProtected(res.Field) {
		r.ledger.Append(audit.Entry{
			Dataset: tgt.Dataset, Field: res.Field.Name,
			Outcome: audit.OutcomeSkipped,
			Reason:  "protected field",
		})
		return gdb.Field{}, false
	}
	if reason, ok := accept(res.Field); !ok {
		r.ledger.Append(audit.Entry{
			Dataset: tgt.Dataset, Field: res.Field.Name,
			Outcome: audit.OutcomeSkipped,
			Reason:  reason,
		})
		return gdb.Field{}, false
	}
	return res.Field, true
}
