package govern

import (
	"context"
	"strconv"

	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/gdb"
	"github.com/fieldstone/gdbgov/internal/layer"
	"github.com/fieldstone/gdbgov/internal/mutate"
)

// runCalc writes the policy fill value into every row of the resolved
// text field whose current value is a placeholder sentinel. The fill
// value is an opaque string, not an identifier, so no collision
// tracking applies.
func (r *runner) runCalc(ctx context.Context, targets []layer.Target, summary *Summary) error {
	m := mutate.New(r.ws, r.ledger, r.log)
	for ti, tgt := range targets {
		field, ok := r.resolveTargetField(ctx, tgt, func(f gdb.Field) (string, bool) {
			if f.Type != gdb.TypeText {
				return "unsupported field type", false
			}
			if f.Length > 0 && len(r.pol.FillValue) > f.Length {
				return "fill value exceeds field length", false
			}
			return "", true
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
		var edits []mutate.Edit
		for cur.Next() {
			id, vals := cur.Row()
			if !r.pol.IsPlaceholder(vals[0]) {
				continue
			}
			edits = append(edits, mutate.Edit{
				RowID:    id,
				Field:    field,
				NewValue: r.pol.FillValue,
				Reason:   "filled placeholder value",
			})
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
		summary.Occurrences += len(edits)
		if len(edits) == 0 {
			r.ledger.Tracef("dataset %s: no placeholder values", tgt.Dataset)
			continue
		}

		if r.cfg.DryRun {
			for _, e := range edits {
				r.ledger.Append(audit.Entry{
					Dataset: tgt.Dataset,
					RowID:   strconv.FormatInt(e.RowID, 10),
					Field:   e.Field.Name,
					Outcome: audit.OutcomeSkipped,
					Reason:  "dry run",
				})
			}
			continue
		}
		if _, err := m.Apply(ctx, tgt.Dataset, edits); err != nil {
			if ctx.Err() != nil {
				for _, rest := range targets[ti+1:] {
					r.ledger.Append(audit.Entry{
						Dataset: rest.Dataset,
						Outcome: audit.OutcomeSkipped,
						Reason:  "run cancelled",
					})
				}
				return nil
			}
			r.log.Error("dataset batch failed", "dataset", tgt.Dataset, "error", err)
		}
	}
	return nil
}
