package govern

import (
	"context"

	"github.com/fieldstone/gdbgov/internal/dedupe"
	"github.com/fieldstone/gdbgov/internal/layer"
)

// runDedupe scans every identifier-capable field across the writable
// targets, resolves duplicate groups canonical-first, and applies the
// rewrite plan per dataset.
func (r *runner) runDedupe(ctx context.Context, targets []layer.Target, summary *Summary) error {
	occurrences, _, err := r.collectIdentifiers(ctx, targets)
	if err != nil {
		return err
	}
	summary.Occurrences = len(occurrences)

	detector := dedupe.NewDetector(r.gen, r.pol.CollisionRetryLimit, r.pol.IsProtected)
	plan := detector.Plan(occurrences)

	for _, g := range plan.Groups {
		if len(g.Occurrences) < 2 {
			continue
		}
		summary.DuplicateGroups++
		r.ledger.Tracef("duplicate group: %s (%d occurrences)", g.Key, len(g.Occurrences))
	}
	r.ledger.Tracef("dedupe plan: %d groups, %d rewrites planned", summary.DuplicateGroups, plan.EditCount())

	for _, e := range plan.Entries {
		r.ledger.Append(e)
	}
	r.applyPlan(ctx, plan)
	return nil
}
