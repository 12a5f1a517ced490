package dedupe

import (
	"fmt"
	"strconv"

	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/gdb"
	"github.com/fieldstone/gdbgov/internal/guid"
)

// Occurrence is one identifier value found during the scan phase.
// Occurrences arrive in traversal order (dataset order from the layer
// resolver, row order within a dataset, field order within a row) and
// that order decides which occurrence of a duplicate group is
// canonical.
type Occurrence struct {
	Dataset string
	RowID   int64
	Field   gdb.Field
	Raw     string
}

// Group is one duplicate set: every occurrence sharing a canonical key.
type Group struct {
	Key         guid.Key
	Occurrences []Occurrence
}

// Edit is one planned rewrite.
type Edit struct {
	RowID     int64
	Field     gdb.Field
	OldRaw    string
	NewKey    guid.Key
	NewValue  string
	Rationale string
}

// DatasetEdits carries a dataset's planned rewrites in apply order.
type DatasetEdits struct {
	Dataset string
	Edits   []Edit
}

// Plan is the full output of duplicate detection: rewrites to apply per
// dataset plus the audit entries already decided during planning
// (protected-field skips, malformed flags, collision-retry errors).
type Plan struct {
	Datasets []DatasetEdits
	Entries  []audit.Entry
	Groups   []Group
}

// EditCount returns the total number of planned rewrites.
func (p *Plan) EditCount() int {
	n := 0
	for _, d := range p.Datasets {
		n += len(d.Edits)
	}
	return n
}

// Detector groups occurrences and assigns replacement keys.
type Detector struct {
	gen        guid.Generator
	retryLimit int
	protected  func(gdb.Field) bool
}

// NewDetector creates a detector. retryLimit bounds regeneration
// attempts per occurrence; protected reports fields that must never be
// reassigned.
func NewDetector(gen guid.Generator, retryLimit int, protected func(gdb.Field) bool) *Detector {
	return &Detector{gen: gen, retryLimit: retryLimit, protected: protected}
}

// Plan builds the duplicate groups and the rewrite plan.
//
// Guarantees:
//   - the canonical occurrence of every group is never edited;
//   - no planned key collides with any key present in the run, original
//     or previously generated;
//   - every skip and every regeneration failure yields exactly one
//     audit entry; planned rewrites yield their entries at apply time.
func (d *Detector) Plan(occurrences []Occurrence) *Plan {
	plan := &Plan{}

	// Group valid occurrences by canonical key, first-seen order.
	used := make(map[guid.Key]struct{})
	groups := make(map[guid.Key]int)
	var order []guid.Key
	for _, occ := range occurrences {
		key, err := guid.Normalize(occ.Raw)
		if err != nil {
			// Malformed values are flagged but cannot be compared for
			// equality, so they never join a duplicate group.
			plan.Entries = append(plan.Entries, audit.Entry{
				Dataset: occ.Dataset,
				RowID:   strconv.FormatInt(occ.RowID, 10),
				Field:   occ.Field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "malformed identifier",
			})
			continue
		}
		used[key] = struct{}{}
		idx, ok := groups[key]
		if !ok {
			idx = len(plan.Groups)
			groups[key] = idx
			order = append(order, key)
			plan.Groups = append(plan.Groups, Group{Key: key})
		}
		plan.Groups[idx].Occurrences = append(plan.Groups[idx].Occurrences, occ)
	}

	// Resolve each duplicate group.
	editsByDataset := make(map[string]int)
	for _, key := range order {
		g := plan.Groups[groups[key]]
		if len(g.Occurrences) < 2 {
			continue
		}

		masters, anchor := d.selectMasters(g.Occurrences)
		var targets []Occurrence
		for i, occ := range g.Occurrences {
			if masters[i] {
				continue
			}
			if d.protected(occ.Field) {
				plan.Entries = append(plan.Entries, audit.Entry{
					Dataset: occ.Dataset,
					RowID:   strconv.FormatInt(occ.RowID, 10),
					Field:   occ.Field.Name,
					Outcome: audit.OutcomeSkipped,
					Reason:  "protected field",
				})
				continue
			}
			targets = append(targets, occ)
		}

		// TEXT rewrites first, then GUID fields, preserving traversal
		// order within each tier.
		for _, tier := range []gdb.FieldType{gdb.TypeText, gdb.TypeGUID} {
			for _, occ := range targets {
				if occ.Field.Type != tier {
					continue
				}
				d.stageEdit(plan, editsByDataset, used, occ, key, anchor)
			}
		}
		// Anything neither TEXT nor GUID (future carrier types) goes last.
		for _, occ := range targets {
			if occ.Field.Type == gdb.TypeText || occ.Field.Type == gdb.TypeGUID {
				continue
			}
			d.stageEdit(plan, editsByDataset, used, occ, key, anchor)
		}
	}

	return plan
}

// selectMasters decides which occurrence of a group stays unchanged.
// The first protected-field occurrence anchors the group when one is
// present; otherwise the first-seen occurrence is canonical. Exactly
// one occurrence is ever master, so every further protected occurrence
// reaches the caller's skip branch and yields its audit entry.
func (d *Detector) selectMasters(occs []Occurrence) (map[int]bool, string) {
	masters := make(map[int]bool)
	for i, occ := range occs {
		if d.protected(occ.Field) {
			masters[i] = true
			return masters, "protected field anchors"
		}
	}
	masters[0] = true
	return masters, "first occurrence anchors"
}

func (d *Detector) stageEdit(plan *Plan, editsByDataset map[string]int, used map[guid.Key]struct{}, occ Occurrence, dupKey guid.Key, anchor string) {
	newKey, ok := d.freshKey(used)
	if !ok {
		plan.Entries = append(plan.Entries, audit.Entry{
			Dataset: occ.Dataset,
			RowID:   strconv.FormatInt(occ.RowID, 10),
			Field:   occ.Field.Name,
			Outcome: audit.OutcomeError,
			Reason:  "collision retry limit exceeded",
			Detail:  fmt.Sprintf("gave up after %d attempts to generate a non-colliding identifier", d.retryLimit),
		})
		return
	}

	style := guid.StyleHyphen
	if occ.Field.Type == gdb.TypeText {
		style = guid.DetectStyle(occ.Raw)
	}

	idx, okDS := editsByDataset[occ.Dataset]
	if !okDS {
		idx = len(plan.Datasets)
		editsByDataset[occ.Dataset] = idx
		plan.Datasets = append(plan.Datasets, DatasetEdits{Dataset: occ.Dataset})
	}
	plan.Datasets[idx].Edits = append(plan.Datasets[idx].Edits, Edit{
		RowID:     occ.RowID,
		Field:     occ.Field,
		OldRaw:    occ.Raw,
		NewKey:    newKey,
		NewValue:  guid.FormatLike(newKey, style),
		Rationale: fmt.Sprintf("duplicate of %s; %s", dupKey, anchor),
	})
}

// freshKey generates a key absent from the used set, retrying up to the
// configured bound.
func (d *Detector) freshKey(used map[guid.Key]struct{}) (guid.Key, bool) {
	for attempt := 0; attempt < d.retryLimit; attempt++ {
		k := d.gen.NewKey()
		if _, taken := used[k]; taken {
			continue
		}
		used[k] = struct{}{}
		return k, true
	}
	return "", false
}
