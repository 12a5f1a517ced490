// Package alias resolves a semantic field alias to a physical field.
//
// Alias-to-name mapping drifts across schemas: the same governance
// target ("Primary Key Identifier") can be an exact alias in one
// dataset and only a fragment of one in another. Resolution is a pure
// lookup over a dataset's field list, re-evaluated per dataset, with
// deterministic tie-breaking: exact normalized match first, then a
// substring fallback accepted only when it names exactly one candidate.
// Anything else is Ambiguous or NotFound, both non-fatal per-dataset
// outcomes.
package alias

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/fieldstone/gdbgov/internal/gdb"
)

// MatchKind classifies the outcome of a resolution.
type MatchKind int

const (
	// MatchExact means exactly one field's alias equals the target
	// after normalization.
	MatchExact MatchKind = iota
	// MatchFallback means zero exact matches but exactly one field
	// alias contains the target as a substring.
	MatchFallback
	// Ambiguous means more than one equally-good candidate exists.
	Ambiguous
	// NotFound means no candidate at any tier.
	NotFound
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchFallback:
		return "fallback"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not-found"
	}
}

// Result is the resolution outcome for one dataset. Field is only
// meaningful for MatchExact and MatchFallback; Candidates lists the
// competing field names on Ambiguous.
type Result struct {
	Field      gdb.Field
	Kind       MatchKind
	Candidates []string
}

var foldCaser = cases.Fold()

// normalizeAlias canonicalizes alias text for comparison: Unicode NFC,
// case folding, and interior whitespace collapsed to single spaces.
func normalizeAlias(s string) string {
	folded := foldCaser.String(norm.NFC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// stripSpaces removes every space from normalized alias text. The
// fallback tier compares space-free forms: "primary key" occurs inside
// "primarykeyid" even though the alias text carries no spaces.
func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// Resolve finds the field matching targetAlias among fields. Pure; the
// field list is never mutated.
func Resolve(fields []gdb.Field, targetAlias string) Result {
	target := normalizeAlias(targetAlias)
	if target == "" {
		return Result{Kind: NotFound}
	}

	var exact []gdb.Field
	var partial []gdb.Field
	bare := stripSpaces(target)
	for _, f := range fields {
		a := normalizeAlias(f.Alias)
		if a == "" {
			continue
		}
		switch {
		case a == target:
			exact = append(exact, f)
		case strings.Contains(stripSpaces(a), bare):
			partial = append(partial, f)
		}
	}

	switch {
	case len(exact) == 1:
		return Result{Field: exact[0], Kind: MatchExact}
	case len(exact) > 1:
		return Result{Kind: Ambiguous, Candidates: fieldNames(exact)}
	case len(partial) == 1:
		return Result{Field: partial[0], Kind: MatchFallback}
	case len(partial) > 1:
		// Multiple fallback candidates: report ambiguity rather than
		// guess a preference.
		return Result{Kind: Ambiguous, Candidates: fieldNames(partial)}
	default:
		return Result{Kind: NotFound}
	}
}

func fieldNames(fields []gdb.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
