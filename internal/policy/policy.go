// Package policy defines the governance policy that parameterizes a
// run: which alias to target, which values count as placeholders, which
// fields are protected from reassignment, and the collision retry
// bound. Policies are written as CUE and loaded from a directory, with
// unset fields falling back to defaults.
package policy

import (
	"strings"

	"github.com/fieldstone/gdbgov/internal/gdb"
)

// Policy is the effective configuration for one governance run.
type Policy struct {
	// TargetAlias is the semantic alias resolved per dataset for the
	// assign and calc modes.
	TargetAlias string `json:"targetAlias"`

	// Placeholders are sentinel values treated as "no identifier",
	// compared case-insensitively after trimming.
	Placeholders []string `json:"placeholders"`

	// ProtectedFields are field names that must never be reassigned,
	// in addition to every GLOBALID-typed field.
	ProtectedFields []string `json:"protectedFields"`

	// CollisionRetryLimit bounds regeneration attempts when a freshly
	// generated key collides with one already seen in the run.
	CollisionRetryLimit int `json:"collisionRetryLimit"`

	// FillValue is the text written by the calc mode.
	FillValue string `json:"fillValue"`

	// MinTextGUIDLength is the minimum declared length for a TEXT
	// field to be scanned as an identifier carrier. Unbounded TEXT
	// fields always qualify.
	MinTextGUIDLength int `json:"minTextGuidLength"`
}

// Default returns the stock policy matching the governance conventions
// the regulated schemas were authored against.
func Default() Policy {
	return Policy{
		TargetAlias:         "Primary Key Identifier",
		Placeholders:        []string{"", " ", "TBD", "NULL", "N/A", "NA", "NONE", "UNKNOWN"},
		ProtectedFields:     []string{"GlobalID"},
		CollisionRetryLimit: 5,
		MinTextGUIDLength:   32,
	}
}

// IsPlaceholder reports whether a stored value counts as missing.
func (p Policy) IsPlaceholder(v string) bool {
	t := strings.ToUpper(strings.TrimSpace(v))
	if t == "" {
		return true
	}
	for _, ph := range p.Placeholders {
		if t == strings.ToUpper(strings.TrimSpace(ph)) {
			return true
		}
	}
	return false
}

// IsProtected reports whether a field must never be reassigned. Every
// GLOBALID-typed field is protected regardless of policy; named
// protections compare case-insensitively.
func (p Policy) IsProtected(f gdb.Field) bool {
	if f.Type == gdb.TypeGlobalID || f.Type == gdb.TypeOID {
		return true
	}
	for _, name := range p.ProtectedFields {
		if strings.EqualFold(name, f.Name) {
			return true
		}
	}
	return false
}
