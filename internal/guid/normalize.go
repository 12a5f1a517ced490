package guid

import (
	"fmt"
	"regexp"
	"strings"
)

// Key is a canonical identifier key: uppercase hex in hyphenated
// 8-4-4-4-12 form, no braces. Two raw values with equal Keys are the
// same identity for duplicate detection.
type Key string

// The two accepted core shapes after brace stripping: fully hyphenated
// 8-4-4-4-12, or 32 contiguous hex digits. Partially hyphenated input
// matches neither and is malformed.
var (
	guidHyphenRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	guidCompactRE = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
)

// MalformedError reports a raw value that cannot be read as a GUID.
// Malformed values are flagged in reports but excluded from duplicate
// grouping: they have no reliable identity to compare.
type MalformedError struct {
	Raw string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed identifier %q", e.Raw)
}

// Normalize canonicalizes a raw identifier string.
//
// Surrounding whitespace is trimmed, a matched brace pair stripped, hex
// digits uppercased, and the result validated: either the fully
// hyphenated 8-4-4-4-12 shape or 32 contiguous hex digits. An
// unbalanced brace or partial hyphenation returns a *MalformedError.
//
// Normalize is pure and idempotent: Normalize(string(k)) == k for any
// Key k it has produced.
func Normalize(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	opened := strings.HasPrefix(s, "{")
	closed := strings.HasSuffix(s, "}")
	if opened != closed {
		return "", &MalformedError{Raw: raw}
	}
	if opened {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	switch {
	case guidHyphenRE.MatchString(s):
		return Key(strings.ToUpper(s)), nil
	case guidCompactRE.MatchString(s):
		u := strings.ToUpper(s)
		return Key(u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]), nil
	default:
		return "", &MalformedError{Raw: raw}
	}
}

// IsMalformed reports whether err is a normalization failure.
// Uses errors.As semantics via direct type assertion on the chain root;
// Normalize never wraps.
func IsMalformed(err error) bool {
	_, ok := err.(*MalformedError)
	return ok
}

// Compact returns the 32-hex lowercase-free compact form of a key
// (hyphens removed, case preserved as canonical uppercase).
func (k Key) Compact() string {
	return strings.ReplaceAll(string(k), "-", "")
}
