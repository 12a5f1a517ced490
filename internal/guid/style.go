package guid

import "strings"

// Style describes how a raw identifier was formatted in its field.
// Rewrites of TEXT fields preserve the stored style so downstream
// consumers keyed to a particular shape keep working.
type Style int

const (
	// StyleHyphen is the plain hyphenated 8-4-4-4-12 form.
	StyleHyphen Style = iota
	// StyleCompact is 32 hex digits with no hyphens.
	StyleCompact
	// StyleBracedHyphen is the hyphenated form wrapped in braces.
	StyleBracedHyphen
	// StyleBracedCompact is the compact form wrapped in braces.
	StyleBracedCompact
)

// DetectStyle classifies the formatting of a raw value. Unrecognizable
// input defaults to StyleHyphen, which is also the storage form for
// declared GUID fields.
func DetectStyle(raw string) Style {
	s := strings.TrimSpace(raw)
	braced := strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
	core := s
	if braced {
		core = strings.TrimSpace(s[1 : len(s)-1])
	}
	hyphenated := strings.Contains(core, "-")
	switch {
	case braced && hyphenated:
		return StyleBracedHyphen
	case braced:
		return StyleBracedCompact
	case hyphenated:
		return StyleHyphen
	default:
		return StyleCompact
	}
}

// FormatLike renders a canonical key in the given style.
func FormatLike(k Key, style Style) string {
	switch style {
	case StyleCompact:
		return k.Compact()
	case StyleBracedHyphen:
		return "{" + string(k) + "}"
	case StyleBracedCompact:
		return "{" + k.Compact() + "}"
	default:
		return string(k)
	}
}
