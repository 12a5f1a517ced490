// Package guid canonicalizes and generates globally-unique identifier
// strings for the governance engine.
//
// Identifier values arrive in several textual shapes: plain hyphenated
// ("AB12..."), compact 32-hex, and either of those wrapped in braces.
// Normalize collapses all of them onto a single canonical key (uppercase,
// hyphenated 8-4-4-4-12) so two occurrences are the same identity exactly
// when their canonical keys are equal, regardless of original formatting.
//
// Style handling is separate from identity: a TEXT field that
// stored "{ab12...}" keeps its braces when rewritten, while a declared GUID
// field always stores the plain hyphenated form. DetectStyle and FormatLike
// implement that round trip.
//
// Generation goes through the Generator interface so tests can substitute a
// FixedGenerator for deterministic output.
package guid
