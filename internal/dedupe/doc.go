// Package dedupe detects duplicate identifier values across every
// scanned dataset and plans the rewrites that resolve them.
//
// Detection is global: occurrences from all datasets and fields are
// grouped by canonical key in traversal order, so two rows in different
// feature classes holding "{ab12...}" and "AB12..." are the same
// duplicate group. Within a group the canonical occurrence is kept
// unchanged - an occurrence in a protected identity field anchors the
// group; otherwise the first-seen occurrence does. Every other
// occurrence is assigned a freshly generated key guaranteed not to
// collide with any key seen or generated in the run.
//
// The detector plans; it never writes. The mutator applies the plan
// under lock, and the plan's skip and error entries flow straight into
// the audit ledger.
package dedupe
