// Package govern orchestrates identifier governance runs over an open
// workspace: resolve the active map to datasets, resolve identifier
// fields by alias, detect and regenerate duplicate identifiers, and
// apply guarded per-dataset edits, with every decision recorded on the
// audit ledger.
//
// Four modes share that pipeline:
//
//	scan   - read-only provenance and coverage reports, no mutation
//	dedupe - resolve duplicate identifiers across all carrier fields
//	assign - fill missing/placeholder identifiers in the alias-resolved
//	         field
//	calc   - fill missing/placeholder text values with a configured
//	         fill value
//
// Error discipline follows a strict taxonomy: only workspace-level
// failures (unreachable workspace, unloadable map or policy) abort a
// run. Dataset-scoped conditions (schema lock, ambiguous or missing
// alias) skip the dataset; row-scoped conditions (rejected write,
// malformed identifier, collision-retry exhaustion) skip the row. Every
// recoverable condition becomes exactly one audit entry, and partial
// failures never change the process exit code.
//
// Work is single-threaded and sequential per dataset: the underlying
// store's locking is coarse and cannot safely be interleaved across
// concurrent writers. External editing sessions are detected, never
// contended with.
package govern
