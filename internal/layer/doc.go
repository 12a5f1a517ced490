// Package layer models the active map's layer tree and resolves it to
// concrete dataset targets.
//
// A map document is a YAML file describing nested groups and leaf
// layers. Traversal is depth-first in declared order, so the writable
// target sequence is reproducible across runs for the same map state.
// Leaves backed by service endpoints or joined views are excluded from
// the writable set; they can still be surfaced as tagged read-only
// targets for audit coverage.
//
// Several layers often reference the same dataset. Targets are
// deduplicated by dataset so each dataset is read and edited once, with
// every referencing layer name recorded.
package layer
