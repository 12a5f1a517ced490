package layer

import (
	"errors"
	"sort"
)

// ErrWorkspaceUnavailable is the fatal traversal failure: the map has
// no resolvable datasets at all. Reported, not retried.
var ErrWorkspaceUnavailable = errors.New("workspace unavailable: active map has no loaded datasets")

// Target is one concrete dataset resolved from the layer tree.
type Target struct {
	Dataset string
	// Layers lists every layer name that references the dataset,
	// sorted for stable reporting.
	Layers []string
	// ReadOnly marks service/join-backed targets that may appear in
	// audits but never receive writes.
	ReadOnly bool
	// Reason explains why a target is read-only.
	Reason string
}

// ResolveTargets walks the map depth-first in declared order and
// returns the write-capable targets. When includeReadOnly is set, a
// second slice carries service/join targets tagged for read-only
// auditing.
//
// Datasets referenced by multiple layers appear once, at their
// first-seen traversal position.
func ResolveTargets(doc *MapDoc, includeReadOnly bool) (writable, readOnly []Target, err error) {
	if doc == nil || len(doc.Layers) == 0 {
		return nil, nil, ErrWorkspaceUnavailable
	}

	seenWritable := map[string]int{}
	seenReadOnly := map[string]int{}
	leaves := 0

	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for i := range nodes {
			n := &nodes[i]
			if len(n.Children) > 0 {
				walk(n.Children)
				continue
			}
			leaves++
			if n.Source == SourceLocal {
				if idx, ok := seenWritable[n.Dataset]; ok {
					writable[idx].Layers = append(writable[idx].Layers, n.Name)
					continue
				}
				seenWritable[n.Dataset] = len(writable)
				writable = append(writable, Target{Dataset: n.Dataset, Layers: []string{n.Name}})
				continue
			}
			if !includeReadOnly {
				continue
			}
			if idx, ok := seenReadOnly[n.Dataset]; ok {
				readOnly[idx].Layers = append(readOnly[idx].Layers, n.Name)
				continue
			}
			seenReadOnly[n.Dataset] = len(readOnly)
			readOnly = append(readOnly, Target{
				Dataset:  n.Dataset,
				Layers:   []string{n.Name},
				ReadOnly: true,
				Reason:   string(n.Source) + " layer",
			})
		}
	}
	walk(doc.Layers)

	if leaves == 0 {
		return nil, nil, ErrWorkspaceUnavailable
	}

	for i := range writable {
		sort.Strings(writable[i].Layers)
	}
	for i := range readOnly {
		sort.Strings(readOnly[i].Layers)
	}
	return writable, readOnly, nil
}
