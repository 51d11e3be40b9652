// Package planner implements the single-rule index-use decision described
// in spec.md §4 bullet 7 and §4.4.1: a MATCH with exactly one literal
// equality filter on a property covered by a matching single-column index
// uses an index probe instead of a label scan. There is no cost model —
// grounded on the teacher's pkg/cypher/index_hints.go heuristic, reduced
// to the one rule the spec names.
package planner

import (
	"context"

	"github.com/wyrmfield/cypherdb/storage"
)

// Decision is the planner's choice for one pattern's source selection.
type Decision struct {
	UseIndex bool
	Label    string
	Property string
	Value    any
}

// Choose decides whether an equality filter on labels[0] (if any) with
// exactly one property in literalFilter should use an index lookup.
// literalFilter must already be the caller's fully-evaluated literal
// equality map (spec.md §4.4.1 step 1: "property filter has exactly one
// equality").
func Choose(ctx context.Context, store storage.Engine, labels []string, literalFilter map[string]any) Decision {
	if len(literalFilter) != 1 {
		return Decision{}
	}
	if len(labels) == 0 {
		return Decision{}
	}
	lister, ok := store.(storage.IndexLister)
	if !ok {
		return Decision{}
	}
	if _, ok := store.(storage.IndexLookuper); !ok {
		return Decision{}
	}
	var prop string
	var val any
	for k, v := range literalFilter {
		prop, val = k, v
	}
	indexes, err := lister.ListIndexes(ctx)
	if err != nil {
		return Decision{}
	}
	label := labels[0]
	for _, idx := range indexes {
		if idx.Property == prop && idx.Label == label {
			return Decision{UseIndex: true, Label: label, Property: prop, Value: val}
		}
	}
	return Decision{}
}
