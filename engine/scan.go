package engine

import (
	"context"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/planner"
	"github.com/wyrmfield/cypherdb/storage"
)

// scanNodeCandidates resolves the source iterator for a node pattern,
// using an index probe when the planner's single rule applies, otherwise
// a label scan (spec.md §4.4.1 step 1).
func scanNodeCandidates(ctx context.Context, store storage.Engine, labels []string, litFilter map[string]any) (storage.NodeIterator, error) {
	decision := planner.Choose(ctx, store, labels, litFilter)
	if decision.UseIndex {
		lookuper := store.(storage.IndexLookuper)
		return lookuper.IndexLookup(ctx, decision.Label, decision.Property, decision.Value)
	}
	return store.ScanNodes(ctx, storage.ScanSpec{Labels: labels})
}

// remainingFilter returns the literal filter keys not already satisfied
// by the index probe on usedProp: the whole filter when no index was used,
// nil when the index covered the only key.
func remainingFilter(litFilter map[string]any, usedIndex bool, usedProp string) map[string]any {
	if !usedIndex || len(litFilter) <= 1 {
		if usedIndex {
			return nil
		}
		return litFilter
	}
	out := map[string]any{}
	for k, v := range litFilter {
		if k == usedProp {
			continue
		}
		out[k] = v
	}
	return out
}

// matchNodes drains every node candidate matching labels+literal filter,
// used by MatchMultiReturn/MatchChain where full materialization up front
// is the simplest correct implementation.
func matchNodes(ctx context.Context, store storage.Engine, labels []string, litFilter map[string]any) ([]*graph.NodeRecord, error) {
	decision := planner.Choose(ctx, store, labels, litFilter)
	var iter storage.NodeIterator
	var err error
	if decision.UseIndex {
		lookuper := store.(storage.IndexLookuper)
		iter, err = lookuper.IndexLookup(ctx, decision.Label, decision.Property, decision.Value)
	} else {
		iter, err = store.ScanNodes(ctx, storage.ScanSpec{Labels: labels})
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "scan_nodes", Err: err}
	}
	rest := litFilter
	if decision.UseIndex {
		rest = remainingFilter(litFilter, true, decision.Property)
	}
	var out []*graph.NodeRecord
	for {
		n, ok, err := iter.Next()
		if err != nil {
			return nil, &storage.StorageError{Op: "scan_nodes", Err: err}
		}
		if !ok {
			break
		}
		if !n.HasAllLabels(labels) {
			continue
		}
		if !matchesProperties(n.Properties, rest) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// incidentRels returns the relationships touching nodeID that match
// direction/type, using OutgoingRel/IncomingRel when available, otherwise
// falling back to a full relationship scan (spec.md §4.4.2).
func incidentRels(ctx context.Context, store storage.Engine, nodeID graph.NodeID, dir ast.Direction, relType string) ([]*graph.RelRecord, error) {
	var out []*graph.RelRecord
	switch dir {
	case ast.DirOut:
		rels, err := outgoing(ctx, store, nodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, filterType(rels, relType)...)
	case ast.DirIn:
		rels, err := incoming(ctx, store, nodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, filterType(rels, relType)...)
	default:
		o, err := outgoing(ctx, store, nodeID)
		if err != nil {
			return nil, err
		}
		i, err := incoming(ctx, store, nodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, filterType(o, relType)...)
		out = append(out, filterType(i, relType)...)
	}
	return out, nil
}

func filterType(rels []*graph.RelRecord, relType string) []*graph.RelRecord {
	if relType == "" {
		return rels
	}
	var out []*graph.RelRecord
	for _, r := range rels {
		if r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

func outgoing(ctx context.Context, store storage.Engine, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	if og, ok := store.(storage.OutgoingRel); ok {
		rels, err := og.OutgoingRelationships(ctx, nodeID)
		if err != nil {
			return nil, &storage.StorageError{Op: "outgoing_relationships", Err: err}
		}
		return rels, nil
	}
	return scanAndFilter(ctx, store, func(r *graph.RelRecord) bool { return r.StartNode == nodeID })
}

func incoming(ctx context.Context, store storage.Engine, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	if ic, ok := store.(storage.IncomingRel); ok {
		rels, err := ic.IncomingRelationships(ctx, nodeID)
		if err != nil {
			return nil, &storage.StorageError{Op: "incoming_relationships", Err: err}
		}
		return rels, nil
	}
	return scanAndFilter(ctx, store, func(r *graph.RelRecord) bool { return r.EndNode == nodeID })
}

func scanAndFilter(ctx context.Context, store storage.Engine, keep func(*graph.RelRecord) bool) ([]*graph.RelRecord, error) {
	scanner, ok := store.(storage.RelScanner)
	if !ok {
		return nil, &storage.FeatureUnsupportedError{Op: "scan_relationships"}
	}
	iter, err := scanner.ScanRelationships(ctx)
	if err != nil {
		return nil, &storage.StorageError{Op: "scan_relationships", Err: err}
	}
	var out []*graph.RelRecord
	for {
		r, ok, err := iter.Next()
		if err != nil {
			return nil, &storage.StorageError{Op: "scan_relationships", Err: err}
		}
		if !ok {
			break
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// allRels drains a full relationship scan. No executor in this package
// calls it; variable-length BFS enumerates edges through incidentRels.
func allRels(ctx context.Context, store storage.Engine) ([]*graph.RelRecord, error) {
	return scanAndFilter(ctx, store, func(*graph.RelRecord) bool { return true })
}
