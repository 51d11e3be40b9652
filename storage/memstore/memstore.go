// Package memstore is the in-memory storage.Engine reference
// implementation used by the engine's own tests and the CLI's default
// mode. It implements every optional capability interface in the
// storage package, including Transactional, so the full write/merge/
// delete/transaction surface of the engine can be exercised without an
// external dependency.
//
// Grounded on the map-of-maps + mutex shape of the teacher's
// pkg/storage/memory.go, rebuilt small and scoped to the storage
// interface this engine defines.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
)

// Store is a thread-safe, in-memory labeled property graph.
type Store struct {
	mu      sync.RWMutex
	nodes   map[graph.NodeID]*graph.NodeRecord
	edges   map[graph.RelID]*graph.RelRecord
	nextID  int64
	indexes []storage.IndexSpec
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		nodes: map[graph.NodeID]*graph.NodeRecord{},
		edges: map[graph.RelID]*graph.RelRecord{},
	}
}

func (s *Store) genID(prefix string) string {
	n := atomic.AddInt64(&s.nextID, 1)
	return fmt.Sprintf("%s%d", prefix, n)
}

// CreateIndex registers a single-property index for the planner to
// discover via ListIndexes. Indexes are metadata only here — lookups
// still scan, but the planner's decision to use IndexLookup is what
// spec.md's "index equivalence" property is about, not the adapter's
// internal access path.
func (s *Store) CreateIndex(label, property string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = append(s.indexes, storage.IndexSpec{Label: label, Property: property})
}

// ---- required core ------------------------------------------------------

func (s *Store) GetNodeByID(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

type sliceNodeIter struct {
	nodes []*graph.NodeRecord
	i     int
}

func (it *sliceNodeIter) Next() (*graph.NodeRecord, bool, error) {
	if it.i >= len(it.nodes) {
		return nil, false, nil
	}
	n := it.nodes[it.i]
	it.i++
	return n, true, nil
}

func (s *Store) ScanNodes(ctx context.Context, spec storage.ScanSpec) (storage.NodeIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.NodeRecord
	for _, id := range s.sortedNodeIDs() {
		n := s.nodes[id]
		if n.HasAllLabels(spec.Labels) {
			out = append(out, cloneNode(n))
		}
	}
	return &sliceNodeIter{nodes: out}, nil
}

// sortedNodeIDs returns node ids in lexical order of their string form, so
// scans are deterministic across runs. This matches creation order only
// while generated ids have the same number of digits ("n10" sorts before
// "n2").
func (s *Store) sortedNodeIDs() []graph.NodeID {
	ids := make([]string, 0, len(s.nodes))
	lookup := map[string]graph.NodeID{}
	for id := range s.nodes {
		key := fmt.Sprintf("%v", id)
		ids = append(ids, key)
		lookup[key] = id
	}
	sort.Strings(ids)
	out := make([]graph.NodeID, len(ids))
	for i, k := range ids {
		out[i] = lookup[k]
	}
	return out
}

func cloneNode(n *graph.NodeRecord) *graph.NodeRecord {
	props := make(map[string]any, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	labels := append([]string(nil), n.Labels...)
	return &graph.NodeRecord{ID: n.ID, Labels: labels, Properties: props}
}

func cloneRel(e *graph.RelRecord) *graph.RelRecord {
	props := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return &graph.RelRecord{ID: e.ID, Type: e.Type, StartNode: e.StartNode, EndNode: e.EndNode, Properties: props}
}

// ---- optional node capabilities -----------------------------------------

func (s *Store) CreateNode(ctx context.Context, labels []string, properties map[string]any) (*graph.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.genID("n")
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	n := &graph.NodeRecord{ID: id, Labels: append([]string(nil), labels...), Properties: props}
	s.nodes[id] = n
	return cloneNode(n), nil
}

func (s *Store) DeleteNode(ctx context.Context, id graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return storage.ErrNotFound
	}
	for eid, e := range s.edges {
		if e.StartNode == id || e.EndNode == id {
			delete(s.edges, eid)
		}
	}
	delete(s.nodes, id)
	return nil
}

func (s *Store) UpdateNodeProperties(ctx context.Context, id graph.NodeID, patch map[string]any) (*graph.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(n.Properties, k)
			continue
		}
		n.Properties[k] = v
	}
	return cloneNode(n), nil
}

func (s *Store) UpdateNodeLabels(ctx context.Context, id graph.NodeID, add, remove []string) (*graph.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	set := map[string]bool{}
	for _, l := range n.Labels {
		set[l] = true
	}
	for _, l := range remove {
		delete(set, l)
	}
	for _, l := range add {
		set[l] = true
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	n.Labels = labels
	return cloneNode(n), nil
}

func (s *Store) FindNode(ctx context.Context, labels []string, exact map[string]any) (*graph.NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.sortedNodeIDs() {
		n := s.nodes[id]
		if !n.HasAllLabels(labels) {
			continue
		}
		if matchesExact(n.Properties, exact) {
			return cloneNode(n), nil
		}
	}
	return nil, nil
}

func matchesExact(props, exact map[string]any) bool {
	for k, v := range exact {
		if !graph.Equal(props[k], v) {
			return false
		}
	}
	return true
}

// ---- index capabilities --------------------------------------------------

func (s *Store) ListIndexes(ctx context.Context) ([]storage.IndexSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.IndexSpec(nil), s.indexes...), nil
}

func (s *Store) IndexLookup(ctx context.Context, label, property string, value any) (storage.NodeIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.NodeRecord
	for _, id := range s.sortedNodeIDs() {
		n := s.nodes[id]
		if label != "" && !n.HasLabel(label) {
			continue
		}
		if graph.Equal(n.Properties[property], value) {
			out = append(out, cloneNode(n))
		}
	}
	return &sliceNodeIter{nodes: out}, nil
}

// ---- relationship capabilities -------------------------------------------

func (s *Store) GetRelByID(ctx context.Context, id graph.RelID) (*graph.RelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, nil
	}
	return cloneRel(e), nil
}

type sliceRelIter struct {
	rels []*graph.RelRecord
	i    int
}

func (it *sliceRelIter) Next() (*graph.RelRecord, bool, error) {
	if it.i >= len(it.rels) {
		return nil, false, nil
	}
	e := it.rels[it.i]
	it.i++
	return e, true, nil
}

func (s *Store) sortedRelIDs() []graph.RelID {
	ids := make([]string, 0, len(s.edges))
	lookup := map[string]graph.RelID{}
	for id := range s.edges {
		key := fmt.Sprintf("%v", id)
		ids = append(ids, key)
		lookup[key] = id
	}
	sort.Strings(ids)
	out := make([]graph.RelID, len(ids))
	for i, k := range ids {
		out[i] = lookup[k]
	}
	return out
}

func (s *Store) ScanRelationships(ctx context.Context) (storage.RelIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.RelRecord
	for _, id := range s.sortedRelIDs() {
		out = append(out, cloneRel(s.edges[id]))
	}
	return &sliceRelIter{rels: out}, nil
}

func (s *Store) CreateRelationship(ctx context.Context, relType string, start, end graph.NodeID, properties map[string]any) (*graph.RelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[start]; !ok {
		return nil, storage.ErrInvalidEdge
	}
	if _, ok := s.nodes[end]; !ok {
		return nil, storage.ErrInvalidEdge
	}
	id := s.genID("e")
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	e := &graph.RelRecord{ID: id, Type: relType, StartNode: start, EndNode: end, Properties: props}
	s.edges[id] = e
	return cloneRel(e), nil
}

func (s *Store) DeleteRelationship(ctx context.Context, id graph.RelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.edges, id)
	return nil
}

func (s *Store) UpdateRelProperties(ctx context.Context, id graph.RelID, patch map[string]any) (*graph.RelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(e.Properties, k)
			continue
		}
		e.Properties[k] = v
	}
	return cloneRel(e), nil
}

func (s *Store) FindRel(ctx context.Context, relType string, start, end graph.NodeID) (*graph.RelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.sortedRelIDs() {
		e := s.edges[id]
		if e.Type == relType && e.StartNode == start && e.EndNode == end {
			return cloneRel(e), nil
		}
	}
	return nil, nil
}

func (s *Store) OutgoingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.RelRecord
	for _, id := range s.sortedRelIDs() {
		e := s.edges[id]
		if e.StartNode == nodeID {
			out = append(out, cloneRel(e))
		}
	}
	return out, nil
}

func (s *Store) IncomingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.RelRecord
	for _, id := range s.sortedRelIDs() {
		e := s.edges[id]
		if e.EndNode == nodeID {
			out = append(out, cloneRel(e))
		}
	}
	return out, nil
}
