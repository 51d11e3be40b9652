package memstore

import (
	"context"
	"sync"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
)

// Begin opens a transaction scope. Every write made through the returned
// Tx is buffered in an overlay; reads issued against the Tx see the
// overlay first (spec.md §5 "reads see pending writes in the same
// transaction"), then fall back to the parent store. Commit applies the
// overlay atomically under the parent's lock; Rollback discards it.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	return &tx{parent: s, nodeOverlay: map[graph.NodeID]*graph.NodeRecord{}, nodeDeleted: map[graph.NodeID]bool{},
		relOverlay: map[graph.RelID]*graph.RelRecord{}, relDeleted: map[graph.RelID]bool{}}, nil
}

type tx struct {
	mu     sync.Mutex
	parent *Store

	nodeOverlay map[graph.NodeID]*graph.NodeRecord
	nodeDeleted map[graph.NodeID]bool
	relOverlay  map[graph.RelID]*graph.RelRecord
	relDeleted  map[graph.RelID]bool
	nextSeq     int64
}

func (t *tx) genID(prefix string) string {
	t.nextSeq++
	return prefixedTxID(t.parent, prefix, t.nextSeq)
}

func prefixedTxID(s *Store, prefix string, seq int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return prefix + itoa(s.nextID)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (t *tx) GetNodeByID(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodeDeleted[id] {
		return nil, nil
	}
	if n, ok := t.nodeOverlay[id]; ok {
		return cloneNode(n), nil
	}
	return t.parent.GetNodeByID(ctx, id)
}

func (t *tx) ScanNodes(ctx context.Context, spec storage.ScanSpec) (storage.NodeIterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	base, err := t.parent.ScanNodes(ctx, storage.ScanSpec{})
	if err != nil {
		return nil, err
	}
	seen := map[graph.NodeID]bool{}
	var out []*graph.NodeRecord
	for {
		n, more, err := base.Next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		seen[n.ID] = true
		if t.nodeDeleted[n.ID] {
			continue
		}
		if ov, ok := t.nodeOverlay[n.ID]; ok {
			n = ov
		}
		if n.HasAllLabels(spec.Labels) {
			out = append(out, cloneNode(n))
		}
	}
	for id, n := range t.nodeOverlay {
		if seen[id] || t.nodeDeleted[id] {
			continue
		}
		if n.HasAllLabels(spec.Labels) {
			out = append(out, cloneNode(n))
		}
	}
	return &sliceNodeIter{nodes: out}, nil
}

func (t *tx) CreateNode(ctx context.Context, labels []string, properties map[string]any) (*graph.NodeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.genID("n")
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	n := &graph.NodeRecord{ID: id, Labels: append([]string(nil), labels...), Properties: props}
	t.nodeOverlay[id] = n
	return cloneNode(n), nil
}

func (t *tx) getNodeLocked(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error) {
	if t.nodeDeleted[id] {
		return nil, storage.ErrNotFound
	}
	if n, ok := t.nodeOverlay[id]; ok {
		return n, nil
	}
	n, err := t.parent.GetNodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, storage.ErrNotFound
	}
	t.nodeOverlay[id] = n
	return n, nil
}

func (t *tx) DeleteNode(ctx context.Context, id graph.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.getNodeLocked(ctx, id); err != nil {
		return err
	}
	delete(t.nodeOverlay, id)
	t.nodeDeleted[id] = true

	rels, _ := t.allRelsLocked(ctx)
	for _, e := range rels {
		if e.StartNode == id || e.EndNode == id {
			t.relDeleted[e.ID] = true
			delete(t.relOverlay, e.ID)
		}
	}
	return nil
}

func (t *tx) UpdateNodeProperties(ctx context.Context, id graph.NodeID, patch map[string]any) (*graph.NodeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.getNodeLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	n = cloneNode(n)
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(n.Properties, k)
			continue
		}
		n.Properties[k] = v
	}
	t.nodeOverlay[id] = n
	return cloneNode(n), nil
}

func (t *tx) UpdateNodeLabels(ctx context.Context, id graph.NodeID, add, remove []string) (*graph.NodeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.getNodeLocked(ctx, id)
	if err != nil {
		return nil, err
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
	n2 := cloneNode(n)
	n2.Labels = labels
	t.nodeOverlay[id] = n2
	return cloneNode(n2), nil
}

func (t *tx) FindNode(ctx context.Context, labels []string, exact map[string]any) (*graph.NodeRecord, error) {
	it, err := t.ScanNodes(ctx, storage.ScanSpec{Labels: labels})
	if err != nil {
		return nil, err
	}
	for {
		n, more, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !more {
			return nil, nil
		}
		if matchesExact(n.Properties, exact) {
			return n, nil
		}
	}
}

func (t *tx) ListIndexes(ctx context.Context) ([]storage.IndexSpec, error) {
	return t.parent.ListIndexes(ctx)
}

func (t *tx) IndexLookup(ctx context.Context, label, property string, value any) (storage.NodeIterator, error) {
	it, err := t.ScanNodes(ctx, storage.ScanSpec{})
	if err != nil {
		return nil, err
	}
	var out []*graph.NodeRecord
	for {
		n, more, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		if label != "" && !n.HasLabel(label) {
			continue
		}
		if graph.Equal(n.Properties[property], value) {
			out = append(out, n)
		}
	}
	return &sliceNodeIter{nodes: out}, nil
}

func (t *tx) allRelsLocked(ctx context.Context) ([]*graph.RelRecord, error) {
	base, err := t.parent.ScanRelationships(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[graph.RelID]bool{}
	var out []*graph.RelRecord
	for {
		e, more, err := base.Next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		seen[e.ID] = true
		if t.relDeleted[e.ID] {
			continue
		}
		if ov, ok := t.relOverlay[e.ID]; ok {
			e = ov
		}
		out = append(out, e)
	}
	for id, e := range t.relOverlay {
		if seen[id] || t.relDeleted[id] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *tx) GetRelByID(ctx context.Context, id graph.RelID) (*graph.RelRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.relDeleted[id] {
		return nil, nil
	}
	if e, ok := t.relOverlay[id]; ok {
		return cloneRel(e), nil
	}
	return t.parent.GetRelByID(ctx, id)
}

func (t *tx) ScanRelationships(ctx context.Context) (storage.RelIterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rels, err := t.allRelsLocked(ctx)
	if err != nil {
		return nil, err
	}
	clones := make([]*graph.RelRecord, len(rels))
	for i, e := range rels {
		clones[i] = cloneRel(e)
	}
	return &sliceRelIter{rels: clones}, nil
}

func (t *tx) CreateRelationship(ctx context.Context, relType string, start, end graph.NodeID, properties map[string]any) (*graph.RelRecord, error) {
	t.mu.Lock()
	if _, err := t.getNodeLocked(ctx, start); err != nil {
		t.mu.Unlock()
		return nil, storage.ErrInvalidEdge
	}
	if _, err := t.getNodeLocked(ctx, end); err != nil {
		t.mu.Unlock()
		return nil, storage.ErrInvalidEdge
	}
	id := t.genID("e")
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	e := &graph.RelRecord{ID: id, Type: relType, StartNode: start, EndNode: end, Properties: props}
	t.relOverlay[id] = e
	t.mu.Unlock()
	return cloneRel(e), nil
}

func (t *tx) DeleteRelationship(ctx context.Context, id graph.RelID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.relOverlay, id)
	t.relDeleted[id] = true
	return nil
}

func (t *tx) UpdateRelProperties(ctx context.Context, id graph.RelID, patch map[string]any) (*graph.RelRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var e *graph.RelRecord
	if ov, ok := t.relOverlay[id]; ok {
		e = cloneRel(ov)
	} else {
		got, err := t.parent.GetRelByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if got == nil {
			return nil, storage.ErrNotFound
		}
		e = got
	}
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(e.Properties, k)
			continue
		}
		e.Properties[k] = v
	}
	t.relOverlay[id] = e
	return cloneRel(e), nil
}

func (t *tx) FindRel(ctx context.Context, relType string, start, end graph.NodeID) (*graph.RelRecord, error) {
	t.mu.Lock()
	rels, err := t.allRelsLocked(ctx)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, e := range rels {
		if e.Type == relType && e.StartNode == start && e.EndNode == end {
			return cloneRel(e), nil
		}
	}
	return nil, nil
}

func (t *tx) OutgoingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	t.mu.Lock()
	rels, err := t.allRelsLocked(ctx)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []*graph.RelRecord
	for _, e := range rels {
		if e.StartNode == nodeID {
			out = append(out, cloneRel(e))
		}
	}
	return out, nil
}

func (t *tx) IncomingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	t.mu.Lock()
	rels, err := t.allRelsLocked(ctx)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []*graph.RelRecord
	for _, e := range rels {
		if e.EndNode == nodeID {
			out = append(out, cloneRel(e))
		}
	}
	return out, nil
}

// Commit applies the overlay to the parent store atomically.
func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()

	for id := range t.nodeDeleted {
		delete(t.parent.nodes, id)
	}
	for id, n := range t.nodeOverlay {
		t.parent.nodes[id] = cloneNode(n)
	}
	for id := range t.relDeleted {
		delete(t.parent.edges, id)
	}
	for id, e := range t.relOverlay {
		t.parent.edges[id] = cloneRel(e)
	}
	return nil
}

// Rollback discards the overlay; the parent store is untouched.
func (t *tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeOverlay = map[graph.NodeID]*graph.NodeRecord{}
	t.nodeDeleted = map[graph.NodeID]bool{}
	t.relOverlay = map[graph.RelID]*graph.RelRecord{}
	t.relDeleted = map[graph.RelID]bool{}
	return nil
}
