package badgerstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
)

// Begin opens a standalone read-write badger.Txn. Every read issued
// through the returned Tx observes this transaction's own pending writes
// before they are committed (spec.md §5), since that is exactly what a
// live *badger.Txn already guarantees.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	return &Tx{store: s, txn: s.db.NewTransaction(true)}, nil
}

// Tx is a transaction scope over one badger.Txn, matching the interface
// Store itself exposes so the engine can use either uniformly once a
// transaction is open.
type Tx struct {
	store *Store
	txn   *badger.Txn
	done  bool
}

func (t *Tx) GetNodeByID(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error) {
	return getNode(t.txn, id)
}

func (t *Tx) ScanNodes(ctx context.Context, spec storage.ScanSpec) (storage.NodeIterator, error) {
	nodes, err := scanNodes(t.txn, spec.Labels)
	if err != nil {
		return nil, err
	}
	return &sliceNodeIter{nodes: nodes}, nil
}

func (t *Tx) CreateNode(ctx context.Context, labels []string, properties map[string]any) (*graph.NodeRecord, error) {
	seq, err := t.store.nodeSeq.Next()
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	n := &graph.NodeRecord{ID: fmt.Sprintf("n%d", seq), Labels: append([]string(nil), labels...), Properties: props}
	if err := putNode(t.txn, n); err != nil {
		return nil, err
	}
	if err := writeIndexEntries(t.txn, t.store.indexEntriesFor(n)); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tx) DeleteNode(ctx context.Context, id graph.NodeID) error {
	n, err := getNode(t.txn, id)
	if err != nil {
		return err
	}
	if n == nil {
		return storage.ErrNotFound
	}
	if err := deleteIndexEntries(t.txn, t.store.indexEntriesFor(n)); err != nil {
		return err
	}
	rels, err := scanRels(t.txn)
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.StartNode == id || r.EndNode == id {
			if err := t.txn.Delete(relKey(fmt.Sprintf("%v", r.ID))); err != nil {
				return err
			}
		}
	}
	return t.txn.Delete(nodeKey(fmt.Sprintf("%v", id)))
}

func (t *Tx) UpdateNodeProperties(ctx context.Context, id graph.NodeID, patch map[string]any) (*graph.NodeRecord, error) {
	n, err := getNode(t.txn, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, storage.ErrNotFound
	}
	oldKeys := t.store.indexEntriesFor(n)
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(n.Properties, k)
			continue
		}
		n.Properties[k] = v
	}
	if err := deleteIndexEntries(t.txn, oldKeys); err != nil {
		return nil, err
	}
	if err := writeIndexEntries(t.txn, t.store.indexEntriesFor(n)); err != nil {
		return nil, err
	}
	if err := putNode(t.txn, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tx) UpdateNodeLabels(ctx context.Context, id graph.NodeID, add, remove []string) (*graph.NodeRecord, error) {
	n, err := getNode(t.txn, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, storage.ErrNotFound
	}
	oldKeys := t.store.indexEntriesFor(n)
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
	n.Labels = labels
	if err := deleteIndexEntries(t.txn, oldKeys); err != nil {
		return nil, err
	}
	if err := writeIndexEntries(t.txn, t.store.indexEntriesFor(n)); err != nil {
		return nil, err
	}
	if err := putNode(t.txn, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tx) FindNode(ctx context.Context, labels []string, exact map[string]any) (*graph.NodeRecord, error) {
	nodes, err := scanNodes(t.txn, labels)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if matchesExact(n.Properties, exact) {
			return n, nil
		}
	}
	return nil, nil
}

func (t *Tx) ListIndexes(ctx context.Context) ([]storage.IndexSpec, error) {
	return t.store.ListIndexes(ctx)
}

func (t *Tx) IndexLookup(ctx context.Context, label, property string, value any) (storage.NodeIterator, error) {
	prefix := indexKeyPrefix(label, property, value)
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	var nodes []*graph.NodeRecord
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		nodeID := bytes.TrimPrefix(key, append(prefix, 0))
		n, err := getNode(t.txn, string(nodeID))
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return &sliceNodeIter{nodes: nodes}, nil
}

func (t *Tx) GetRelByID(ctx context.Context, id graph.RelID) (*graph.RelRecord, error) {
	return getRel(t.txn, id)
}

func (t *Tx) ScanRelationships(ctx context.Context) (storage.RelIterator, error) {
	rels, err := scanRels(t.txn)
	if err != nil {
		return nil, err
	}
	return &sliceRelIter{rels: rels}, nil
}

func (t *Tx) CreateRelationship(ctx context.Context, relType string, start, end graph.NodeID, properties map[string]any) (*graph.RelRecord, error) {
	startNode, err := getNode(t.txn, start)
	if err != nil {
		return nil, err
	}
	if startNode == nil {
		return nil, storage.ErrInvalidEdge
	}
	endNode, err := getNode(t.txn, end)
	if err != nil {
		return nil, err
	}
	if endNode == nil {
		return nil, storage.ErrInvalidEdge
	}
	seq, err := t.store.relSeq.Next()
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	r := &graph.RelRecord{ID: fmt.Sprintf("e%d", seq), Type: relType, StartNode: start, EndNode: end, Properties: props}
	if err := putRel(t.txn, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *Tx) DeleteRelationship(ctx context.Context, id graph.RelID) error {
	r, err := getRel(t.txn, id)
	if err != nil {
		return err
	}
	if r == nil {
		return storage.ErrNotFound
	}
	return t.txn.Delete(relKey(fmt.Sprintf("%v", id)))
}

func (t *Tx) UpdateRelProperties(ctx context.Context, id graph.RelID, patch map[string]any) (*graph.RelRecord, error) {
	r, err := getRel(t.txn, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, storage.ErrNotFound
	}
	for k, v := range patch {
		if graph.IsNull(v) {
			delete(r.Properties, k)
			continue
		}
		r.Properties[k] = v
	}
	if err := putRel(t.txn, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *Tx) FindRel(ctx context.Context, relType string, start, end graph.NodeID) (*graph.RelRecord, error) {
	rels, err := scanRels(t.txn)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		if r.Type == relType && r.StartNode == start && r.EndNode == end {
			return r, nil
		}
	}
	return nil, nil
}

func (t *Tx) OutgoingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	rels, err := scanRels(t.txn)
	if err != nil {
		return nil, err
	}
	var out []*graph.RelRecord
	for _, r := range rels {
		if r.StartNode == nodeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *Tx) IncomingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	rels, err := scanRels(t.txn)
	if err != nil {
		return nil, err
	}
	var out []*graph.RelRecord
	for _, r := range rels {
		if r.EndNode == nodeID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Commit flushes the transaction's writes to the database.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.txn.Commit()
}

// Rollback discards every pending write in the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}
