// Package badgerstore is a persistent storage.Engine backed by BadgerDB.
// It implements every optional capability in the storage package,
// including Transactional, using BadgerDB's own MVCC transactions.
//
// Grounded on the key-prefix scheme of the teacher's
// pkg/storage/badger.go (single-byte prefixes for nodes/edges/indexes)
// and the read-your-writes delegation shape of pkg/storage/
// badger_transaction.go, rebuilt against this engine's narrower
// storage.Engine capability interfaces.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
	"golang.org/x/crypto/blake2b"

	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
)

// Key prefixes, mirroring the teacher's single-byte scheme.
const (
	prefixNode  = byte(0x01) // node:id -> JSON(nodeDTO)
	prefixRel   = byte(0x02) // rel:id -> JSON(relDTO)
	prefixIndex = byte(0x03) // index:blake2b(label,prop,value):nodeID -> empty
)

type nodeDTO struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type relDTO struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Properties map[string]any `json:"properties"`
}

// Store is a disk-backed labeled property graph.
type Store struct {
	db      *badger.DB
	indexes []storage.IndexSpec
	nodeSeq *badger.Sequence
	relSeq  *badger.Sequence
}

// Open opens (creating if absent) a BadgerDB database at path. log
// receives BadgerDB's internal diagnostic output.
func Open(path string, log logr.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(logrLogger{log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	nodeSeq, err := db.GetSequence([]byte("seq:node"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open node id sequence: %w", err)
	}
	relSeq, err := db.GetSequence([]byte("seq:rel"), 100)
	if err != nil {
		nodeSeq.Release()
		db.Close()
		return nil, fmt.Errorf("open rel id sequence: %w", err)
	}
	return &Store{db: db, nodeSeq: nodeSeq, relSeq: relSeq}, nil
}

// OpenInMemory opens a non-persistent BadgerDB instance, useful for tests
// that want badgerstore's exact code path without touching disk.
func OpenInMemory(log logr.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(logrLogger{log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	nodeSeq, err := db.GetSequence([]byte("seq:node"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open node id sequence: %w", err)
	}
	relSeq, err := db.GetSequence([]byte("seq:rel"), 100)
	if err != nil {
		nodeSeq.Release()
		db.Close()
		return nil, fmt.Errorf("open rel id sequence: %w", err)
	}
	return &Store{db: db, nodeSeq: nodeSeq, relSeq: relSeq}, nil
}

// Close releases the id sequences and closes the underlying database.
func (s *Store) Close() error {
	s.nodeSeq.Release()
	s.relSeq.Release()
	return s.db.Close()
}

// CreateIndex registers a single-property index. Existing matching nodes
// are not backfilled; only nodes created or updated afterward are indexed.
func (s *Store) CreateIndex(label, property string) {
	s.indexes = append(s.indexes, storage.IndexSpec{Label: label, Property: property})
}

func nodeKey(id string) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func relKey(id string) []byte {
	return append([]byte{prefixRel}, []byte(id)...)
}

// indexKeyPrefix derives the fixed-width composite key prefix for one
// (label, property, value) triple using blake2b, so equality lookups seek
// a single key range instead of scanning every node.
func indexKeyPrefix(label, property string, value any) []byte {
	h := blake2b.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%v", label, property, value)))
	return append([]byte{prefixIndex}, h[:]...)
}

func indexKey(label, property string, value any, nodeID string) []byte {
	return append(indexKeyPrefix(label, property, value), append([]byte{0}, []byte(nodeID)...)...)
}

func toNodeRecord(d nodeDTO) *graph.NodeRecord {
	return &graph.NodeRecord{ID: d.ID, Labels: d.Labels, Properties: d.Properties}
}

func toRelRecord(d relDTO) *graph.RelRecord {
	return &graph.RelRecord{ID: d.ID, Type: d.Type, StartNode: d.Start, EndNode: d.End, Properties: d.Properties}
}

func decodeNode(raw []byte) (*graph.NodeRecord, error) {
	var d nodeDTO
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return toNodeRecord(d), nil
}

func decodeRel(raw []byte) (*graph.RelRecord, error) {
	var d relDTO
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return toRelRecord(d), nil
}

// indexEntriesFor returns the composite index keys that should exist for
// n given the currently registered indexes.
func (s *Store) indexEntriesFor(n *graph.NodeRecord) [][]byte {
	var keys [][]byte
	for _, idx := range s.indexes {
		if !n.HasLabel(idx.Label) {
			continue
		}
		v, ok := n.Properties[idx.Property]
		if !ok {
			continue
		}
		keys = append(keys, indexKey(idx.Label, idx.Property, v, fmt.Sprintf("%v", n.ID)))
	}
	return keys
}

func putNode(txn *badger.Txn, n *graph.NodeRecord) error {
	raw, err := json.Marshal(nodeDTO{ID: fmt.Sprintf("%v", n.ID), Labels: n.Labels, Properties: n.Properties})
	if err != nil {
		return err
	}
	return txn.Set(nodeKey(fmt.Sprintf("%v", n.ID)), raw)
}

func putRel(txn *badger.Txn, r *graph.RelRecord) error {
	raw, err := json.Marshal(relDTO{
		ID: fmt.Sprintf("%v", r.ID), Type: r.Type,
		Start: fmt.Sprintf("%v", r.StartNode), End: fmt.Sprintf("%v", r.EndNode),
		Properties: r.Properties,
	})
	if err != nil {
		return err
	}
	return txn.Set(relKey(fmt.Sprintf("%v", r.ID)), raw)
}

func getNode(txn *badger.Txn, id graph.NodeID) (*graph.NodeRecord, error) {
	item, err := txn.Get(nodeKey(fmt.Sprintf("%v", id)))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var n *graph.NodeRecord
	err = item.Value(func(raw []byte) error {
		decoded, derr := decodeNode(raw)
		if derr != nil {
			return derr
		}
		n = decoded
		return nil
	})
	return n, err
}

func getRel(txn *badger.Txn, id graph.RelID) (*graph.RelRecord, error) {
	item, err := txn.Get(relKey(fmt.Sprintf("%v", id)))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r *graph.RelRecord
	err = item.Value(func(raw []byte) error {
		decoded, derr := decodeRel(raw)
		if derr != nil {
			return derr
		}
		r = decoded
		return nil
	})
	return r, err
}

func scanNodes(txn *badger.Txn, labels []string) ([]*graph.NodeRecord, error) {
	var out []*graph.NodeRecord
	opts := badger.DefaultIteratorOptions
	prefix := []byte{prefixNode}
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(raw []byte) error {
			n, derr := decodeNode(raw)
			if derr != nil {
				return derr
			}
			if n.HasAllLabels(labels) {
				out = append(out, n)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRels(txn *badger.Txn) ([]*graph.RelRecord, error) {
	var out []*graph.RelRecord
	opts := badger.DefaultIteratorOptions
	prefix := []byte{prefixRel}
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(raw []byte) error {
			r, derr := decodeRel(raw)
			if derr != nil {
				return derr
			}
			out = append(out, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func deleteIndexEntries(txn *badger.Txn, keys [][]byte) error {
	for _, k := range keys {
		if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

func writeIndexEntries(txn *badger.Txn, keys [][]byte) error {
	for _, k := range keys {
		if err := txn.Set(k, []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// ---- storage.Engine required core -----------------------------------------

func (s *Store) GetNodeByID(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error) {
	var n *graph.NodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = getNode(txn, id)
		return err
	})
	return n, err
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
	var nodes []*graph.NodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		nodes, err = scanNodes(txn, spec.Labels)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sliceNodeIter{nodes: nodes}, nil
}

// ---- optional node capabilities ---------------------------------------------

func (s *Store) CreateNode(ctx context.Context, labels []string, properties map[string]any) (*graph.NodeRecord, error) {
	seq, err := s.nodeSeq.Next()
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	n := &graph.NodeRecord{ID: fmt.Sprintf("n%d", seq), Labels: append([]string(nil), labels...), Properties: props}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := putNode(txn, n); err != nil {
			return err
		}
		return writeIndexEntries(txn, s.indexEntriesFor(n))
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) DeleteNode(ctx context.Context, id graph.NodeID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		n, err := getNode(txn, id)
		if err != nil {
			return err
		}
		if n == nil {
			return storage.ErrNotFound
		}
		if err := deleteIndexEntries(txn, s.indexEntriesFor(n)); err != nil {
			return err
		}
		rels, err := scanRels(txn)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.StartNode == id || r.EndNode == id {
				if err := txn.Delete(relKey(fmt.Sprintf("%v", r.ID))); err != nil {
					return err
				}
			}
		}
		return txn.Delete(nodeKey(fmt.Sprintf("%v", id)))
	})
}

func (s *Store) UpdateNodeProperties(ctx context.Context, id graph.NodeID, patch map[string]any) (*graph.NodeRecord, error) {
	var out *graph.NodeRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		n, err := getNode(txn, id)
		if err != nil {
			return err
		}
		if n == nil {
			return storage.ErrNotFound
		}
		oldKeys := s.indexEntriesFor(n)
		for k, v := range patch {
			if graph.IsNull(v) {
				delete(n.Properties, k)
				continue
			}
			n.Properties[k] = v
		}
		if err := deleteIndexEntries(txn, oldKeys); err != nil {
			return err
		}
		if err := writeIndexEntries(txn, s.indexEntriesFor(n)); err != nil {
			return err
		}
		if err := putNode(txn, n); err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

func (s *Store) UpdateNodeLabels(ctx context.Context, id graph.NodeID, add, remove []string) (*graph.NodeRecord, error) {
	var out *graph.NodeRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		n, err := getNode(txn, id)
		if err != nil {
			return err
		}
		if n == nil {
			return storage.ErrNotFound
		}
		oldKeys := s.indexEntriesFor(n)
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
		if err := deleteIndexEntries(txn, oldKeys); err != nil {
			return err
		}
		if err := writeIndexEntries(txn, s.indexEntriesFor(n)); err != nil {
			return err
		}
		if err := putNode(txn, n); err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

func (s *Store) FindNode(ctx context.Context, labels []string, exact map[string]any) (*graph.NodeRecord, error) {
	var found *graph.NodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		nodes, err := scanNodes(txn, labels)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if matchesExact(n.Properties, exact) {
				found = n
				return nil
			}
		}
		return nil
	})
	return found, err
}

func matchesExact(props, exact map[string]any) bool {
	for k, v := range exact {
		if !graph.Equal(props[k], v) {
			return false
		}
	}
	return true
}

// ---- index capabilities -------------------------------------------------

func (s *Store) ListIndexes(ctx context.Context) ([]storage.IndexSpec, error) {
	return append([]storage.IndexSpec(nil), s.indexes...), nil
}

func (s *Store) IndexLookup(ctx context.Context, label, property string, value any) (storage.NodeIterator, error) {
	var nodes []*graph.NodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := indexKeyPrefix(label, property, value)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			nodeID := bytes.TrimPrefix(key, append(prefix, 0))
			n, err := getNode(txn, string(nodeID))
			if err != nil {
				return err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		}
		return nil
	})
	return &sliceNodeIter{nodes: nodes}, err
}

// ---- relationship capabilities -------------------------------------------

func (s *Store) GetRelByID(ctx context.Context, id graph.RelID) (*graph.RelRecord, error) {
	var r *graph.RelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getRel(txn, id)
		return err
	})
	return r, err
}

type sliceRelIter struct {
	rels []*graph.RelRecord
	i    int
}

func (it *sliceRelIter) Next() (*graph.RelRecord, bool, error) {
	if it.i >= len(it.rels) {
		return nil, false, nil
	}
	r := it.rels[it.i]
	it.i++
	return r, true, nil
}

func (s *Store) ScanRelationships(ctx context.Context) (storage.RelIterator, error) {
	var rels []*graph.RelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rels, err = scanRels(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sliceRelIter{rels: rels}, nil
}

func (s *Store) CreateRelationship(ctx context.Context, relType string, start, end graph.NodeID, properties map[string]any) (*graph.RelRecord, error) {
	seq, err := s.relSeq.Next()
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	for k, v := range properties {
		props[k] = v
	}
	r := &graph.RelRecord{ID: fmt.Sprintf("e%d", seq), Type: relType, StartNode: start, EndNode: end, Properties: props}
	err = s.db.Update(func(txn *badger.Txn) error {
		startNode, err := getNode(txn, start)
		if err != nil {
			return err
		}
		if startNode == nil {
			return storage.ErrInvalidEdge
		}
		endNode, err := getNode(txn, end)
		if err != nil {
			return err
		}
		if endNode == nil {
			return storage.ErrInvalidEdge
		}
		return putRel(txn, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, id graph.RelID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		r, err := getRel(txn, id)
		if err != nil {
			return err
		}
		if r == nil {
			return storage.ErrNotFound
		}
		return txn.Delete(relKey(fmt.Sprintf("%v", id)))
	})
}

func (s *Store) UpdateRelProperties(ctx context.Context, id graph.RelID, patch map[string]any) (*graph.RelRecord, error) {
	var out *graph.RelRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		r, err := getRel(txn, id)
		if err != nil {
			return err
		}
		if r == nil {
			return storage.ErrNotFound
		}
		for k, v := range patch {
			if graph.IsNull(v) {
				delete(r.Properties, k)
				continue
			}
			r.Properties[k] = v
		}
		if err := putRel(txn, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) FindRel(ctx context.Context, relType string, start, end graph.NodeID) (*graph.RelRecord, error) {
	var found *graph.RelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		rels, err := scanRels(txn)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.Type == relType && r.StartNode == start && r.EndNode == end {
				found = r
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) OutgoingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	var out []*graph.RelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		rels, err := scanRels(txn)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.StartNode == nodeID {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) IncomingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error) {
	var out []*graph.RelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		rels, err := scanRels(txn)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.EndNode == nodeID {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// logrLogger adapts a logr.Logger to BadgerDB's own Logger interface.
type logrLogger struct{ l logr.Logger }

func (b logrLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Errorf(format, args...), "badger")
}
func (b logrLogger) Warningf(format string, args ...any) { b.l.Info(fmt.Sprintf(format, args...)) }
func (b logrLogger) Infof(format string, args ...any)    { b.l.V(1).Info(fmt.Sprintf(format, args...)) }
func (b logrLogger) Debugf(format string, args ...any)   { b.l.V(2).Info(fmt.Sprintf(format, args...)) }
