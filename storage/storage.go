// Package storage defines the capability interface backing stores
// implement to be queried by the engine (spec.md §4.5/§6). The engine
// treats any implementer uniformly as a labeled property graph.
//
// The interface is split the way the spec's prose splits it: a small core
// of required operations, plus a set of narrower optional capability
// interfaces an adapter may additionally satisfy. The engine probes for
// an optional capability with a type assertion at the point of use and
// raises FeatureUnsupported when it is absent, rather than baking every
// operation into one fat interface the way the teacher's storage.Engine
// does (DESIGN.md, Open Question 4).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyrmfield/cypherdb/graph"
)

// Common sentinel errors adapters may return; wrapped in StorageError by
// callers that need to attach an operation name.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidEdge = errors.New("invalid edge: start or end node not found")
)

// ScanSpec constrains a node scan to nodes carrying every listed label
// (all-of semantics). An empty Labels slice matches every node.
type ScanSpec struct {
	Labels []string
}

// StorageError wraps a failure from the adapter and is propagated to the
// caller unchanged in kind (spec.md §7).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// FeatureUnsupportedError is raised when a statement needs an optional
// operation the adapter does not implement (spec.md §4.5/§7).
type FeatureUnsupportedError struct{ Op string }

func (e *FeatureUnsupportedError) Error() string {
	return fmt.Sprintf("adapter does not support %s", e.Op)
}

// NodeIterator yields nodes one at a time. Next returns (nil, false, nil)
// when exhausted; a non-nil error may surface mid-iteration
// (spec.md §4.5 "scan operations yield a lazy sequence that may fail
// mid-iteration").
type NodeIterator interface {
	Next() (*graph.NodeRecord, bool, error)
}

// RelIterator yields relationships one at a time, same contract as
// NodeIterator.
type RelIterator interface {
	Next() (*graph.RelRecord, bool, error)
}

// Engine is the required core: look up a node by id, and scan nodes by
// label constraint. Every other capability is optional.
type Engine interface {
	GetNodeByID(ctx context.Context, id graph.NodeID) (*graph.NodeRecord, error)
	ScanNodes(ctx context.Context, spec ScanSpec) (NodeIterator, error)
}

// NodeCreator is the optional node-creation capability.
type NodeCreator interface {
	CreateNode(ctx context.Context, labels []string, properties map[string]any) (*graph.NodeRecord, error)
}

// NodeDeleter is the optional node-deletion capability. Delete MUST
// cascade-delete every incident relationship atomically (spec.md §4.5,
// §8 "DELETE cascade").
type NodeDeleter interface {
	DeleteNode(ctx context.Context, id graph.NodeID) error
}

// NodeUpdater is the optional node property-patch capability. Patch
// entries overwrite; a value of graph.Null removes the key.
type NodeUpdater interface {
	UpdateNodeProperties(ctx context.Context, id graph.NodeID, patch map[string]any) (*graph.NodeRecord, error)
	UpdateNodeLabels(ctx context.Context, id graph.NodeID, add, remove []string) (*graph.NodeRecord, error)
}

// NodeFinder is the optional exact-match lookup used by MERGE.
type NodeFinder interface {
	FindNode(ctx context.Context, labels []string, exact map[string]any) (*graph.NodeRecord, error)
}

// IndexSpec describes one single-property index reported by the adapter.
type IndexSpec struct {
	Label    string
	Property string
}

// IndexLister is the optional capability reporting available indexes to
// the index-use planner (spec.md §4 bullet 7).
type IndexLister interface {
	ListIndexes(ctx context.Context) ([]IndexSpec, error)
}

// IndexLookuper performs an equality index probe.
type IndexLookuper interface {
	IndexLookup(ctx context.Context, label, property string, value any) (NodeIterator, error)
}

// RelGetter is the optional relationship-by-id lookup.
type RelGetter interface {
	GetRelByID(ctx context.Context, id graph.RelID) (*graph.RelRecord, error)
}

// RelScanner is the optional whole-graph relationship scan. The engine
// falls back to it to find a node's outgoing or incoming relationships
// when the adapter lacks OutgoingRel or IncomingRel respectively.
type RelScanner interface {
	ScanRelationships(ctx context.Context) (RelIterator, error)
}

// RelCreator is the optional relationship-creation capability.
type RelCreator interface {
	CreateRelationship(ctx context.Context, relType string, start, end graph.NodeID, properties map[string]any) (*graph.RelRecord, error)
}

// RelDeleter is the optional relationship-deletion capability.
type RelDeleter interface {
	DeleteRelationship(ctx context.Context, id graph.RelID) error
}

// RelUpdater is the optional relationship property-patch capability.
type RelUpdater interface {
	UpdateRelProperties(ctx context.Context, id graph.RelID, patch map[string]any) (*graph.RelRecord, error)
}

// RelFinder is the optional exact-match relationship lookup used by
// MERGE ... -[r:T]->, keyed on (type, startNode.id, endNode.id).
type RelFinder interface {
	FindRel(ctx context.Context, relType string, start, end graph.NodeID) (*graph.RelRecord, error)
}

// OutgoingRel / IncomingRel enumerate the relationships incident to a
// node, used by pattern-chain traversal (spec.md §4.4.2).
type OutgoingRel interface {
	OutgoingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error)
}

type IncomingRel interface {
	IncomingRelationships(ctx context.Context, nodeID graph.NodeID) ([]*graph.RelRecord, error)
}

// Tx is a transaction handle returned by Transactional.Begin. Reads
// issued against the handle's Engine view see this transaction's pending
// writes (spec.md §5).
type Tx interface {
	Engine
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactional is the optional transaction-scope capability
// (spec.md §4.5, §4.4.6).
type Transactional interface {
	Begin(ctx context.Context) (Tx, error)
}

// TransactionError reports a failure from begin/commit/rollback
// (spec.md §7). If a commit fails, a best-effort rollback MUST already
// have been attempted before this error is returned.
type TransactionError struct {
	Op  string // "begin", "commit", "rollback"
	Err error
}

func (e *TransactionError) Error() string { return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err) }
func (e *TransactionError) Unwrap() error { return e.Err }

// Require asserts that store implements capability T, returning a
// FeatureUnsupportedError naming op when it does not.
func Require[T any](store Engine, op string) (T, error) {
	if impl, ok := store.(T); ok {
		return impl, nil
	}
	var zero T
	return zero, &FeatureUnsupportedError{Op: op}
}
