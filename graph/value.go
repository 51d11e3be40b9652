// Package graph defines the runtime value model shared by the parser's
// expression evaluator and the storage capability interface: the Value
// union, graph record types (NodeRecord, RelRecord, PathRecord), and the
// variable binding environment threaded through query execution.
//
// This mirrors the shape of the teacher's storage.Node / storage.Edge
// structs, trimmed to the fields the spec's data model names (no decay
// score, access counters, or embeddings — those are NornicDB-specific
// extensions outside this engine's scope).
package graph

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// NodeID and RelID are opaque, store-assigned identifiers. Equality
// between records is always by id (spec.md §9 "record identity"),
// compared strictly — a string id is never equal to a numeric one even
// if their decimal forms match.
type NodeID = any
type RelID = any

// NodeRecord is a labeled-property-graph vertex.
type NodeRecord struct {
	ID         NodeID
	Labels     []string // duplicate-free, unordered
	Properties map[string]any
}

// HasLabel reports whether l is present among the node's labels.
func (n *NodeRecord) HasLabel(l string) bool {
	for _, have := range n.Labels {
		if have == l {
			return true
		}
	}
	return false
}

// HasAllLabels reports whether every label in ls is present.
func (n *NodeRecord) HasAllLabels(ls []string) bool {
	for _, l := range ls {
		if !n.HasLabel(l) {
			return false
		}
	}
	return true
}

// RelRecord is a directed, typed edge between two nodes.
type RelRecord struct {
	ID         RelID
	Type       string
	StartNode  NodeID
	EndNode    NodeID
	Properties map[string]any
}

// PathStep is one relationship traversed by a PathRecord, tagged with the
// direction it was traversed relative to the path (spec.md §3).
type PathStep struct {
	Rel     *RelRecord
	Forward bool // true: traversed start->end; false: traversed end->start
}

// PathRecord is an alternating N0,R0,N1,...,Rk-1,Nk sequence.
type PathRecord struct {
	Nodes []*NodeRecord
	Steps []PathStep
}

// Length returns the number of relationships in the path.
func (p *PathRecord) Length() int { return len(p.Steps) }

// Null is the engine's sentinel absent-value. A typed empty struct (not
// Go nil) so it round-trips through `any` unambiguously and can be
// distinguished from "variable not bound at all".
type NullValue struct{}

// Null is the single NullValue instance used throughout the engine.
var Null = NullValue{}

// IsNull reports whether v represents the Cypher Null value.
func IsNull(v any) bool {
	_, ok := v.(NullValue)
	return ok || v == nil
}

// AsFloat64 converts an int64/float64 numeric value to float64, reporting
// ok=false for non-numeric values.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// IsNumber reports whether v is an int64 or float64.
func IsNumber(v any) bool {
	switch v.(type) {
	case int64, int, float64:
		return true
	}
	return false
}

// NaN is the soft evaluation-error sentinel for non-numeric arithmetic
// (spec.md §4.3, §7 EvaluationError).
var NaN = math.NaN()

// IsNaN reports whether v is the float64 NaN sentinel.
func IsNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// Environment is a variable binding frame (spec.md §9). A fork gets its
// own empty map plus a pointer to its parent: lookups walk up the chain,
// while writes land only in the fork's own map — so sibling forks from a
// pattern-match hop never alias each other's mutations.
type Environment struct {
	vars   map[string]any
	parent *Environment
}

// NewEnvironment creates an empty root environment.
func NewEnvironment() *Environment {
	return &Environment{vars: map[string]any{}}
}

// Fork returns a child environment that sees the parent's bindings but
// whose own Set calls never affect the parent.
func (e *Environment) Fork() *Environment {
	return &Environment{vars: map[string]any{}, parent: e}
}

// Get returns the value bound to name and whether it is bound at all
// (distinct from being bound to Null).
func (e *Environment) Get(name string) (any, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds name to value in this frame.
func (e *Environment) Set(name string, value any) {
	e.vars[name] = value
}

// Names returns every variable name visible from this frame, including
// ancestors, with child bindings shadowing ancestor ones of the same name.
func (e *Environment) Names() []string {
	seen := map[string]bool{}
	var names []string
	for env := e; env != nil; env = env.parent {
		for name := range env.vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Clone produces a flattened, independent copy of every visible binding,
// detached from the fork chain.
func (e *Environment) Clone() *Environment {
	flat := &Environment{vars: map[string]any{}}
	for _, name := range e.Names() {
		v, _ := e.Get(name)
		flat.vars[name] = v
	}
	return flat
}

// Parameters is the immutable, per-run parameter map (spec.md §3).
type Parameters map[string]any

// Get returns the parameter value, or Null if unknown (spec.md §6.2).
func (p Parameters) Get(name string) any {
	if v, ok := p[name]; ok {
		return v
	}
	return Null
}

// Serialize produces a canonical, deterministic string form of v used for
// DISTINCT deduplication and aggregation group keys (spec.md §4.4.3):
// record-typed values are keyed by id; everything else by a canonical,
// sorted-key JSON-like form.
func Serialize(v any) string {
	var b strings.Builder
	serializeInto(&b, v)
	return b.String()
}

func serializeInto(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil, NullValue:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case int:
		b.WriteString(strconv.Itoa(x))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(x, `"`, `\"`))
		b.WriteByte('"')
	case *NodeRecord:
		fmt.Fprintf(b, "Node(%v)", x.ID)
	case *RelRecord:
		fmt.Fprintf(b, "Rel(%v)", x.ID)
	case *PathRecord:
		b.WriteString("Path[")
		for i, n := range x.Nodes {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%v", n.ID)
		}
		b.WriteByte(']')
	case []any:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			serializeInto(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			serializeInto(b, x[k])
		}
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "%v", x)
	}
}
