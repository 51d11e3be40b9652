// Package engine compiles the parser's AST into a tree of pull-based row
// iterators over a storage.Engine, evaluating expressions and predicates
// against a variable binding environment (spec.md §4.3, §4.4).
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
)

// SemanticError reports a reference to an unbound variable or a pattern
// whose returned variable does not match the scoped one (spec.md §7).
type SemanticError struct{ Message string }

func (e *SemanticError) Error() string { return e.Message }

// Row is one output record: alias -> Value.
type Row map[string]any

// Eval evaluates expr against env/params (spec.md §4.3).
func Eval(expr ast.Expression, env *graph.Environment, params graph.Parameters) any {
	switch e := expr.(type) {
	case *ast.Literal:
		if e.Value == nil {
			return graph.Null
		}
		return e.Value
	case *ast.Parameter:
		return params.Get(e.Name)
	case *ast.Variable:
		v, ok := env.Get(e.Name)
		if !ok {
			return graph.Null
		}
		return v
	case *ast.Property:
		return evalProperty(e, env)
	case *ast.BinOp:
		return evalBinOp(e, env, params)
	case *ast.Neg:
		v := Eval(e.Expr, env, params)
		if graph.IsNull(v) {
			return graph.Null
		}
		f, ok := graph.AsFloat64(v)
		if !ok {
			return graph.NaN
		}
		if iv, isInt := v.(int64); isInt {
			return -iv
		}
		return -f
	case *ast.All:
		return evalAll(env)
	case *ast.Labels:
		v, ok := env.Get(e.Variable)
		if !ok {
			return graph.Null
		}
		n, ok := v.(*graph.NodeRecord)
		if !ok {
			return graph.Null
		}
		out := make([]any, len(n.Labels))
		for i, l := range n.Labels {
			out[i] = l
		}
		return out
	case *ast.Type:
		v, ok := env.Get(e.Variable)
		if !ok {
			return graph.Null
		}
		r, ok := v.(*graph.RelRecord)
		if !ok {
			return graph.Null
		}
		return r.Type
	case *ast.ID:
		v, ok := env.Get(e.Variable)
		if !ok {
			return graph.Null
		}
		switch r := v.(type) {
		case *graph.NodeRecord:
			return r.ID
		case *graph.RelRecord:
			return r.ID
		}
		return graph.Null
	case *ast.Length:
		return evalLength(e, env, params)
	case *ast.Nodes:
		v, ok := env.Get(e.Variable)
		if !ok {
			return graph.Null
		}
		p, ok := v.(*graph.PathRecord)
		if !ok {
			return graph.Null
		}
		out := make([]any, len(p.Nodes))
		for i, n := range p.Nodes {
			out[i] = n
		}
		return out
	case *ast.ListLiteral:
		out := make([]any, len(e.Items))
		for i, item := range e.Items {
			out[i] = Eval(item, env, params)
		}
		return out
	case *ast.Aggregate:
		// Aggregators are only meaningful under the aggregation driver
		// (spec.md §4.3 "aggregators are not evaluated by the scalar
		// evaluator"); a bare evaluation context means the aggregate
		// appears somewhere the aggregation driver hasn't intercepted.
		return graph.Null
	default:
		return graph.Null
	}
}

func evalProperty(e *ast.Property, env *graph.Environment) any {
	v, ok := env.Get(e.Variable)
	if !ok || graph.IsNull(v) {
		return graph.Null
	}
	var props map[string]any
	switch r := v.(type) {
	case *graph.NodeRecord:
		props = r.Properties
	case *graph.RelRecord:
		props = r.Properties
	default:
		return graph.Null
	}
	if val, ok := props[e.Name]; ok {
		return val
	}
	return graph.Null
}

func evalAll(env *graph.Environment) any {
	names := env.Names()
	out := map[string]any{}
	for _, n := range names {
		v, _ := env.Get(n)
		out[n] = v
	}
	return out
}

func evalLength(e *ast.Length, env *graph.Environment, params graph.Parameters) any {
	v := Eval(e.Expr, env, params)
	switch x := v.(type) {
	case *graph.PathRecord:
		return int64(x.Length())
	case []any:
		return int64(len(x))
	case string:
		return int64(len([]rune(x)))
	}
	return graph.Null
}

func evalBinOp(e *ast.BinOp, env *graph.Environment, params graph.Parameters) any {
	l := Eval(e.Left, env, params)
	r := Eval(e.Right, env, params)
	if graph.IsNull(l) || graph.IsNull(r) {
		return graph.Null
	}
	ls, lIsStr := l.(string)
	rs, rIsStr := r.(string)
	if e.Op == "+" {
		if lIsStr && rIsStr {
			return ls + rs
		}
		if lIsStr || rIsStr {
			return fmt.Sprintf("%v", l) + fmt.Sprintf("%v", r)
		}
	}
	lf, lok := graph.AsFloat64(l)
	rf, rok := graph.AsFloat64(r)
	if !lok || !rok {
		return graph.NaN
	}
	_, lIsInt := asInt64(l)
	_, rIsInt := asInt64(r)
	bothInt := lIsInt && rIsInt

	var result float64
	switch e.Op {
	case "+":
		result = lf + rf
	case "-":
		result = lf - rf
	case "*":
		result = lf * rf
	case "/":
		if rf == 0 {
			return graph.NaN
		}
		result = lf / rf
		bothInt = false
	default:
		return graph.NaN
	}
	if bothInt {
		return int64(result)
	}
	return result
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// tri is a three-valued boolean: true / false / null (spec.md §4.3 Kleene logic).
type tri int

const (
	triFalse tri = iota
	triTrue
	triNull
)

func triFromBool(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}

func (t tri) bool() bool { return t == triTrue }

// EvalWhere evaluates a WhereClause to a row-inclusion boolean, treating
// Null as false for inclusion purposes (spec.md §4.3).
func EvalWhere(w ast.WhereClause, env *graph.Environment, params graph.Parameters) bool {
	return evalTri(w, env, params).bool()
}

func evalTri(w ast.WhereClause, env *graph.Environment, params graph.Parameters) tri {
	switch c := w.(type) {
	case *ast.TrueClause:
		return triTrue
	case *ast.Condition:
		return evalCondition(c, env, params)
	case *ast.And:
		l := evalTri(c.Left, env, params)
		r := evalTri(c.Right, env, params)
		return kleeneAnd(l, r)
	case *ast.Or:
		l := evalTri(c.Left, env, params)
		r := evalTri(c.Right, env, params)
		return kleeneOr(l, r)
	case *ast.Not:
		v := evalTri(c.Expr, env, params)
		if v == triNull {
			return triNull
		}
		return triFromBool(!v.bool())
	default:
		return triFalse
	}
}

func kleeneAnd(l, r tri) tri {
	if l == triFalse || r == triFalse {
		return triFalse
	}
	if l == triNull || r == triNull {
		return triNull
	}
	return triTrue
}

func kleeneOr(l, r tri) tri {
	if l == triTrue || r == triTrue {
		return triTrue
	}
	if l == triNull || r == triNull {
		return triNull
	}
	return triFalse
}

func evalCondition(c *ast.Condition, env *graph.Environment, params graph.Parameters) tri {
	if c.Op == ast.OpIsNull || c.Op == ast.OpIsNotNull {
		v := Eval(c.Left, env, params)
		isNull := graph.IsNull(v)
		if c.Op == ast.OpIsNull {
			return triFromBool(isNull)
		}
		return triFromBool(!isNull)
	}

	l := Eval(c.Left, env, params)
	r := Eval(c.Right, env, params)
	if graph.IsNull(l) || graph.IsNull(r) {
		return triNull
	}

	switch c.Op {
	case ast.OpEQ:
		return triFromBool(graph.Equal(l, r))
	case ast.OpNEQ:
		return triFromBool(!graph.Equal(l, r))
	case ast.OpLT, ast.OpLTE, ast.OpGT, ast.OpGTE:
		cmp, ok := graph.Compare(l, r)
		if !ok {
			return triNull
		}
		switch c.Op {
		case ast.OpLT:
			return triFromBool(cmp < 0)
		case ast.OpLTE:
			return triFromBool(cmp <= 0)
		case ast.OpGT:
			return triFromBool(cmp > 0)
		default:
			return triFromBool(cmp >= 0)
		}
	case ast.OpIN:
		list, ok := r.([]any)
		if !ok {
			return triNull
		}
		sawNull := false
		for _, item := range list {
			if graph.IsNull(item) {
				sawNull = true
				continue
			}
			if graph.Equal(l, item) {
				return triTrue
			}
		}
		if sawNull {
			return triNull
		}
		return triFalse
	case ast.OpStartsWith, ast.OpEndsWith, ast.OpContains:
		ls, lok := l.(string)
		rs, rok := r.(string)
		if !lok || !rok {
			return triNull
		}
		switch c.Op {
		case ast.OpStartsWith:
			return triFromBool(strings.HasPrefix(ls, rs))
		case ast.OpEndsWith:
			return triFromBool(strings.HasSuffix(ls, rs))
		default:
			return triFromBool(strings.Contains(ls, rs))
		}
	}
	return triFalse
}

// literalEqualityFilter evaluates a node/relationship pattern's property
// map into a literal value filter for the planner and the store's exact-
// match lookups (spec.md §4.4.1 step 1, §4.4.5).
func literalEqualityFilter(props map[string]ast.Expression, params graph.Parameters) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, expr := range props {
		out[k] = Eval(expr, graph.NewEnvironment(), params)
	}
	return out
}

func matchesProperties(record map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := record[k]
		if !ok {
			return false
		}
		if !graph.Equal(got, want) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
