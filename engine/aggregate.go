package engine

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
)

// aggAccumulator holds the running state for one aggregator occurrence
// within one group (spec.md §4.4.3 step 3).
type aggAccumulator struct {
	kind     ast.AggKind
	distinct bool
	seen     map[string]bool

	count    int64
	sum      float64
	sumIsInt bool
	haveMin  bool
	min, max any
	collect  []any
}

func newAccumulator(a *ast.Aggregate) *aggAccumulator {
	acc := &aggAccumulator{kind: a.Kind, distinct: a.Distinct, sumIsInt: true}
	if a.Distinct {
		acc.seen = map[string]bool{}
	}
	return acc
}

// feed folds one input value into the accumulator. For Count(*) callers
// pass graph.Null with isStar=true.
func (acc *aggAccumulator) feed(v any, isStar bool) {
	if acc.distinct && !isStar {
		key := graph.Serialize(v)
		if acc.seen[key] {
			return
		}
		acc.seen[key] = true
	}
	switch acc.kind {
	case ast.AggCount:
		if isStar || !graph.IsNull(v) {
			acc.count++
		}
	case ast.AggSum, ast.AggAvg:
		if graph.IsNull(v) {
			return
		}
		f, ok := graph.AsFloat64(v)
		if !ok {
			return
		}
		if _, isInt := v.(int64); !isInt {
			acc.sumIsInt = false
		}
		acc.sum += f
		acc.count++
	case ast.AggMin, ast.AggMax:
		if graph.IsNull(v) {
			return
		}
		if !acc.haveMin {
			acc.min, acc.max = v, v
			acc.haveMin = true
			return
		}
		if cmp, ok := graph.Compare(v, acc.min); ok && cmp < 0 {
			acc.min = v
		}
		if cmp, ok := graph.Compare(v, acc.max); ok && cmp > 0 {
			acc.max = v
		}
	case ast.AggCollect:
		if graph.IsNull(v) {
			return
		}
		acc.collect = append(acc.collect, v)
	}
}

// finalize yields the aggregator's result value (spec.md §4.4.3 step 4).
func (acc *aggAccumulator) finalize() any {
	switch acc.kind {
	case ast.AggCount:
		return acc.count
	case ast.AggSum:
		if acc.sumIsInt {
			return int64(acc.sum)
		}
		return acc.sum
	case ast.AggAvg:
		if acc.count == 0 {
			return graph.Null
		}
		return acc.sum / float64(acc.count)
	case ast.AggMin:
		if !acc.haveMin {
			return graph.Null
		}
		return acc.min
	case ast.AggMax:
		if !acc.haveMin {
			return graph.Null
		}
		return acc.max
	case ast.AggCollect:
		if acc.collect == nil {
			return []any{}
		}
		return acc.collect
	}
	return graph.Null
}

// aggregateNodes walks expr collecting every *ast.Aggregate it contains, in
// a stable left-to-right order (spec.md §4.4.3 step 3 "arithmetic over
// aggregators... recursively holding sub-state").
func aggregateNodes(expr ast.Expression) []*ast.Aggregate {
	switch e := expr.(type) {
	case *ast.Aggregate:
		return []*ast.Aggregate{e}
	case *ast.BinOp:
		return append(aggregateNodes(e.Left), aggregateNodes(e.Right)...)
	case *ast.Neg:
		return aggregateNodes(e.Expr)
	case *ast.Length:
		return aggregateNodes(e.Expr)
	}
	return nil
}

// group is the per-group-key accumulator set plus a representative
// environment for evaluating the group's non-aggregator terms.
type group struct {
	sample *graph.Environment
	accs   map[*ast.Aggregate]*aggAccumulator
}

// runAggregation implements spec.md §4.4.3 over a materialized stream of
// row environments, returning one finalized Row per group.
func runAggregation(items []ast.ReturnItem, envs []*graph.Environment, params graph.Parameters) []Row {
	groups := map[uint64]*group{}
	var order []uint64

	groupKey := func(env *graph.Environment) uint64 {
		var serialized string
		for _, item := range items {
			if hasAggregate(item.Expr) {
				continue
			}
			serialized += graph.Serialize(Eval(item.Expr, env, params))
			serialized += "\x00"
		}
		return groupKeyHash(serialized)
	}

	for _, env := range envs {
		key := groupKey(env)
		g, ok := groups[key]
		if !ok {
			g = &group{sample: env, accs: map[*ast.Aggregate]*aggAccumulator{}}
			groups[key] = g
			order = append(order, key)
		}
		for _, item := range items {
			for _, node := range aggregateNodes(item.Expr) {
				acc, ok := g.accs[node]
				if !ok {
					acc = newAccumulator(node)
					g.accs[node] = acc
				}
				if node.Star {
					acc.feed(graph.Null, true)
					continue
				}
				acc.feed(Eval(node.Inner, env, params), false)
			}
		}
	}

	if len(order) == 0 && allAggregate(items) {
		g := &group{sample: graph.NewEnvironment(), accs: map[*ast.Aggregate]*aggAccumulator{}}
		groups[0] = g
		order = append(order, 0)
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := Row{}
		for idx, item := range items {
			alias := item.Alias
			if alias == "" {
				alias = defaultAlias(item.Expr, idx, len(items))
			}
			row[alias] = evalWithGroup(item.Expr, g, params)
		}
		rows = append(rows, row)
	}
	return rows
}

func allAggregate(items []ast.ReturnItem) bool {
	for _, item := range items {
		if !hasAggregate(item.Expr) {
			return false
		}
	}
	return len(items) > 0
}

// evalWithGroup evaluates expr against the group's sample environment,
// substituting each contained Aggregate node with its finalized value.
func evalWithGroup(expr ast.Expression, g *group, params graph.Parameters) any {
	switch e := expr.(type) {
	case *ast.Aggregate:
		if acc, ok := g.accs[e]; ok {
			return acc.finalize()
		}
		return graph.Null
	case *ast.BinOp:
		l := evalWithGroup(e.Left, g, params)
		r := evalWithGroup(e.Right, g, params)
		return evalBinOpValues(e.Op, l, r)
	case *ast.Neg:
		v := evalWithGroup(e.Expr, g, params)
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
	default:
		return Eval(expr, g.sample, params)
	}
}

func evalBinOpValues(op string, l, r any) any {
	if graph.IsNull(l) || graph.IsNull(r) {
		return graph.Null
	}
	ls, lIsStr := l.(string)
	rs, rIsStr := r.(string)
	if op == "+" {
		if lIsStr && rIsStr {
			return ls + rs
		}
	}
	lf, lok := graph.AsFloat64(l)
	rf, rok := graph.AsFloat64(r)
	if !lok || !rok {
		return graph.NaN
	}
	_, lIsInt := l.(int64)
	_, rIsInt := r.(int64)
	bothInt := lIsInt && rIsInt

	var result float64
	switch op {
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
