package engine

import (
	"sort"
	"strconv"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
)

// projectRow evaluates spec.Items against env into a Row, applying the
// alias rules from spec.md §4.4.1 step 3.
func projectRow(items []ast.ReturnItem, star bool, env *graph.Environment, params graph.Parameters) Row {
	row := Row{}
	if star {
		for k, v := range evalAll(env).(map[string]any) {
			row[k] = v
		}
	}
	for i, item := range items {
		val := Eval(item.Expr, env, params)
		alias := item.Alias
		if alias == "" {
			alias = defaultAlias(item.Expr, i, len(items))
		}
		row[alias] = val
	}
	return row
}

// defaultAlias implements spec.md §4.4.1 step 3's unnamed-item naming
// rule: variable name for Variable, property name for Property, id/labels
// for those, "value" for a single unnamed item, "value0..valueN" otherwise.
func defaultAlias(expr ast.Expression, index, total int) string {
	switch e := expr.(type) {
	case *ast.Variable:
		return e.Name
	case *ast.Property:
		return e.Name
	case *ast.ID:
		return "id"
	case *ast.Labels:
		return "labels"
	case *ast.Type:
		return "type"
	}
	if total == 1 {
		return "value"
	}
	return "value" + strconv.Itoa(index)
}

// applyDistinct deduplicates rows by their canonical serialization,
// preserving first-occurrence order (spec.md §4.4.1 step 4).
func applyDistinct(rows []Row) []Row {
	seen := map[string]bool{}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		key := serializeRow(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func serializeRow(row Row) string {
	keys := sortedKeys(row)
	var b []byte
	for _, k := range keys {
		b = append(b, k...)
		b = append(b, ':')
		b = append(b, graph.Serialize(row[k])...)
		b = append(b, ';')
	}
	return string(b)
}

// applyOrderBy stably sorts rows by the ORDER BY terms, evaluated against
// a per-row environment built from the row's own alias bindings (so ORDER
// BY can reference an alias introduced by the same RETURN). Null sorts
// after all non-null values in ascending order (spec.md §4.4.1 step 5).
func applyOrderBy(rows []Row, orderBy []ast.OrderItem, params graph.Parameters) []Row {
	if len(orderBy) == 0 {
		return rows
	}
	sort.SliceStable(rows, func(i, j int) bool {
		envI := rowEnv(rows[i])
		envJ := rowEnv(rows[j])
		for _, term := range orderBy {
			vi := Eval(term.Expr, envI, params)
			vj := Eval(term.Expr, envJ, params)
			less, eq := orderLess(vi, vj)
			if eq {
				continue
			}
			if term.Desc {
				return !less
			}
			return less
		}
		return false
	})
	return rows
}

func rowEnv(row Row) *graph.Environment {
	env := graph.NewEnvironment()
	for k, v := range row {
		env.Set(k, v)
	}
	return env
}

// orderLess returns (isLess, isEqual) for ORDER BY comparison, with Null
// sorting after every non-null value.
func orderLess(a, b any) (less bool, equal bool) {
	aNull, bNull := graph.IsNull(a), graph.IsNull(b)
	switch {
	case aNull && bNull:
		return false, true
	case aNull:
		return false, false
	case bNull:
		return true, false
	}
	cmp, ok := graph.Compare(a, b)
	if !ok {
		return false, true
	}
	return cmp < 0, cmp == 0
}

// applySkipLimit applies SKIP then LIMIT (spec.md §4.4.1 step 6).
func applySkipLimit(rows []Row, skip, limit ast.Expression, params graph.Parameters) []Row {
	n := len(rows)
	start := 0
	if skip != nil {
		v := Eval(skip, graph.NewEnvironment(), params)
		if i, ok := asInt64(v); ok {
			start = int(i)
		}
	}
	if start > n {
		start = n
	}
	rows = rows[start:]
	if limit != nil {
		v := Eval(limit, graph.NewEnvironment(), params)
		if i, ok := asInt64(v); ok && int(i) < len(rows) {
			rows = rows[:int(i)]
		}
	}
	return rows
}

// finishReturn applies the full DISTINCT/ORDER BY/SKIP/LIMIT pipeline to a
// materialized row set, as every terminal RETURN/WITH projection needs.
func finishReturn(rows []Row, spec ast.ReturnSpec, params graph.Parameters) []Row {
	if spec.Distinct {
		rows = applyDistinct(rows)
	}
	rows = applyOrderBy(rows, spec.OrderBy, params)
	rows = applySkipLimit(rows, spec.Skip, spec.Limit, params)
	return rows
}

// containsAggregate reports whether any return item uses an aggregator,
// triggering the aggregation driver (spec.md §4.4.3).
func containsAggregate(items []ast.ReturnItem) bool {
	for _, item := range items {
		if hasAggregate(item.Expr) {
			return true
		}
	}
	return false
}

func hasAggregate(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Aggregate:
		return true
	case *ast.BinOp:
		return hasAggregate(e.Left) || hasAggregate(e.Right)
	case *ast.Neg:
		return hasAggregate(e.Expr)
	case *ast.Length:
		return hasAggregate(e.Expr)
	}
	return false
}
