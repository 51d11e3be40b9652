package engine

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
)

// ExecUnwind runs `UNWIND <list-expr> AS v RETURN <expr>`: a non-list
// source yields nothing (spec.md §4.4.4).
func ExecUnwind(ec execCtx, outer *graph.Environment, s *ast.Unwind) ([]Row, error) {
	v := Eval(s.List, outer, ec.params)
	list, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	var envs []*graph.Environment
	for _, item := range list {
		env := outer.Fork()
		env.Set(s.Variable, item)
		envs = append(envs, env)
	}
	return finishMatchEnvs(envs, false, s.Return, ec.params), nil
}

// ExecForeach runs `FOREACH (v IN <list-expr> | <statement>)`, executing
// body once per element and discarding its rows (spec.md §4.4.4). Side
// effects through the store are visible to subsequent statements because
// each body execution shares the same execCtx/store.
func ExecForeach(ec execCtx, outer *graph.Environment, s *ast.Foreach) error {
	v := Eval(s.List, outer, ec.params)
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	for _, item := range list {
		env := outer.Fork()
		env.Set(s.Variable, item)
		if _, err := ExecStatement(ec, env, s.Body); err != nil {
			return err
		}
	}
	return nil
}

// ExecReturn runs a bare `RETURN <exprList>`: a single-row projection
// (spec.md §4.4.4). SKIP >= 1 drops it; LIMIT 0 drops it — both fall out
// of the shared finishReturn pipeline.
func ExecReturn(ec execCtx, outer *graph.Environment, s *ast.Return) ([]Row, error) {
	if containsAggregate(s.Spec.Items) {
		rows := runAggregation(s.Spec.Items, []*graph.Environment{outer}, ec.params)
		return finishReturn(rows, s.Spec, ec.params), nil
	}
	row := projectRow(s.Spec.Items, s.Spec.Star, outer, ec.params)
	return finishReturn([]Row{row}, s.Spec, ec.params), nil
}

// ExecUnion runs `<stmt> UNION [ALL] <stmt>`: materialize left then
// right, deduplicating unless ALL (spec.md §4.4.4).
func ExecUnion(ec execCtx, outer *graph.Environment, s *ast.Union) ([]Row, error) {
	left, err := ExecStatement(ec, outer, s.Left)
	if err != nil {
		return nil, err
	}
	right, err := ExecStatement(ec, outer, s.Right)
	if err != nil {
		return nil, err
	}
	rows := append(append([]Row{}, left...), right...)
	if !s.All {
		rows = applyDistinct(rows)
	}
	return rows, nil
}

// ExecCall runs `CALL { <script> } RETURN <returnList>`: executes the
// subquery sequence, and for every row emitted by the LAST inner
// statement, extends the outer environment and evaluates the outer
// RETURN once. Non-final inner statements merge their last-observed
// bindings into the shared local environment — a one-shot carry-over,
// matching the semantics With reuses (spec.md §4.4.4, ast.go's With doc).
func ExecCall(ec execCtx, outer *graph.Environment, subquery []ast.Statement, outerReturn ast.ReturnSpec) ([]Row, error) {
	if len(subquery) == 0 {
		return finishReturn([]Row{projectRow(outerReturn.Items, outerReturn.Star, outer, ec.params)}, outerReturn, ec.params), nil
	}

	local := outer.Fork()
	for i := 0; i < len(subquery)-1; i++ {
		rows, err := ExecStatement(ec, local, subquery[i])
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			for k, v := range last {
				local.Set(k, v)
			}
		}
	}

	finalRows, err := ExecStatement(ec, local, subquery[len(subquery)-1])
	if err != nil {
		return nil, err
	}

	var out []Row
	for _, r := range finalRows {
		env := local.Fork()
		for k, v := range r {
			env.Set(k, v)
		}
		out = append(out, projectRow(outerReturn.Items, outerReturn.Star, env, ec.params))
	}
	return finishReturn(out, outerReturn, ec.params), nil
}

// ExecWith runs `MATCH ... WITH <projection> [WHERE] RETURN ...`: Source's
// own Return field holds the WITH projection (aggregation runs there
// exactly as an ordinary RETURN would); Where filters the projected rows;
// Tail is the outer RETURN (ast.go's With doc comment).
func ExecWith(ec execCtx, outer *graph.Environment, s *ast.With) ([]Row, error) {
	projected, err := ExecStatement(ec, outer.Fork(), s.Source)
	if err != nil {
		return nil, err
	}

	var envs []*graph.Environment
	for _, row := range projected {
		env := rowEnv(row)
		if !EvalWhere(s.Where, env, ec.params) {
			continue
		}
		envs = append(envs, env)
	}
	return finishMatchEnvs(envs, false, s.Tail, ec.params), nil
}
