package engine

import (
	"errors"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
)

// evalProps evaluates a pattern's property map into a concrete value map
// for create_node/create_relationship (spec.md §4.4.5) — unlike
// literalEqualityFilter this has no special meaning for MERGE's match
// predicate, so it is just a plain per-key evaluation.
func evalProps(props map[string]ast.Expression, env *graph.Environment, params graph.Parameters) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, expr := range props {
		out[k] = Eval(expr, env, params)
	}
	return out
}

func applySetItems(ec execCtx, env *graph.Environment, items []ast.SetItem) error {
	for _, item := range items {
		v, ok := env.Get(item.Variable)
		if !ok {
			continue
		}
		val := Eval(item.Value, env, ec.params)
		patch := map[string]any{item.Property: val}
		switch rec := v.(type) {
		case *graph.NodeRecord:
			updater, err := storage.Require[storage.NodeUpdater](ec.store, "update_node_properties")
			if err != nil {
				return err
			}
			updated, err := updater.UpdateNodeProperties(ec.ctx, rec.ID, patch)
			if err != nil {
				return &storage.StorageError{Op: "update_node_properties", Err: err}
			}
			env.Set(item.Variable, updated)
		case *graph.RelRecord:
			updater, err := storage.Require[storage.RelUpdater](ec.store, "update_relationship_properties")
			if err != nil {
				return err
			}
			updated, err := updater.UpdateRelProperties(ec.ctx, rec.ID, patch)
			if err != nil {
				return &storage.StorageError{Op: "update_relationship_properties", Err: err}
			}
			env.Set(item.Variable, updated)
		}
	}
	return nil
}

func oneRowResult(spec *ast.ReturnSpec, env *graph.Environment, params graph.Parameters) []Row {
	if spec == nil {
		return nil
	}
	row := projectRow(spec.Items, spec.Star, env, params)
	return finishReturn([]Row{row}, *spec, params)
}

// ExecCreate runs `CREATE (v:L {...}) [SET ...] [RETURN v]` (spec.md §4.4.5).
func ExecCreate(ec execCtx, outer *graph.Environment, s *ast.Create) ([]Row, error) {
	creator, err := storage.Require[storage.NodeCreator](ec.store, "create_node")
	if err != nil {
		return nil, err
	}
	props := evalProps(s.Node.Properties, outer, ec.params)
	n, err := creator.CreateNode(ec.ctx, s.Node.Labels, props)
	if err != nil {
		return nil, &storage.StorageError{Op: "create_node", Err: err}
	}
	env := outer.Fork()
	if s.Node.Variable != "" {
		env.Set(s.Node.Variable, n)
	}
	if err := applySetItems(ec, env, s.Set); err != nil {
		return nil, err
	}
	return oneRowResult(s.Return, env, ec.params), nil
}

// resolveEndpoint returns the node bound to pat's variable when isRef,
// otherwise creates a fresh node for pat (spec.md §4.4.5 CreateRel).
func resolveEndpoint(ec execCtx, env *graph.Environment, pat ast.NodePattern, isRef bool) (*graph.NodeRecord, error) {
	if isRef {
		v, ok := env.Get(pat.Variable)
		if !ok {
			return nil, &SemanticError{Message: "reference to unbound variable " + pat.Variable}
		}
		n, ok := v.(*graph.NodeRecord)
		if !ok {
			return nil, &SemanticError{Message: pat.Variable + " is not a node"}
		}
		return n, nil
	}
	creator, err := storage.Require[storage.NodeCreator](ec.store, "create_node")
	if err != nil {
		return nil, err
	}
	props := evalProps(pat.Properties, env, ec.params)
	n, err := creator.CreateNode(ec.ctx, pat.Labels, props)
	if err != nil {
		return nil, &storage.StorageError{Op: "create_node", Err: err}
	}
	if pat.Variable != "" {
		env.Set(pat.Variable, n)
	}
	return n, nil
}

// ExecCreateRel runs `CREATE (a)-[r:T {...}]->(b) [RETURN r]`.
func ExecCreateRel(ec execCtx, outer *graph.Environment, s *ast.CreateRel) ([]Row, error) {
	env := outer.Fork()
	start, err := resolveEndpoint(ec, env, s.Start, s.StartIsRef)
	if err != nil {
		return nil, err
	}
	end, err := resolveEndpoint(ec, env, s.End, s.EndIsRef)
	if err != nil {
		return nil, err
	}
	creator, err := storage.Require[storage.RelCreator](ec.store, "create_relationship")
	if err != nil {
		return nil, err
	}
	props := evalProps(s.Rel.Properties, env, ec.params)
	r, err := creator.CreateRelationship(ec.ctx, s.Rel.Type, start.ID, end.ID, props)
	if err != nil {
		return nil, &storage.StorageError{Op: "create_relationship", Err: err}
	}
	if s.Rel.Variable != "" {
		env.Set(s.Rel.Variable, r)
	}
	return oneRowResult(s.Return, env, ec.params), nil
}

// ExecMerge runs `MERGE (v:L {...}) [ON CREATE SET ...] [ON MATCH SET ...]
// [RETURN v]` (spec.md §4.4.5).
func ExecMerge(ec execCtx, outer *graph.Environment, s *ast.Merge) ([]Row, error) {
	finder, err := storage.Require[storage.NodeFinder](ec.store, "find_node")
	if err != nil {
		return nil, err
	}
	exact := literalEqualityFilter(s.Node.Properties, ec.params)
	found, err := finder.FindNode(ec.ctx, s.Node.Labels, exact)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, &storage.StorageError{Op: "find_node", Err: err}
	}

	env := outer.Fork()
	var created bool
	var n *graph.NodeRecord
	if found != nil {
		n = found
	} else {
		creator, err := storage.Require[storage.NodeCreator](ec.store, "create_node")
		if err != nil {
			return nil, err
		}
		props := evalProps(s.Node.Properties, env, ec.params)
		n, err = creator.CreateNode(ec.ctx, s.Node.Labels, props)
		if err != nil {
			return nil, &storage.StorageError{Op: "create_node", Err: err}
		}
		created = true
	}
	if s.Node.Variable != "" {
		env.Set(s.Node.Variable, n)
	}

	items := s.OnMatch
	if created {
		items = s.OnCreate
	}
	if err := applySetItems(ec, env, items); err != nil {
		return nil, err
	}
	return oneRowResult(s.Return, env, ec.params), nil
}

// ExecMergeRel runs `MERGE (a)-[r:T]->(b) [ON CREATE SET ...]
// [ON MATCH SET ...] [RETURN r]`, matching on (type, start.id, end.id)
// using variables already bound earlier in the script (spec.md §4.4.5).
func ExecMergeRel(ec execCtx, outer *graph.Environment, s *ast.MergeRel) ([]Row, error) {
	startV, ok := outer.Get(s.StartVar)
	if !ok {
		return nil, &SemanticError{Message: "reference to unbound variable " + s.StartVar}
	}
	endV, ok := outer.Get(s.EndVar)
	if !ok {
		return nil, &SemanticError{Message: "reference to unbound variable " + s.EndVar}
	}
	start, ok := startV.(*graph.NodeRecord)
	if !ok {
		return nil, &SemanticError{Message: s.StartVar + " is not a node"}
	}
	end, ok := endV.(*graph.NodeRecord)
	if !ok {
		return nil, &SemanticError{Message: s.EndVar + " is not a node"}
	}

	finder, err := storage.Require[storage.RelFinder](ec.store, "find_relationship")
	if err != nil {
		return nil, err
	}
	found, err := finder.FindRel(ec.ctx, s.Rel.Type, start.ID, end.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, &storage.StorageError{Op: "find_relationship", Err: err}
	}

	env := outer.Fork()
	var created bool
	var r *graph.RelRecord
	if found != nil {
		r = found
	} else {
		creator, err := storage.Require[storage.RelCreator](ec.store, "create_relationship")
		if err != nil {
			return nil, err
		}
		props := evalProps(s.Rel.Properties, env, ec.params)
		r, err = creator.CreateRelationship(ec.ctx, s.Rel.Type, start.ID, end.ID, props)
		if err != nil {
			return nil, &storage.StorageError{Op: "create_relationship", Err: err}
		}
		created = true
	}
	if s.Rel.Variable != "" {
		env.Set(s.Rel.Variable, r)
	}

	items := s.OnMatch
	if created {
		items = s.OnCreate
	}
	if err := applySetItems(ec, env, items); err != nil {
		return nil, err
	}
	return oneRowResult(s.Return, env, ec.params), nil
}

// ExecMatchDelete runs `MATCH (v...) [WHERE] DELETE v` (DETACH accepted as
// a synonym). It deletes only the first matching record (or
// relationship), per spec.md §4.4.5. Node deletion always cascades to
// every incident relationship (spec.md §4.4.5, §8 "DELETE cascade") —
// there is no rejecting variant; DETACH DELETE is the same operation
// under a second spelling, not a stricter one.
func ExecMatchDelete(ec execCtx, outer *graph.Environment, s *ast.MatchDelete) error {
	var envs []*graph.Environment
	var err error
	if s.Rel == nil {
		envs, err = matchNodeEnvs(ec, outer, s.Node, s.Where)
	} else {
		envs, err = matchRelEnvs(ec, outer, s.Node, *s.Rel, *s.Node2, "", s.Where)
	}
	if err != nil {
		return err
	}
	if len(envs) == 0 {
		return nil
	}
	v, ok := envs[0].Get(s.Variable)
	if !ok {
		return nil
	}
	switch rec := v.(type) {
	case *graph.NodeRecord:
		deleter, err := storage.Require[storage.NodeDeleter](ec.store, "delete_node")
		if err != nil {
			return err
		}
		if err := deleter.DeleteNode(ec.ctx, rec.ID); err != nil {
			return &storage.StorageError{Op: "delete_node", Err: err}
		}
	case *graph.RelRecord:
		deleter, err := storage.Require[storage.RelDeleter](ec.store, "delete_relationship")
		if err != nil {
			return err
		}
		if err := deleter.DeleteRelationship(ec.ctx, rec.ID); err != nil {
			return &storage.StorageError{Op: "delete_relationship", Err: err}
		}
	}
	return nil
}

// ExecMatchSet runs `MATCH (v...) [WHERE] SET v.p = e (, v.p = e)*
// [RETURN v]`, updating every matching record (spec.md §4.4.5).
func ExecMatchSet(ec execCtx, outer *graph.Environment, s *ast.MatchSet) ([]Row, error) {
	var envs []*graph.Environment
	var err error
	if s.Rel == nil {
		envs, err = matchNodeEnvs(ec, outer, s.Node, s.Where)
	} else {
		envs, err = matchRelEnvs(ec, outer, s.Node, *s.Rel, *s.Node2, "", s.Where)
	}
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if err := applySetItems(ec, env, s.Items); err != nil {
			return nil, err
		}
	}
	if s.Return == nil {
		return nil, nil
	}
	rows := make([]Row, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, projectRow(s.Return.Items, s.Return.Star, env, ec.params))
	}
	return finishReturn(rows, *s.Return, ec.params), nil
}

// ExecMatchRemove runs `MATCH (v...) [WHERE] REMOVE v:Label, v.prop
// [RETURN v]`, the REMOVE sibling of MatchSet (SPEC_FULL.md §12).
func ExecMatchRemove(ec execCtx, outer *graph.Environment, s *ast.MatchRemove) ([]Row, error) {
	envs, err := matchNodeEnvs(ec, outer, s.Node, s.Where)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		v, ok := env.Get(s.Node.Variable)
		if !ok {
			continue
		}
		n, ok := v.(*graph.NodeRecord)
		if !ok {
			continue
		}
		var removeLabels []string
		patch := map[string]any{}
		for _, item := range s.Items {
			if item.Label != "" {
				removeLabels = append(removeLabels, item.Label)
			}
			if item.Property != "" {
				patch[item.Property] = graph.Null
			}
		}
		if len(patch) > 0 {
			updater, err := storage.Require[storage.NodeUpdater](ec.store, "update_node_properties")
			if err != nil {
				return nil, err
			}
			updated, err := updater.UpdateNodeProperties(ec.ctx, n.ID, patch)
			if err != nil {
				return nil, &storage.StorageError{Op: "update_node_properties", Err: err}
			}
			n = updated
			env.Set(s.Node.Variable, n)
		}
		if len(removeLabels) > 0 {
			updater, err := storage.Require[storage.NodeUpdater](ec.store, "update_node_labels")
			if err != nil {
				return nil, err
			}
			updated, err := updater.UpdateNodeLabels(ec.ctx, n.ID, nil, removeLabels)
			if err != nil {
				return nil, &storage.StorageError{Op: "update_node_labels", Err: err}
			}
			env.Set(s.Node.Variable, updated)
		}
	}
	if s.Return == nil {
		return nil, nil
	}
	rows := make([]Row, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, projectRow(s.Return.Items, s.Return.Star, env, ec.params))
	}
	return finishReturn(rows, *s.Return, ec.params), nil
}
