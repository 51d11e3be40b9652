package engine

import (
	"context"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/planner"
	"github.com/wyrmfield/cypherdb/storage"
)

// execCtx threads the pieces every statement executor needs: the request
// context, the store, and the query parameters.
type execCtx struct {
	ctx    context.Context
	store  storage.Engine
	params graph.Parameters
}

// nullRow binds every alias an output row would have carried to Null,
// used by OPTIONAL MATCH's zero-match case (spec.md §4.4.1 step 7).
func nullRow(spec ast.ReturnSpec) Row {
	row := Row{}
	for i, item := range spec.Items {
		alias := item.Alias
		if alias == "" {
			alias = defaultAlias(item.Expr, i, len(spec.Items))
		}
		row[alias] = graph.Null
	}
	return row
}

// ExecMatchReturn runs a single-pattern (bare node or one-hop relationship)
// MATCH/OPTIONAL MATCH (spec.md §4.4.1).
func ExecMatchReturn(ec execCtx, outer *graph.Environment, s *ast.MatchReturn) ([]Row, error) {
	if s.Rel == nil {
		return execSingleNode(ec, outer, s.Optional, s.Node, s.Where, s.Return)
	}
	return execSingleRel(ec, outer, s.Optional, s.Node, *s.Rel, *s.Node2, s.Where, s.Return, s.PathVar)
}

func execSingleNode(ec execCtx, outer *graph.Environment, optional bool, pat ast.NodePattern, where ast.WhereClause, spec ast.ReturnSpec) ([]Row, error) {
	envs, err := matchNodeEnvs(ec, outer, pat, where)
	if err != nil {
		return nil, err
	}
	return finishMatchEnvs(envs, optional, spec, ec.params), nil
}

func execSingleRel(ec execCtx, outer *graph.Environment, optional bool, startPat ast.NodePattern, rel ast.RelPattern, endPat ast.NodePattern, where ast.WhereClause, spec ast.ReturnSpec, pathVar string) ([]Row, error) {
	envs, err := matchRelEnvs(ec, outer, startPat, rel, endPat, pathVar, where)
	if err != nil {
		return nil, err
	}
	return finishMatchEnvs(envs, optional, spec, ec.params), nil
}

// matchNodeEnvs is the reusable core of single-node MATCH: scan, filter,
// bind, evaluate WHERE, returning one environment per surviving candidate.
// Shared by MATCH/OPTIONAL MATCH projection and the MatchSet/MatchDelete/
// MatchRemove write operators (spec.md §4.4.1 steps 1-2, §4.4.5).
func matchNodeEnvs(ec execCtx, outer *graph.Environment, pat ast.NodePattern, where ast.WhereClause) ([]*graph.Environment, error) {
	litFilter := literalEqualityFilter(pat.Properties, ec.params)
	decision := planner.Choose(ec.ctx, ec.store, pat.Labels, litFilter)
	var iter storage.NodeIterator
	var err error
	if decision.UseIndex {
		lookuper := ec.store.(storage.IndexLookuper)
		iter, err = lookuper.IndexLookup(ec.ctx, decision.Label, decision.Property, decision.Value)
	} else {
		iter, err = ec.store.ScanNodes(ec.ctx, storage.ScanSpec{Labels: pat.Labels})
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "scan_nodes", Err: err}
	}
	rest := remainingFilter(litFilter, decision.UseIndex, decision.Property)

	var envs []*graph.Environment
	for {
		n, ok, err := iter.Next()
		if err != nil {
			return nil, &storage.StorageError{Op: "scan_nodes", Err: err}
		}
		if !ok {
			break
		}
		if !n.HasAllLabels(pat.Labels) || !matchesProperties(n.Properties, rest) {
			continue
		}
		env := outer.Fork()
		if pat.Variable != "" {
			env.Set(pat.Variable, n)
		}
		if !EvalWhere(where, env, ec.params) {
			continue
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// matchRelEnvs is the reusable core of single-hop relationship MATCH.
func matchRelEnvs(ec execCtx, outer *graph.Environment, startPat ast.NodePattern, rel ast.RelPattern, endPat ast.NodePattern, pathVar string, where ast.WhereClause) ([]*graph.Environment, error) {
	starts, err := matchNodes(ec.ctx, ec.store, startPat.Labels, literalEqualityFilter(startPat.Properties, ec.params))
	if err != nil {
		return nil, err
	}
	endFilter := literalEqualityFilter(endPat.Properties, ec.params)

	var envs []*graph.Environment
	for _, start := range starts {
		rels, err := incidentRels(ec.ctx, ec.store, start.ID, rel.Direction, rel.Type)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if !matchesProperties(r.Properties, literalEqualityFilter(rel.Properties, ec.params)) {
				continue
			}
			endID, forward := otherEnd(r, start.ID, rel.Direction)
			end, err := ec.store.GetNodeByID(ec.ctx, endID)
			if err != nil || end == nil {
				continue
			}
			if !end.HasAllLabels(endPat.Labels) || !matchesProperties(end.Properties, endFilter) {
				continue
			}
			env := outer.Fork()
			if startPat.Variable != "" {
				env.Set(startPat.Variable, start)
			}
			if rel.Variable != "" {
				env.Set(rel.Variable, r)
			}
			if endPat.Variable != "" {
				env.Set(endPat.Variable, end)
			}
			if pathVar != "" {
				env.Set(pathVar, &graph.PathRecord{
					Nodes: []*graph.NodeRecord{start, end},
					Steps: []graph.PathStep{{Rel: r, Forward: forward}},
				})
			}
			if !EvalWhere(where, env, ec.params) {
				continue
			}
			envs = append(envs, env)
		}
	}
	return envs, nil
}

// otherEnd resolves the neighbor node id for a relationship matched under
// dir relative to fromID, and whether the step was traversed forward
// (start->end) or backward (end->start).
func otherEnd(r *graph.RelRecord, fromID graph.NodeID, dir ast.Direction) (graph.NodeID, bool) {
	if dir == ast.DirOut {
		return r.EndNode, true
	}
	if dir == ast.DirIn {
		return r.StartNode, false
	}
	if graph.Equal(r.StartNode, fromID) {
		return r.EndNode, true
	}
	return r.StartNode, false
}

// ExecMatchMultiReturn runs `MATCH (a), (b), ...` as an independent
// candidate-set Cartesian product (spec.md §4.4.2).
func ExecMatchMultiReturn(ec execCtx, outer *graph.Environment, s *ast.MatchMultiReturn) ([]Row, error) {
	var sets [][]*graph.Environment
	for _, pat := range s.Patterns {
		envs, err := candidateEnvs(ec, outer, pat)
		if err != nil {
			return nil, err
		}
		sets = append(sets, envs)
	}

	var envs []*graph.Environment
	var walk func(i int, acc *graph.Environment)
	walk = func(i int, acc *graph.Environment) {
		if i == len(sets) {
			if !EvalWhere(s.Where, acc, ec.params) {
				return
			}
			envs = append(envs, acc)
			return
		}
		for _, env := range sets[i] {
			child := acc.Fork()
			for _, name := range env.Names() {
				v, _ := env.Get(name)
				child.Set(name, v)
			}
			walk(i+1, child)
		}
	}
	walk(0, outer.Fork())
	return finishMatchEnvs(envs, s.Optional, s.Return, ec.params), nil
}

// candidateEnvs materializes one binding-environment per candidate match
// of a single MatchPatternElem (bare node or one-hop relationship), used
// as a Cartesian-product factor.
func candidateEnvs(ec execCtx, outer *graph.Environment, pat ast.MatchPatternElem) ([]*graph.Environment, error) {
	if len(pat.Hops) == 0 {
		nodes, err := matchNodes(ec.ctx, ec.store, pat.Start.Labels, literalEqualityFilter(pat.Start.Properties, ec.params))
		if err != nil {
			return nil, err
		}
		var envs []*graph.Environment
		for _, n := range nodes {
			env := outer.Fork()
			if pat.Start.Variable != "" {
				env.Set(pat.Start.Variable, n)
			}
			envs = append(envs, env)
		}
		return envs, nil
	}
	hop := pat.Hops[0]
	starts, err := matchNodes(ec.ctx, ec.store, pat.Start.Labels, literalEqualityFilter(pat.Start.Properties, ec.params))
	if err != nil {
		return nil, err
	}
	endFilter := literalEqualityFilter(hop.Node.Properties, ec.params)
	var envs []*graph.Environment
	for _, start := range starts {
		rels, err := incidentRels(ec.ctx, ec.store, start.ID, hop.Rel.Direction, hop.Rel.Type)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if !matchesProperties(r.Properties, literalEqualityFilter(hop.Rel.Properties, ec.params)) {
				continue
			}
			endID, _ := otherEnd(r, start.ID, hop.Rel.Direction)
			end, err := ec.store.GetNodeByID(ec.ctx, endID)
			if err != nil || end == nil {
				continue
			}
			if !end.HasAllLabels(hop.Node.Labels) || !matchesProperties(end.Properties, endFilter) {
				continue
			}
			env := outer.Fork()
			if pat.Start.Variable != "" {
				env.Set(pat.Start.Variable, start)
			}
			if hop.Rel.Variable != "" {
				env.Set(hop.Rel.Variable, r)
			}
			if hop.Node.Variable != "" {
				env.Set(hop.Node.Variable, end)
			}
			envs = append(envs, env)
		}
	}
	return envs, nil
}

// ExecMatchChain runs a multi-hop `(n)-[r1]-(m)-[r2]-(o)...` pattern,
// extending the environment (and the path record, if assigned) one hop at
// a time (spec.md §4.4.2).
func ExecMatchChain(ec execCtx, outer *graph.Environment, s *ast.MatchChain) ([]Row, error) {
	starts, err := matchNodes(ec.ctx, ec.store, s.Start.Labels, literalEqualityFilter(s.Start.Properties, ec.params))
	if err != nil {
		return nil, err
	}

	var envs []*graph.Environment
	for _, start := range starts {
		env := outer.Fork()
		if s.Start.Variable != "" {
			env.Set(s.Start.Variable, start)
		}
		var path *graph.PathRecord
		if s.PathVar != "" {
			path = &graph.PathRecord{Nodes: []*graph.NodeRecord{start}}
		}
		if err := walkChain(ec, env, start, s.Hops, 0, path, func(finalEnv *graph.Environment, finalPath *graph.PathRecord) {
			if s.PathVar != "" {
				finalEnv.Set(s.PathVar, finalPath)
			}
			if !EvalWhere(s.Where, finalEnv, ec.params) {
				return
			}
			envs = append(envs, finalEnv)
		}); err != nil {
			return nil, err
		}
	}
	return finishMatchEnvs(envs, s.Optional, s.Return, ec.params), nil
}

func walkChain(ec execCtx, env *graph.Environment, current *graph.NodeRecord, hops []ast.ChainHop, i int, path *graph.PathRecord, emit func(*graph.Environment, *graph.PathRecord)) error {
	if i == len(hops) {
		emit(env, path)
		return nil
	}
	hop := hops[i]
	rels, err := incidentRels(ec.ctx, ec.store, current.ID, hop.Rel.Direction, hop.Rel.Type)
	if err != nil {
		return err
	}
	endFilter := literalEqualityFilter(hop.Node.Properties, ec.params)
	for _, r := range rels {
		if !matchesProperties(r.Properties, literalEqualityFilter(hop.Rel.Properties, ec.params)) {
			continue
		}
		endID, forward := otherEnd(r, current.ID, hop.Rel.Direction)
		end, err := ec.store.GetNodeByID(ec.ctx, endID)
		if err != nil || end == nil {
			continue
		}
		if !end.HasAllLabels(hop.Node.Labels) || !matchesProperties(end.Properties, endFilter) {
			continue
		}
		childEnv := env.Fork()
		if hop.Rel.Variable != "" {
			childEnv.Set(hop.Rel.Variable, r)
		}
		if hop.Node.Variable != "" {
			childEnv.Set(hop.Node.Variable, end)
		}
		var childPath *graph.PathRecord
		if path != nil {
			childPath = &graph.PathRecord{
				Nodes: append(append([]*graph.NodeRecord{}, path.Nodes...), end),
				Steps: append(append([]graph.PathStep{}, path.Steps...), graph.PathStep{Rel: r, Forward: forward}),
			}
		}
		if err := walkChain(ec, childEnv, end, hops, i+1, childPath, emit); err != nil {
			return err
		}
	}
	return nil
}

// ExecMatchPath runs a variable-length `(a)-[*min..max]->(b)` pattern via
// BFS from every start candidate, yielding the first path found per
// (start, end) pair (spec.md §4.4.2).
func ExecMatchPath(ec execCtx, outer *graph.Environment, s *ast.MatchPath) ([]Row, []*graph.PathRecord, error) {
	starts, err := matchNodes(ec.ctx, ec.store, s.Start.Labels, literalEqualityFilter(s.Start.Properties, ec.params))
	if err != nil {
		return nil, nil, err
	}
	endFilter := literalEqualityFilter(s.End.Properties, ec.params)
	minHops := s.Rel.MinHops
	if minHops <= 0 {
		minHops = 1
	}
	maxHops := s.Rel.MaxHops

	var paths []*graph.PathRecord
	seenEnds := map[any]bool{}
	for _, start := range starts {
		found := bfsPaths(ec, start, s.Rel.Direction, s.Rel.Type, s.End.Labels, endFilter, minHops, maxHops)
		for _, p := range found {
			endID := p.Nodes[len(p.Nodes)-1].ID
			key := graph.Serialize(start.ID) + "->" + graph.Serialize(endID)
			if seenEnds[key] {
				continue
			}
			seenEnds[key] = true
			paths = append(paths, p)
		}
	}

	var rows []Row
	if s.Return != nil {
		var envs []*graph.Environment
		for _, p := range paths {
			env := outer.Fork()
			if s.PathVar != "" {
				env.Set(s.PathVar, p)
			}
			if !EvalWhere(s.Where, env, ec.params) {
				continue
			}
			envs = append(envs, env)
		}
		rows = finishMatchEnvs(envs, s.Optional, *s.Return, ec.params)
	}
	return rows, paths, nil
}

// bfsEntry is one frontier element during variable-length path search.
type bfsEntry struct {
	node    *graph.NodeRecord
	visited map[any]bool
	path    *graph.PathRecord
}

// bfsPaths explores outward from start up to maxHops (0 = unbounded,
// capped defensively), returning one path per distinct end node reached
// within [minHops, maxHops], first-found order (spec.md §4.4.2).
func bfsPaths(ec execCtx, start *graph.NodeRecord, dir ast.Direction, relType string, endLabels []string, endFilter map[string]any, minHops, maxHops int) []*graph.PathRecord {
	const hardCap = 64
	limit := maxHops
	if limit <= 0 || limit > hardCap {
		limit = hardCap
	}

	seenEnd := map[any]bool{}
	var results []*graph.PathRecord
	frontier := []bfsEntry{{
		node:    start,
		visited: map[any]bool{start.ID: true},
		path:    &graph.PathRecord{Nodes: []*graph.NodeRecord{start}},
	}}

	for depth := 1; depth <= limit && len(frontier) > 0; depth++ {
		var next []bfsEntry
		for _, entry := range frontier {
			rels, err := incidentRels(ec.ctx, ec.store, entry.node.ID, dir, relType)
			if err != nil {
				continue
			}
			for _, r := range rels {
				endID, forward := otherEnd(r, entry.node.ID, dir)
				if entry.visited[endID] {
					continue
				}
				end, err := ec.store.GetNodeByID(ec.ctx, endID)
				if err != nil || end == nil {
					continue
				}
				visited := make(map[any]bool, len(entry.visited)+1)
				for k := range entry.visited {
					visited[k] = true
				}
				visited[endID] = true
				path := &graph.PathRecord{
					Nodes: append(append([]*graph.NodeRecord{}, entry.path.Nodes...), end),
					Steps: append(append([]graph.PathStep{}, entry.path.Steps...), graph.PathStep{Rel: r, Forward: forward}),
				}
				nextEntry := bfsEntry{node: end, visited: visited, path: path}
				if depth >= minHops && end.HasAllLabels(endLabels) && matchesProperties(end.Properties, endFilter) && !seenEnd[endID] {
					seenEnd[endID] = true
					results = append(results, path)
				}
				next = append(next, nextEntry)
			}
		}
		frontier = next
	}
	return results
}

// finishMatchEnvs routes the matched candidate environments through the
// aggregation driver when the projection needs it, otherwise through
// plain per-row projection plus OPTIONAL's zero-match rule, then the
// shared DISTINCT/ORDER BY/SKIP/LIMIT pipeline (spec.md §4.4.1 step 7,
// §4.4.3 step 5).
func finishMatchEnvs(envs []*graph.Environment, optional bool, spec ast.ReturnSpec, params graph.Parameters) []Row {
	if containsAggregate(spec.Items) {
		rows := runAggregation(spec.Items, envs, params)
		return finishReturn(rows, spec, params)
	}
	if len(envs) == 0 && optional {
		return finishReturn([]Row{nullRow(spec)}, spec, params)
	}
	rows := make([]Row, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, projectRow(spec.Items, spec.Star, env, params))
	}
	return finishReturn(rows, spec, params)
}
