package engine

import (
	"context"
	"errors"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/engine/metrics"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/parser"
	"github.com/wyrmfield/cypherdb/storage"
)

var tracer = otel.Tracer("cypherdb/engine")

// ExecStatement dispatches one parsed statement to its executor, folding
// the handful of error-only operators into the common []Row signature
// (spec.md §4.4).
func ExecStatement(ec execCtx, env *graph.Environment, stmt ast.Statement) ([]Row, error) {
	ctx, span := tracer.Start(ec.ctx, statementSpanName(stmt))
	defer span.End()
	ec.ctx = ctx

	switch s := stmt.(type) {
	case *ast.MatchReturn:
		return ExecMatchReturn(ec, env, s)
	case *ast.MatchMultiReturn:
		return ExecMatchMultiReturn(ec, env, s)
	case *ast.MatchChain:
		return ExecMatchChain(ec, env, s)
	case *ast.MatchPath:
		rows, paths, err := ExecMatchPath(ec, env, s)
		if err != nil {
			return nil, err
		}
		if s.Return == nil && s.PathVar != "" && len(paths) > 0 {
			env.Set(s.PathVar, paths[0])
		}
		return rows, nil
	case *ast.Create:
		return ExecCreate(ec, env, s)
	case *ast.CreateRel:
		return ExecCreateRel(ec, env, s)
	case *ast.Merge:
		return ExecMerge(ec, env, s)
	case *ast.MergeRel:
		return ExecMergeRel(ec, env, s)
	case *ast.MatchDelete:
		return nil, ExecMatchDelete(ec, env, s)
	case *ast.MatchSet:
		return ExecMatchSet(ec, env, s)
	case *ast.MatchRemove:
		return ExecMatchRemove(ec, env, s)
	case *ast.Unwind:
		return ExecUnwind(ec, env, s)
	case *ast.Foreach:
		return nil, ExecForeach(ec, env, s)
	case *ast.Return:
		return ExecReturn(ec, env, s)
	case *ast.With:
		return ExecWith(ec, env, s)
	case *ast.Union:
		return ExecUnion(ec, env, s)
	case *ast.Call:
		return ExecCall(ec, env, s.Subquery, s.Return)
	default:
		return nil, &SemanticError{Message: "unsupported statement type"}
	}
}

func statementSpanName(stmt ast.Statement) string {
	switch stmt.(type) {
	case *ast.MatchReturn:
		return "match"
	case *ast.MatchMultiReturn:
		return "match_multi"
	case *ast.MatchChain:
		return "match_chain"
	case *ast.MatchPath:
		return "match_path"
	case *ast.Create:
		return "create"
	case *ast.CreateRel:
		return "create_rel"
	case *ast.Merge:
		return "merge"
	case *ast.MergeRel:
		return "merge_rel"
	case *ast.MatchDelete:
		return "match_delete"
	case *ast.MatchSet:
		return "match_set"
	case *ast.MatchRemove:
		return "match_remove"
	case *ast.Unwind:
		return "unwind"
	case *ast.Foreach:
		return "foreach"
	case *ast.Return:
		return "return"
	case *ast.With:
		return "with"
	case *ast.Union:
		return "union"
	case *ast.Call:
		return "call"
	default:
		return "statement"
	}
}

// isWriter reports whether stmt can mutate the store, used to decide
// whether the session needs to open a transaction (spec.md §4.4.6).
func isWriter(stmt ast.Statement) bool {
	switch s := stmt.(type) {
	case *ast.Create, *ast.CreateRel, *ast.Merge, *ast.MergeRel, *ast.MatchDelete, *ast.MatchSet, *ast.MatchRemove:
		return true
	case *ast.Foreach:
		return isWriter(s.Body)
	case *ast.With:
		return isWriter(s.Source)
	case *ast.Union:
		return isWriter(s.Left) || isWriter(s.Right)
	case *ast.Call:
		for _, inner := range s.Subquery {
			if isWriter(inner) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func scriptWrites(script *ast.Script) bool {
	for _, stmt := range script.Statements {
		if isWriter(stmt) {
			return true
		}
	}
	return false
}

// groupKeyHash folds a group key's serialized row into a stable uint64
// using xxhash, so large group-by sets key on a fixed-width digest
// instead of retaining the full serialized string per group.
func groupKeyHash(serialized string) uint64 {
	return xxhash.Sum64String(serialized)
}

// Session runs `;`-delimited Cypher scripts against one storage.Engine,
// threading variable bindings across statements and wrapping writer
// scripts in a transaction (spec.md §4.4.6).
type Session struct {
	store   storage.Engine
	params  graph.Parameters
	metrics metrics.Counters
}

// NewSession binds a session to a store. params supplies `$name` values
// referenced by queries run through it.
func NewSession(store storage.Engine, params graph.Parameters) *Session {
	return &Session{store: store, params: params}
}

// Metrics returns the session's counters, e.g. to Publish them under
// expvar or to inspect them directly in tests.
func (s *Session) Metrics() *metrics.Counters {
	return &s.metrics
}

// Run tokenizes, parses, and executes src's statement sequence, returning
// the concatenation of every statement's rows in order (spec.md §5, the
// script-ordering guarantee: statement i's rows precede statement i+1's).
func (s *Session) Run(ctx context.Context, src string) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "session.run", trace.WithAttributes(attribute.Int("query.length", len(src))))
	defer span.End()

	script, err := parser.ParseScript(src)
	if err != nil {
		return nil, err
	}

	var tx storage.Tx
	store := s.store
	if scriptWrites(script) {
		txOpener, ok := store.(storage.Transactional)
		if ok {
			opened, err := txOpener.Begin(ctx)
			if err != nil {
				return nil, &storage.TransactionError{Op: "begin", Err: err}
			}
			tx = opened
			store = tx
		}
	}

	env := graph.NewEnvironment()
	ec := execCtx{ctx: ctx, store: store, params: s.params}

	var rows []Row
	for _, stmt := range script.Statements {
		if tx != nil && ctx.Err() != nil {
			_ = tx.Rollback(ctx)
			s.metrics.TransactionsRolledBack.Add(1)
			return nil, errAbandoned
		}
		stmtRows, err := ExecStatement(ec, env, stmt)
		s.metrics.StatementsExecuted.Add(1)
		if err != nil {
			s.metrics.Errors.Add(1)
			if tx != nil {
				_ = tx.Rollback(ctx)
				s.metrics.TransactionsRolledBack.Add(1)
			}
			return nil, err
		}
		if len(stmtRows) > 0 {
			last := stmtRows[len(stmtRows)-1]
			for k, v := range last {
				env.Set(k, v)
			}
		}
		rows = append(rows, stmtRows...)
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			s.metrics.Errors.Add(1)
			_ = tx.Rollback(ctx)
			s.metrics.TransactionsRolledBack.Add(1)
			return nil, &storage.TransactionError{Op: "commit", Err: err}
		}
		s.metrics.TransactionsCommitted.Add(1)
	}
	s.metrics.RowsReturned.Add(int64(len(rows)))
	return rows, nil
}

var errAbandoned = errors.New("session abandoned before commit")
