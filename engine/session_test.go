package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmfield/cypherdb/engine"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/internal/testutil"
)

func names(t *testing.T, rows []engine.Row, alias string) []any {
	t.Helper()
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[alias]
	}
	return out
}

// Scenario 1: MATCH (n:Person) RETURN n.name AS name ORDER BY name DESC
func TestPersonNamesOrderedDesc(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (n:Person) RETURN n.name AS name ORDER BY name DESC`)
	require.NoError(t, err)
	assert.Equal(t, []any{"Carol", "Bob", "Alice"}, names(t, rows, "name"))
}

// Scenario 2: MATCH (m:Movie) WHERE m.released > 2000 RETURN m.title AS t
func TestMoviesReleasedAfter2000(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (m:Movie) WHERE m.released > 2000 RETURN m.title AS t`)
	require.NoError(t, err)
	assert.Equal(t, []any{"John Wick"}, names(t, rows, "t"))
}

// Scenario 3: MATCH (p:Person)-[:ACTED_IN]->(m:Movie) RETURN p.name AS p, m.title AS m
func TestActedInPairs(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (p:Person)-[:ACTED_IN]->(m:Movie) RETURN p.name AS p, m.title AS m`)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	got := map[string]bool{}
	for _, r := range rows {
		got[r["p"].(string)+"|"+r["m"].(string)] = true
	}
	assert.True(t, got["Alice|The Matrix"])
	assert.True(t, got["Alice|John Wick"])
	assert.True(t, got["Bob|John Wick"])
}

// Scenario 4: MATCH (p:Person {name:"Alice"})-[:ACTED_IN]->(m)-[:IN_GENRE]->(g) RETURN g.name AS g
func TestAliceGenres(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (p:Person {name:"Alice"})-[:ACTED_IN]->(m)-[:IN_GENRE]->(g) RETURN g.name AS g`)
	require.NoError(t, err)
	assert.Equal(t, []any{"Action"}, names(t, rows, "g"))
}

// Scenario 5: MATCH (m:Movie) RETURN m.released AS year, COUNT(m) AS c
func TestMoviesByYearCount(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (m:Movie) RETURN m.released AS year, COUNT(m) AS c`)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byYear := map[any]int64{}
	for _, r := range rows {
		byYear[r["year"]] = r["c"].(int64)
	}
	assert.Equal(t, int64(1), byYear[int64(1999)])
	assert.Equal(t, int64(1), byYear[int64(2014)])
}

// Scenario 6: a two-statement write script, carrying the variable bound
// by statement 1 is not required (statement 2 re-matches), but the SET
// must be visible to the final RETURN within the same script.
func TestScriptCreateThenSet(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `CREATE (n:Tmp {x:1}) RETURN n; MATCH (n:Tmp {x:1}) SET n.x = 2 RETURN n`)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	last := rows[len(rows)-1]
	tmp, ok := last["n"].(*graph.NodeRecord)
	require.True(t, ok)
	assert.Equal(t, int64(2), tmp.Properties["x"])
}

// Scan totality: MATCH (n) RETURN n yields exactly one row per node.
func TestScanTotality(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (n) RETURN n`)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

// Null propagation: WHERE n.missing = x yields no rows regardless of x.
func TestNullPropagationOnMissingProperty(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (n:Person) WHERE n.missing = 1 RETURN n`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// OPTIONAL preservation: OPTIONAL MATCH over an absent label yields one
// null row, never padded beyond that.
func TestOptionalMatchAbsentLabel(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `OPTIONAL MATCH (n:Absent) RETURN n`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, graph.IsNull(rows[0]["n"]))
}

// MERGE idempotence: running the same MERGE twice must not grow the store.
func TestMergeIdempotent(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows1, err := sess.Run(context.Background(), `MERGE (n:Tag {name:"x"}) RETURN n`)
	require.NoError(t, err)
	rows2, err := sess.Run(context.Background(), `MERGE (n:Tag {name:"x"}) RETURN n`)
	require.NoError(t, err)

	id1 := rows1[0]["n"].(*graph.NodeRecord).ID
	id2 := rows2[0]["n"].(*graph.NodeRecord).ID
	assert.Equal(t, id1, id2)

	countRows, err := sess.Run(context.Background(), `MATCH (n:Tag) RETURN n`)
	require.NoError(t, err)
	assert.Len(t, countRows, 1)
}

// DISTINCT round-trip: DISTINCT over a query with duplicate projections
// collapses to the set of distinct values.
func TestDistinctRoundTrip(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	rows, err := sess.Run(context.Background(), `MATCH (p:Person)-[:ACTED_IN]->(m:Movie) RETURN DISTINCT m.title AS t`)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range rows {
		title := r["t"].(string)
		require.False(t, seen[title], "duplicate title %q survived DISTINCT", title)
		seen[title] = true
	}
}

// DELETE cascade: deleting a node removes its incident relationships.
func TestDeleteNodeCascades(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	_, err := sess.Run(context.Background(), `MATCH (m:Movie {title:"The Matrix"}) DETACH DELETE m`)
	require.NoError(t, err)

	rows, err := sess.Run(context.Background(), `MATCH (p:Person)-[:ACTED_IN]->(m:Movie) RETURN p.name AS p, m.title AS m`)
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotEqual(t, "The Matrix", r["m"])
	}

	genreRows, err := sess.Run(context.Background(), `MATCH (x)-[:IN_GENRE]->(g) RETURN g`)
	require.NoError(t, err)
	assert.Empty(t, genreRows)
}

// Plain DELETE (no DETACH keyword) on a node with incident relationships
// still cascades — DETACH is an accepted synonym, not a stricter mode
// (spec.md §4.4.5, §8 "DELETE cascade").
func TestPlainDeleteCascades(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	_, err := sess.Run(context.Background(), `MATCH (m:Movie {title:"The Matrix"}) DELETE m`)
	require.NoError(t, err)

	rows, err := sess.Run(context.Background(), `MATCH (m:Movie {title:"The Matrix"}) RETURN m.title AS t`)
	require.NoError(t, err)
	assert.Empty(t, rows)

	genreRows, err := sess.Run(context.Background(), `MATCH (p:Person)-[:ACTED_IN]->(m:Movie {title:"The Matrix"}) RETURN p`)
	require.NoError(t, err)
	assert.Empty(t, genreRows, "incident relationships must not be observable by any scan after cascade")
}

// Transaction atomicity: a write script that fails midway leaves the
// store unchanged (memstore's Begin/Commit/Rollback backs this).
func TestTransactionRollsBackOnError(t *testing.T) {
	seed := testutil.NewSeed(t)
	sess := engine.NewSession(seed.Store, nil)

	before, err := sess.Run(context.Background(), `MATCH (n) RETURN n`)
	require.NoError(t, err)

	_, err = sess.Run(context.Background(), `CREATE (n:Tmp {x:1}) RETURN n; MERGE (a)-[r:T]->(b) RETURN r`)
	require.Error(t, err)

	after, err := sess.Run(context.Background(), `MATCH (n) RETURN n`)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}
