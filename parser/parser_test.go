package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wyrmfield/cypherdb/ast"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person {name:"Alice"}) RETURN n.name AS name`)
	require.NoError(t, err)
	require.Len(t, script.Statements, 1)

	mr, ok := script.Statements[0].(*ast.MatchReturn)
	require.True(t, ok)
	require.False(t, mr.Optional)
	require.Equal(t, []string{"Person"}, mr.Node.Labels)
	require.Nil(t, mr.Rel)
	require.Len(t, mr.Return.Items, 1)
	require.Equal(t, "name", mr.Return.Items[0].Alias)
}

func TestParseOptionalMatchSingleRelationship(t *testing.T) {
	script, err := ParseScript(`OPTIONAL MATCH (a:Person)-[r:ACTED_IN]->(m:Movie) RETURN a, r, m`)
	require.NoError(t, err)
	mr, ok := script.Statements[0].(*ast.MatchReturn)
	require.True(t, ok)
	require.True(t, mr.Optional)
	require.NotNil(t, mr.Rel)
	require.Equal(t, "ACTED_IN", mr.Rel.Type)
	require.Equal(t, ast.DirOut, mr.Rel.Direction)
	require.NotNil(t, mr.Node2)
	require.Equal(t, []string{"Movie"}, mr.Node2.Labels)
}

func TestParseMultiHopChain(t *testing.T) {
	script, err := ParseScript(`MATCH (a)-[:ACTED_IN]->(m)-[:IN_GENRE]->(g) RETURN a, m, g`)
	require.NoError(t, err)
	chain, ok := script.Statements[0].(*ast.MatchChain)
	require.True(t, ok)
	require.Len(t, chain.Hops, 2)
	require.Equal(t, "ACTED_IN", chain.Hops[0].Rel.Type)
	require.Equal(t, "IN_GENRE", chain.Hops[1].Rel.Type)
}

func TestParseCommaSeparatedPatterns(t *testing.T) {
	script, err := ParseScript(`MATCH (a:Person), (b:Movie) RETURN a, b`)
	require.NoError(t, err)
	mm, ok := script.Statements[0].(*ast.MatchMultiReturn)
	require.True(t, ok)
	require.Len(t, mm.Patterns, 2)
}

func TestParseVariableLengthPath(t *testing.T) {
	script, err := ParseScript(`MATCH p = (a:Person)-[*1..3]->(b:Person) RETURN p`)
	require.NoError(t, err)
	mp, ok := script.Statements[0].(*ast.MatchPath)
	require.True(t, ok)
	require.Equal(t, "p", mp.PathVar)
	require.True(t, mp.Rel.VarLength)
	require.Equal(t, 1, mp.Rel.MinHops)
	require.Equal(t, 3, mp.Rel.MaxHops)
	require.NotNil(t, mp.Return)
}

func TestParseWhereClauseWithAndOrNot(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) WHERE n.age > 30 AND NOT n.name = "Bob" RETURN n`)
	require.NoError(t, err)
	mr := script.Statements[0].(*ast.MatchReturn)
	and, ok := mr.Where.(*ast.And)
	require.True(t, ok)
	_, ok = and.Left.(*ast.Condition)
	require.True(t, ok)
	not, ok := and.Right.(*ast.Not)
	require.True(t, ok)
	_, ok = not.Expr.(*ast.Condition)
	require.True(t, ok)
}

func TestParseIsNullPredicate(t *testing.T) {
	script, err := ParseScript(`MATCH (n) WHERE n.age IS NOT NULL RETURN n`)
	require.NoError(t, err)
	mr := script.Statements[0].(*ast.MatchReturn)
	cond, ok := mr.Where.(*ast.Condition)
	require.True(t, ok)
	require.Equal(t, ast.OpIsNotNull, cond.Op)
}

func TestParseCreateNode(t *testing.T) {
	script, err := ParseScript(`CREATE (n:Person {name:"Dave", age:40}) RETURN n`)
	require.NoError(t, err)
	c, ok := script.Statements[0].(*ast.Create)
	require.True(t, ok)
	require.Equal(t, []string{"Person"}, c.Node.Labels)
	require.NotNil(t, c.Return)
}

func TestParseCreateRelationship(t *testing.T) {
	script, err := ParseScript(`CREATE (a)-[r:KNOWS {since:2020}]->(b) RETURN r`)
	require.NoError(t, err)
	cr, ok := script.Statements[0].(*ast.CreateRel)
	require.True(t, ok)
	require.True(t, cr.StartIsRef)
	require.True(t, cr.EndIsRef)
	require.Equal(t, "KNOWS", cr.Rel.Type)
}

func TestParseMergeWithOnCreateOnMatch(t *testing.T) {
	script, err := ParseScript(`MERGE (n:Person {name:"Eve"}) ON CREATE SET n.created = true ON MATCH SET n.seen = true RETURN n`)
	require.NoError(t, err)
	m, ok := script.Statements[0].(*ast.Merge)
	require.True(t, ok)
	require.Len(t, m.OnCreate, 1)
	require.Len(t, m.OnMatch, 1)
}

func TestParseMergeRelationship(t *testing.T) {
	script, err := ParseScript(`MATCH (a:Person {name:"Alice"}) RETURN a; MATCH (b:Person {name:"Bob"}) RETURN b; MERGE (a)-[r:KNOWS]->(b) RETURN r`)
	require.NoError(t, err)
	require.Len(t, script.Statements, 3)
	mr, ok := script.Statements[2].(*ast.MergeRel)
	require.True(t, ok)
	require.Equal(t, "a", mr.StartVar)
	require.Equal(t, "b", mr.EndVar)
}

func TestParseDetachDelete(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person {name:"Carol"}) DETACH DELETE n`)
	require.NoError(t, err)
	md, ok := script.Statements[0].(*ast.MatchDelete)
	require.True(t, ok)
	require.True(t, md.Detach)
	require.Equal(t, "n", md.Variable)
}

func TestParseSetClause(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person {name:"Alice"}) SET n.age = 31, n.active = true RETURN n`)
	require.NoError(t, err)
	ms, ok := script.Statements[0].(*ast.MatchSet)
	require.True(t, ok)
	require.Len(t, ms.Items, 2)
	require.Equal(t, "age", ms.Items[0].Property)
}

func TestParseRemoveLabelAndProperty(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) WHERE n.name = "Bob" REMOVE n:Temp, n.age RETURN n`)
	require.NoError(t, err)
	mr, ok := script.Statements[0].(*ast.MatchRemove)
	require.True(t, ok)
	require.Len(t, mr.Items, 2)
	require.Equal(t, "Temp", mr.Items[0].Label)
	require.Equal(t, "age", mr.Items[1].Property)
}

func TestParseUnwind(t *testing.T) {
	script, err := ParseScript(`UNWIND [1, 2, 3] AS x RETURN x`)
	require.NoError(t, err)
	u, ok := script.Statements[0].(*ast.Unwind)
	require.True(t, ok)
	require.Equal(t, "x", u.Variable)
	lit, ok := u.List.(*ast.ListLiteral)
	require.True(t, ok)
	require.Len(t, lit.Items, 3)
}

func TestParseForeach(t *testing.T) {
	script, err := ParseScript(`FOREACH (x IN [1,2,3] | CREATE (n:Tmp {v:x}))`)
	require.NoError(t, err)
	f, ok := script.Statements[0].(*ast.Foreach)
	require.True(t, ok)
	require.Equal(t, "x", f.Variable)
	_, ok = f.Body.(*ast.Create)
	require.True(t, ok)
}

func TestParseCallSubquery(t *testing.T) {
	script, err := ParseScript(`CALL { MATCH (n:Person) RETURN count(n) AS total } RETURN total`)
	require.NoError(t, err)
	call, ok := script.Statements[0].(*ast.Call)
	require.True(t, ok)
	require.Len(t, call.Subquery, 1)
	_, ok = call.Subquery[0].(*ast.MatchReturn)
	require.True(t, ok)
	require.Len(t, call.Return.Items, 1)
}

func TestParseWithClause(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) WITH n.age AS age WHERE age > 18 RETURN age`)
	require.NoError(t, err)
	with, ok := script.Statements[0].(*ast.With)
	require.True(t, ok)
	require.NotNil(t, with.Source)
	require.Len(t, with.Tail.Items, 1)
}

func TestParseUnionAll(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) RETURN n.name AS name UNION ALL MATCH (n:Movie) RETURN n.title AS name`)
	require.NoError(t, err)
	union, ok := script.Statements[0].(*ast.Union)
	require.True(t, ok)
	require.True(t, union.All)
}

func TestParseReturnDistinctOrderBySkipLimit(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) RETURN DISTINCT n.name AS name ORDER BY name DESC SKIP 1 LIMIT 5`)
	require.NoError(t, err)
	mr := script.Statements[0].(*ast.MatchReturn)
	require.True(t, mr.Return.Distinct)
	require.Len(t, mr.Return.OrderBy, 1)
	require.True(t, mr.Return.OrderBy[0].Desc)
	require.NotNil(t, mr.Return.Skip)
	require.NotNil(t, mr.Return.Limit)
}

func TestParseAggregateFunctions(t *testing.T) {
	script, err := ParseScript(`MATCH (n:Person) RETURN count(*) AS total, avg(n.age) AS avgAge`)
	require.NoError(t, err)
	mr := script.Statements[0].(*ast.MatchReturn)
	agg1, ok := mr.Return.Items[0].Expr.(*ast.Aggregate)
	require.True(t, ok)
	require.True(t, agg1.Star)
	require.Equal(t, ast.AggCount, agg1.Kind)
	agg2, ok := mr.Return.Items[1].Expr.(*ast.Aggregate)
	require.True(t, ok)
	require.Equal(t, ast.AggAvg, agg2.Kind)
}

func TestParseMultiStatementScript(t *testing.T) {
	script, err := ParseScript(`CREATE (n:Tmp {x:1}) RETURN n; MATCH (n:Tmp) RETURN n`)
	require.NoError(t, err)
	require.Len(t, script.Statements, 2)
	_, ok := script.Statements[0].(*ast.Create)
	require.True(t, ok)
	_, ok = script.Statements[1].(*ast.MatchReturn)
	require.True(t, ok)
}

func TestParseSyntaxErrorReportsPosition(t *testing.T) {
	_, err := ParseScript(`MATCH (n RETURN n`)
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	require.Equal(t, 1, synErr.Pos.Line)
	require.Equal(t, 10, synErr.Pos.Column)
}
