package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wyrmfield/cypherdb/token"
)

func TestTokenizeSimpleMatch(t *testing.T) {
	toks, err := Tokenize(`MATCH (n:Person {name:"Alice"}) RETURN n.name AS name`)
	require.NoError(t, err)

	var kinds []token.Kind
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}

	require.Equal(t, []token.Kind{
		token.KEYWORD, token.LPAREN, token.IDENT, token.COLON, token.IDENT,
		token.LBRACE, token.IDENT, token.COLON, token.STRING, token.RBRACE,
		token.RPAREN, token.KEYWORD, token.IDENT, token.DOT, token.IDENT,
		token.KEYWORD, token.IDENT, token.EOF,
	}, kinds)
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	toks, err := Tokenize("match return where")
	require.NoError(t, err)
	require.Len(t, toks, 4)
	for _, tk := range toks[:3] {
		require.Equal(t, token.KEYWORD, tk.Kind)
	}
}

func TestIdentifiersCaseSensitive(t *testing.T) {
	toks, err := Tokenize("Alice alice ALICE")
	require.NoError(t, err)
	require.Equal(t, "Alice", toks[0].Literal)
	require.Equal(t, "alice", toks[1].Literal)
	require.Equal(t, "ALICE", toks[2].Literal)
}

func TestParameterToken(t *testing.T) {
	toks, err := Tokenize("$minAge")
	require.NoError(t, err)
	require.Equal(t, token.PARAMETER, toks[0].Kind)
	require.Equal(t, "minAge", toks[0].Literal)
}

func TestNumberLiterals(t *testing.T) {
	toks, err := Tokenize("42 3.14 -7")
	require.NoError(t, err)
	require.Equal(t, "42", toks[0].Literal)
	require.Equal(t, "3.14", toks[1].Literal)
	// unary minus is lexed separately from the digits as DASH; the parser
	// wraps the following operand in a negation.
	require.Equal(t, token.DASH, toks[2].Kind)
	require.Equal(t, "7", toks[3].Literal)
}

func TestStringEscapes(t *testing.T) {
	toks, err := Tokenize(`'it\'s here' "line\nbreak"`)
	require.NoError(t, err)
	require.Equal(t, "it's here", toks[0].Literal)
	require.Equal(t, "line\nbreak", toks[1].Literal)
}

func TestRelationshipArrows(t *testing.T) {
	toks, err := Tokenize(`()-[:KNOWS]->()<-[:LIKES]-()`)
	require.NoError(t, err)
	var kinds []token.Kind
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	require.Contains(t, kinds, token.ARROW_R)
	require.Contains(t, kinds, token.ARROW_L)
	require.Contains(t, kinds, token.DASH)
}

func TestIllegalCharacter(t *testing.T) {
	_, err := Tokenize("MATCH (n) RETURN n #")
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestMultiStatementScript(t *testing.T) {
	toks, err := Tokenize("CREATE (n:Tmp {x:1}) RETURN n; MATCH (n:Tmp) RETURN n")
	require.NoError(t, err)
	var semis int
	for _, tk := range toks {
		if tk.Kind == token.SEMI {
			semis++
		}
	}
	require.Equal(t, 1, semis)
}
