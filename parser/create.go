package parser

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/token"
)

// isRefPattern reports whether a node pattern names only a variable with
// no labels or properties, in which case CREATE/MERGE relationship
// clauses treat it as a reference to an already-bound node rather than a
// fresh node to create (spec.md §4.4.3).
func isRefPattern(n ast.NodePattern) bool {
	return len(n.Labels) == 0 && len(n.Properties) == 0 && n.Variable != ""
}

// parseCreate parses `CREATE (v:L {...}) [SET ...] [RETURN v]` or
// `CREATE (a)-[r:T {...}]->(b) [RETURN r]` (spec.md §4.4.3).
func (p *Parser) parseCreate() (ast.Statement, error) {
	p.advance() // CREATE
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}

	if p.atRelStart() {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		end, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		cr := &ast.CreateRel{
			Start: start, StartIsRef: isRefPattern(start),
			Rel: rel,
			End: end, EndIsRef: isRefPattern(end),
		}
		if p.atKeyword("RETURN") {
			spec, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			cr.Return = &spec
		}
		return cr, nil
	}

	c := &ast.Create{Node: start}
	if p.atKeyword("SET") {
		p.advance()
		items, err := p.parseSetItems()
		if err != nil {
			return nil, err
		}
		c.Set = items
	}
	if p.atKeyword("RETURN") {
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		c.Return = &spec
	}
	return c, nil
}

// parseMerge parses `MERGE (v:L {...}) [ON CREATE SET ...] [ON MATCH SET ...] [RETURN v]`
// or `MERGE (a)-[r:T]->(b) ... [RETURN r]` (spec.md §4.4.5), where a/b in
// the relationship form reference variables already bound earlier in the
// same statement list.
func (p *Parser) parseMerge() (ast.Statement, error) {
	p.advance() // MERGE
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}

	if p.atRelStart() {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		end, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		onCreate, onMatch, err := p.parseOnClauses()
		if err != nil {
			return nil, err
		}
		mr := &ast.MergeRel{StartVar: start.Variable, Rel: rel, EndVar: end.Variable, OnCreate: onCreate, OnMatch: onMatch}
		if p.atKeyword("RETURN") {
			spec, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			mr.Return = &spec
		}
		return mr, nil
	}

	onCreate, onMatch, err := p.parseOnClauses()
	if err != nil {
		return nil, err
	}
	m := &ast.Merge{Node: start, OnCreate: onCreate, OnMatch: onMatch}
	if p.atKeyword("RETURN") {
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		m.Return = &spec
	}
	return m, nil
}

func (p *Parser) parseOnClauses() (onCreate, onMatch []ast.SetItem, err error) {
	for p.atKeyword("ON") {
		p.advance()
		switch {
		case p.atKeyword("CREATE"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, nil, err
			}
			onCreate = items
		case p.atKeyword("MATCH"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return nil, nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, nil, err
			}
			onMatch = items
		default:
			return nil, nil, p.errorf("expected CREATE or MATCH after ON")
		}
	}
	return onCreate, onMatch, nil
}

// parseUnwind parses `UNWIND <list-expr> AS v RETURN <expr>` (spec.md §4.4.6).
func (p *Parser) parseUnwind() (ast.Statement, error) {
	p.advance() // UNWIND
	list, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	v, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	spec, err := p.parseReturnClause()
	if err != nil {
		return nil, err
	}
	return &ast.Unwind{List: list, Variable: v, Return: spec}, nil
}

// parseForeach parses `FOREACH (v IN <list-expr> | <statement>)` (spec.md §4.4.7).
func (p *Parser) parseForeach() (ast.Statement, error) {
	p.advance() // FOREACH
	if _, err := p.expectKind(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	v, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	list, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.PIPE, "'|'"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
		return nil, err
	}
	return &ast.Foreach{Variable: v, List: list, Body: body}, nil
}

// parseCall parses `CALL { <script> } RETURN <returnList>` (spec.md §4.4.4):
// a balanced-brace scan collects the inner token span, which is parsed as
// its own Script by a fresh Parser over that span plus a synthetic EOF.
func (p *Parser) parseCall() (ast.Statement, error) {
	p.advance() // CALL
	if _, err := p.expectKind(token.LBRACE, "'{'"); err != nil {
		return nil, err
	}
	depth := 1
	start := p.pos
	for depth > 0 {
		if p.atEOF() {
			return nil, p.errorf("unterminated CALL subquery")
		}
		switch {
		case p.atKind(token.LBRACE):
			depth++
		case p.atKind(token.RBRACE):
			depth--
			if depth == 0 {
				continue
			}
		}
		p.advance()
	}
	end := p.pos
	p.advance() // consume closing }

	innerToks := append(append([]token.Token{}, p.toks[start:end]...), token.Token{Kind: token.EOF})
	inner := &Parser{toks: innerToks}
	script, err := inner.parseScript()
	if err != nil {
		return nil, err
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	spec, err := p.parseReturnClause()
	if err != nil {
		return nil, err
	}
	return &ast.Call{Subquery: script.Statements, Return: spec}, nil
}
