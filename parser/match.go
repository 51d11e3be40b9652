package parser

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/token"
)

// parseMatchLed parses `[OPTIONAL] MATCH <pattern>... [WHERE] <RETURN|SET|DELETE|REMOVE|WITH>`
// and produces the narrowest Statement variant the pattern shape calls
// for (spec.md §4.2). Rather than the spec's literal "parse a chain, then
// roll back to a simple relationship parse if single-hop" heuristic —
// which exists in the original engine because it parses with regexes —
// this parser carries full (start, hops) structure from a single forward
// pass and chooses the Statement variant from the hop/pattern count it
// already has, so no reparse is needed (see DESIGN.md). The save/restore
// cursor (spec.md's "Parser state is restorable") is still used for the
// parenthesized-WHERE lookahead; the path-variable prefix is detected by
// peeking ahead without moving the cursor.
func (p *Parser) parseMatchLed() (ast.Statement, error) {
	optional := false
	if p.atKeyword("OPTIONAL") {
		optional = true
		p.advance()
	}
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}

	if pathVar, ok := p.tryParsePathVarPrefix(); ok {
		return p.finishMatchPath(optional, pathVar)
	}

	elems, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}

	where := ast.WhereClause(&ast.TrueClause{})
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}

	return p.finishMatchTail(optional, elems, where)
}

// tryParsePathVarPrefix recognizes `pathVar = (` at the current position
// without consuming input on failure.
func (p *Parser) tryParsePathVarPrefix() (string, bool) {
	if !p.atKind(token.IDENT) || p.peek(1).Kind != token.EQ || p.peek(2).Kind != token.LPAREN {
		return "", false
	}
	name := p.advance().Literal
	p.advance() // =
	return name, true
}

func (p *Parser) finishMatchPath(optional bool, pathVar string) (ast.Statement, error) {
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	rel, err := p.parseRelPattern()
	if err != nil {
		return nil, err
	}
	end, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}

	where := ast.WhereClause(&ast.TrueClause{})
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}

	mp := &ast.MatchPath{Optional: optional, PathVar: pathVar, Start: start, Rel: rel, End: end, Where: where}
	if p.atKeyword("RETURN") {
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		mp.Return = &spec
	}
	return mp, nil
}

// patternElem is the parser's intermediate form before it decides which
// Statement variant to build.
type patternElem struct {
	start ast.NodePattern
	hops  []ast.ChainHop
}

func (p *Parser) parsePatternList() ([]patternElem, error) {
	var elems []patternElem
	for {
		elem, err := p.parseOnePatternElem()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	return elems, nil
}

func (p *Parser) parseOnePatternElem() (patternElem, error) {
	var elem patternElem
	start, err := p.parseNodePattern()
	if err != nil {
		return elem, err
	}
	elem.start = start
	for p.atRelStart() {
		rel, err := p.parseRelPattern()
		if err != nil {
			return elem, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return elem, err
		}
		elem.hops = append(elem.hops, ast.ChainHop{Rel: rel, Node: node})
	}
	return elem, nil
}

// finishMatchTail dispatches to the appropriate trailing clause
// (RETURN/SET/DELETE/REMOVE/WITH) and wraps the already-parsed pattern(s)
// into the narrowest matching Statement variant.
func (p *Parser) finishMatchTail(optional bool, elems []patternElem, where ast.WhereClause) (ast.Statement, error) {
	switch {
	case p.atKeyword("SET"):
		return p.parseMatchSet(optional, elems, where)
	case p.atKeyword("DELETE"), p.atKeyword("DETACH"):
		return p.parseMatchDelete(optional, elems, where)
	case p.atKeyword("REMOVE"):
		return p.parseMatchRemove(optional, elems, where)
	case p.atKeyword("WITH"):
		return p.parseWith(optional, elems, where)
	default:
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		return buildMatchReturn(optional, elems, where, spec), nil
	}
}

func buildMatchReturn(optional bool, elems []patternElem, where ast.WhereClause, spec ast.ReturnSpec) ast.Statement {
	if len(elems) > 1 {
		var patterns []ast.MatchPatternElem
		for _, e := range elems {
			patterns = append(patterns, ast.MatchPatternElem{Start: e.start, Hops: e.hops})
		}
		return &ast.MatchMultiReturn{Optional: optional, Patterns: patterns, Where: where, Return: spec}
	}
	e := elems[0]
	switch len(e.hops) {
	case 0:
		return &ast.MatchReturn{Optional: optional, Node: e.start, Where: where, Return: spec}
	case 1:
		hop := e.hops[0]
		return &ast.MatchReturn{Optional: optional, Node: e.start, Rel: &hop.Rel, Node2: &hop.Node, Where: where, Return: spec}
	default:
		return &ast.MatchChain{Optional: optional, Start: e.start, Hops: e.hops, Where: where, Return: spec}
	}
}

// singlePatternForWrite reduces a pattern list that a write-ish tail
// (SET/DELETE/REMOVE) accepts: exactly one element, 0 or 1 hops (spec.md
// write operators all key off a single pattern).
func singlePatternForWrite(elems []patternElem) (ast.NodePattern, *ast.RelPattern, *ast.NodePattern) {
	e := elems[0]
	if len(e.hops) == 0 {
		return e.start, nil, nil
	}
	hop := e.hops[0]
	return e.start, &hop.Rel, &hop.Node
}

func (p *Parser) parseMatchSet(optional bool, elems []patternElem, where ast.WhereClause) (ast.Statement, error) {
	p.advance() // SET
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	node, rel, node2 := singlePatternForWrite(elems)
	ms := &ast.MatchSet{Optional: optional, Node: node, Rel: rel, Node2: node2, Where: where, Items: items}
	if p.atKeyword("RETURN") {
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		ms.Return = &spec
	}
	return ms, nil
}

func (p *Parser) parseSetItems() ([]ast.SetItem, error) {
	var items []ast.SetItem
	for {
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.DOT, "'.'"); err != nil {
			return nil, err
		}
		prop, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.EQ, "'='"); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, ast.SetItem{Variable: v, Property: prop, Value: val})
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseMatchDelete(optional bool, elems []patternElem, where ast.WhereClause) (ast.Statement, error) {
	detach := false
	if p.atKeyword("DETACH") {
		detach = true
		p.advance()
	}
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	v, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	node, rel, node2 := singlePatternForWrite(elems)
	return &ast.MatchDelete{Optional: optional, Node: node, Rel: rel, Node2: node2, Where: where, Variable: v, Detach: detach}, nil
}

func (p *Parser) parseMatchRemove(optional bool, elems []patternElem, where ast.WhereClause) (ast.Statement, error) {
	p.advance() // REMOVE
	var items []ast.RemoveItem
	for {
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		switch {
		case p.atKind(token.COLON):
			p.advance()
			label, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			items = append(items, ast.RemoveItem{Variable: v, Label: label})
		case p.atKind(token.DOT):
			p.advance()
			prop, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			items = append(items, ast.RemoveItem{Variable: v, Property: prop})
		default:
			return nil, p.errorf("expected ':' or '.' after REMOVE target")
		}
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	node, _, _ := singlePatternForWrite(elems)
	mr := &ast.MatchRemove{Optional: optional, Node: node, Where: where, Items: items}
	if p.atKeyword("RETURN") {
		spec, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		mr.Return = &spec
	}
	return mr, nil
}

// parseWith builds the preceding pattern into a source Statement (its
// Return field holds the WITH projection itself) and wraps it with the
// post-WITH WHERE and the final RETURN (SPEC_FULL.md §12).
func (p *Parser) parseWith(optional bool, elems []patternElem, where ast.WhereClause) (ast.Statement, error) {
	p.advance() // WITH
	withSpec, err := p.parseReturnSpecBody()
	if err != nil {
		return nil, err
	}
	source := buildMatchReturn(optional, elems, where, withSpec)

	postWhere := ast.WhereClause(&ast.TrueClause{})
	if p.atKeyword("WHERE") {
		p.advance()
		postWhere, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	tail, err := p.parseReturnSpecBody()
	if err != nil {
		return nil, err
	}
	return &ast.With{Source: source, Where: postWhere, Tail: tail}, nil
}
