package parser

import (
	"strings"

	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/token"
)

// parseExpression parses the add/sub precedence chain over primaries
// (spec.md §4.2 "Value expressions parse with precedence add/sub above a
// primary").
func (p *Parser) parseExpression() (ast.Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.atKind(token.PLUS) || (p.atKind(token.DASH) && p.looksLikeBinaryMinus()) {
		op := "+"
		if p.atKind(token.DASH) {
			op = "-"
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

// looksLikeBinaryMinus disambiguates `a - b` (binary) from a DASH that is
// actually the start of a relationship pattern dash; expressions never
// appear where a pattern dash could, so this always returns true here —
// kept as a named hook for clarity at call sites.
func (p *Parser) looksLikeBinaryMinus() bool { return true }

func (p *Parser) parseTerm() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atKind(token.STAR) || p.atKind(token.SLASH) {
		op := "*"
		if p.atKind(token.SLASH) {
			op = "/"
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.atKind(token.DASH) {
		p.advance()
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &ast.Neg{Expr: inner}, nil
	}
	return p.parsePrimary()
}

var aggNames = map[string]ast.AggKind{
	"count": ast.AggCount, "sum": ast.AggSum, "min": ast.AggMin,
	"max": ast.AggMax, "avg": ast.AggAvg, "collect": ast.AggCollect,
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	switch {
	case p.atKind(token.STAR):
		p.advance()
		return &ast.All{}, nil
	case p.atKind(token.NUMBER):
		lit := p.advance().Literal
		return &ast.Literal{Value: parseNumberLiteral(lit)}, nil
	case p.atKind(token.STRING):
		return &ast.Literal{Value: p.advance().Literal}, nil
	case p.atKind(token.PARAMETER):
		return &ast.Parameter{Name: p.advance().Literal}, nil
	case p.atKeyword("TRUE"):
		p.advance()
		return &ast.Literal{Value: true}, nil
	case p.atKeyword("FALSE"):
		p.advance()
		return &ast.Literal{Value: false}, nil
	case p.atKeyword("NULL"):
		p.advance()
		return &ast.Literal{Value: nil}, nil
	case p.atKind(token.LPAREN):
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case p.atKind(token.LBRACKET):
		return p.parseListLiteral()
	case p.atKind(token.IDENT):
		return p.parseIdentLed()
	default:
		return nil, p.errorf("expected expression")
	}
}

func (p *Parser) parseListLiteral() (ast.Expression, error) {
	p.advance() // [
	lit := &ast.ListLiteral{}
	if p.atKind(token.RBRACKET) {
		p.advance()
		return lit, nil
	}
	for {
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Items = append(lit.Items, item)
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectKind(token.RBRACKET, "']'"); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseIdentLed parses everything that can start with a bare identifier:
// function calls (count/sum/.../nodes/id/labels/type/length), property
// access `ident.ident`, or a plain variable reference.
func (p *Parser) parseIdentLed() (ast.Expression, error) {
	name := p.advance().Literal
	lower := strings.ToLower(name)

	if p.atKind(token.LPAREN) {
		return p.parseFunctionCall(lower)
	}
	if p.atKind(token.DOT) {
		p.advance()
		prop, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ast.Property{Variable: name, Name: prop}, nil
	}
	return &ast.Variable{Name: name}, nil
}

func (p *Parser) parseFunctionCall(lower string) (ast.Expression, error) {
	p.advance() // (
	switch lower {
	case "count", "sum", "min", "max", "avg", "collect":
		return p.parseAggregateArgs(aggNames[lower])
	case "nodes":
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.Nodes{Variable: v}, nil
	case "id":
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.ID{Variable: v}, nil
	case "labels":
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.Labels{Variable: v}, nil
	case "type":
		v, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.Type{Variable: v}, nil
	case "length":
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.Length{Expr: inner}, nil
	default:
		return nil, p.errorf("unknown function %s", lower)
	}
}

func (p *Parser) parseAggregateArgs(kind ast.AggKind) (ast.Expression, error) {
	agg := &ast.Aggregate{Kind: kind}
	if p.atKeyword("DISTINCT") {
		p.advance()
		agg.Distinct = true
	}
	if p.atKind(token.STAR) {
		p.advance()
		agg.Star = true
	} else {
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		agg.Inner = inner
	}
	if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
		return nil, err
	}
	return agg, nil
}

// ---- WHERE precedence chain: OR > AND > NOT > comparison ----------------

func (p *Parser) parseWhere() (ast.WhereClause, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.WhereClause, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.WhereClause, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.WhereClause, error) {
	if p.atKeyword("NOT") {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	}
	return p.parseComparisonOrParen()
}

func (p *Parser) parseComparisonOrParen() (ast.WhereClause, error) {
	if p.atKind(token.LPAREN) {
		mark := p.save()
		p.advance()
		inner, err := p.parseOr()
		if err == nil && p.atKind(token.RPAREN) {
			p.advance()
			return p.parsePostfixPredicate(inner)
		}
		p.restore(mark)
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.WhereClause, error) {
	left, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	switch {
	case p.atKind(token.EQ):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpEQ, Right: right}, nil
	case p.atKind(token.NEQ):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpNEQ, Right: right}, nil
	case p.atKind(token.LT):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpLT, Right: right}, nil
	case p.atKind(token.LTE):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpLTE, Right: right}, nil
	case p.atKind(token.GT):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpGT, Right: right}, nil
	case p.atKind(token.GTE):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpGTE, Right: right}, nil
	case p.atKeyword("IN"):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpIN, Right: right}, nil
	case p.atKeyword("STARTS"):
		p.advance()
		if err := p.expectKeyword("WITH"); err != nil {
			return nil, err
		}
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpStartsWith, Right: right}, nil
	case p.atKeyword("ENDS"):
		p.advance()
		if err := p.expectKeyword("WITH"); err != nil {
			return nil, err
		}
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpEndsWith, Right: right}, nil
	case p.atKeyword("CONTAINS"):
		p.advance()
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: left, Op: ast.OpContains, Right: right}, nil
	case p.atKeyword("IS"):
		p.advance()
		neg := false
		if p.atKeyword("NOT") {
			p.advance()
			neg = true
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		op := ast.OpIsNull
		if neg {
			op = ast.OpIsNotNull
		}
		return &ast.Condition{Left: left, Op: op}, nil
	default:
		return nil, p.errorf("expected comparison operator")
	}
}

// parsePostfixPredicate returns the parenthesized predicate unchanged; no
// postfix (such as `IS NULL`) is parsed after the closing parenthesis.
func (p *Parser) parsePostfixPredicate(inner ast.WhereClause) (ast.WhereClause, error) {
	return inner, nil
}
