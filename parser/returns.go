package parser

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/token"
)

// parseReturnClause consumes the RETURN keyword then delegates to
// parseReturnSpecBody.
func (p *Parser) parseReturnClause() (ast.ReturnSpec, error) {
	if err := p.expectKeyword("RETURN"); err != nil {
		return ast.ReturnSpec{}, err
	}
	return p.parseReturnSpecBody()
}

// parseReturnSpecBody parses `[DISTINCT] <item> (, <item>)* [ORDER BY ...] [SKIP n] [LIMIT n]`
// (spec.md §4.5), shared between RETURN and WITH.
func (p *Parser) parseReturnSpecBody() (ast.ReturnSpec, error) {
	var spec ast.ReturnSpec
	if p.atKeyword("DISTINCT") {
		p.advance()
		spec.Distinct = true
	}

	if p.atKind(token.STAR) {
		p.advance()
		spec.Star = true
		if p.atKind(token.COMMA) {
			p.advance()
		} else {
			return p.parseReturnTrailers(spec)
		}
	}

	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return spec, err
		}
		spec.Items = append(spec.Items, item)
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	return p.parseReturnTrailers(spec)
}

func (p *Parser) parseReturnItem() (ast.ReturnItem, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return ast.ReturnItem{}, err
	}
	item := ast.ReturnItem{Expr: expr}
	if p.atKeyword("AS") {
		p.advance()
		alias, err := p.parseIdent()
		if err != nil {
			return item, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *Parser) parseReturnTrailers(spec ast.ReturnSpec) (ast.ReturnSpec, error) {
	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return spec, err
		}
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return spec, err
			}
			oi := ast.OrderItem{Expr: expr}
			if p.atKeyword("DESC") {
				p.advance()
				oi.Desc = true
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			spec.OrderBy = append(spec.OrderBy, oi)
			if p.atKind(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	if p.atKeyword("SKIP") {
		p.advance()
		n, err := p.parseExpression()
		if err != nil {
			return spec, err
		}
		spec.Skip = n
	}
	if p.atKeyword("LIMIT") {
		p.advance()
		n, err := p.parseExpression()
		if err != nil {
			return spec, err
		}
		spec.Limit = n
	}
	return spec, nil
}
