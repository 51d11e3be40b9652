package parser

import (
	"github.com/wyrmfield/cypherdb/ast"
	"github.com/wyrmfield/cypherdb/token"
)

// parseNodePattern parses `(var? (:Label)* ({prop:value, ...})?)`
// (spec.md §4.2).
func (p *Parser) parseNodePattern() (ast.NodePattern, error) {
	var np ast.NodePattern
	if _, err := p.expectKind(token.LPAREN, "'('"); err != nil {
		return np, err
	}
	if p.atKind(token.IDENT) {
		np.Variable = p.advance().Literal
	}
	for p.atKind(token.COLON) {
		p.advance()
		label, err := p.parseIdent()
		if err != nil {
			return np, err
		}
		np.Labels = append(np.Labels, label)
	}
	if p.atKind(token.LBRACE) {
		props, err := p.parsePropertyMap()
		if err != nil {
			return np, err
		}
		np.Properties = props
	}
	if _, err := p.expectKind(token.RPAREN, "')'"); err != nil {
		return np, err
	}
	return np, nil
}

func (p *Parser) parsePropertyMap() (map[string]ast.Expression, error) {
	p.advance() // {
	props := map[string]ast.Expression{}
	if p.atKind(token.RBRACE) {
		p.advance()
		return props, nil
	}
	for {
		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.COLON, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		props[key] = val
		if p.atKind(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectKind(token.RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return props, nil
}

// parseRelPattern parses `-[var? (:TYPE)? ({...})? (varlen)?]-`, consuming
// the leading and trailing dashes or direction arrows itself.
func (p *Parser) parseRelPattern() (ast.RelPattern, error) {
	var rp ast.RelPattern
	leftArrow := false
	if p.atKind(token.ARROW_L) {
		leftArrow = true
		p.advance()
	} else if _, err := p.expectKind(token.DASH, "'-'"); err != nil {
		return rp, err
	}

	if p.atKind(token.LBRACKET) {
		p.advance()
		if p.atKind(token.IDENT) {
			rp.Variable = p.advance().Literal
		}
		if p.atKind(token.COLON) {
			p.advance()
			t, err := p.parseIdent()
			if err != nil {
				return rp, err
			}
			rp.Type = t
		}
		if p.atKind(token.STAR) {
			p.advance()
			rp.VarLength = true
			rp.MinHops = 1
			if p.atKind(token.NUMBER) {
				min, err := p.advanceIntLiteral()
				if err != nil {
					return rp, err
				}
				rp.MinHops = min
				if p.atKind(token.DOT) {
					p.advance()
					if p.atKind(token.DOT) {
						p.advance()
					}
					if p.atKind(token.NUMBER) {
						max, err := p.advanceIntLiteral()
						if err != nil {
							return rp, err
						}
						rp.MaxHops = max
					}
				}
			}
		}
		if p.atKind(token.LBRACE) {
			props, err := p.parsePropertyMap()
			if err != nil {
				return rp, err
			}
			rp.Properties = props
		}
		if _, err := p.expectKind(token.RBRACKET, "']'"); err != nil {
			return rp, err
		}
	}

	rightArrow := false
	if p.atKind(token.ARROW_R) {
		rightArrow = true
		p.advance()
	} else if _, err := p.expectKind(token.DASH, "'-'"); err != nil {
		return rp, err
	}

	switch {
	case leftArrow && !rightArrow:
		rp.Direction = ast.DirIn
	case rightArrow && !leftArrow:
		rp.Direction = ast.DirOut
	default:
		rp.Direction = ast.DirEither
	}
	return rp, nil
}

func (p *Parser) advanceIntLiteral() (int, error) {
	lit := p.advance().Literal
	n := 0
	for _, c := range lit {
		if c < '0' || c > '9' {
			return 0, p.errorf("expected integer")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// atRelStart reports whether the cursor is positioned at the start of a
// relationship pattern (a dash or a left-arrow), used to decide whether to
// continue a chain after a node pattern (spec.md §4.2 ambiguity rule).
func (p *Parser) atRelStart() bool {
	return p.atKind(token.DASH) || p.atKind(token.ARROW_L)
}
