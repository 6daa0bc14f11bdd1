package parser

// parseExpr: orExpr
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

// parseOr: andExpr { OR andExpr }
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Is("OR") {
		tok := p.peek()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", L: left, R: right, Pos: tok.Pos}
	}
	return left, nil
}

// parseAnd: notExpr { AND notExpr }
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().Is("AND") {
		tok := p.peek()
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", L: left, R: right, Pos: tok.Pos}
	}
	return left, nil
}

// parseNot: NOT notExpr | predicate
func (p *parser) parseNot() (Expr, error) {
	tok := p.peek()
	if tok.Is("NOT") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", X: x, Pos: tok.Pos}, nil
	}
	return p.parsePredicate()
}

var comparisonOps = map[TokenKind]string{
	TokEq:  "=",
	TokNeq: "<>",
	TokLt:  "<",
	TokLte: "<=",
	TokGt:  ">",
	TokGte: ">=",
}

// parsePredicate: concatExpr [ compOp concatExpr | IS [NOT] NULL | [NOT] LIKE e | [NOT] IN (...) | [NOT] BETWEEN e AND e ]
func (p *parser) parsePredicate() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if op, ok := comparisonOps[tok.Kind]; ok {
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, L: left, R: right, Pos: tok.Pos}, nil
	}

	if tok.Is("IS") {
		p.advance()
		not := false
		if p.peek().Is("NOT") {
			p.advance()
			not = true
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &IsNullExpr{X: left, Not: not, Pos: tok.Pos}, nil
	}

	not := false
	if tok.Is("NOT") {
		next := p.peekAt(1)
		if !next.Is("LIKE") && !next.Is("IN") && !next.Is("BETWEEN") {
			return left, nil
		}
		p.advance()
		not = true
		tok = p.peek()
	}

	switch {
	case tok.Is("LIKE"):
		p.advance()
		pattern, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		op := "LIKE"
		if not {
			op = "NOT LIKE"
		}
		return &BinaryExpr{Op: op, L: left, R: pattern, Pos: tok.Pos}, nil
	case tok.Is("IN"):
		p.advance()
		return p.parseInTail(left, not, tok.Pos)
	case tok.Is("BETWEEN"):
		p.advance()
		lo, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{X: left, Lo: lo, Hi: hi, Not: not, Pos: tok.Pos}, nil
	}
	return left, nil
}

func (p *parser) parseInTail(left Expr, not bool, pos int) (Expr, error) {
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	in := &InExpr{X: left, Not: not, Pos: pos}
	if p.startsQuery(p.pos) {
		q, err := p.parseQueryExpr()
		if err != nil {
			return nil, err
		}
		in.Query = q
	} else {
		list, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		in.List = list
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return in, nil
}

// parseConcat: additive { "||" additive }
func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokConcat {
		tok := p.peek()
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", L: left, R: right, Pos: tok.Pos}
	}
	return left, nil
}

// parseAdditive: term { ("+" | "-") term }
func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokPlus && tok.Kind != TokMinus {
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.Lit, L: left, R: right, Pos: tok.Pos}
	}
}

// parseTerm: unary { ("*" | "/" | "%") unary }
func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokStar && tok.Kind != TokSlash && tok.Kind != TokPercent {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.Lit, L: left, R: right, Pos: tok.Pos}
	}
}

// parseUnary: ("-" | "+") unary | primary
func (p *parser) parseUnary() (Expr, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokMinus:
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", X: x, Pos: tok.Pos}, nil
	case TokPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) literal(tok Token) (*Literal, bool) {
	switch {
	case tok.Kind == TokString:
		return &Literal{Kind: LitString, Value: tok.Lit, Pos: tok.Pos}, true
	case tok.Kind == TokNumber:
		return &Literal{Kind: LitNumber, Value: tok.Lit, Pos: tok.Pos}, true
	case tok.Is("TRUE"), tok.Is("FALSE"):
		return &Literal{Kind: LitBool, Value: tok.Lit, Pos: tok.Pos}, true
	case tok.Is("NULL"):
		return &Literal{Kind: LitNull, Value: "NULL", Pos: tok.Pos}, true
	}
	return nil, false
}

// parsePrimary: literal | "(" expr ")" | "(" query ")" | EXISTS "(" query ")"
// | CASE ... END | CAST "(" expr AS type ")" | funcCall | ident {"." ident}
func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	if lit, ok := p.literal(tok); ok {
		p.advance()
		return lit, nil
	}

	switch {
	case tok.Kind == TokLParen:
		if p.startsQuery(p.pos + 1) {
			p.advance()
			q, err := p.parseQueryExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokRParen); err != nil {
				return nil, err
			}
			return &SubqueryExpr{Query: q, Pos: tok.Pos}, nil
		}
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return e, nil

	case tok.Is("EXISTS"):
		p.advance()
		if err := p.expect(TokLParen); err != nil {
			return nil, err
		}
		q, err := p.parseQueryExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return &ExistsExpr{Query: q, Pos: tok.Pos}, nil

	case tok.Is("CASE"):
		return p.parseCase()

	case tok.Is("CAST"):
		p.advance()
		if err := p.expect(TokLParen); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AS"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return &CastExpr{X: x, Type: typ, Pos: tok.Pos}, nil

	case tok.Kind == TokIdent && p.peekAt(1).Kind == TokLParen:
		return p.parseFuncCall()

	case tok.Kind == TokIdent || tok.Kind == TokQuotedIdent:
		return p.parseIdent()
	}

	return nil, p.errorf(tok.Pos, "unexpected %s in expression", describe(tok))
}

// parseIdent: name { "." name }
func (p *parser) parseIdent() (Expr, error) {
	first := p.peek()
	p.advance()
	id := &Ident{Parts: []string{first.Lit}, Pos: first.Pos}
	for p.peek().Kind == TokDot {
		p.advance()
		part, _, err := p.parseName("field name after '.'")
		if err != nil {
			return nil, err
		}
		id.Parts = append(id.Parts, part)
	}
	return id, nil
}

// parseFuncCall: name "(" [ "*" | [DISTINCT] expr { "," expr } ] ")"
func (p *parser) parseFuncCall() (Expr, error) {
	name := p.peek()
	p.advance() // name
	p.advance() // (
	call := &FuncCall{Name: name.Lit, Pos: name.Pos}

	switch {
	case p.peek().Kind == TokStar:
		p.advance()
		call.Star = true
	case p.peek().Kind == TokRParen:
	default:
		if p.peek().Is("DISTINCT") {
			p.advance()
			call.Distinct = true
		}
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		call.Args = args
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return call, nil
}

// parseCase: CASE [operand] WHEN e THEN e { WHEN e THEN e } [ELSE e] END
func (p *parser) parseCase() (Expr, error) {
	tok := p.peek()
	p.advance()
	c := &CaseExpr{Pos: tok.Pos}
	if !p.peek().Is("WHEN") && !p.peek().Is("END") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.peek().Is("WHEN") {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, &WhenClause{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		return nil, p.errorf(p.peek().Pos, "CASE requires at least one WHEN")
	}
	if p.peek().Is("ELSE") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = e
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}
