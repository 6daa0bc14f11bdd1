package parser

import (
	"strconv"
	"strings"
)

// Parse parses a query into a Statement.
func Parse(input string) (*Statement, error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	stmt := &Statement{}
	if p.peek().Is("PARAMETERS") {
		stmt.Params, err = p.parseParameters()
		if err != nil {
			return nil, err
		}
	}
	stmt.Query, err = p.parseQueryExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == TokSemicolon {
		p.advance()
	}
	if tok := p.peek(); tok.Kind != TokEOF {
		return nil, p.errorf(tok.Pos, "unexpected %s, expected end of query", describe(tok))
	}
	return stmt, nil
}

// ParseExpr parses a standalone scalar expression.
func ParseExpr(input string) (Expr, error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != TokEOF {
		return nil, p.errorf(tok.Pos, "unexpected %s, expected end of expression", describe(tok))
	}
	return e, nil
}

type parser struct {
	toks []Token
	pos  int
}

// parseParameters: PARAMETERS "(" name type [DEFAULT literal] {"," ...} ")"
func (p *parser) parseParameters() ([]*ParamDecl, error) {
	p.advance() // PARAMETERS
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var decls []*ParamDecl
	for {
		name, pos, err := p.parseName("parameter name")
		if err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		decl := &ParamDecl{Name: name, Type: typ, Pos: pos}
		if p.peek().Is("DEFAULT") {
			p.advance()
			decl.Default, err = p.parseDefaultValue()
			if err != nil {
				return nil, err
			}
		}
		decls = append(decls, decl)
		if p.peek().Kind != TokComma {
			break
		}
		p.advance()
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return decls, nil
}

func (p *parser) parseDefaultValue() (Expr, error) {
	tok := p.peek()
	if tok.Kind == TokMinus {
		p.advance()
		num := p.peek()
		if num.Kind != TokNumber {
			return nil, p.errorf(num.Pos, "expected number after '-', got %s", describe(num))
		}
		p.advance()
		return &UnaryExpr{Op: "-", X: &Literal{Kind: LitNumber, Value: num.Lit, Pos: num.Pos}, Pos: tok.Pos}, nil
	}
	lit, ok := p.literal(tok)
	if !ok {
		return nil, p.errorf(tok.Pos, "expected literal default value, got %s", describe(tok))
	}
	p.advance()
	return lit, nil
}

// parseTypeName reads one or more words ("DOUBLE PRECISION") and an optional
// "(n[,m])" size suffix, which is dropped.
func (p *parser) parseTypeName() (string, error) {
	var words []string
	for p.peek().Kind == TokIdent {
		words = append(words, p.peek().Lit)
		p.advance()
	}
	if len(words) == 0 {
		tok := p.peek()
		return "", p.errorf(tok.Pos, "expected type name, got %s", describe(tok))
	}
	if p.peek().Kind == TokLParen {
		p.advance()
		for p.peek().Kind == TokNumber || p.peek().Kind == TokComma {
			p.advance()
		}
		if err := p.expect(TokRParen); err != nil {
			return "", err
		}
	}
	return strings.Join(words, " "), nil
}

// parseQueryExpr: selectCore { (UNION [ALL] | INTERSECT | EXCEPT) selectCore } [ORDER BY ...] [LIMIT n]
func (p *parser) parseQueryExpr() (QueryExpr, error) {
	left, err := p.parseSelectCore()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		var op string
		switch {
		case tok.Is("UNION"):
			op = "UNION"
			p.advance()
			if p.peek().Is("ALL") {
				p.advance()
				op = "UNION ALL"
			}
		case tok.Is("INTERSECT"), tok.Is("EXCEPT"):
			op = tok.Lit
			p.advance()
		}
		if op == "" {
			break
		}
		right, err := p.parseSelectCore()
		if err != nil {
			return nil, err
		}
		left = &SetOpStmt{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}

	orderBy, err := p.parseOrderBy()
	if err != nil {
		return nil, err
	}
	limit, err := p.parseLimit()
	if err != nil {
		return nil, err
	}
	switch q := left.(type) {
	case *SelectStmt:
		if orderBy != nil {
			q.OrderBy = orderBy
		}
		if limit != nil {
			q.Limit = limit
		}
	case *SetOpStmt:
		q.OrderBy = orderBy
		q.Limit = limit
	}
	return left, nil
}

// parseSelectCore: "(" queryExpr ")" | SELECT [DISTINCT] items [FROM ...] [WHERE e] [GROUP BY ...] [HAVING e]
func (p *parser) parseSelectCore() (QueryExpr, error) {
	tok := p.peek()
	if tok.Kind == TokLParen {
		p.advance()
		q, err := p.parseQueryExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return q, nil
	}
	if !tok.Is("SELECT") {
		return nil, p.errorf(tok.Pos, "expected SELECT, got %s", describe(tok))
	}
	p.advance()

	stmt := &SelectStmt{Pos: tok.Pos}
	if p.peek().Is("DISTINCT") {
		p.advance()
		stmt.Distinct = true
	} else if p.peek().Is("ALL") {
		p.advance()
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if p.peek().Is("FROM") {
		p.advance()
		for {
			item, err := p.parseFromItem()
			if err != nil {
				return nil, err
			}
			stmt.From = append(stmt.From, item)
			if p.peek().Kind != TokComma {
				break
			}
			p.advance()
		}
	}

	if p.peek().Is("WHERE") {
		p.advance()
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.peek().Is("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if stmt.GroupBy, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}

	if p.peek().Is("HAVING") {
		p.advance()
		if stmt.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseSelectItems() ([]*SelectItem, error) {
	var items []*SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().Kind != TokComma {
			return items, nil
		}
		p.advance()
	}
}

func (p *parser) parseSelectItem() (*SelectItem, error) {
	tok := p.peek()
	if tok.Kind == TokStar {
		p.advance()
		return &SelectItem{Star: true, Pos: tok.Pos}, nil
	}
	if qualifier, ok := p.tryQualifiedStar(); ok {
		return &SelectItem{Star: true, Qualifier: qualifier, Pos: tok.Pos}, nil
	}

	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	item := &SelectItem{Expr: e, Pos: tok.Pos}
	item.Alias, err = p.parseOptionalAlias()
	if err != nil {
		return nil, err
	}
	return item, nil
}

// tryQualifiedStar consumes "a.b.*" and returns its qualifier.
func (p *parser) tryQualifiedStar() ([]string, bool) {
	i := p.pos
	var parts []string
	for {
		tok := p.toks[i]
		if tok.Kind != TokIdent && tok.Kind != TokQuotedIdent {
			return nil, false
		}
		parts = append(parts, tok.Lit)
		if p.toks[i+1].Kind != TokDot {
			return nil, false
		}
		if p.toks[i+2].Kind == TokStar {
			p.pos = i + 3
			return parts, true
		}
		i += 2
	}
}

// parseOptionalAlias: [AS] name
func (p *parser) parseOptionalAlias() (string, error) {
	tok := p.peek()
	if tok.Is("AS") {
		p.advance()
		tok = p.peek()
		switch tok.Kind {
		case TokIdent, TokQuotedIdent, TokString:
			p.advance()
			return tok.Lit, nil
		}
		return "", p.errorf(tok.Pos, "expected alias after AS, got %s", describe(tok))
	}
	if tok.Kind == TokIdent || tok.Kind == TokQuotedIdent {
		p.advance()
		return tok.Lit, nil
	}
	return "", nil
}

// parseFromItem: fromPrimary { joinClause }
func (p *parser) parseFromItem() (FromItem, error) {
	left, err := p.parseFromPrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		kind, ok, err := p.parseJoinKeyword()
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseFromPrimary()
		if err != nil {
			return nil, err
		}
		join := &JoinExpr{Kind: kind, Left: left, Right: right, Pos: tok.Pos}
		if kind != JoinCross {
			if err := p.expectKeyword("ON"); err != nil {
				return nil, err
			}
			if join.On, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		left = join
	}
}

func (p *parser) parseJoinKeyword() (JoinKind, bool, error) {
	tok := p.peek()
	var kind JoinKind
	switch {
	case tok.Is("JOIN"):
		p.advance()
		return JoinInner, true, nil
	case tok.Is("INNER"):
		kind = JoinInner
	case tok.Is("CROSS"):
		kind = JoinCross
	case tok.Is("LEFT"):
		kind = JoinLeft
	case tok.Is("RIGHT"):
		kind = JoinRight
	case tok.Is("FULL"):
		kind = JoinFull
	default:
		return 0, false, nil
	}
	p.advance()
	if kind == JoinLeft || kind == JoinRight || kind == JoinFull {
		if p.peek().Is("OUTER") {
			p.advance()
		}
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return 0, false, err
	}
	return kind, true, nil
}

// parseFromPrimary: tableName [[AS] alias] | "(" queryExpr ")" [AS] alias | "(" fromItem ")"
func (p *parser) parseFromPrimary() (FromItem, error) {
	tok := p.peek()
	if tok.Kind == TokLParen {
		if p.startsQuery(p.pos + 1) {
			p.advance()
			q, err := p.parseQueryExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokRParen); err != nil {
				return nil, err
			}
			alias, err := p.parseOptionalAlias()
			if err != nil {
				return nil, err
			}
			if alias == "" {
				return nil, p.errorf(tok.Pos, "subquery in FROM must have an alias")
			}
			return &DerivedTable{Query: q, Alias: alias, Pos: tok.Pos}, nil
		}
		p.advance()
		item, err := p.parseFromItem()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return item, nil
	}

	name, pos, err := p.parseName("table name")
	if err != nil {
		return nil, err
	}
	ref := &TableRef{Name: []string{name}, Pos: pos}
	for p.peek().Kind == TokDot {
		p.advance()
		part, _, err := p.parseName("table name")
		if err != nil {
			return nil, err
		}
		ref.Name = append(ref.Name, part)
	}
	if ref.Alias, err = p.parseOptionalAlias(); err != nil {
		return nil, err
	}
	return ref, nil
}

// startsQuery reports whether the tokens at i open a query, looking
// through nested parentheses.
func (p *parser) startsQuery(i int) bool {
	for i < len(p.toks) && p.toks[i].Kind == TokLParen {
		i++
	}
	return i < len(p.toks) && p.toks[i].Is("SELECT")
}

func (p *parser) parseOrderBy() ([]*OrderItem, error) {
	if !p.peek().Is("ORDER") {
		return nil, nil
	}
	p.advance()
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var items []*OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := &OrderItem{Expr: e}
		switch {
		case p.peek().Is("ASC"):
			p.advance()
		case p.peek().Is("DESC"):
			p.advance()
			item.Desc = true
		}
		items = append(items, item)
		if p.peek().Kind != TokComma {
			return items, nil
		}
		p.advance()
	}
}

func (p *parser) parseLimit() (*int64, error) {
	if !p.peek().Is("LIMIT") {
		return nil, nil
	}
	p.advance()
	tok := p.peek()
	if tok.Kind != TokNumber {
		return nil, p.errorf(tok.Pos, "expected number after LIMIT, got %s", describe(tok))
	}
	n, err := strconv.ParseInt(tok.Lit, 10, 64)
	if err != nil || n < 0 {
		return nil, p.errorf(tok.Pos, "invalid LIMIT %q", tok.Lit)
	}
	p.advance()
	return &n, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.peek().Kind != TokComma {
			return list, nil
		}
		p.advance()
	}
}

// parseName accepts a bare or quoted identifier.
func (p *parser) parseName(what string) (string, int, error) {
	tok := p.peek()
	if tok.Kind != TokIdent && tok.Kind != TokQuotedIdent {
		return "", 0, p.errorf(tok.Pos, "expected %s, got %s", what, describe(tok))
	}
	p.advance()
	return tok.Lit, tok.Pos, nil
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	if p.pos+offset < len(p.toks) {
		return p.toks[p.pos+offset]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *parser) expect(kind TokenKind) error {
	tok := p.peek()
	if tok.Kind != kind {
		return p.errorf(tok.Pos, "expected %s, got %s", kind, describe(tok))
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	tok := p.peek()
	if !tok.Is(kw) {
		return p.errorf(tok.Pos, "expected %s, got %s", kw, describe(tok))
	}
	p.advance()
	return nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return newError(pos, "parse", format, args...)
}

func describe(tok Token) string {
	switch tok.Kind {
	case TokEOF:
		return "end of input"
	case TokKeyword:
		return tok.Lit
	case TokIdent, TokQuotedIdent, TokString, TokNumber:
		return tok.Kind.String() + " " + strconv.Quote(tok.Lit)
	}
	return "'" + tok.Kind.String() + "'"
}
