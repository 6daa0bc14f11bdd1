package lksql

import (
	"errors"
	"strconv"
	"strings"

	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/lksql/parser"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// Compiler turns LabKey SQL text into a TableInfo over the resolver's
// schema. A Compiler is safe for concurrent use; each compilation builds
// its own Query.
type Compiler struct {
	resolver schema.Resolver
	dialect  sqlf.Dialect
}

func NewCompiler(resolver schema.Resolver, dialect sqlf.Dialect) *Compiler {
	if dialect == nil {
		dialect = sqlf.Postgres
	}
	return &Compiler{resolver: resolver, dialect: dialect}
}

func (c *Compiler) Dialect() sqlf.Dialect { return c.dialect }

// Compile parses text and builds the view named name. Every diagnostic is
// returned in a *CompileError.
func (c *Compiler) Compile(text, name string) (*TableInfo, error) {
	stmt, err := parser.Parse(text)
	if err != nil {
		return nil, &CompileError{Errors: []error{toParseError(err)}}
	}
	return c.CompileStatement(stmt, name)
}

// CompileStatement builds the view from an already parsed statement.
func (c *Compiler) CompileStatement(stmt *parser.Statement, name string) (*TableInfo, error) {
	if name == "" {
		name = "query"
	}
	q := NewQuery(c.resolver, c.dialect)
	cc := &compilation{q: q}
	cc.declareParams(stmt.Params)
	root := cc.queryExpr(stmt.Query, nil, name, false)
	if err := q.Resolve(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, &RenderInvariantError{Relation: name, Reason: "no relation was built"}
	}
	return NewTableInfo(name, root)
}

func toParseError(err error) error {
	var perr *parser.Error
	if errors.As(err, &perr) {
		return &ParseError{Pos: perr.Pos, Msg: perr.Msg, Err: perr}
	}
	return &ParseError{Pos: -1, Msg: err.Error(), Err: err}
}

// compilation walks the AST, building relations and binding expressions.
// Errors are collected on the Query so one pass reports all of them.
type compilation struct {
	q *Query
}

func (c *compilation) errorf(pos int, format string, args ...any) {
	c.q.addError(parseErrorf(pos, format, args...))
}

func (c *compilation) declareParams(decls []*parser.ParamDecl) {
	for _, d := range decls {
		typ, ok := schema.ParseTypeName(d.Type)
		if !ok {
			c.errorf(d.Pos, "unknown type %s for parameter %s", d.Type, d.Name)
			continue
		}
		var def any
		if d.Default != nil {
			v, err := literalValue(d.Default)
			if err != nil {
				c.errorf(d.Pos, "parameter %s: %v", d.Name, err)
				continue
			}
			def = v
		}
		err := c.q.DeclareParameter(ParameterDecl{
			Name:     d.Name,
			Type:     typ,
			Default:  def,
			Required: d.Default == nil,
		})
		if err != nil {
			c.q.addError(err)
		}
	}
}

func literalValue(e parser.Expr) (any, error) {
	switch n := e.(type) {
	case *parser.Literal:
		switch n.Kind {
		case parser.LitString:
			return n.Value, nil
		case parser.LitBool:
			return strings.EqualFold(n.Value, "TRUE"), nil
		case parser.LitNull:
			return nil, nil
		}
		if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseFloat(n.Value, 64)
	case *parser.UnaryExpr:
		if n.Op == "-" {
			v, err := literalValue(n.X)
			if err != nil {
				return nil, err
			}
			switch x := v.(type) {
			case int64:
				return -x, nil
			case float64:
				return -x, nil
			}
		}
	}
	return nil, errors.New("default must be a literal")
}

func (c *compilation) queryExpr(qe parser.QueryExpr, parent Relation, name string, fromItem bool) Relation {
	switch n := qe.(type) {
	case *parser.SelectStmt:
		return c.selectStmt(n, parent, name, fromItem)
	case *parser.SetOpStmt:
		return c.setOp(n, parent, name)
	}
	return nil
}

func (c *compilation) selectStmt(stmt *parser.SelectStmt, parent Relation, name string, fromItem bool) *QuerySelect {
	s := c.q.NewSelect(name, parent)
	s.inFromClause = parent != nil
	s.fromItem = fromItem
	s.distinct = stmt.Distinct

	for _, item := range stmt.From {
		rel := c.fromItem(s, item)
		if rel == nil {
			continue
		}
		if s.from == nil {
			s.from = rel
		} else {
			s.from = c.q.NewJoin(parser.JoinCross, s.from, rel, s)
		}
	}
	for i, item := range stmt.Items {
		c.selectItem(s, item, i+1)
	}
	if stmt.Where != nil {
		s.where = c.expr(s, stmt.Where)
		if s.where.IsAggregate() {
			c.errorf(stmt.Pos, "aggregate functions are not allowed in WHERE")
		}
	}
	for _, g := range stmt.GroupBy {
		s.groupBy = append(s.groupBy, c.expr(s, g))
	}
	if stmt.Having != nil {
		s.having = c.expr(s, stmt.Having)
	}
	for _, o := range stmt.OrderBy {
		s.orderBy = append(s.orderBy, OrderBy{Expr: c.orderExpr(s, o.Expr), Desc: o.Desc})
	}
	s.limit = stmt.Limit
	return s
}

func (c *compilation) setOp(stmt *parser.SetOpStmt, parent Relation, name string) Relation {
	u := c.q.NewUnion(stmt.Op, name, parent)
	u.inFromClause = parent != nil
	left := c.queryExpr(stmt.Left, u, "", false)
	right := c.queryExpr(stmt.Right, u, "", false)
	if left == nil || right == nil {
		return nil
	}
	if err := u.setArms(left, right, stmt.Pos); err != nil {
		c.q.addError(err)
		return u
	}
	for _, o := range stmt.OrderBy {
		switch e := o.Expr.(type) {
		case *parser.Ident:
			if len(e.Parts) == 1 && u.addOrder(e.Parts[0], o.Desc) {
				continue
			}
		case *parser.Literal:
			if i, err := strconv.Atoi(e.Value); err == nil && e.Kind == parser.LitNumber && i >= 1 && i <= u.columns.Len() {
				u.orderBy = append(u.orderBy, unionOrder{index: i - 1, desc: o.Desc})
				continue
			}
		}
		c.errorf(stmt.Pos, "ORDER BY on %s must name an output column", stmt.Op)
	}
	u.limit = stmt.Limit
	return u
}

func (c *compilation) fromItem(s *QuerySelect, item parser.FromItem) Relation {
	switch n := item.(type) {
	case *parser.TableRef:
		qualified := strings.Join(n.Name, ".")
		def, ok := c.q.resolver.Resolve(qualified)
		if !ok {
			c.errorf(n.Pos, "unknown table %s", qualified)
			return nil
		}
		name := n.Alias
		if name == "" {
			name = n.Name[len(n.Name)-1]
		}
		t := c.q.NewTable(def, name, s)
		t.inFromClause = true
		if err := s.addTable(t, n.Pos); err != nil {
			c.q.addError(err)
		}
		return t

	case *parser.DerivedTable:
		rel := c.queryExpr(n.Query, s, n.Alias, true)
		if rel == nil {
			return nil
		}
		rel.base().inFromClause = true
		if err := s.addTable(rel, n.Pos); err != nil {
			c.q.addError(err)
		}
		return rel

	case *parser.JoinExpr:
		left := c.fromItem(s, n.Left)
		right := c.fromItem(s, n.Right)
		if left == nil || right == nil {
			return nil
		}
		j := c.q.NewJoin(n.Kind, left, right, s)
		if n.On != nil {
			j.on = c.expr(s, n.On)
		}
		return j
	}
	return nil
}

// starColumns are the columns SELECT * expands to.
func starColumns(r Relation) []RelationColumn {
	return visibleColumns(r)
}

func (c *compilation) selectItem(s *QuerySelect, item *parser.SelectItem, index int) {
	if item.Star {
		sources := s.tables
		if len(item.Qualifier) > 0 {
			qualifier := strings.Join(item.Qualifier, ".")
			t := s.table(qualifier)
			if t == nil {
				c.errorf(item.Pos, "unknown table %s in %s.*", qualifier, qualifier)
				return
			}
			sources = []Relation{t}
		} else if len(sources) == 0 {
			c.errorf(item.Pos, "SELECT * requires a FROM clause")
			return
		}
		for _, t := range sources {
			for _, col := range starColumns(t) {
				markSelected(col)
				if _, err := s.addColumn(col.FieldKey().Name(), false, NewFieldRef(col), item.Pos); err != nil {
					c.q.addError(err)
				}
			}
		}
		return
	}

	e := c.expr(s, item.Expr)
	name, explicit := item.Alias, item.Alias != ""
	if !explicit {
		name = derivedName(e)
		if name == "" {
			name = "expr" + strconv.Itoa(index)
		}
	}
	if _, err := s.addColumn(name, explicit, e, item.Pos); err != nil {
		c.q.addError(err)
	}
}

// derivedName names an unaliased select item after the field it reads.
func derivedName(e Expr) string {
	if ref, ok := e.(*FieldRef); ok {
		return ref.Key.Name()
	}
	return ""
}

// orderExpr lets ORDER BY name an output column by its alias.
func (c *compilation) orderExpr(s *QuerySelect, e parser.Expr) Expr {
	if id, ok := e.(*parser.Ident); ok && len(id.Parts) == 1 {
		if col := s.byName[fieldkey.Fold(id.Parts[0])]; col != nil && col.explicit {
			return col.expr
		}
	}
	return c.expr(s, e)
}

func (c *compilation) expr(s *QuerySelect, e parser.Expr) Expr {
	switch n := e.(type) {
	case *parser.Ident:
		return c.fieldRef(s, n)

	case *parser.Literal:
		return &Literal{Kind: literalKinds[n.Kind], Value: n.Value}

	case *parser.UnaryExpr:
		return &UnaryOp{Op: n.Op, X: c.expr(s, n.X)}

	case *parser.BinaryExpr:
		return &BinaryOp{Op: n.Op, L: c.expr(s, n.L), R: c.expr(s, n.R)}

	case *parser.IsNullExpr:
		op := "IS NULL"
		if n.Not {
			op = "IS NOT NULL"
		}
		return &UnaryOp{Op: op, X: c.expr(s, n.X)}

	case *parser.InExpr:
		op := "IN"
		if n.Not {
			op = "NOT IN"
		}
		x := c.expr(s, n.X)
		if n.Query != nil {
			return &BinaryOp{Op: op, L: x, R: c.subquery(s, n.Query)}
		}
		list := &ListExpr{}
		for _, item := range n.List {
			list.Items = append(list.Items, c.expr(s, item))
		}
		return &BinaryOp{Op: op, L: x, R: list}

	case *parser.BetweenExpr:
		x := c.expr(s, n.X)
		between := &BinaryOp{
			Op: "AND",
			L:  &BinaryOp{Op: ">=", L: x, R: c.expr(s, n.Lo)},
			R:  &BinaryOp{Op: "<=", L: x, R: c.expr(s, n.Hi)},
		}
		if n.Not {
			return &UnaryOp{Op: "NOT", X: between}
		}
		return between

	case *parser.FuncCall:
		return c.funcCall(s, n)

	case *parser.CaseExpr:
		ce := &CaseExpr{}
		if n.Operand != nil {
			ce.Operand = c.expr(s, n.Operand)
		}
		for _, w := range n.Whens {
			ce.Whens = append(ce.Whens, WhenThen{When: c.expr(s, w.Cond), Then: c.expr(s, w.Result)})
		}
		if n.Else != nil {
			ce.Else = c.expr(s, n.Else)
		}
		return ce

	case *parser.CastExpr:
		x := c.expr(s, n.X)
		typ, ok := schema.ParseTypeName(n.Type)
		if !ok {
			c.errorf(n.Pos, "unknown type %s in CAST", n.Type)
			typ = schema.TypeOther
		}
		return &CastExpr{X: x, Type: typ}

	case *parser.SubqueryExpr:
		return c.subquery(s, n.Query)

	case *parser.ExistsExpr:
		return &UnaryOp{Op: "EXISTS", X: c.subquery(s, n.Query)}
	}
	c.errorf(-1, "unsupported expression %T", e)
	return &Literal{Kind: LitNull}
}

var literalKinds = map[parser.LiteralKind]LiteralKind{
	parser.LitString: LitString,
	parser.LitNumber: LitNumber,
	parser.LitBool:   LitBool,
	parser.LitNull:   LitNull,
}

// fieldRef binds an identifier to a column in scope, falling back to a
// declared parameter for single-part names.
func (c *compilation) fieldRef(s *QuerySelect, id *parser.Ident) Expr {
	key := fieldkey.FromParts(id.Parts...)
	ref := &FieldRef{Key: key}
	col, err := s.DeclareField(key)
	if err == nil {
		ref.column = col
		return ref
	}
	var unresolved *UnresolvedFieldError
	if errors.As(err, &unresolved) && key.Len() == 1 {
		if p := c.q.Parameter(key.Name()); p != nil {
			ref.param = p
			return ref
		}
	}
	c.q.addError(err)
	return ref
}

func (c *compilation) subquery(s *QuerySelect, qe parser.QueryExpr) Expr {
	rel := c.queryExpr(qe, s, "", false)
	if rel == nil {
		return &Literal{Kind: LitNull}
	}
	rel.base().inFromClause = true
	s.subqueries = append(s.subqueries, rel)
	return &Subquery{Relation: rel}
}

func (c *compilation) funcCall(s *QuerySelect, n *parser.FuncCall) Expr {
	call := &FunctionCall{Name: strings.ToLower(n.Name), Distinct: n.Distinct, Star: n.Star}
	for _, a := range n.Args {
		call.Args = append(call.Args, c.expr(s, a))
	}
	fn, ok := lookupFunction(n.Name)
	switch {
	case !ok:
		c.errorf(n.Pos, "unknown function %s", n.Name)
		return call
	case n.Star && !fn.star:
		c.errorf(n.Pos, "%s(*) is not supported", call.Name)
	case !n.Star && !fn.checkArity(len(call.Args)):
		c.errorf(n.Pos, "wrong number of arguments to %s", call.Name)
	case n.Distinct && !fn.aggregate:
		c.errorf(n.Pos, "DISTINCT is only allowed in aggregate functions")
	case fn.aggregate && anyAggregate(call.Args):
		c.errorf(n.Pos, "aggregate functions cannot be nested")
	}
	call.fn = fn
	return call
}
