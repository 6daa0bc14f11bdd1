package lksql

import (
	"strings"

	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// SQLBuilder accumulates rendered SQL for one relation.
type SQLBuilder struct {
	*sqlf.Fragment
	Dialect sqlf.Dialect
}

func NewSQLBuilder(d sqlf.Dialect) *SQLBuilder {
	return &SQLBuilder{Fragment: sqlf.New(""), Dialect: d}
}

func (b *SQLBuilder) sub() *SQLBuilder { return NewSQLBuilder(b.Dialect) }

func (b *SQLBuilder) legal(name string) string { return b.Dialect.MakeLegalIdentifier(name) }

// Expr is a compiled scalar expression. The set of implementations is
// closed: Literal, FieldRef, UnaryOp, BinaryOp, FunctionCall, CaseExpr,
// CastExpr, ListExpr and Subquery.
type Expr interface {
	AppendSQL(b *SQLBuilder) error
	SQLType() schema.JdbcType
	IsAggregate() bool
	Children() []Expr
	exprNode()
}

func anyAggregate(children []Expr) bool {
	for _, c := range children {
		if c != nil && c.IsAggregate() {
			return true
		}
	}
	return false
}

// RenderExpr renders e alone, mostly useful in tests and diagnostics.
func RenderExpr(e Expr, d sqlf.Dialect) (*sqlf.Fragment, error) {
	b := NewSQLBuilder(d)
	if err := e.AppendSQL(b); err != nil {
		return nil, err
	}
	return b.Fragment, nil
}

type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitBool
	LitNull
)

type Literal struct {
	Kind  LiteralKind
	Value string
}

func (l *Literal) AppendSQL(b *SQLBuilder) error {
	switch l.Kind {
	case LitString:
		b.Append(b.Dialect.QuoteString(l.Value))
	case LitBool:
		b.Append(b.Dialect.BooleanLiteral(strings.EqualFold(l.Value, "true")))
	case LitNull:
		b.Append("NULL")
	default:
		b.Append(l.Value)
	}
	return nil
}

func (l *Literal) SQLType() schema.JdbcType {
	switch l.Kind {
	case LitString:
		return schema.TypeVarchar
	case LitBool:
		return schema.TypeBoolean
	case LitNull:
		return schema.TypeNull
	}
	if strings.ContainsAny(l.Value, ".eE") {
		return schema.TypeFloat
	}
	return schema.TypeInteger
}

func (*Literal) IsAggregate() bool { return false }
func (*Literal) Children() []Expr  { return nil }

// FieldRef is a reference to a column or a declared parameter. It is bound
// during the declare pass; rendering an unbound reference fails.
type FieldRef struct {
	Key    fieldkey.FieldKey
	column RelationColumn
	param  *ParameterDecl
}

func NewFieldRef(col RelationColumn) *FieldRef {
	return &FieldRef{Key: col.FieldKey(), column: col}
}

func (f *FieldRef) Column() RelationColumn    { return f.column }
func (f *FieldRef) Parameter() *ParameterDecl { return f.param }
func (f *FieldRef) Bound() bool               { return f.column != nil || f.param != nil }

func (f *FieldRef) AppendSQL(b *SQLBuilder) error {
	switch {
	case f.column != nil:
		b.Append(f.column.ValueSQL(f.column.Table().Alias()))
	case f.param != nil:
		b.Append("CAST(? AS " + b.Dialect.SQLTypeName(f.param.Type) + ")")
		b.AddArgs(sqlf.NamedParam{Name: f.param.Name})
	default:
		return &UnresolvedFieldError{Key: f.Key}
	}
	return nil
}

func (f *FieldRef) SQLType() schema.JdbcType {
	switch {
	case f.column != nil:
		return f.column.JdbcType()
	case f.param != nil:
		return f.param.Type
	}
	return schema.TypeOther
}

func (*FieldRef) IsAggregate() bool { return false }
func (*FieldRef) Children() []Expr  { return nil }

// UnaryOp is a prefix operator ("-", "NOT", "EXISTS") or a postfix null
// test ("IS NULL", "IS NOT NULL").
type UnaryOp struct {
	Op string
	X  Expr
}

func (u *UnaryOp) AppendSQL(b *SQLBuilder) error {
	switch u.Op {
	case "IS NULL", "IS NOT NULL":
		b.Append("(")
		if err := u.X.AppendSQL(b); err != nil {
			return err
		}
		b.Append(" " + u.Op + ")")
		return nil
	case "EXISTS":
		b.Append("EXISTS ")
		return u.X.AppendSQL(b)
	case "-":
		b.Append("(-")
	default:
		b.Append("(" + u.Op + " ")
	}
	if err := u.X.AppendSQL(b); err != nil {
		return err
	}
	b.Append(")")
	return nil
}

func (u *UnaryOp) SQLType() schema.JdbcType {
	if u.Op == "-" {
		return u.X.SQLType()
	}
	return schema.TypeBoolean
}

func (u *UnaryOp) IsAggregate() bool { return u.X.IsAggregate() }
func (u *UnaryOp) Children() []Expr  { return []Expr{u.X} }

// BinaryOp is always rendered parenthesized so operator precedence of the
// source text survives.
type BinaryOp struct {
	Op string
	L  Expr
	R  Expr
}

var booleanOps = map[string]bool{
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"AND": true, "OR": true, "LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true,
}

func (o *BinaryOp) AppendSQL(b *SQLBuilder) error {
	b.Append("(")
	if err := o.L.AppendSQL(b); err != nil {
		return err
	}
	b.Append(" " + o.Op + " ")
	if err := o.R.AppendSQL(b); err != nil {
		return err
	}
	b.Append(")")
	return nil
}

func (o *BinaryOp) SQLType() schema.JdbcType {
	switch {
	case booleanOps[o.Op]:
		return schema.TypeBoolean
	case o.Op == "||":
		return schema.TypeVarchar
	}
	return arithmeticType(o.L.SQLType(), o.R.SQLType())
}

func (o *BinaryOp) IsAggregate() bool { return anyAggregate(o.Children()) }
func (o *BinaryOp) Children() []Expr  { return []Expr{o.L, o.R} }

// FunctionCall invokes an entry of the function registry.
type FunctionCall struct {
	Name     string
	Args     []Expr
	Distinct bool
	Star     bool
	fn       *function
}

func (c *FunctionCall) AppendSQL(b *SQLBuilder) error {
	if c.fn == nil {
		return parseErrorf(-1, "unknown function %s", c.Name)
	}
	return c.fn.render(b, c)
}

func (c *FunctionCall) SQLType() schema.JdbcType {
	if c.fn == nil {
		return schema.TypeOther
	}
	return c.fn.returns(c.Args)
}

func (c *FunctionCall) IsAggregate() bool {
	if c.fn != nil && c.fn.aggregate {
		return true
	}
	return anyAggregate(c.Args)
}

func (c *FunctionCall) Children() []Expr { return c.Args }

type WhenThen struct {
	When Expr
	Then Expr
}

type CaseExpr struct {
	Operand Expr
	Whens   []WhenThen
	Else    Expr
}

func (c *CaseExpr) AppendSQL(b *SQLBuilder) error {
	b.Append("CASE")
	if c.Operand != nil {
		b.Append(" ")
		if err := c.Operand.AppendSQL(b); err != nil {
			return err
		}
	}
	for _, w := range c.Whens {
		b.Append(" WHEN ")
		if err := w.When.AppendSQL(b); err != nil {
			return err
		}
		b.Append(" THEN ")
		if err := w.Then.AppendSQL(b); err != nil {
			return err
		}
	}
	if c.Else != nil {
		b.Append(" ELSE ")
		if err := c.Else.AppendSQL(b); err != nil {
			return err
		}
	}
	b.Append(" END")
	return nil
}

func (c *CaseExpr) SQLType() schema.JdbcType {
	results := make([]Expr, 0, len(c.Whens)+1)
	for _, w := range c.Whens {
		results = append(results, w.Then)
	}
	if c.Else != nil {
		results = append(results, c.Else)
	}
	return childrenType(results)
}

func (c *CaseExpr) IsAggregate() bool { return anyAggregate(c.Children()) }

func (c *CaseExpr) Children() []Expr {
	var out []Expr
	if c.Operand != nil {
		out = append(out, c.Operand)
	}
	for _, w := range c.Whens {
		out = append(out, w.When, w.Then)
	}
	if c.Else != nil {
		out = append(out, c.Else)
	}
	return out
}

type CastExpr struct {
	X    Expr
	Type schema.JdbcType
}

func (c *CastExpr) AppendSQL(b *SQLBuilder) error {
	b.Append("CAST(")
	if err := c.X.AppendSQL(b); err != nil {
		return err
	}
	b.Append(" AS " + b.Dialect.SQLTypeName(c.Type) + ")")
	return nil
}

func (c *CastExpr) SQLType() schema.JdbcType { return c.Type }
func (c *CastExpr) IsAggregate() bool        { return c.X.IsAggregate() }
func (c *CastExpr) Children() []Expr         { return []Expr{c.X} }

// ListExpr is the parenthesized right-hand side of IN.
type ListExpr struct {
	Items []Expr
}

func (l *ListExpr) AppendSQL(b *SQLBuilder) error {
	b.Append("(")
	for i, item := range l.Items {
		if i > 0 {
			b.Append(", ")
		}
		if err := item.AppendSQL(b); err != nil {
			return err
		}
	}
	b.Append(")")
	return nil
}

func (l *ListExpr) SQLType() schema.JdbcType { return childrenType(l.Items) }
func (l *ListExpr) IsAggregate() bool        { return anyAggregate(l.Items) }
func (l *ListExpr) Children() []Expr         { return l.Items }

// Subquery embeds a nested relation. Its body is not a child expression, and
// aggregates inside it do not make the enclosing expression aggregate.
type Subquery struct {
	Relation Relation
}

func (s *Subquery) AppendSQL(b *SQLBuilder) error {
	sql, err := s.Relation.SQL()
	if err != nil {
		return err
	}
	b.Append("(").AppendFragment(sql).Append(")")
	return nil
}

func (s *Subquery) SQLType() schema.JdbcType {
	cols := visibleColumns(s.Relation)
	if len(cols) == 1 {
		return cols[0].JdbcType()
	}
	return schema.TypeOther
}

func (*Subquery) IsAggregate() bool { return false }
func (*Subquery) Children() []Expr  { return nil }

func (*Literal) exprNode()      {}
func (*FieldRef) exprNode()     {}
func (*UnaryOp) exprNode()      {}
func (*BinaryOp) exprNode()     {}
func (*FunctionCall) exprNode() {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*ListExpr) exprNode()     {}
func (*Subquery) exprNode()     {}
