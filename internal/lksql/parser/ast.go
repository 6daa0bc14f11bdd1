package parser

import "fmt"

// Error is a lexical or syntax error with its rune offset in the input.
type Error struct {
	Pos   int
	Stage string // "lexer" or "parse"
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error at position %d: %s", e.Stage, e.Pos, e.Msg)
}

func newError(pos int, stage, format string, args ...any) *Error {
	return &Error{Pos: pos, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Statement is a complete query: optional parameter declarations and the
// query body.
type Statement struct {
	Params []*ParamDecl
	Query  QueryExpr
}

// ParamDecl is one entry of a PARAMETERS (...) clause.
type ParamDecl struct {
	Name    string
	Type    string
	Default Expr // *Literal, or *UnaryExpr negating a number; nil when absent
	Pos     int
}

// QueryExpr is either a *SelectStmt or a *SetOpStmt.
type QueryExpr interface {
	queryNode()
}

type SelectStmt struct {
	Distinct bool
	Items    []*SelectItem
	From     []FromItem
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []*OrderItem
	Limit    *int64
	Pos      int
}

// SetOpStmt combines two queries with UNION [ALL], INTERSECT or EXCEPT.
type SetOpStmt struct {
	Op      string
	Left    QueryExpr
	Right   QueryExpr
	OrderBy []*OrderItem
	Limit   *int64
	Pos     int
}

func (*SelectStmt) queryNode() {}
func (*SetOpStmt) queryNode()  {}

// SelectItem is one entry of the select list. Star items have no Expr;
// Qualifier holds the table path of "t.*".
type SelectItem struct {
	Expr      Expr
	Alias     string
	Star      bool
	Qualifier []string
	Pos       int
}

type OrderItem struct {
	Expr Expr
	Desc bool
}

// FromItem is a *TableRef, *DerivedTable or *JoinExpr.
type FromItem interface {
	fromNode()
}

type TableRef struct {
	Name  []string
	Alias string
	Pos   int
}

type DerivedTable struct {
	Query QueryExpr
	Alias string
	Pos   int
}

type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

var joinKeywords = map[JoinKind]string{
	JoinInner: "INNER JOIN",
	JoinLeft:  "LEFT OUTER JOIN",
	JoinRight: "RIGHT OUTER JOIN",
	JoinFull:  "FULL OUTER JOIN",
	JoinCross: "CROSS JOIN",
}

func (k JoinKind) String() string { return joinKeywords[k] }

type JoinExpr struct {
	Kind  JoinKind
	Left  FromItem
	Right FromItem
	On    Expr
	Pos   int
}

func (*TableRef) fromNode()     {}
func (*DerivedTable) fromNode() {}
func (*JoinExpr) fromNode()     {}

// Expr is any scalar expression node.
type Expr interface {
	exprNode()
}

// Ident is a possibly dotted column reference (Sample.Study.Label).
type Ident struct {
	Parts []string
	Pos   int
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
	Pos   int
}

// UnaryExpr is "-x" or "NOT x".
type UnaryExpr struct {
	Op  string
	X   Expr
	Pos int
}

// BinaryExpr covers arithmetic, comparison, LIKE, || and the logical
// connectives. Op is upper-case ("AND", "NOT LIKE", "<>").
type BinaryExpr struct {
	Op  string
	L   Expr
	R   Expr
	Pos int
}

type IsNullExpr struct {
	X   Expr
	Not bool
	Pos int
}

// InExpr is "x [NOT] IN (list)" or "x [NOT] IN (subquery)".
type InExpr struct {
	X     Expr
	List  []Expr
	Query QueryExpr
	Not   bool
	Pos   int
}

type BetweenExpr struct {
	X   Expr
	Lo  Expr
	Hi  Expr
	Not bool
	Pos int
}

type FuncCall struct {
	Name     string
	Args     []Expr
	Distinct bool
	Star     bool
	Pos      int
}

type WhenClause struct {
	Cond   Expr
	Result Expr
}

type CaseExpr struct {
	Operand Expr
	Whens   []*WhenClause
	Else    Expr
	Pos     int
}

type CastExpr struct {
	X    Expr
	Type string
	Pos  int
}

type SubqueryExpr struct {
	Query QueryExpr
	Pos   int
}

type ExistsExpr struct {
	Query QueryExpr
	Pos   int
}

func (*Ident) exprNode()        {}
func (*Literal) exprNode()      {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
func (*IsNullExpr) exprNode()   {}
func (*InExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*FuncCall) exprNode()     {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*SubqueryExpr) exprNode() {}
func (*ExistsExpr) exprNode()   {}
