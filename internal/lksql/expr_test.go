package lksql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

func intLit(v string) *Literal { return &Literal{Kind: LitNumber, Value: v} }
func strLit(v string) *Literal { return &Literal{Kind: LitString, Value: v} }

var nullLit = &Literal{Kind: LitNull}

func TestTypeInference(t *testing.T) {
	tests := []struct {
		name     string
		children []Expr
		want     schema.JdbcType
	}{
		{"null is transparent", []Expr{intLit("1"), nullLit, intLit("2")}, schema.TypeInteger},
		{"disagreement degrades", []Expr{intLit("1"), strLit("a")}, schema.TypeOther},
		{"leading null adopts next", []Expr{nullLit, strLit("a")}, schema.TypeVarchar},
		{"single child", []Expr{strLit("a")}, schema.TypeVarchar},
		{"no children", nil, schema.TypeOther},
		{"float literal", []Expr{intLit("1.5"), intLit("2.5")}, schema.TypeFloat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, childrenType(tt.children))
			assert.Equal(t, tt.want, (&ListExpr{Items: tt.children}).SQLType())
		})
	}
}

func TestFunctionTypes(t *testing.T) {
	coalesce := &FunctionCall{Name: "coalesce", Args: []Expr{intLit("1"), nullLit, intLit("3")}, fn: functions["coalesce"]}
	assert.Equal(t, schema.TypeInteger, coalesce.SQLType())

	mixed := &FunctionCall{Name: "coalesce", Args: []Expr{intLit("1"), strLit("x")}, fn: functions["coalesce"]}
	assert.Equal(t, schema.TypeOther, mixed.SQLType())

	unknown := &FunctionCall{Name: "nope"}
	assert.Equal(t, schema.TypeOther, unknown.SQLType())

	sum := &BinaryOp{Op: "+", L: intLit("1"), R: intLit("2.0")}
	assert.Equal(t, schema.TypeFloat, sum.SQLType())
	assert.Equal(t, schema.TypeBoolean, (&BinaryOp{Op: "=", L: intLit("1"), R: intLit("2")}).SQLType())
}

func TestIsAggregate(t *testing.T) {
	count := &FunctionCall{Name: "count", Star: true, fn: functions["count"]}
	assert.True(t, count.IsAggregate())
	assert.True(t, (&BinaryOp{Op: "+", L: count, R: intLit("1")}).IsAggregate())
	assert.False(t, (&BinaryOp{Op: "+", L: intLit("2"), R: intLit("1")}).IsAggregate())

	lower := &FunctionCall{Name: "lower", Args: []Expr{count}, fn: functions["lower"]}
	assert.True(t, lower.IsAggregate(), "aggregate argument propagates")

	ti := mustCompile(t, "SELECT (SELECT COUNT(*) FROM Results) AS n FROM Samples")
	root := ti.Relation().(*QuerySelect)
	assert.False(t, root.columns[0].expr.IsAggregate(), "subquery isolates aggregates")
	assert.False(t, root.isAggregate())
}

func TestLiteralRendering(t *testing.T) {
	tests := []struct {
		expr    Expr
		dialect sqlf.Dialect
		want    string
	}{
		{strLit("it's"), sqlf.Postgres, "'it''s'"},
		{&Literal{Kind: LitBool, Value: "TRUE"}, sqlf.Postgres, "TRUE"},
		{&Literal{Kind: LitBool, Value: "FALSE"}, sqlf.SQLite, "0"},
		{nullLit, sqlf.Postgres, "NULL"},
		{intLit("42"), sqlf.Postgres, "42"},
		{&UnaryOp{Op: "-", X: intLit("1")}, sqlf.Postgres, "(-1)"},
		{&UnaryOp{Op: "NOT", X: &Literal{Kind: LitBool, Value: "TRUE"}}, sqlf.Postgres, "(NOT TRUE)"},
		{&UnaryOp{Op: "IS NOT NULL", X: intLit("1")}, sqlf.Postgres, "(1 IS NOT NULL)"},
		{&BinaryOp{Op: "IN", L: intLit("1"), R: &ListExpr{Items: []Expr{intLit("1"), intLit("2")}}}, sqlf.Postgres, "(1 IN (1, 2))"},
		{&CastExpr{X: strLit("1"), Type: schema.TypeInteger}, sqlf.Postgres, "CAST('1' AS INTEGER)"},
		{&CaseExpr{Whens: []WhenThen{{When: &Literal{Kind: LitBool, Value: "TRUE"}, Then: intLit("1")}}, Else: intLit("0")}, sqlf.Postgres, "CASE WHEN TRUE THEN 1 ELSE 0 END"},
	}
	for _, tt := range tests {
		frag, err := RenderExpr(tt.expr, tt.dialect)
		require.NoError(t, err)
		assert.Equal(t, tt.want, frag.SQL())
	}
}

func TestFunctionRendering(t *testing.T) {
	call := func(name string, args ...Expr) *FunctionCall {
		return &FunctionCall{Name: name, Args: args, fn: functions[name]}
	}
	tests := []struct {
		expr    Expr
		dialect sqlf.Dialect
		want    string
	}{
		{&FunctionCall{Name: "count", Star: true, fn: functions["count"]}, sqlf.Postgres, "COUNT(*)"},
		{&FunctionCall{Name: "count", Distinct: true, Args: []Expr{intLit("1")}, fn: functions["count"]}, sqlf.Postgres, "COUNT(DISTINCT 1)"},
		{call("ifnull", nullLit, intLit("1")), sqlf.Postgres, "COALESCE(NULL, 1)"},
		{call("concat", strLit("a"), strLit("b")), sqlf.Postgres, "('a' || 'b')"},
		{call("now"), sqlf.Postgres, "CURRENT_TIMESTAMP"},
		{call("year", strLit("2020-01-01")), sqlf.Postgres, "EXTRACT(YEAR FROM '2020-01-01')"},
		{call("year", strLit("2020-01-01")), sqlf.SQLite, "CAST(strftime('%Y', '2020-01-01') AS INTEGER)"},
		{call("group_concat", strLit("a")), sqlf.Postgres, "string_agg(CAST('a' AS VARCHAR), ',')"},
		{call("group_concat", strLit("a"), strLit(";")), sqlf.SQLite, "group_concat('a', ';')"},
	}
	for _, tt := range tests {
		frag, err := RenderExpr(tt.expr, tt.dialect)
		require.NoError(t, err)
		assert.Equal(t, tt.want, frag.SQL())
	}
}

func TestUnresolvedFieldRefDoesNotRender(t *testing.T) {
	ref := &FieldRef{Key: fieldkey.FromString("Missing.Name")}
	_, err := RenderExpr(ref, sqlf.Postgres)
	var unresolved *UnresolvedFieldError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "Missing.Name", unresolved.Key.String())
	assert.False(t, ref.Bound())
	assert.Equal(t, schema.TypeOther, ref.SQLType())
}

func TestParameterRefRendersNamedPlaceholder(t *testing.T) {
	ref := &FieldRef{Key: fieldkey.FromParts("MinValue"), param: &ParameterDecl{Name: "MinValue", Type: schema.TypeFloat}}
	frag, err := RenderExpr(ref, sqlf.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "CAST(? AS DOUBLE PRECISION)", frag.SQL())
	assert.Equal(t, []any{sqlf.NamedParam{Name: "MinValue"}}, frag.Args())
	assert.Equal(t, schema.TypeFloat, ref.SQLType())
}
