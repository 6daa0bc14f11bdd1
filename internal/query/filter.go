package query

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/lksql/internal/lksql"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpLike  FilterOp = "like"
	OpIlike FilterOp = "ilike"
	OpIn    FilterOp = "in"
	OpIs    FilterOp = "is"
)

var validOps = map[FilterOp]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpLike: true, OpIlike: true,
	OpIn: true, OpIs: true,
}

// Filter restricts one output column of the view.
type Filter struct {
	Column *lksql.ColumnInfo
	Op     FilterOp
	Value  string
}

// ParseFilter parses a filter value like "eq.hello" into op + value.
func ParseFilter(raw string) (FilterOp, string, error) {
	before, after, ok := strings.Cut(raw, ".")
	if !ok {
		return "", "", fmt.Errorf("invalid filter format %q, expected op.value", raw)
	}

	op := FilterOp(before)
	if !validOps[op] {
		return "", "", fmt.Errorf("unknown filter operator %q", op)
	}

	value := after
	if op == OpIs && value != "null" && value != "not_null" {
		return "", "", fmt.Errorf("is operator only accepts null or not_null, got %q", value)
	}

	return op, value, nil
}

// InValues splits a comma-separated "in" filter value into individual values.
func InValues(value string) []string {
	return strings.Split(value, ",")
}

// SQLOp returns the SQL operator string for a FilterOp.
func SQLOp(op FilterOp, d sqlf.Dialect) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpLike:
		return "LIKE"
	case OpIlike:
		// SQLite LIKE already ignores ASCII case.
		if d.Name() == "postgres" {
			return "ILIKE"
		}
		return "LIKE"
	default:
		return "="
	}
}

// typedValue converts a filter value to the column's type so comparisons
// do not depend on the driver's text coercion.
func typedValue(t schema.JdbcType, raw string) (any, error) {
	switch t {
	case schema.TypeInteger:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return v, nil
	case schema.TypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case schema.TypeBoolean:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return v, nil
	}
	return raw, nil
}

// filterCondition returns a Squirrel condition for a single filter.
func filterCondition(col string, f Filter, d sqlf.Dialect) (sq.Sqlizer, error) {
	switch f.Op {
	case OpIn:
		raw := InValues(f.Value)
		values := make([]any, len(raw))
		for i, r := range raw {
			v, err := typedValue(f.Column.Type, r)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", f.Column.Name, err)
			}
			values[i] = v
		}
		return sq.Eq{col: values}, nil
	case OpIs:
		if f.Value == "null" {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	case OpLike, OpIlike:
		return sq.Expr(fmt.Sprintf(`%s %s ?`, col, SQLOp(f.Op, d)), f.Value), nil
	}

	v, err := typedValue(f.Column.Type, f.Value)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", f.Column.Name, err)
	}
	return sq.Expr(fmt.Sprintf(`%s %s ?`, col, SQLOp(f.Op, d)), v), nil
}
