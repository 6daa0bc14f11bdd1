package lksql

import (
	"strings"

	"github.com/atlekbai/lksql/internal/schema"
)

// function describes a registered scalar or aggregate function.
type function struct {
	name      string
	minArgs   int
	maxArgs   int // -1 = variadic
	aggregate bool
	star      bool // accepts f(*)
	returns   func(args []Expr) schema.JdbcType
	render    func(b *SQLBuilder, c *FunctionCall) error
}

func fixed(t schema.JdbcType) func([]Expr) schema.JdbcType {
	return func([]Expr) schema.JdbcType { return t }
}

func firstArgType(args []Expr) schema.JdbcType {
	if len(args) == 0 {
		return schema.TypeOther
	}
	return args[0].SQLType()
}

// renderAs emits sqlName(args...).
func renderAs(sqlName string) func(*SQLBuilder, *FunctionCall) error {
	return func(b *SQLBuilder, c *FunctionCall) error {
		b.Append(sqlName + "(")
		switch {
		case c.Star:
			b.Append("*")
		case c.Distinct:
			b.Append("DISTINCT ")
		}
		if err := appendArgs(b, c.Args, ", "); err != nil {
			return err
		}
		b.Append(")")
		return nil
	}
}

func appendArgs(b *SQLBuilder, args []Expr, sep string) error {
	for i, a := range args {
		if i > 0 {
			b.Append(sep)
		}
		if err := a.AppendSQL(b); err != nil {
			return err
		}
	}
	return nil
}

func renderKeyword(sql string) func(*SQLBuilder, *FunctionCall) error {
	return func(b *SQLBuilder, _ *FunctionCall) error {
		b.Append(sql)
		return nil
	}
}

func renderExtract(field string) func(*SQLBuilder, *FunctionCall) error {
	return func(b *SQLBuilder, c *FunctionCall) error {
		if b.Dialect.Name() == "sqlite" {
			format := map[string]string{"YEAR": "%Y", "MONTH": "%m", "DAY": "%d"}[field]
			b.Append("CAST(strftime('" + format + "', ")
			if err := c.Args[0].AppendSQL(b); err != nil {
				return err
			}
			b.Append(") AS INTEGER)")
			return nil
		}
		b.Append("EXTRACT(" + field + " FROM ")
		if err := c.Args[0].AppendSQL(b); err != nil {
			return err
		}
		b.Append(")")
		return nil
	}
}

func renderConcat(b *SQLBuilder, c *FunctionCall) error {
	b.Append("(")
	if err := appendArgs(b, c.Args, " || "); err != nil {
		return err
	}
	b.Append(")")
	return nil
}

func renderGroupConcat(b *SQLBuilder, c *FunctionCall) error {
	sep := &Literal{Kind: LitString, Value: ","}
	if len(c.Args) > 1 {
		if lit, ok := c.Args[1].(*Literal); ok {
			sep = lit
		}
	}
	name := "string_agg"
	if b.Dialect.Name() == "sqlite" {
		name = "group_concat"
	}
	b.Append(name + "(")
	if c.Distinct {
		b.Append("DISTINCT ")
	}
	if name == "string_agg" {
		b.Append("CAST(")
		if err := c.Args[0].AppendSQL(b); err != nil {
			return err
		}
		b.Append(" AS VARCHAR)")
	} else if err := c.Args[0].AppendSQL(b); err != nil {
		return err
	}
	b.Append(", ")
	if err := sep.AppendSQL(b); err != nil {
		return err
	}
	b.Append(")")
	return nil
}

var functions = map[string]*function{
	// Aggregates
	"count":        {minArgs: 1, maxArgs: 1, aggregate: true, star: true, returns: fixed(schema.TypeInteger), render: renderAs("COUNT")},
	"sum":          {minArgs: 1, maxArgs: 1, aggregate: true, returns: firstArgType, render: renderAs("SUM")},
	"avg":          {minArgs: 1, maxArgs: 1, aggregate: true, returns: fixed(schema.TypeFloat), render: renderAs("AVG")},
	"min":          {minArgs: 1, maxArgs: 1, aggregate: true, returns: firstArgType, render: renderAs("MIN")},
	"max":          {minArgs: 1, maxArgs: 1, aggregate: true, returns: firstArgType, render: renderAs("MAX")},
	"stddev":       {minArgs: 1, maxArgs: 1, aggregate: true, returns: fixed(schema.TypeFloat), render: renderAs("STDDEV")},
	"group_concat": {minArgs: 1, maxArgs: 2, aggregate: true, returns: fixed(schema.TypeVarchar), render: renderGroupConcat},

	// Null handling
	"coalesce": {minArgs: 1, maxArgs: -1, returns: childrenType, render: renderAs("COALESCE")},
	"ifnull":   {minArgs: 2, maxArgs: 2, returns: childrenType, render: renderAs("COALESCE")},
	"nullif":   {minArgs: 2, maxArgs: 2, returns: firstArgType, render: renderAs("NULLIF")},

	// Strings
	"lower":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("LOWER")},
	"lcase":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("LOWER")},
	"upper":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("UPPER")},
	"ucase":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("UPPER")},
	"trim":      {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("TRIM")},
	"ltrim":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("LTRIM")},
	"rtrim":     {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeVarchar), render: renderAs("RTRIM")},
	"length":    {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeInteger), render: renderAs("LENGTH")},
	"substring": {minArgs: 2, maxArgs: 3, returns: fixed(schema.TypeVarchar), render: renderAs("SUBSTR")},
	"concat":    {minArgs: 2, maxArgs: -1, returns: fixed(schema.TypeVarchar), render: renderConcat},

	// Math
	"abs":     {minArgs: 1, maxArgs: 1, returns: firstArgType, render: renderAs("ABS")},
	"round":   {minArgs: 1, maxArgs: 2, returns: firstArgType, render: renderAs("ROUND")},
	"floor":   {minArgs: 1, maxArgs: 1, returns: firstArgType, render: renderAs("FLOOR")},
	"ceiling": {minArgs: 1, maxArgs: 1, returns: firstArgType, render: renderAs("CEIL")},
	"mod":     {minArgs: 2, maxArgs: 2, returns: fixed(schema.TypeInteger), render: renderAs("MOD")},

	// Dates
	"now":        {minArgs: 0, maxArgs: 0, returns: fixed(schema.TypeDate), render: renderKeyword("CURRENT_TIMESTAMP")},
	"curdate":    {minArgs: 0, maxArgs: 0, returns: fixed(schema.TypeDate), render: renderKeyword("CURRENT_DATE")},
	"year":       {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeInteger), render: renderExtract("YEAR")},
	"month":      {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeInteger), render: renderExtract("MONTH")},
	"dayofmonth": {minArgs: 1, maxArgs: 1, returns: fixed(schema.TypeInteger), render: renderExtract("DAY")},
}

func init() {
	for name, fn := range functions {
		fn.name = name
	}
}

// lookupFunction finds a registered function, ignoring case.
func lookupFunction(name string) (*function, bool) {
	fn, ok := functions[strings.ToLower(name)]
	return fn, ok
}

// IsAggregateFunction reports whether name is a registered aggregate.
func IsAggregateFunction(name string) bool {
	fn, ok := lookupFunction(name)
	return ok && fn.aggregate
}

func (fn *function) checkArity(n int) bool {
	if n < fn.minArgs {
		return false
	}
	return fn.maxArgs < 0 || n <= fn.maxArgs
}
