package lksql

import "github.com/atlekbai/lksql/internal/schema"

// commonType infers the type of an expression from its operands. The first
// known type wins; NULL and OTHER operands adopt whatever follows them, and
// any later disagreement degrades the result to OTHER.
func commonType(types ...schema.JdbcType) schema.JdbcType {
	if len(types) == 0 {
		return schema.TypeOther
	}
	result := types[0]
	for _, t := range types[1:] {
		if result.IsUnknown() {
			if t != "" {
				result = t
			}
			continue
		}
		if t.IsUnknown() {
			continue
		}
		if t != result {
			return schema.TypeOther
		}
	}
	if result == "" {
		return schema.TypeOther
	}
	return result
}

func childrenType(children []Expr) schema.JdbcType {
	types := make([]schema.JdbcType, len(children))
	for i, c := range children {
		types[i] = c.SQLType()
	}
	return commonType(types...)
}

// arithmeticType mixes INTEGER and FLOAT into FLOAT; everything else falls
// back to commonType.
func arithmeticType(l, r schema.JdbcType) schema.JdbcType {
	if l.IsNumeric() && r.IsNumeric() && l != r {
		return schema.TypeFloat
	}
	return commonType(l, r)
}
