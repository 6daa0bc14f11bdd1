package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/lksql/internal/lksql"
)

const qAlias = "_v"

// Builder generates the outer queries that read from a compiled view.
type Builder struct {
	ti *lksql.TableInfo
}

// NewBuilder returns a query builder for the given view.
func NewBuilder(ti *lksql.TableInfo) *Builder {
	return &Builder{ti: ti}
}

// Alias returns the alias the view is embedded under.
func Alias() string {
	return qAlias
}

func (b *Builder) column(c *lksql.ColumnInfo) string {
	d := b.ti.Dialect()
	return d.MakeLegalIdentifier(qAlias) + "." + d.MakeLegalIdentifier(c.Name)
}

// from embeds the view and returns its text and bound arguments.
func (b *Builder) from(params *QueryParams) (string, []any, error) {
	frag, err := b.ti.FromSQL(qAlias)
	if err != nil {
		return "", nil, err
	}
	args, err := b.ti.Bind(frag.Args(), params.Values)
	if err != nil {
		return "", nil, err
	}
	return frag.SQL(), args, nil
}

func (b *Builder) where(qb sq.SelectBuilder, params *QueryParams) (sq.SelectBuilder, error) {
	for _, f := range params.Filters {
		cond, err := filterCondition(b.column(f.Column), f, b.ti.Dialect())
		if err != nil {
			return qb, err
		}
		qb = qb.Where(cond)
	}
	return qb, nil
}

// finish renders qb with "?" markers, prepends the view's arguments and
// converts the markers for the dialect. The view is the FROM item, so its
// markers precede every marker squirrel emits.
func (b *Builder) finish(qb sq.SelectBuilder, fromArgs []any) (string, []any, error) {
	sqlStr, args, err := qb.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return "", nil, err
	}
	sqlStr, err = b.ti.Dialect().Placeholder().ReplacePlaceholders(sqlStr)
	if err != nil {
		return "", nil, err
	}
	return sqlStr, append(fromArgs, args...), nil
}

// BuildList selects the requested columns, all visible ones by default.
func (b *Builder) BuildList(params *QueryParams) (string, []any, error) {
	cols := params.Select
	if len(cols) == 0 {
		for _, c := range b.ti.Columns() {
			if !c.Hidden {
				cols = append(cols, c)
			}
		}
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("view %s has no visible columns", b.ti.Name())
	}
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = b.column(c)
	}

	from, fromArgs, err := b.from(params)
	if err != nil {
		return "", nil, err
	}
	qb := sq.Select(exprs...).From(from)
	if qb, err = b.where(qb, params); err != nil {
		return "", nil, err
	}
	for _, o := range params.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		qb = qb.OrderBy(b.column(o.Column) + " " + dir)
	}
	if params.Limit > 0 {
		qb = qb.Limit(uint64(params.Limit))
	}
	if params.Offset > 0 {
		qb = qb.Offset(uint64(params.Offset))
	}
	return b.finish(qb, fromArgs)
}

// BuildCount counts the rows matching the filters.
func (b *Builder) BuildCount(params *QueryParams) (string, []any, error) {
	from, fromArgs, err := b.from(params)
	if err != nil {
		return "", nil, err
	}
	qb := sq.Select("COUNT(*)").From(from)
	if qb, err = b.where(qb, params); err != nil {
		return "", nil, err
	}
	return b.finish(qb, fromArgs)
}

// Describe is a one-line summary of params for logs.
func Describe(params *QueryParams) string {
	var parts []string
	for _, f := range params.Filters {
		parts = append(parts, fmt.Sprintf("%s=%s.%s", f.Column.Name, f.Op, f.Value))
	}
	for _, o := range params.Order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		parts = append(parts, "order="+o.Column.Name+"."+dir)
	}
	parts = append(parts, fmt.Sprintf("limit=%d", params.Limit))
	return strings.Join(parts, " ")
}
