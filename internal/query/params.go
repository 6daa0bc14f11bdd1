package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atlekbai/lksql/internal/lksql"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

type OrderClause struct {
	Column *lksql.ColumnInfo
	Desc   bool
}

// QueryParams shape the outer query over a compiled view.
type QueryParams struct {
	Select  []*lksql.ColumnInfo
	Filters []Filter
	Order   []OrderClause
	Limit   int
	Offset  int
	// Values binds the view's named parameters.
	Values map[string]any
}

// ParamsInput is the raw form of QueryParams: column names, "op.value"
// filters keyed by column and "Column.desc" orderings.
type ParamsInput struct {
	Select  []string
	Filters map[string]string
	Order   []string
	Limit   int
	Offset  int
	Values  map[string]any
}

// ParseParams resolves every column name against the view.
func ParseParams(ti *lksql.TableInfo, in ParamsInput) (*QueryParams, error) {
	p := &QueryParams{
		Limit:  DefaultLimit,
		Offset: in.Offset,
		Values: in.Values,
	}

	for _, name := range in.Select {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		col, err := ti.ResolveColumn(name)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		p.Select = append(p.Select, col)
	}

	for _, raw := range in.Order {
		name, dir, _ := strings.Cut(raw, ".")
		col, err := ti.ResolveColumn(name)
		if err != nil {
			return nil, fmt.Errorf("order: %w", err)
		}
		clause := OrderClause{Column: col}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			clause.Desc = true
		default:
			return nil, fmt.Errorf("order %q: direction must be asc or desc", raw)
		}
		p.Order = append(p.Order, clause)
	}

	if in.Limit < 0 {
		return nil, fmt.Errorf("invalid limit %d", in.Limit)
	}
	if in.Limit > 0 {
		p.Limit = min(in.Limit, MaxLimit)
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("invalid offset %d", in.Offset)
	}

	for key, raw := range in.Filters {
		col, err := ti.ResolveColumn(key)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		op, val, err := ParseFilter(raw)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", key, err)
		}
		p.Filters = append(p.Filters, Filter{Column: col, Op: op, Value: val})
	}
	// Map iteration order must not leak into the SQL.
	sort.Slice(p.Filters, func(i, j int) bool { return p.Filters[i].Column.Name < p.Filters[j].Column.Name })

	return p, nil
}
