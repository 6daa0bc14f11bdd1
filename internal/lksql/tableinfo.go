package lksql

import (
	"fmt"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// ColumnInfo is the metadata of one output column of a compiled view.
// Attributes of passthrough columns are copied from the base column and
// their field references remapped onto the view's own columns.
type ColumnInfo struct {
	FieldKey    fieldkey.FieldKey
	Name        string
	Type        schema.JdbcType
	Label       string
	Description string
	Hidden      bool
	FK          *schema.ForeignKey
	// DisplayField and SortField name output columns of the view; they are
	// empty when the view does not expose the referenced column.
	DisplayField fieldkey.FieldKey
	SortField    fieldkey.FieldKey

	column RelationColumn
	table  *QueryTable
	source fieldkey.FieldKey
	def    *schema.ColumnDef
}

// Column is the relation column backing this output.
func (c *ColumnInfo) Column() RelationColumn { return c.column }

// Source is the path of the base column relative to its table, or empty for
// computed columns.
func (c *ColumnInfo) Source() fieldkey.FieldKey { return c.source }

// SourceTable is the base table the column passes through from.
func (c *ColumnInfo) SourceTable() *schema.TableDef {
	if c.table == nil {
		return nil
	}
	return c.table.def
}

func (c *ColumnInfo) ValueSQL(tableAlias string) string { return c.column.ValueSQL(tableAlias) }

// TableInfo is the compiled, read-only view produced for one query.
type TableInfo struct {
	name     string
	query    *Query
	relation Relation
	columns  []*ColumnInfo
	byName   map[string]*ColumnInfo
	byColumn map[RelationColumn]*ColumnInfo
	filter   container.Filter

	// sources maps, per base table, a folded source key to the output key.
	sources  map[*QueryTable]map[string]fieldkey.FieldKey
	siblings map[string][]*ColumnInfo
}

// NewTableInfo wraps a resolved relation.
func NewTableInfo(name string, rel Relation) (*TableInfo, error) {
	if rel.base().state == stateDeclaring {
		return nil, &RenderInvariantError{Relation: name, Reason: "view built before resolution finished"}
	}
	t := &TableInfo{
		name:     name,
		query:    rel.Query(),
		relation: rel,
		byName:   make(map[string]*ColumnInfo),
		byColumn: make(map[RelationColumn]*ColumnInfo),
		sources:  make(map[*QueryTable]map[string]fieldkey.FieldKey),
		siblings: make(map[string][]*ColumnInfo),
	}
	for _, col := range outputColumns(rel) {
		ci := &ColumnInfo{
			FieldKey: col.FieldKey(),
			Name:     col.Alias(),
			Type:     col.JdbcType(),
			Label:    col.FieldKey().Name(),
			FK:       col.FK(),
			column:   col,
		}
		if sc, ok := col.(*SelectColumn); ok {
			ci.Hidden = sc.hidden
		}
		ci.table, ci.source, ci.def = lineage(col)
		if ci.def != nil {
			if ci.def.Label != "" {
				ci.Label = ci.def.Label
			}
			ci.Description = ci.def.Description
			ci.Hidden = ci.Hidden || ci.def.Hidden
		}
		if ci.table != nil {
			group := t.sources[ci.table]
			if group == nil {
				group = make(map[string]fieldkey.FieldKey)
				t.sources[ci.table] = group
			}
			if _, taken := group[ci.source.Key()]; !taken {
				group[ci.source.Key()] = ci.FieldKey
			}
		}
		t.columns = append(t.columns, ci)
		t.byName[fieldkey.Fold(ci.Name)] = ci
		t.byColumn[col] = ci
	}
	for _, ci := range t.columns {
		if ci.def != nil {
			ci.DisplayField = t.remap(ci, ci.def.DisplayKey())
			ci.SortField = t.remap(ci, ci.def.SortKey())
		}
	}
	t.buildSiblings()
	return t, nil
}

func outputColumns(rel Relation) []RelationColumn {
	if s, ok := rel.(*QuerySelect); ok {
		out := make([]RelationColumn, len(s.columns))
		for i, c := range s.columns {
			out[i] = c
		}
		return out
	}
	return rel.AllColumns().Columns()
}

// lineage follows passthrough columns down to the base table column.
func lineage(col RelationColumn) (*QueryTable, fieldkey.FieldKey, *schema.ColumnDef) {
	switch c := col.(type) {
	case *tableColumn:
		return c.table, c.FieldKey(), c.def
	case *lookupColumn:
		return c.table, c.FieldKey(), c.def
	case *SelectColumn:
		if src := c.Source(); src != nil {
			return lineage(src)
		}
	}
	return nil, fieldkey.FieldKey{}, nil
}

// remap translates a key relative to the column's base table into the
// output column exposing it.
func (t *TableInfo) remap(ci *ColumnInfo, rel fieldkey.FieldKey) fieldkey.FieldKey {
	if rel.IsEmpty() || ci.table == nil {
		return fieldkey.FieldKey{}
	}
	full := appendKey(ci.source.Parent(), rel)
	return t.sources[ci.table][full.Key()]
}

// buildSiblings groups output columns that read the same source column from
// distinct base tables, such as Name and Name_1 of a self join.
func (t *TableInfo) buildSiblings() {
	groups := make(map[string][]*ColumnInfo)
	var order []string
	for _, ci := range t.columns {
		if ci.table == nil || ci.Hidden {
			continue
		}
		key := ci.source.Key()
		group := groups[key]
		dup := false
		for _, member := range group {
			if member.table == ci.table {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if group == nil {
			order = append(order, key)
		}
		groups[key] = append(group, ci)
	}
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		for _, member := range group {
			t.siblings[fieldkey.Fold(member.Name)] = group
		}
	}
}

func (t *TableInfo) Name() string          { return t.name }
func (t *TableInfo) Relation() Relation    { return t.relation }
func (t *TableInfo) Dialect() sqlf.Dialect { return t.query.dialect }

// Columns returns every output column, hidden ones included.
func (t *TableInfo) Columns() []*ColumnInfo {
	return append([]*ColumnInfo(nil), t.columns...)
}

func (t *TableInfo) Column(name string) *ColumnInfo {
	return t.byName[fieldkey.Fold(name)]
}

// ResolveColumn finds an output column by name, then by the name of the
// source column it passes through.
func (t *TableInfo) ResolveColumn(name string) (*ColumnInfo, error) {
	if ci := t.Column(name); ci != nil {
		return ci, nil
	}
	key := fieldkey.FromString(name)
	var matches []*ColumnInfo
	for _, ci := range t.columns {
		if ci.table != nil && !ci.Hidden && ci.source.Key() == key.Key() {
			matches = append(matches, ci)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &UnresolvedFieldError{Key: key, Alias: t.name}
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return nil, &AmbiguousColumnError{Key: key, Candidates: names}
}

// Siblings returns the other members of key's sibling group in output
// order, or nil.
func (t *TableInfo) Siblings(key fieldkey.FieldKey) []fieldkey.FieldKey {
	group := t.siblings[fieldkey.Fold(key.Name())]
	if key.Len() != 1 || group == nil {
		return nil
	}
	var out []fieldkey.FieldKey
	for _, member := range group {
		if !member.FieldKey.Equal(key) {
			out = append(out, member.FieldKey)
		}
	}
	return out
}

// SiblingRemap maps every grouped output column to its siblings.
func (t *TableInfo) SiblingRemap() map[fieldkey.FieldKey][]fieldkey.FieldKey {
	out := make(map[fieldkey.FieldKey][]fieldkey.FieldKey)
	for _, ci := range t.columns {
		if sib := t.Siblings(ci.FieldKey); len(sib) > 0 {
			out[ci.FieldKey] = sib
		}
	}
	return out
}

// SourceRemap returns the source-to-output key mapping for the base table
// col passes through, keyed by the folded source key.
func (t *TableInfo) SourceRemap(col *ColumnInfo) map[string]fieldkey.FieldKey {
	out := make(map[string]fieldkey.FieldKey)
	if col == nil || col.table == nil {
		return out
	}
	for k, v := range t.sources[col.table] {
		out[k] = v
	}
	return out
}

// SuggestedColumns returns columns a consumer should fetch alongside
// selected.
func (t *TableInfo) SuggestedColumns(selected []*ColumnInfo) []*ColumnInfo {
	cols := make([]RelationColumn, 0, len(selected))
	for _, ci := range selected {
		cols = append(cols, ci.column)
	}
	var out []*ColumnInfo
	for _, c := range t.relation.SuggestedColumns(cols) {
		if ci := t.byColumn[c]; ci != nil {
			out = append(out, ci)
		}
	}
	return out
}

// SQL renders the view's query. Rendering is idempotent.
func (t *TableInfo) SQL() (*sqlf.Fragment, error) {
	return t.relation.SQL()
}

// FromSQL renders the view as a FROM item: "(<sql>) alias".
func (t *TableInfo) FromSQL(alias string) (*sqlf.Fragment, error) {
	if alias == "" {
		return nil, fmt.Errorf("query %s: FROM alias must not be empty", t.name)
	}
	sql, err := t.relation.SQL()
	if err != nil {
		return nil, err
	}
	return sqlf.New("(").AppendFragment(sql).Append(") " + t.query.legal(alias)), nil
}

// SetContainerFilter installs f on every base relation. It must be called
// before the first render.
func (t *TableInfo) SetContainerFilter(f container.Filter) error {
	if err := t.relation.SetContainerFilter(f); err != nil {
		return fmt.Errorf("query %s: set container filter: %w", t.name, err)
	}
	t.filter = f
	return nil
}

// ContainerFilter returns the installed filter, nil when none was set.
func (t *TableInfo) ContainerFilter() container.Filter { return t.filter }

// NeedsContainerClauseAdded is false: the filter is applied inside the
// view, so consumers must not add their own.
func (t *TableInfo) NeedsContainerClauseAdded() bool { return false }

// NamedParameters returns the declared parameters, never nil.
func (t *TableInfo) NamedParameters() []ParameterDecl {
	return t.query.Parameters()
}

// Bind replaces named parameter placeholders in args with values, falling
// back to declared defaults.
func (t *TableInfo) Bind(args []any, values map[string]any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		np, ok := a.(sqlf.NamedParam)
		if !ok {
			out[i] = a
			continue
		}
		if v, ok := lookupValue(values, np.Name); ok {
			out[i] = v
			continue
		}
		p := t.query.Parameter(np.Name)
		if p == nil || p.Required {
			return nil, fmt.Errorf("%w: %s", ErrNamedParameterNotProvided, np.Name)
		}
		out[i] = p.Default
	}
	return out, nil
}

func lookupValue(values map[string]any, name string) (any, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for k, v := range values {
		if fieldkey.Fold(k) == fieldkey.Fold(name) {
			return v, true
		}
	}
	return nil, false
}

func (t *TableInfo) Insert(map[string]any) error {
	return &UnsupportedOperationError{Op: "insert", Table: t.name}
}

func (t *TableInfo) Update(map[string]any, map[string]any) error {
	return &UnsupportedOperationError{Op: "update", Table: t.name}
}

func (t *TableInfo) Delete(map[string]any) error {
	return &UnsupportedOperationError{Op: "delete", Table: t.name}
}
