package lksql

import (
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
)

// RelationColumn is a column exposed by a relation.
type RelationColumn interface {
	FieldKey() fieldkey.FieldKey
	// Alias is the column's SQL-level name within its relation.
	Alias() string
	Table() Relation
	JdbcType() schema.JdbcType
	FK() *schema.ForeignKey
	// ValueSQL renders the column as seen from outside its relation, which
	// is scanned under tableAlias.
	ValueSQL(tableAlias string) string
}

// ColumnMap is an insertion-ordered, case-insensitive map of columns.
type ColumnMap struct {
	names []string
	cols  []RelationColumn
	index map[string]int
}

func newColumnMap() *ColumnMap {
	return &ColumnMap{index: make(map[string]int)}
}

// put adds c under name. It reports false when the name is taken.
func (m *ColumnMap) put(name string, c RelationColumn) bool {
	key := fieldkey.Fold(name)
	if _, ok := m.index[key]; ok {
		return false
	}
	m.index[key] = len(m.cols)
	m.names = append(m.names, name)
	m.cols = append(m.cols, c)
	return true
}

func (m *ColumnMap) Get(name string) RelationColumn {
	if i, ok := m.index[fieldkey.Fold(name)]; ok {
		return m.cols[i]
	}
	return nil
}

func (m *ColumnMap) Has(name string) bool {
	_, ok := m.index[fieldkey.Fold(name)]
	return ok
}

func (m *ColumnMap) Len() int { return len(m.cols) }

func (m *ColumnMap) Names() []string {
	return append([]string(nil), m.names...)
}

func (m *ColumnMap) Columns() []RelationColumn {
	return append([]RelationColumn(nil), m.cols...)
}

// tableColumn is a physical column of a base table.
type tableColumn struct {
	table *QueryTable
	def   *schema.ColumnDef
}

func (c *tableColumn) FieldKey() fieldkey.FieldKey { return fieldkey.FromParts(c.def.Name) }
func (c *tableColumn) Alias() string               { return c.def.Storage() }
func (c *tableColumn) Table() Relation             { return c.table }
func (c *tableColumn) JdbcType() schema.JdbcType   { return c.def.Type }
func (c *tableColumn) FK() *schema.ForeignKey      { return c.def.FK }
func (c *tableColumn) Def() *schema.ColumnDef      { return c.def }

func (c *tableColumn) ValueSQL(tableAlias string) string {
	d := c.table.query.dialect
	return d.MakeLegalIdentifier(tableAlias) + "." + d.MakeLegalIdentifier(c.def.Storage())
}

// lookupColumn is a column of a lookup target joined inside a QueryTable.
// Its FieldKey is the path from the owning table (Sample/Name).
type lookupColumn struct {
	table *QueryTable
	join  *lookupJoin
	def   *schema.ColumnDef
}

func (c *lookupColumn) FieldKey() fieldkey.FieldKey { return c.join.key.Child(c.def.Name) }
func (c *lookupColumn) Alias() string               { return c.join.path + "$" + c.def.Name }
func (c *lookupColumn) Table() Relation             { return c.table }
func (c *lookupColumn) JdbcType() schema.JdbcType   { return c.def.Type }
func (c *lookupColumn) FK() *schema.ForeignKey      { return c.def.FK }
func (c *lookupColumn) Def() *schema.ColumnDef      { return c.def }

func (c *lookupColumn) ValueSQL(tableAlias string) string {
	d := c.table.query.dialect
	return d.MakeLegalIdentifier(c.join.alias(tableAlias)) + "." + d.MakeLegalIdentifier(c.def.Storage())
}

// markSelected records that a column is read by some enclosing relation, so
// base tables project it and lookup joins are kept.
func markSelected(col RelationColumn) {
	switch c := col.(type) {
	case *tableColumn:
		c.table.selectColumn(c)
	case *lookupColumn:
		markSelected(c.join.parent)
	}
}
