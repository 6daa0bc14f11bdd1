package lksql

import (
	"strconv"
	"strings"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// SelectColumn is an output column of a QuerySelect.
type SelectColumn struct {
	sel      *QuerySelect
	name     string
	expr     Expr
	hidden   bool
	explicit bool
}

func (c *SelectColumn) FieldKey() fieldkey.FieldKey { return fieldkey.FromParts(c.name) }
func (c *SelectColumn) Alias() string               { return c.name }
func (c *SelectColumn) Name() string                { return c.name }
func (c *SelectColumn) Table() Relation             { return c.sel }
func (c *SelectColumn) JdbcType() schema.JdbcType   { return c.expr.SQLType() }
func (c *SelectColumn) Expr() Expr                  { return c.expr }
func (c *SelectColumn) Hidden() bool                { return c.hidden }

// Source is the column passed through unchanged, or nil when the column is
// computed.
func (c *SelectColumn) Source() RelationColumn {
	if ref, ok := c.expr.(*FieldRef); ok {
		return ref.column
	}
	return nil
}

func (c *SelectColumn) FK() *schema.ForeignKey {
	if src := c.Source(); src != nil {
		return src.FK()
	}
	return nil
}

func (c *SelectColumn) ValueSQL(tableAlias string) string {
	d := c.sel.query.dialect
	return d.MakeLegalIdentifier(tableAlias) + "." + d.MakeLegalIdentifier(c.name)
}

type OrderBy struct {
	Expr Expr
	Desc bool
}

// fallbackJoin is a lookup the owning relation could not build itself. It
// is joined at the select level on the parent column's value.
type fallbackJoin struct {
	table  *QueryTable
	parent RelationColumn
	key    *tableColumn
}

// QuerySelect is a SELECT: the root of a query, a derived table in FROM, a
// set-operation arm or an expression subquery.
type QuerySelect struct {
	relationBase

	from   Relation
	tables []Relation

	fallbacks     map[RelationColumn]*fallbackJoin
	fallbackOrder []*fallbackJoin

	columns  []*SelectColumn
	byName   map[string]*SelectColumn
	pushdown map[string]*SelectColumn

	subqueries []Relation

	distinct bool
	where    Expr
	groupBy  []Expr
	having   Expr
	orderBy  []OrderBy
	limit    *int64

	// fromItem is set for derived tables; lateral records that one of them
	// captured a column of an earlier FROM item.
	fromItem bool
	lateral  bool
}

// Columns returns every output column, hidden ones included.
func (s *QuerySelect) Columns() []*SelectColumn {
	return append([]*SelectColumn(nil), s.columns...)
}

// Tables returns the named FROM items in declaration order.
func (s *QuerySelect) Tables() []Relation {
	return append([]Relation(nil), s.tables...)
}

func (s *QuerySelect) Lateral() bool { return s.lateral }

func (s *QuerySelect) AllColumns() *ColumnMap {
	m := newColumnMap()
	for _, c := range s.columns {
		if !c.hidden {
			m.put(c.name, c)
		}
	}
	return m
}

func (s *QuerySelect) Column(name string) RelationColumn {
	if c := s.byName[fieldkey.Fold(name)]; c != nil {
		return c
	}
	return nil
}

func (s *QuerySelect) SelectedColumnCount() int { return len(s.columns) }

// addTable registers a named FROM item for field resolution.
func (s *QuerySelect) addTable(r Relation, pos int) error {
	for _, t := range s.tables {
		if fieldkey.Fold(t.Name()) == fieldkey.Fold(r.Name()) {
			return parseErrorf(pos, "duplicate table alias %s", r.Name())
		}
	}
	s.tables = append(s.tables, r)
	return nil
}

func (s *QuerySelect) table(name string) Relation {
	for _, t := range s.tables {
		if fieldkey.Fold(t.Name()) == fieldkey.Fold(name) {
			return t
		}
	}
	return nil
}

// owns reports whether r is scanned by this select's FROM clause.
func (s *QuerySelect) owns(r Relation) bool {
	for _, t := range s.tables {
		if t == r {
			return true
		}
	}
	for _, fj := range s.fallbackOrder {
		if fj.table == r {
			return true
		}
	}
	return false
}

func (s *QuerySelect) uniqueName(base string) string {
	name := base
	for i := 1; s.byName[fieldkey.Fold(name)] != nil; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	return name
}

// addColumn appends an output column. Explicit aliases must be unique;
// derived names get a numeric suffix instead.
func (s *QuerySelect) addColumn(name string, explicit bool, expr Expr, pos int) (*SelectColumn, error) {
	if explicit {
		if s.byName[fieldkey.Fold(name)] != nil {
			return nil, parseErrorf(pos, "duplicate column name %s", name)
		}
	} else {
		name = s.uniqueName(name)
	}
	c := &SelectColumn{sel: s, name: name, expr: expr, explicit: explicit}
	s.columns = append(s.columns, c)
	s.byName[fieldkey.Fold(name)] = c
	return c, nil
}

func (s *QuerySelect) addHidden(name string, col RelationColumn) *SelectColumn {
	name = s.uniqueName(name)
	c := &SelectColumn{sel: s, name: name, expr: NewFieldRef(col), hidden: true}
	s.columns = append(s.columns, c)
	s.byName[fieldkey.Fold(name)] = c
	return c
}

// isAggregate is true for grouped selects, where extra output columns would
// change the result.
func (s *QuerySelect) isAggregate() bool {
	if len(s.groupBy) > 0 || s.having != nil {
		return true
	}
	for _, c := range s.columns {
		if c.expr.IsAggregate() {
			return true
		}
	}
	return false
}

func (s *QuerySelect) DeclareField(key fieldkey.FieldKey) (RelationColumn, error) {
	return s.resolveField(key, true)
}

func (s *QuerySelect) GetField(key fieldkey.FieldKey) (RelationColumn, error) {
	return s.resolveField(key, false)
}

// resolveField binds key against the FROM items: first as alias.column,
// then as a unique unqualified column, then in the parent scope. Remaining
// key parts are followed as lookups.
func (s *QuerySelect) resolveField(key fieldkey.FieldKey, declare bool) (RelationColumn, error) {
	if err := s.checkDeclare(key, declare); err != nil {
		return nil, err
	}
	if key.IsEmpty() {
		return nil, &UnresolvedFieldError{Key: key, Alias: s.alias}
	}
	parts := key.Parts()
	var col RelationColumn
	var rest []string

	if len(parts) > 1 {
		if t := s.table(parts[0]); t != nil {
			col = t.Column(parts[1])
			if col == nil {
				return nil, &UnresolvedFieldError{Key: key, Alias: s.alias}
			}
			rest = parts[2:]
		}
	}
	if col == nil {
		var candidates []string
		for _, t := range s.tables {
			if c := t.Column(parts[0]); c != nil {
				col = c
				candidates = append(candidates, t.Name()+"."+c.FieldKey().Name())
			}
		}
		if len(candidates) > 1 {
			return nil, &AmbiguousColumnError{Key: key, Candidates: candidates}
		}
		rest = parts[1:]
	}
	if col == nil {
		outer, err := s.delegate(key, declare)
		if err != nil {
			return nil, err
		}
		if s.fromItem && declare {
			s.lateral = true
		}
		return outer, nil
	}

	for _, name := range rest {
		next := s.lookup(col, name)
		if next == nil {
			return nil, &UnresolvedFieldError{Key: key, Alias: s.alias}
		}
		col = next
	}
	if declare {
		markSelected(col)
	}
	return col, nil
}

// lookup follows one FK hop. The relation owning col builds the join when it
// can; otherwise the target is joined at this level.
func (s *QuerySelect) lookup(col RelationColumn, name string) RelationColumn {
	fk := col.FK()
	if fk == nil {
		return nil
	}
	if next := col.Table().LookupColumnFK(col, fk, name); next != nil {
		return next
	}
	return s.fallbackLookup(col, fk, name)
}

func (s *QuerySelect) fallbackLookup(parent RelationColumn, fk *schema.ForeignKey, name string) RelationColumn {
	fj := s.fallbacks[parent]
	if fj == nil {
		if s.state == stateRendered {
			return nil
		}
		def, ok := s.query.resolver.Resolve(fk.TargetName())
		if !ok || def.Column(name) == nil {
			return nil
		}
		keyDef := def.KeyColumn()
		if fk.Column != "" {
			keyDef = def.Column(fk.Column)
		}
		if keyDef == nil {
			return nil
		}
		t := s.query.NewTable(def, parent.Table().Alias()+"$"+parent.FieldKey().Name(), s)
		t.inFromClause = true
		t.filter = s.filter
		key := t.columns.Get(keyDef.Name).(*tableColumn)
		t.selectColumn(key)
		fj = &fallbackJoin{table: t, parent: parent, key: key}
		s.fallbacks[parent] = fj
		s.fallbackOrder = append(s.fallbackOrder, fj)
	}
	col := fj.table.Column(name)
	if col == nil {
		return nil
	}
	if s.state != stateRendered {
		markSelected(col)
	}
	return col
}

func (s *QuerySelect) LookupColumn(parent RelationColumn, name string) RelationColumn {
	if parent == nil {
		return nil
	}
	return s.LookupColumnFK(parent, parent.FK(), name)
}

// LookupColumnFK pushes a lookup through a passthrough column down to the
// relation that owns the source column, exposing the result as a hidden
// output column.
func (s *QuerySelect) LookupColumnFK(parent RelationColumn, fk *schema.ForeignKey, name string) RelationColumn {
	sc, ok := parent.(*SelectColumn)
	if !ok || sc.sel != s || fk == nil || s.state == stateRendered {
		return nil
	}
	if s.distinct || s.isAggregate() {
		return nil
	}
	src := sc.Source()
	if src == nil || !s.owns(src.Table()) {
		return nil
	}
	key := fieldkey.Fold(sc.name) + "/" + fieldkey.Fold(name)
	if c := s.pushdown[key]; c != nil {
		return c
	}
	inner := src.Table().LookupColumnFK(src, fk, name)
	if inner == nil {
		inner = s.fallbackLookup(src, fk, name)
	}
	if inner == nil {
		return nil
	}
	markSelected(inner)
	c := s.addHidden(sc.name+"$"+name, inner)
	s.pushdown[key] = c
	return c
}

func (s *QuerySelect) SetContainerFilter(f container.Filter) error {
	if err := s.setFilter(f); err != nil {
		return err
	}
	if s.from != nil {
		if err := s.from.SetContainerFilter(f); err != nil {
			return err
		}
	}
	for _, fj := range s.fallbackOrder {
		if err := fj.table.SetContainerFilter(f); err != nil {
			return err
		}
	}
	for _, sub := range s.subqueries {
		if err := sub.SetContainerFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// SuggestedColumns maps the owning relations' suggestions back onto this
// select's output columns.
func (s *QuerySelect) SuggestedColumns(selected []RelationColumn) []RelationColumn {
	have := make(map[RelationColumn]bool, len(selected))
	for _, c := range selected {
		have[c] = true
	}
	var out []RelationColumn
	for _, c := range selected {
		sc, ok := c.(*SelectColumn)
		if !ok || sc.sel != s {
			continue
		}
		src := sc.Source()
		if src == nil {
			continue
		}
		for _, dep := range src.Table().SuggestedColumns([]RelationColumn{src}) {
			for _, cand := range s.columns {
				if cand.Source() == dep && !have[cand] {
					have[cand] = true
					out = append(out, cand)
				}
			}
		}
	}
	return out
}

func (s *QuerySelect) render(b *SQLBuilder, e Expr) (*sqlf.Fragment, error) {
	sub := b.sub()
	if err := e.AppendSQL(sub); err != nil {
		return nil, err
	}
	return sub.Fragment, nil
}

// SQL renders the select. Clauses are separated by newlines.
func (s *QuerySelect) SQL() (*sqlf.Fragment, error) {
	if cached, err := s.beginRender(); cached != nil || err != nil {
		return cached, err
	}
	if len(s.columns) == 0 {
		return nil, &RenderInvariantError{Relation: s.alias, Reason: "select has no columns"}
	}
	b := s.query.builder()
	b.Append("SELECT ")
	if s.distinct {
		b.Append("DISTINCT ")
	}
	for i, c := range s.columns {
		if i > 0 {
			b.Append(", ")
		}
		if err := c.expr.AppendSQL(b); err != nil {
			return nil, err
		}
		b.Append(" AS " + b.legal(c.name))
	}

	var conds []*sqlf.Fragment
	if s.from != nil {
		b.Append("\nFROM ")
		if err := s.from.appendFrom(b, false, &conds); err != nil {
			return nil, err
		}
		for _, fj := range s.fallbackOrder {
			b.Append("\nLEFT OUTER JOIN ")
			if err := appendGrouped(b, fj.table, true, &conds); err != nil {
				return nil, err
			}
			b.Append(" ON " + fj.parent.ValueSQL(fj.parent.Table().Alias()) + " = " + fj.key.ValueSQL(fj.table.alias))
		}
	}
	if s.where != nil {
		w, err := s.render(b, s.where)
		if err != nil {
			return nil, err
		}
		conds = append(conds, w)
	}
	if len(conds) > 0 {
		b.Append("\nWHERE ")
		appendConjunction(b, conds)
	}
	if len(s.groupBy) > 0 {
		b.Append("\nGROUP BY ")
		if err := appendArgs(b, s.groupBy, ", "); err != nil {
			return nil, err
		}
	}
	if s.having != nil {
		b.Append("\nHAVING ")
		if err := s.having.AppendSQL(b); err != nil {
			return nil, err
		}
	}
	if len(s.orderBy) > 0 {
		b.Append("\nORDER BY ")
		for i, o := range s.orderBy {
			if i > 0 {
				b.Append(", ")
			}
			if err := o.Expr.AppendSQL(b); err != nil {
				return nil, err
			}
			if o.Desc {
				b.Append(" DESC")
			}
		}
	}
	if s.limit != nil {
		b.Append("\nLIMIT " + strconv.FormatInt(*s.limit, 10))
	}
	return s.finishRender(b.Fragment), nil
}

func (s *QuerySelect) appendFrom(b *SQLBuilder, _ bool, _ *[]*sqlf.Fragment) error {
	sql, err := s.SQL()
	if err != nil {
		return err
	}
	if s.lateral && b.Dialect.SupportsLateral() {
		b.Append("LATERAL ")
	}
	b.Append("(").AppendFragment(sql).Append(") " + b.legal(s.alias))
	return nil
}

// appendConjunction joins conditions with AND, parenthesizing each one when
// there is more than one.
func appendConjunction(b *SQLBuilder, conds []*sqlf.Fragment) {
	if len(conds) == 1 {
		b.AppendFragment(conds[0])
		return
	}
	for i, c := range conds {
		if i > 0 {
			b.Append(" AND ")
		}
		if enclosed(c.SQL()) {
			b.AppendFragment(c)
		} else {
			b.Append("(").AppendFragment(c).Append(")")
		}
	}
}

// enclosed reports whether sql is wrapped in a single pair of parentheses.
func enclosed(sql string) bool {
	if !strings.HasPrefix(sql, "(") || !strings.HasSuffix(sql, ")") {
		return false
	}
	depth := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth == 0 && i != len(sql)-1 {
				return false
			}
		}
	}
	return depth == 0
}
