package lksql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// QueryTable scans a base table from the schema. Lookups through its FK
// columns are rendered as LEFT OUTER JOINs next to it, one per path.
type QueryTable struct {
	relationBase
	def      *schema.TableDef
	columns  *ColumnMap
	visible  *ColumnMap
	selected map[*tableColumn]bool

	joins     map[string]*lookupJoin
	joinOrder []*lookupJoin

	predDone bool
	pred     *sqlf.Fragment
	predErr  error
}

func (t *QueryTable) Def() *schema.TableDef { return t.def }

// AllColumns are the columns SELECT * projects: hidden ones are left out
// but still resolve by name through Column.
func (t *QueryTable) AllColumns() *ColumnMap { return t.visible }

func (t *QueryTable) Column(name string) RelationColumn { return t.columns.Get(name) }

func (t *QueryTable) SelectedColumnCount() int {
	n := len(t.selected)
	for _, j := range t.joinOrder {
		n += len(j.order)
	}
	return n
}

func (t *QueryTable) selectColumn(c *tableColumn) {
	if t.selected == nil {
		t.selected = make(map[*tableColumn]bool)
	}
	t.selected[c] = true
}

func (t *QueryTable) DeclareField(key fieldkey.FieldKey) (RelationColumn, error) {
	return t.resolveField(key, true)
}

func (t *QueryTable) GetField(key fieldkey.FieldKey) (RelationColumn, error) {
	return t.resolveField(key, false)
}

func (t *QueryTable) resolveField(key fieldkey.FieldKey, declare bool) (RelationColumn, error) {
	if err := t.checkDeclare(key, declare); err != nil {
		return nil, err
	}
	col := t.Column(key.Root())
	if col == nil {
		return t.delegate(key, declare)
	}
	for _, name := range key.Rest().Parts() {
		next := t.LookupColumn(col, name)
		if next == nil {
			return nil, &UnresolvedFieldError{Key: key, Alias: t.alias}
		}
		col = next
	}
	if declare {
		markSelected(col)
	}
	return col, nil
}

func (t *QueryTable) LookupColumn(parent RelationColumn, name string) RelationColumn {
	if parent == nil {
		return nil
	}
	return t.LookupColumnFK(parent, parent.FK(), name)
}

// LookupColumnFK joins the FK target of parent and returns its column name.
// Repeated calls for the same path share one join.
func (t *QueryTable) LookupColumnFK(parent RelationColumn, fk *schema.ForeignKey, name string) RelationColumn {
	if fk == nil || t.state == stateRendered {
		return nil
	}
	var path string
	switch p := parent.(type) {
	case *tableColumn:
		if p.table != t {
			return nil
		}
		path = p.def.Name
	case *lookupColumn:
		if p.table != t {
			return nil
		}
		path = p.join.path + "$" + p.def.Name
	default:
		return nil
	}

	j := t.joins[fieldkey.Fold(path)]
	if j == nil {
		target, ok := t.query.resolver.Resolve(fk.TargetName())
		if !ok {
			return nil
		}
		targetKey := target.KeyColumn()
		if fk.Column != "" {
			targetKey = target.Column(fk.Column)
		}
		if targetKey == nil || target.Column(name) == nil {
			return nil
		}
		j = &lookupJoin{
			table:     t,
			parent:    parent,
			key:       parent.FieldKey(),
			path:      path,
			target:    target,
			targetKey: targetKey,
			columns:   make(map[string]*lookupColumn),
		}
		t.joins[fieldkey.Fold(path)] = j
		t.joinOrder = append(t.joinOrder, j)
	}
	return j.column(name)
}

func (t *QueryTable) SetContainerFilter(f container.Filter) error {
	if err := t.setFilter(f); err != nil {
		return err
	}
	t.predDone, t.pred, t.predErr = false, nil, nil
	for _, j := range t.joinOrder {
		j.predDone, j.pred, j.predErr = false, nil, nil
	}
	return nil
}

// containerPredicate computes the container restriction once per table.
func (t *QueryTable) containerPredicate() (*sqlf.Fragment, error) {
	if !t.predDone {
		t.predDone = true
		t.pred, t.predErr = predicateFor(t.query, t.filter, t.def, t.alias)
	}
	return t.pred, t.predErr
}

func predicateFor(q *Query, f container.Filter, def *schema.TableDef, alias string) (*sqlf.Fragment, error) {
	cc := def.Container()
	if f == nil || cc == nil {
		return nil, nil
	}
	p, err := f.Predicate(q.legal(alias), q.legal(cc.Storage()))
	if err != nil {
		return nil, fmt.Errorf("container filter on %s: %w", def.QualifiedName(), err)
	}
	if p == nil {
		return nil, nil
	}
	frag := sqlf.New("")
	if err := frag.AppendSqlizer(p); err != nil {
		return nil, fmt.Errorf("container filter on %s: %w", def.QualifiedName(), err)
	}
	return frag, nil
}

// SuggestedColumns returns the columns a consumer should also fetch to
// render selected: lookup join keys and display or sort dependencies.
func (t *QueryTable) SuggestedColumns(selected []RelationColumn) []RelationColumn {
	have := make(map[RelationColumn]bool, len(selected))
	for _, c := range selected {
		have[c] = true
	}
	var out []RelationColumn
	add := func(c RelationColumn) {
		if c != nil && !have[c] {
			have[c] = true
			out = append(out, c)
		}
	}
	for _, c := range selected {
		var def *schema.ColumnDef
		base := fieldkey.FieldKey{}
		switch col := c.(type) {
		case *tableColumn:
			if col.table != t {
				continue
			}
			def = col.def
		case *lookupColumn:
			if col.table != t {
				continue
			}
			def = col.def
			base = col.join.key
			for j := col.join; j != nil; {
				add(j.parent)
				lc, ok := j.parent.(*lookupColumn)
				if !ok {
					break
				}
				j = lc.join
			}
		default:
			continue
		}
		for _, dep := range []fieldkey.FieldKey{def.DisplayKey(), def.SortKey()} {
			if dep.IsEmpty() {
				continue
			}
			add(t.existingField(appendKey(base, dep)))
		}
	}
	return out
}

// existingField resolves key against columns and joins already built.
func (t *QueryTable) existingField(key fieldkey.FieldKey) RelationColumn {
	col := t.Column(key.Root())
	for _, name := range key.Rest().Parts() {
		if col == nil {
			return nil
		}
		var path string
		switch p := col.(type) {
		case *tableColumn:
			path = p.def.Name
		case *lookupColumn:
			path = p.join.path + "$" + p.def.Name
		}
		j := t.joins[fieldkey.Fold(path)]
		if j == nil {
			return nil
		}
		lc := j.columns[fieldkey.Fold(name)]
		if lc == nil {
			return nil
		}
		col = lc
	}
	return col
}

func appendKey(base, rel fieldkey.FieldKey) fieldkey.FieldKey {
	for _, p := range rel.Parts() {
		base = base.Child(p)
	}
	return base
}

// projection lists the selected physical columns in table order, or the key
// column when nothing was selected.
func (t *QueryTable) projection() []*tableColumn {
	var out []*tableColumn
	for _, c := range t.columns.Columns() {
		if tc := c.(*tableColumn); t.selected[tc] {
			out = append(out, tc)
		}
	}
	if len(out) == 0 {
		if key := t.def.KeyColumn(); key != nil {
			out = append(out, t.columns.Get(key.Name).(*tableColumn))
		}
	}
	return out
}

func (t *QueryTable) fromSQL() string {
	return t.def.TableName() + " " + t.query.legal(t.alias)
}

// scan builds SELECT <projection> FROM table alias [WHERE predicate].
func (t *QueryTable) scan(withLookups bool) (*sqlf.Fragment, error) {
	var cols []string
	for _, c := range t.projection() {
		cols = append(cols, c.ValueSQL(t.alias))
	}
	if len(cols) == 0 {
		return nil, &RenderInvariantError{Relation: t.alias, Reason: "table has no columns"}
	}
	qb := sq.Select().From(t.fromSQL())
	if withLookups {
		for _, j := range t.joinOrder {
			for _, lc := range j.order {
				cols = append(cols, lc.ValueSQL(t.alias)+" AS "+t.query.legal(lc.Alias()))
			}
			clause, err := j.clause()
			if err != nil {
				return nil, err
			}
			qb = qb.JoinClause(clause)
		}
	}
	qb = qb.Columns(cols...)
	pred, err := t.containerPredicate()
	if err != nil {
		return nil, err
	}
	if pred != nil {
		qb = qb.Where(pred)
	}
	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	return sqlf.New(sql, args...), nil
}

// SQL renders the table as a standalone query including its lookups.
func (t *QueryTable) SQL() (*sqlf.Fragment, error) {
	if cached, err := t.beginRender(); cached != nil || err != nil {
		return cached, err
	}
	frag, err := t.scan(true)
	if err != nil {
		return nil, err
	}
	return t.finishRender(frag), nil
}

func (t *QueryTable) appendFrom(b *SQLBuilder, nullable bool, where *[]*sqlf.Fragment) error {
	if t.state == stateDeclaring {
		return &RenderInvariantError{Relation: t.alias, Reason: "rendered before resolution finished"}
	}
	pred, err := t.containerPredicate()
	if err != nil {
		return err
	}
	switch {
	case pred != nil && nullable:
		scan, err := t.scan(false)
		if err != nil {
			return err
		}
		b.Append("(").AppendFragment(scan).Append(") " + b.legal(t.alias))
	default:
		b.Append(t.fromSQL())
		if pred != nil {
			*where = append(*where, pred)
		}
	}
	for _, j := range t.joinOrder {
		clause, err := j.clause()
		if err != nil {
			return err
		}
		b.Append("\n").AppendFragment(clause)
	}
	t.state = stateRendered
	return nil
}

// lookupJoin is one LEFT OUTER JOIN of an FK target, aliased
// <table alias>$<path>.
type lookupJoin struct {
	table     *QueryTable
	parent    RelationColumn
	key       fieldkey.FieldKey
	path      string
	target    *schema.TableDef
	targetKey *schema.ColumnDef
	columns   map[string]*lookupColumn
	order     []*lookupColumn

	predDone bool
	pred     *sqlf.Fragment
	predErr  error
}

func (j *lookupJoin) alias(tableAlias string) string {
	return tableAlias + "$" + j.path
}

func (j *lookupJoin) column(name string) RelationColumn {
	key := fieldkey.Fold(name)
	if c := j.columns[key]; c != nil {
		return c
	}
	def := j.target.Column(name)
	if def == nil {
		return nil
	}
	c := &lookupColumn{table: j.table, join: j, def: def}
	j.columns[key] = c
	j.order = append(j.order, c)
	return c
}

func (j *lookupJoin) clause() (*sqlf.Fragment, error) {
	q := j.table.query
	tableAlias := j.table.alias
	alias := j.alias(tableAlias)
	f := sqlf.New("LEFT OUTER JOIN " + j.target.TableName() + " " + q.legal(alias) +
		" ON " + j.parent.ValueSQL(tableAlias) + " = " + q.legal(alias) + "." + q.legal(j.targetKey.Storage()))
	if !j.predDone {
		j.predDone = true
		j.pred, j.predErr = predicateFor(q, j.table.filter, j.target, alias)
	}
	if j.predErr != nil {
		return nil, j.predErr
	}
	if j.pred != nil {
		f.Append(" AND ").AppendFragment(j.pred)
	}
	return f, nil
}
