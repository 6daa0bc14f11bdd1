package lksql

import (
	"strconv"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// unionColumn is the i-th output column of a set operation. Its name comes
// from the left arm and its type is inferred across all arms.
type unionColumn struct {
	union *QueryUnion
	name  string
	index int
}

func (c *unionColumn) FieldKey() fieldkey.FieldKey { return fieldkey.FromParts(c.name) }
func (c *unionColumn) Alias() string               { return c.name }
func (c *unionColumn) Table() Relation             { return c.union }

func (c *unionColumn) JdbcType() schema.JdbcType {
	types := make([]schema.JdbcType, 0, 2)
	for _, arm := range c.union.arms() {
		if cols := visibleColumns(arm); c.index < len(cols) {
			types = append(types, cols[c.index].JdbcType())
		}
	}
	return commonType(types...)
}

// FK is kept only when every arm agrees on it.
func (c *unionColumn) FK() *schema.ForeignKey {
	var fk *schema.ForeignKey
	for i, arm := range c.union.arms() {
		cols := visibleColumns(arm)
		if c.index >= len(cols) {
			return nil
		}
		armFK := cols[c.index].FK()
		if armFK == nil {
			return nil
		}
		if i == 0 {
			fk = armFK
			continue
		}
		if armFK.TargetName() != fk.TargetName() || armFK.Column != fk.Column {
			return nil
		}
	}
	return fk
}

func (c *unionColumn) ValueSQL(tableAlias string) string {
	d := c.union.query.dialect
	return d.MakeLegalIdentifier(tableAlias) + "." + d.MakeLegalIdentifier(c.name)
}

// unionOrder references an output column by position.
type unionOrder struct {
	index int
	desc  bool
}

// QueryUnion is UNION [ALL], INTERSECT or EXCEPT over two arms.
type QueryUnion struct {
	relationBase
	op      string
	left    Relation
	right   Relation
	columns *ColumnMap
	orderBy []unionOrder
	limit   *int64
}

func (q *Query) NewUnion(op string, name string, parent Relation) *QueryUnion {
	u := &QueryUnion{
		relationBase: relationBase{
			query:  q,
			name:   name,
			parent: parent,
		},
		op:      op,
		columns: newColumnMap(),
	}
	if name == "" {
		name = "u" + strconv.Itoa(len(q.relations))
	}
	u.alias = q.uniqueAlias(name)
	q.register(u)
	return u
}

func (u *QueryUnion) Op() string { return u.op }

func (u *QueryUnion) arms() []Relation { return []Relation{u.left, u.right} }

// setArms installs both arms and derives the output columns. The arms must
// produce the same number of columns.
func (u *QueryUnion) setArms(left, right Relation, pos int) error {
	u.left, u.right = left, right
	lcols, rcols := visibleColumns(left), visibleColumns(right)
	if len(lcols) != len(rcols) {
		return parseErrorf(pos, "%s arms have %d and %d columns", u.op, len(lcols), len(rcols))
	}
	for i, c := range lcols {
		name := c.FieldKey().Name()
		for n := 1; !u.columns.put(name, &unionColumn{union: u, name: name, index: i}); n++ {
			name = c.FieldKey().Name() + "_" + strconv.Itoa(n)
		}
	}
	return nil
}

func (u *QueryUnion) AllColumns() *ColumnMap            { return u.columns }
func (u *QueryUnion) Column(name string) RelationColumn { return u.columns.Get(name) }
func (u *QueryUnion) SelectedColumnCount() int          { return u.columns.Len() }

// LookupColumn always returns nil; lookups through a set operation are
// joined by the enclosing select.
func (u *QueryUnion) LookupColumn(RelationColumn, string) RelationColumn { return nil }

func (u *QueryUnion) LookupColumnFK(RelationColumn, *schema.ForeignKey, string) RelationColumn {
	return nil
}

func (u *QueryUnion) DeclareField(key fieldkey.FieldKey) (RelationColumn, error) {
	if err := u.checkDeclare(key, true); err != nil {
		return nil, err
	}
	return u.delegate(key, true)
}

func (u *QueryUnion) GetField(key fieldkey.FieldKey) (RelationColumn, error) {
	return u.delegate(key, false)
}

func (u *QueryUnion) SetContainerFilter(f container.Filter) error {
	if err := u.setFilter(f); err != nil {
		return err
	}
	for _, arm := range u.arms() {
		if arm == nil {
			continue
		}
		if err := arm.SetContainerFilter(f); err != nil {
			return err
		}
	}
	return nil
}

func (u *QueryUnion) SuggestedColumns([]RelationColumn) []RelationColumn { return nil }

// addOrder sorts the result by the output column called name.
func (u *QueryUnion) addOrder(name string, desc bool) bool {
	for i, n := range u.columns.Names() {
		if fieldkey.Fold(n) == fieldkey.Fold(name) {
			u.orderBy = append(u.orderBy, unionOrder{index: i, desc: desc})
			return true
		}
	}
	return false
}

// armNeedsParens decides whether an arm must be parenthesized to keep the
// tree's grouping. INTERSECT binds tighter than UNION and EXCEPT.
func (u *QueryUnion) armNeedsParens(arm Relation, right bool) bool {
	switch a := arm.(type) {
	case *QuerySelect:
		return len(a.orderBy) > 0 || a.limit != nil
	case *QueryUnion:
		if right || len(a.orderBy) > 0 || a.limit != nil {
			return true
		}
		return u.op == "INTERSECT" && a.op != "INTERSECT"
	}
	return true
}

func (u *QueryUnion) SQL() (*sqlf.Fragment, error) {
	if cached, err := u.beginRender(); cached != nil || err != nil {
		return cached, err
	}
	if u.left == nil || u.right == nil {
		return nil, &RenderInvariantError{Relation: u.alias, Reason: "set operation without two arms"}
	}
	b := u.query.builder()
	for i, arm := range u.arms() {
		if i > 0 {
			b.Append("\n" + u.op + "\n")
		}
		sql, err := arm.SQL()
		if err != nil {
			return nil, err
		}
		if u.armNeedsParens(arm, i > 0) {
			b.Append("(").AppendFragment(sql).Append(")")
		} else {
			b.AppendFragment(sql)
		}
	}
	if len(u.orderBy) > 0 {
		b.Append("\nORDER BY ")
		names := u.columns.Names()
		for i, o := range u.orderBy {
			if i > 0 {
				b.Append(", ")
			}
			b.Append(b.legal(names[o.index]))
			if o.desc {
				b.Append(" DESC")
			}
		}
	}
	if u.limit != nil {
		b.Append("\nLIMIT " + strconv.FormatInt(*u.limit, 10))
	}
	return u.finishRender(b.Fragment), nil
}

func (u *QueryUnion) appendFrom(b *SQLBuilder, _ bool, _ *[]*sqlf.Fragment) error {
	sql, err := u.SQL()
	if err != nil {
		return err
	}
	b.Append("(").AppendFragment(sql).Append(") " + b.legal(u.alias))
	return nil
}
