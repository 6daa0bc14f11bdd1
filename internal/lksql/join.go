package lksql

import (
	"strconv"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/lksql/parser"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// QueryJoin combines two FROM items. It has no columns of its own; field
// references are bound to the leaf relations.
type QueryJoin struct {
	relationBase
	kind  parser.JoinKind
	left  Relation
	right Relation
	on    Expr
}

func (q *Query) NewJoin(kind parser.JoinKind, left, right Relation, parent Relation) *QueryJoin {
	j := &QueryJoin{
		relationBase: relationBase{
			query:        q,
			parent:       parent,
			inFromClause: true,
		},
		kind:  kind,
		left:  left,
		right: right,
	}
	j.alias = q.uniqueAlias(left.Alias() + "_" + right.Alias())
	j.name = j.alias
	q.register(j)
	return j
}

func (j *QueryJoin) Kind() parser.JoinKind { return j.kind }
func (j *QueryJoin) Left() Relation        { return j.left }
func (j *QueryJoin) Right() Relation       { return j.right }

// SetOn sets the join condition. Cross joins take none.
func (j *QueryJoin) SetOn(e Expr) error {
	if j.state == stateRendered {
		return ErrAlreadyRendered
	}
	j.on = e
	return nil
}

// leaves returns the non-join relations under j, left to right.
func (j *QueryJoin) leaves() []Relation {
	var out []Relation
	for _, r := range []Relation{j.left, j.right} {
		if sub, ok := r.(*QueryJoin); ok {
			out = append(out, sub.leaves()...)
		} else {
			out = append(out, r)
		}
	}
	return out
}

// AllColumns merges the arms' columns; later duplicates get a numeric suffix.
func (j *QueryJoin) AllColumns() *ColumnMap {
	m := newColumnMap()
	for _, leaf := range j.leaves() {
		for _, c := range visibleColumns(leaf) {
			name := c.FieldKey().Name()
			for i := 1; !m.put(name, c); i++ {
				name = c.FieldKey().Name() + "_" + strconv.Itoa(i)
			}
		}
	}
	return m
}

// Column returns the column of that name when exactly one arm has it.
func (j *QueryJoin) Column(name string) RelationColumn {
	var found RelationColumn
	for _, leaf := range j.leaves() {
		if c := leaf.Column(name); c != nil {
			if found != nil {
				return nil
			}
			found = c
		}
	}
	return found
}

func (j *QueryJoin) SelectedColumnCount() int {
	return j.left.SelectedColumnCount() + j.right.SelectedColumnCount()
}

func (j *QueryJoin) contains(r Relation) bool {
	for _, leaf := range j.leaves() {
		if leaf == r {
			return true
		}
	}
	return false
}

func (j *QueryJoin) LookupColumn(parent RelationColumn, name string) RelationColumn {
	if parent == nil {
		return nil
	}
	return j.LookupColumnFK(parent, parent.FK(), name)
}

// LookupColumnFK forwards to the arm owning parent.
func (j *QueryJoin) LookupColumnFK(parent RelationColumn, fk *schema.ForeignKey, name string) RelationColumn {
	if parent == nil || !j.contains(parent.Table()) {
		return nil
	}
	return parent.Table().LookupColumnFK(parent, fk, name)
}

func (j *QueryJoin) DeclareField(key fieldkey.FieldKey) (RelationColumn, error) {
	return j.resolveField(key, true)
}

func (j *QueryJoin) GetField(key fieldkey.FieldKey) (RelationColumn, error) {
	return j.resolveField(key, false)
}

func (j *QueryJoin) resolveField(key fieldkey.FieldKey, declare bool) (RelationColumn, error) {
	if err := j.checkDeclare(key, declare); err != nil {
		return nil, err
	}
	parts := key.Parts()
	var col RelationColumn
	rest := key.Rest().Parts()
	leaves := j.leaves()
	if len(parts) > 1 {
		for _, leaf := range leaves {
			if fieldkey.Fold(leaf.Name()) == fieldkey.Fold(parts[0]) {
				col = leaf.Column(parts[1])
				rest = parts[2:]
			}
		}
	}
	if col == nil && len(parts) > 0 {
		var candidates []string
		for _, leaf := range leaves {
			if c := leaf.Column(parts[0]); c != nil {
				col = c
				candidates = append(candidates, leaf.Name()+"."+c.FieldKey().Name())
			}
		}
		if len(candidates) > 1 {
			return nil, &AmbiguousColumnError{Key: key, Candidates: candidates}
		}
		rest = parts[1:]
	}
	if col == nil {
		return j.delegate(key, declare)
	}
	for _, name := range rest {
		next := col.Table().LookupColumn(col, name)
		if next == nil {
			return nil, &UnresolvedFieldError{Key: key, Alias: j.alias}
		}
		col = next
	}
	if declare {
		markSelected(col)
	}
	return col, nil
}

func (j *QueryJoin) SetContainerFilter(f container.Filter) error {
	if err := j.setFilter(f); err != nil {
		return err
	}
	if err := j.left.SetContainerFilter(f); err != nil {
		return err
	}
	return j.right.SetContainerFilter(f)
}

func (j *QueryJoin) SuggestedColumns(selected []RelationColumn) []RelationColumn {
	var out []RelationColumn
	for _, leaf := range j.leaves() {
		var mine []RelationColumn
		for _, c := range selected {
			if c.Table() == leaf {
				mine = append(mine, c)
			}
		}
		if len(mine) > 0 {
			out = append(out, leaf.SuggestedColumns(mine)...)
		}
	}
	return out
}

// compound reports whether r renders as more than one FROM item and must be
// parenthesized on the right of a join.
func compound(r Relation) bool {
	switch v := r.(type) {
	case *QueryJoin:
		return true
	case *QueryTable:
		return len(v.joinOrder) > 0
	}
	return false
}

func appendGrouped(b *SQLBuilder, r Relation, nullable bool, where *[]*sqlf.Fragment) error {
	if !compound(r) {
		return r.appendFrom(b, nullable, where)
	}
	b.Append("(")
	if err := r.appendFrom(b, nullable, where); err != nil {
		return err
	}
	b.Append(")")
	return nil
}

// appendFrom renders left JOIN right ON cond. Arms on the null-supplying
// side of an outer join are rendered nullable so their container filter is
// applied before the join.
func (j *QueryJoin) appendFrom(b *SQLBuilder, nullable bool, where *[]*sqlf.Fragment) error {
	leftNullable, rightNullable := nullable, nullable
	switch j.kind {
	case parser.JoinLeft:
		rightNullable = true
	case parser.JoinRight:
		leftNullable = true
	case parser.JoinFull:
		leftNullable, rightNullable = true, true
	}
	if err := j.left.appendFrom(b, leftNullable, where); err != nil {
		return err
	}
	b.Append("\n" + j.kind.String() + " ")
	if err := appendGrouped(b, j.right, rightNullable, where); err != nil {
		return err
	}
	if j.on != nil {
		b.Append(" ON ")
		if err := j.on.AppendSQL(b); err != nil {
			return err
		}
	}
	j.state = stateRendered
	return nil
}

// SQL renders SELECT of every column over the join.
func (j *QueryJoin) SQL() (*sqlf.Fragment, error) {
	if cached, err := j.beginRender(); cached != nil || err != nil {
		return cached, err
	}
	b := j.query.builder()
	cols := j.AllColumns()
	b.Append("SELECT ")
	for i, c := range cols.Columns() {
		if i > 0 {
			b.Append(", ")
		}
		b.Append(c.ValueSQL(c.Table().Alias()) + " AS " + b.legal(cols.Names()[i]))
	}
	var conds []*sqlf.Fragment
	b.Append("\nFROM ")
	if err := j.appendFrom(b, false, &conds); err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		b.Append("\nWHERE ")
		appendConjunction(b, conds)
	}
	return j.finishRender(b.Fragment), nil
}
