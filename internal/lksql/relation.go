package lksql

import (
	"errors"
	"fmt"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// Relation is a node of the compiled relation tree. Implementations are
// *QueryTable, *QuerySelect, *QueryJoin and *QueryUnion.
type Relation interface {
	// Alias is the SQL alias, unique within the enclosing query.
	Alias() string
	SetAlias(alias string) error
	// Name is the source-level name used to qualify field references.
	Name() string
	Parent() Relation
	NestingLevel() int
	InFromClause() bool
	SetInFromClause(v bool) error
	Query() *Query

	AllColumns() *ColumnMap
	Column(name string) RelationColumn
	SelectedColumnCount() int
	// LookupColumn resolves name on the FK target of parent, a column of
	// this relation. A nil result means the caller must build the lookup
	// itself.
	LookupColumn(parent RelationColumn, name string) RelationColumn
	LookupColumnFK(parent RelationColumn, fk *schema.ForeignKey, name string) RelationColumn

	DeclareField(key fieldkey.FieldKey) (RelationColumn, error)
	GetField(key fieldkey.FieldKey) (RelationColumn, error)

	SetContainerFilter(f container.Filter) error
	SuggestedColumns(selected []RelationColumn) []RelationColumn
	SQL() (*sqlf.Fragment, error)

	base() *relationBase
	// appendFrom renders the relation as a FROM item. Predicates that must
	// be applied by the enclosing WHERE are appended to where.
	appendFrom(b *SQLBuilder, nullable bool, where *[]*sqlf.Fragment) error
}

type relationState int

const (
	stateDeclaring relationState = iota
	stateResolved
	stateRendered
)

func (s relationState) String() string {
	switch s {
	case stateResolved:
		return "resolved"
	case stateRendered:
		return "rendered"
	}
	return "declaring"
}

// relationBase holds what every relation shares. Parent links are
// non-owning; the Query owns every relation.
type relationBase struct {
	query        *Query
	name         string
	alias        string
	parent       Relation
	inFromClause bool
	state        relationState
	filter       container.Filter
	rendered     *sqlf.Fragment
}

func (r *relationBase) base() *relationBase { return r }
func (r *relationBase) Alias() string       { return r.alias }
func (r *relationBase) Name() string        { return r.name }
func (r *relationBase) Parent() Relation    { return r.parent }
func (r *relationBase) InFromClause() bool  { return r.inFromClause }
func (r *relationBase) Query() *Query       { return r.query }

func (r *relationBase) SetAlias(alias string) error {
	if r.state == stateRendered {
		return ErrAlreadyRendered
	}
	if alias == "" {
		return parseErrorf(-1, "relation alias must not be empty")
	}
	r.query.releaseAlias(r.alias)
	r.alias = r.query.uniqueAlias(alias)
	return nil
}

// SetInFromClause controls whether names not found locally are looked up in
// the parent relation.
func (r *relationBase) SetInFromClause(v bool) error {
	if r.state == stateRendered {
		return ErrAlreadyRendered
	}
	r.inFromClause = v
	return nil
}

func (r *relationBase) NestingLevel() int {
	n := 0
	for p := r.parent; p != nil; p = p.Parent() {
		n++
	}
	return n
}

func (r *relationBase) setFilter(f container.Filter) error {
	if r.state == stateRendered {
		return ErrAlreadyRendered
	}
	r.filter = f
	return nil
}

// checkDeclare refuses new declarations once the SQL is cached: a late
// declaration could add joins the rendered text does not contain.
func (r *relationBase) checkDeclare(key fieldkey.FieldKey, declare bool) error {
	if declare && r.state == stateRendered {
		return fmt.Errorf("%s: declare %s: %w", r.alias, key, ErrAlreadyRendered)
	}
	return nil
}

// delegate forwards a field lookup to the parent relation. A failure keeps
// the alias of the relation the lookup started in.
func (r *relationBase) delegate(key fieldkey.FieldKey, declare bool) (RelationColumn, error) {
	if r.parent == nil || !r.inFromClause {
		return nil, &UnresolvedFieldError{Key: key, Alias: r.alias}
	}
	var (
		col RelationColumn
		err error
	)
	if declare {
		col, err = r.parent.DeclareField(key)
	} else {
		col, err = r.parent.GetField(key)
	}
	var unresolved *UnresolvedFieldError
	if errors.As(err, &unresolved) && unresolved.Key.Equal(key) {
		return nil, &UnresolvedFieldError{Key: key, Alias: r.alias}
	}
	return col, err
}

// beginRender checks the state machine before rendering. It returns the
// cached SQL when the relation has already been rendered.
func (r *relationBase) beginRender() (*sqlf.Fragment, error) {
	switch r.state {
	case stateDeclaring:
		return nil, &RenderInvariantError{Relation: r.alias, Reason: "rendered before resolution finished"}
	case stateRendered:
		if r.rendered != nil {
			return r.rendered.Clone(), nil
		}
	}
	return nil, nil
}

func (r *relationBase) finishRender(f *sqlf.Fragment) *sqlf.Fragment {
	r.state = stateRendered
	r.rendered = f.Clone()
	return f
}

// visibleColumns are the columns a consumer of r sees, hidden ones excluded.
func visibleColumns(r Relation) []RelationColumn {
	if s, ok := r.(*QuerySelect); ok {
		var out []RelationColumn
		for _, c := range s.columns {
			if !c.hidden {
				out = append(out, c)
			}
		}
		return out
	}
	return r.AllColumns().Columns()
}
