package lksql

import (
	"fmt"
	"strconv"

	"github.com/atlekbai/lksql/internal/fieldkey"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// ParameterDecl is a named parameter declared by PARAMETERS (...).
type ParameterDecl struct {
	Name    string
	Type    schema.JdbcType
	Default any
	// Required parameters have no default and must be bound.
	Required bool
}

// Query owns every relation built for one compilation and the state shared
// between them: aliases, parameters and collected diagnostics.
type Query struct {
	resolver  schema.Resolver
	dialect   sqlf.Dialect
	relations []Relation
	aliases   map[string]bool
	params    []*ParameterDecl
	errs      []error
	resolved  bool
}

func NewQuery(resolver schema.Resolver, dialect sqlf.Dialect) *Query {
	if dialect == nil {
		dialect = sqlf.Postgres
	}
	return &Query{
		resolver: resolver,
		dialect:  dialect,
		aliases:  make(map[string]bool),
	}
}

func (q *Query) Dialect() sqlf.Dialect     { return q.dialect }
func (q *Query) Resolver() schema.Resolver { return q.resolver }

// Relations lists every relation in creation order.
func (q *Query) Relations() []Relation {
	return append([]Relation(nil), q.relations...)
}

func (q *Query) builder() *SQLBuilder { return NewSQLBuilder(q.dialect) }

func (q *Query) legal(name string) string { return q.dialect.MakeLegalIdentifier(name) }

func (q *Query) addError(err error) {
	q.errs = append(q.errs, err)
}

// Errors returns the diagnostics collected so far.
func (q *Query) Errors() []error {
	return append([]error(nil), q.errs...)
}

// uniqueAlias reserves name, or name_1, name_2... when it is taken.
func (q *Query) uniqueAlias(name string) string {
	alias := name
	for i := 1; q.aliases[fieldkey.Fold(alias)]; i++ {
		alias = name + "_" + strconv.Itoa(i)
	}
	q.aliases[fieldkey.Fold(alias)] = true
	return alias
}

func (q *Query) releaseAlias(alias string) {
	if alias != "" {
		delete(q.aliases, fieldkey.Fold(alias))
	}
}

func (q *Query) register(r Relation) {
	if q.resolved {
		r.base().state = stateResolved
	}
	q.relations = append(q.relations, r)
}

// DeclareParameter adds a named parameter. Names are case-insensitive.
func (q *Query) DeclareParameter(p ParameterDecl) error {
	if q.Parameter(p.Name) != nil {
		return parseErrorf(-1, "duplicate parameter %s", p.Name)
	}
	decl := p
	q.params = append(q.params, &decl)
	return nil
}

func (q *Query) Parameter(name string) *ParameterDecl {
	for _, p := range q.params {
		if fieldkey.Fold(p.Name) == fieldkey.Fold(name) {
			return p
		}
	}
	return nil
}

// Parameters returns a copy of the declared parameters, never nil.
func (q *Query) Parameters() []ParameterDecl {
	out := make([]ParameterDecl, 0, len(q.params))
	for _, p := range q.params {
		out = append(out, *p)
	}
	return out
}

// Resolve ends the declare pass. Every relation moves to the resolved state
// and can be rendered; it fails when diagnostics were collected.
func (q *Query) Resolve() error {
	if len(q.errs) > 0 {
		return &CompileError{Errors: q.Errors()}
	}
	q.resolved = true
	for _, r := range q.relations {
		if b := r.base(); b.state == stateDeclaring {
			b.state = stateResolved
		}
	}
	return nil
}

// NewTable creates a base relation scanning def. name qualifies field
// references and seeds the SQL alias.
func (q *Query) NewTable(def *schema.TableDef, name string, parent Relation) *QueryTable {
	if name == "" {
		name = def.Name
	}
	t := &QueryTable{
		relationBase: relationBase{
			query:  q,
			name:   name,
			alias:  q.uniqueAlias(name),
			parent: parent,
		},
		def:     def,
		columns: newColumnMap(),
		visible: newColumnMap(),
		joins:   make(map[string]*lookupJoin),
	}
	for i := range def.Columns {
		c := &tableColumn{table: t, def: &def.Columns[i]}
		t.columns.put(c.def.Name, c)
		if !c.def.Hidden {
			t.visible.put(c.def.Name, c)
		}
	}
	q.register(t)
	return t
}

// NewSelect creates an empty select. The compiler fills in its FROM items
// and columns.
func (q *Query) NewSelect(name string, parent Relation) *QuerySelect {
	s := &QuerySelect{
		relationBase: relationBase{
			query:  q,
			name:   name,
			parent: parent,
		},
		byName:    make(map[string]*SelectColumn),
		pushdown:  make(map[string]*SelectColumn),
		fallbacks: make(map[RelationColumn]*fallbackJoin),
	}
	if name != "" {
		s.alias = q.uniqueAlias(name)
	} else {
		s.alias = q.uniqueAlias(fmt.Sprintf("q%d", len(q.relations)))
	}
	q.register(s)
	return s
}
