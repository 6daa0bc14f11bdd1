package sqlf

import (
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/lksql/internal/schema"
)

// Dialect captures what the renderers need to know about the backing
// database.
type Dialect interface {
	Name() string
	// QuoteIdentifier always quotes.
	QuoteIdentifier(name string) string
	// MakeLegalIdentifier quotes only when the name would not survive bare.
	MakeLegalIdentifier(name string) string
	QuoteString(s string) string
	BooleanLiteral(b bool) string
	SQLTypeName(t schema.JdbcType) string
	SupportsLateral() bool
	// Placeholder converts "?" markers for the driver.
	Placeholder() sq.PlaceholderFormat
}

var simpleIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var reserved = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"both": true, "case": true, "cast": true, "check": true, "column": true,
	"constraint": true, "create": true, "cross": true, "current_date": true,
	"current_time": true, "current_timestamp": true, "current_user": true,
	"default": true, "delete": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "exists": true, "false": true,
	"fetch": true, "for": true, "foreign": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "in": true, "inner": true,
	"insert": true, "intersect": true, "into": true, "is": true, "join": true,
	"lateral": true, "leading": true, "left": true, "like": true, "limit": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true, "or": true,
	"order": true, "outer": true, "primary": true, "references": true,
	"right": true, "select": true, "session_user": true, "some": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "update": true, "user": true, "using": true,
	"values": true, "when": true, "where": true, "window": true, "with": true,
}

// IsReserved reports whether word needs quoting as an identifier.
func IsReserved(word string) bool {
	return reserved[strings.ToLower(word)]
}

type postgres struct{}

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = postgres{}

func (postgres) Name() string { return "postgres" }

func (postgres) QuoteIdentifier(name string) string { return schema.QuoteIdent(name) }

func (d postgres) MakeLegalIdentifier(name string) string {
	if simpleIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return d.QuoteIdentifier(name)
}

func (postgres) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (postgres) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (postgres) SQLTypeName(t schema.JdbcType) string {
	switch t {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (postgres) SupportsLateral() bool { return true }

func (postgres) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

type sqlite struct{ postgres }

// SQLite is used to execute compiled SQL in tests and local tooling.
var SQLite Dialect = sqlite{}

func (sqlite) Name() string { return "sqlite" }

func (sqlite) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (sqlite) SQLTypeName(t schema.JdbcType) string {
	switch t {
	case schema.TypeInteger, schema.TypeBoolean:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (sqlite) SupportsLateral() bool { return false }

func (sqlite) Placeholder() sq.PlaceholderFormat { return sq.Question }

// ByName returns a dialect by its Name.
func ByName(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite, true
	}
	return nil, false
}
