package schema

import (
	"fmt"
	"strings"

	"github.com/atlekbai/lksql/internal/fieldkey"
)

// QuoteIdent quotes a SQL identifier, escaping embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// JdbcType is the scalar type attached to expressions and columns.
type JdbcType string

const (
	TypeInteger JdbcType = "INTEGER"
	TypeFloat   JdbcType = "FLOAT"
	TypeVarchar JdbcType = "VARCHAR"
	TypeBoolean JdbcType = "BOOLEAN"
	TypeDate    JdbcType = "DATE"
	TypeNull    JdbcType = "NULL"
	TypeOther   JdbcType = "OTHER"
)

// IsNumeric reports whether arithmetic on t stays numeric.
func (t JdbcType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsUnknown is true for NULL and OTHER, the types that never force a
// disagreement during inference.
func (t JdbcType) IsUnknown() bool {
	return t == TypeNull || t == TypeOther || t == ""
}

var typeNames = map[string]JdbcType{
	"int":                         TypeInteger,
	"int2":                        TypeInteger,
	"int4":                        TypeInteger,
	"int8":                        TypeInteger,
	"integer":                     TypeInteger,
	"smallint":                    TypeInteger,
	"bigint":                      TypeInteger,
	"serial":                      TypeInteger,
	"bigserial":                   TypeInteger,
	"float":                       TypeFloat,
	"float4":                      TypeFloat,
	"float8":                      TypeFloat,
	"real":                        TypeFloat,
	"double":                      TypeFloat,
	"double precision":            TypeFloat,
	"decimal":                     TypeFloat,
	"numeric":                     TypeFloat,
	"varchar":                     TypeVarchar,
	"character varying":           TypeVarchar,
	"char":                        TypeVarchar,
	"character":                   TypeVarchar,
	"text":                        TypeVarchar,
	"string":                      TypeVarchar,
	"uuid":                        TypeVarchar,
	"entityid":                    TypeVarchar,
	"boolean":                     TypeBoolean,
	"bool":                        TypeBoolean,
	"bit":                         TypeBoolean,
	"date":                        TypeDate,
	"timestamp":                   TypeDate,
	"datetime":                    TypeDate,
	"timestamp without time zone": TypeDate,
	"timestamp with time zone":    TypeDate,
	"timestamptz":                 TypeDate,
	"null":                        TypeNull,
	"other":                       TypeOther,
}

// ParseTypeName maps a SQL or catalog type name onto a JdbcType.
func ParseTypeName(name string) (JdbcType, bool) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// ForeignKey describes the target of a lookup column. Column defaults to the
// target table's key column.
type ForeignKey struct {
	Schema string `yaml:"schema,omitempty"`
	Table  string `yaml:"table"`
	Column string `yaml:"column,omitempty"`
}

// TargetName is the name handed to a Resolver.
func (fk *ForeignKey) TargetName() string {
	if fk.Schema != "" {
		return fk.Schema + "." + fk.Table
	}
	return fk.Table
}

type ColumnDef struct {
	Name          string      `yaml:"name"`
	Type          JdbcType    `yaml:"type"`
	StorageColumn string      `yaml:"storage,omitempty"`
	Label         string      `yaml:"label,omitempty"`
	Description   string      `yaml:"description,omitempty"`
	IsKey         bool        `yaml:"key,omitempty"`
	Hidden        bool        `yaml:"hidden,omitempty"`
	FK            *ForeignKey `yaml:"fk,omitempty"`
	// DisplayField and SortField are dotted paths relative to the owning table.
	DisplayField string `yaml:"display_field,omitempty"`
	SortField    string `yaml:"sort_field,omitempty"`
}

// Storage returns the physical column name.
func (c *ColumnDef) Storage() string {
	if c.StorageColumn != "" {
		return c.StorageColumn
	}
	return c.Name
}

// DisplayKey is DisplayField as a FieldKey, empty when unset.
func (c *ColumnDef) DisplayKey() fieldkey.FieldKey { return fieldkey.FromString(c.DisplayField) }

// SortKey is SortField as a FieldKey, empty when unset.
func (c *ColumnDef) SortKey() fieldkey.FieldKey { return fieldkey.FromString(c.SortField) }

type TableDef struct {
	Name         string `yaml:"name"`
	Schema       string `yaml:"schema,omitempty"`
	StorageTable string `yaml:"storage,omitempty"`
	// ContainerColumn names the column holding the owning container id.
	// Tables without one are not container-filterable.
	ContainerColumn string      `yaml:"container,omitempty"`
	Description     string      `yaml:"description,omitempty"`
	Columns         []ColumnDef `yaml:"columns"`

	byName map[string]*ColumnDef
}

// Init validates the definition and builds the column index. It must be
// called before the table is handed to the compiler; Cache does this.
func (t *TableDef) Init() error {
	if t.Name == "" {
		return fmt.Errorf("table definition without name")
	}
	t.byName = make(map[string]*ColumnDef, len(t.Columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Name == "" {
			return fmt.Errorf("table %s: column %d has no name", t.Name, i)
		}
		if c.Type == "" {
			c.Type = TypeOther
		} else {
			typ, ok := ParseTypeName(string(c.Type))
			if !ok {
				return fmt.Errorf("table %s: column %s: unknown type %q", t.Name, c.Name, c.Type)
			}
			c.Type = typ
		}
		key := fieldkey.Fold(c.Name)
		if _, dup := t.byName[key]; dup {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		t.byName[key] = c
	}
	if t.ContainerColumn != "" && t.Column(t.ContainerColumn) == nil {
		return fmt.Errorf("table %s: container column %s is not defined", t.Name, t.ContainerColumn)
	}
	return nil
}

// Column finds a column by name, ignoring case.
func (t *TableDef) Column(name string) *ColumnDef {
	return t.byName[fieldkey.Fold(name)]
}

// KeyColumn returns the first key column, or the first column when none is
// marked.
func (t *TableDef) KeyColumn() *ColumnDef {
	for i := range t.Columns {
		if t.Columns[i].IsKey {
			return &t.Columns[i]
		}
	}
	if len(t.Columns) > 0 {
		return &t.Columns[0]
	}
	return nil
}

// Container returns the container column or nil.
func (t *TableDef) Container() *ColumnDef {
	if t.ContainerColumn == "" {
		return nil
	}
	return t.Column(t.ContainerColumn)
}

// QualifiedName is the catalog name, schema-qualified when a schema is set.
func (t *TableDef) QualifiedName() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// TableName returns the fully qualified, quoted storage table name.
func (t *TableDef) TableName() string {
	storage := t.StorageTable
	if storage == "" {
		storage = t.Name
	}
	if t.Schema != "" {
		return QuoteIdent(t.Schema) + "." + QuoteIdent(storage)
	}
	return QuoteIdent(storage)
}

// Resolver is the schema lookup capability handed to the compiler.
type Resolver interface {
	Resolve(name string) (*TableDef, bool)
}
