package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlekbai/lksql/internal/fieldkey"
)

const loadQuery = `
SELECT
	c.table_schema, c.table_name, c.column_name, c.data_type,
	pk.column_name IS NOT NULL AS is_key,
	fk.foreign_table_schema, fk.foreign_table_name, fk.foreign_column_name
FROM information_schema.columns c
LEFT JOIN (
	SELECT kcu.table_schema, kcu.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
) pk ON pk.table_schema = c.table_schema AND pk.table_name = c.table_name AND pk.column_name = c.column_name
LEFT JOIN (
	SELECT kcu.table_schema, kcu.table_name, kcu.column_name,
		ccu.table_schema AS foreign_table_schema,
		ccu.table_name AS foreign_table_name,
		ccu.column_name AS foreign_column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON ccu.constraint_name = tc.constraint_name AND ccu.constraint_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
) fk ON fk.table_schema = c.table_schema AND fk.table_name = c.table_name AND fk.column_name = c.column_name
WHERE c.table_schema = ANY($1)
ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

// containerColumnName is the conventional column carrying the container id.
const containerColumnName = "container"

// Cache holds the table catalog. It implements Resolver: names resolve either
// schema-qualified ("core.samples") or bare when the bare name is unique.
type Cache struct {
	mu        sync.RWMutex
	qualified map[string]*TableDef
	bare      map[string][]*TableDef
}

func NewCache() *Cache {
	return &Cache{
		qualified: make(map[string]*TableDef),
		bare:      make(map[string][]*TableDef),
	}
}

// NewCacheFromTables builds a cache from in-memory definitions.
func NewCacheFromTables(tables ...*TableDef) (*Cache, error) {
	c := NewCache()
	if err := c.Replace(tables); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads table, column, key and foreign-key metadata of the given
// database schemas from information_schema and replaces the catalog.
func (c *Cache) Load(ctx context.Context, pool *pgxpool.Pool, schemas ...string) error {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	rows, err := pool.Query(ctx, loadQuery, schemas)
	if err != nil {
		return fmt.Errorf("schema cache load: %w", err)
	}
	defer rows.Close()

	var tables []*TableDef
	index := make(map[string]*TableDef)

	for rows.Next() {
		var (
			tSchema, tName, cName, dataType string
			isKey                           bool
			fSchema, fTable, fColumn        *string
		)
		if err := rows.Scan(&tSchema, &tName, &cName, &dataType, &isKey, &fSchema, &fTable, &fColumn); err != nil {
			return fmt.Errorf("schema cache scan: %w", err)
		}

		key := tSchema + "." + tName
		table, ok := index[key]
		if !ok {
			table = &TableDef{Name: tName, Schema: tSchema}
			index[key] = table
			tables = append(tables, table)
		}

		typ, ok := ParseTypeName(dataType)
		if !ok {
			typ = TypeOther
		}
		col := ColumnDef{Name: cName, Type: typ, IsKey: isKey}
		if fTable != nil {
			col.FK = &ForeignKey{Table: *fTable}
			if fSchema != nil {
				col.FK.Schema = *fSchema
			}
			if fColumn != nil {
				col.FK.Column = *fColumn
			}
		}
		if strings.EqualFold(cName, containerColumnName) {
			table.ContainerColumn = cName
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema cache rows: %w", err)
	}

	return c.Replace(tables)
}

// Replace swaps the catalog for the given tables, initialising each.
func (c *Cache) Replace(tables []*TableDef) error {
	qualified := make(map[string]*TableDef, len(tables))
	bare := make(map[string][]*TableDef, len(tables))
	for _, t := range tables {
		if err := t.Init(); err != nil {
			return fmt.Errorf("schema cache: %w", err)
		}
		q := fieldkey.Fold(t.QualifiedName())
		if _, dup := qualified[q]; dup {
			return fmt.Errorf("schema cache: duplicate table %s", t.QualifiedName())
		}
		qualified[q] = t
		b := fieldkey.Fold(t.Name)
		bare[b] = append(bare[b], t)
	}

	c.mu.Lock()
	c.qualified = qualified
	c.bare = bare
	c.mu.Unlock()
	return nil
}

// Resolve implements Resolver.
func (c *Cache) Resolve(name string) (*TableDef, bool) {
	key := fieldkey.Fold(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.qualified[key]; ok {
		return t, true
	}
	if ts := c.bare[key]; len(ts) == 1 {
		return ts[0], true
	}
	return nil, false
}

// Tables returns every table ordered by qualified name.
func (c *Cache) Tables() []*TableDef {
	c.mu.RLock()
	out := make([]*TableDef, 0, len(c.qualified))
	for _, t := range c.qualified {
		out = append(out, t)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

// TableCount returns the number of loaded tables.
func (c *Cache) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.qualified)
}
