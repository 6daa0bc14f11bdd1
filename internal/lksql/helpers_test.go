package lksql

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

var testContainer = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func loadCatalog(t *testing.T) *schema.Cache {
	t.Helper()
	c, err := schema.LoadFile(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	return c
}

func mustTable(t *testing.T, c *schema.Cache, name string) *schema.TableDef {
	t.Helper()
	def, ok := c.Resolve(name)
	require.True(t, ok, "table %s", name)
	return def
}

func mustCompile(t *testing.T, text string) *TableInfo {
	t.Helper()
	ti, err := NewCompiler(loadCatalog(t), sqlf.Postgres).Compile(text, "query")
	require.NoError(t, err, text)
	return ti
}

func compileErrors(t *testing.T, text string) []error {
	t.Helper()
	_, err := NewCompiler(loadCatalog(t), sqlf.Postgres).Compile(text, "query")
	require.Error(t, err, text)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	return cerr.Errors
}

func renderSQL(t *testing.T, ti *TableInfo) string {
	t.Helper()
	sql, err := ti.SQL()
	require.NoError(t, err)
	return sql.SQL()
}

// subqueryOf returns the first expression subquery of the root select.
func subqueryOf(t *testing.T, ti *TableInfo) *QuerySelect {
	t.Helper()
	root, ok := ti.Relation().(*QuerySelect)
	require.True(t, ok)
	require.NotEmpty(t, root.subqueries)
	sub, ok := root.subqueries[0].(*QuerySelect)
	require.True(t, ok)
	return sub
}
