package query

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/lksql"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

var folder = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func compile(t *testing.T, d sqlf.Dialect, text string) *lksql.TableInfo {
	t.Helper()
	c, err := schema.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)
	ti, err := lksql.NewCompiler(c, d).Compile(text, "q")
	require.NoError(t, err)
	require.NoError(t, ti.SetContainerFilter(container.Current{ID: folder}))
	return ti
}

func TestBuildList(t *testing.T) {
	ti := compile(t, sqlf.Postgres, "SELECT Name, Study FROM Samples")
	params, err := ParseParams(ti, ParamsInput{
		Select:  []string{"name"},
		Filters: map[string]string{"Study": "in.1,2", "Name": "ilike.s%"},
		Order:   []string{"Name.desc"},
		Limit:   10,
		Offset:  5,
	})
	require.NoError(t, err)

	sql, args, err := NewBuilder(ti).BuildList(params)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT _v."Name" FROM (SELECT "Samples".name AS "Name", "Samples".study AS "Study"`+"\n"+
			`FROM "core"."samples" "Samples"`+"\n"+
			`WHERE "Samples".container = $1) _v WHERE _v."Name" ILIKE $2 AND _v."Study" IN ($3,$4) ORDER BY _v."Name" DESC LIMIT 10 OFFSET 5`,
		sql)
	assert.Equal(t, []any{folder.String(), "s%", int64(1), int64(2)}, args)
}

func TestBuildCount(t *testing.T) {
	ti := compile(t, sqlf.SQLite, "SELECT Name, Study FROM Samples")
	params, err := ParseParams(ti, ParamsInput{Filters: map[string]string{"Study": "eq.1", "Name": "ilike.S%"}})
	require.NoError(t, err)

	sql, args, err := NewBuilder(ti).BuildCount(params)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT "Samples".name AS "Name", "Samples".study AS "Study"`+"\n"+
			`FROM "core"."samples" "Samples"`+"\n"+
			`WHERE "Samples".container = ?) _v WHERE _v."Name" LIKE ? AND _v."Study" = ?`,
		sql)
	assert.Equal(t, []any{folder.String(), "S%", int64(1)}, args)
}

func TestBuildListBindsNamedParameters(t *testing.T) {
	ti := compile(t, sqlf.Postgres, "PARAMETERS (MinValue FLOAT) SELECT RowId, Value FROM Results WHERE Value >= MinValue")
	params, err := ParseParams(ti, ParamsInput{
		Filters: map[string]string{"Value": "is.not_null"},
		Values:  map[string]any{"MinValue": 1.5},
	})
	require.NoError(t, err)

	sql, args, err := NewBuilder(ti).BuildList(params)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT _v."RowId", _v."Value" FROM (SELECT "Results".rowid AS "RowId", "Results".value AS "Value"`+"\n"+
			`FROM "core"."results" "Results"`+"\n"+
			`WHERE ("Results".value >= CAST($1 AS DOUBLE PRECISION))) _v WHERE _v."Value" IS NOT NULL LIMIT 50`,
		sql)
	assert.Equal(t, []any{1.5}, args)

	params.Values = nil
	_, _, err = NewBuilder(ti).BuildList(params)
	require.ErrorIs(t, err, lksql.ErrNamedParameterNotProvided)
}

func TestBuildListSkipsHiddenColumns(t *testing.T) {
	ti := compile(t, sqlf.Postgres, "SELECT Name, Container FROM Samples")
	params, err := ParseParams(ti, ParamsInput{})
	require.NoError(t, err)
	sql, _, err := NewBuilder(ti).BuildList(params)
	require.NoError(t, err)
	assert.Contains(t, sql, `SELECT _v."Name" FROM`)

	params, err = ParseParams(ti, ParamsInput{Select: []string{"Container"}})
	require.NoError(t, err)
	sql, _, err = NewBuilder(ti).BuildList(params)
	require.NoError(t, err)
	assert.Contains(t, sql, `SELECT _v."Container" FROM`, "explicit selection may read hidden columns")
}

func TestParseParamsErrors(t *testing.T) {
	ti := compile(t, sqlf.Postgres, "SELECT a.Name, b.Name AS other, a.RowId FROM Samples a INNER JOIN Tags b ON a.RowId = b.RowId")

	tests := []struct {
		name string
		in   ParamsInput
	}{
		{"unknown select", ParamsInput{Select: []string{"Nope"}}},
		{"unknown order", ParamsInput{Order: []string{"Nope"}}},
		{"bad direction", ParamsInput{Order: []string{"Name.sideways"}}},
		{"unknown filter", ParamsInput{Filters: map[string]string{"Nope": "eq.1"}}},
		{"bad operator", ParamsInput{Filters: map[string]string{"Name": "approx.1"}}},
		{"bad is", ParamsInput{Filters: map[string]string{"Name": "is.maybe"}}},
		{"missing dot", ParamsInput{Filters: map[string]string{"Name": "eq"}}},
		{"negative limit", ParamsInput{Limit: -1}},
		{"negative offset", ParamsInput{Offset: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParams(ti, tt.in)
			require.Error(t, err)
		})
	}
}

func TestTypedFilterValues(t *testing.T) {
	ti := compile(t, sqlf.Postgres, "SELECT RowId, Value FROM Results")

	params, err := ParseParams(ti, ParamsInput{Filters: map[string]string{"RowId": "gt.abc"}})
	require.NoError(t, err)
	_, _, err = NewBuilder(ti).BuildList(params)
	require.ErrorContains(t, err, "not an integer")

	params, err = ParseParams(ti, ParamsInput{Filters: map[string]string{"Value": "lte.2.5"}, Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, params.Limit)
	_, args, err := NewBuilder(ti).BuildList(params)
	require.NoError(t, err)
	assert.Equal(t, []any{2.5}, args)
	assert.Equal(t, "Value=lte.2.5 limit=1000", Describe(params))
}
