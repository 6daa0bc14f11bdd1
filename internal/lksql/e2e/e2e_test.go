package e2e_test

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/lksql"
	"github.com/atlekbai/lksql/internal/query"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// Stable container ids for predictable SQL and data.
var (
	folderA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	folderB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

var (
	pgCatalog     *schema.Cache
	sqliteCatalog *schema.Cache
)

func TestMain(m *testing.M) {
	var err error
	if pgCatalog, err = buildCatalog("core"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if sqliteCatalog, err = buildCatalog("main"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// buildCatalog describes Studies <- Samples <- Results plus an unrelated
// Tags table, stored in the given schema.
func buildCatalog(schemaName string) (*schema.Cache, error) {
	studies := &schema.TableDef{
		Name: "Studies", Schema: schemaName, StorageTable: "studies", ContainerColumn: "Container",
		Columns: []schema.ColumnDef{
			{Name: "RowId", Type: "integer", StorageColumn: "id", IsKey: true},
			{Name: "Label", Type: "varchar", StorageColumn: "label"},
			{Name: "Container", Type: "entityid", StorageColumn: "container", Hidden: true},
		},
	}
	samples := &schema.TableDef{
		Name: "Samples", Schema: schemaName, StorageTable: "samples", ContainerColumn: "Container",
		Columns: []schema.ColumnDef{
			{Name: "RowId", Type: "integer", StorageColumn: "id", IsKey: true},
			{Name: "Name", Type: "varchar", StorageColumn: "name"},
			{Name: "Study", Type: "integer", StorageColumn: "study_id", FK: &schema.ForeignKey{Schema: schemaName, Table: "Studies"}, DisplayField: "Study.Label"},
			{Name: "Container", Type: "entityid", StorageColumn: "container", Hidden: true},
		},
	}
	results := &schema.TableDef{
		Name: "Results", Schema: schemaName, StorageTable: "results",
		Columns: []schema.ColumnDef{
			{Name: "RowId", Type: "integer", StorageColumn: "id", IsKey: true},
			{Name: "Sample", Type: "integer", StorageColumn: "sample_id", FK: &schema.ForeignKey{Schema: schemaName, Table: "Samples"}},
			{Name: "Value", Type: "float", StorageColumn: "value"},
		},
	}
	tags := &schema.TableDef{
		Name: "Tags", Schema: schemaName, StorageTable: "tags",
		Columns: []schema.ColumnDef{
			{Name: "RowId", Type: "integer", StorageColumn: "id", IsKey: true},
			{Name: "Name", Type: "varchar", StorageColumn: "name"},
		},
	}
	return schema.NewCacheFromTables(studies, samples, results, tags)
}

// compile runs Parse → Compile → SetContainerFilter for one query.
func compile(t *testing.T, c *schema.Cache, d sqlf.Dialect, text string) *lksql.TableInfo {
	t.Helper()
	ti, err := lksql.NewCompiler(c, d).Compile(text, "query")
	if err != nil {
		t.Fatalf("compile %q: %v", text, err)
	}
	if err := ti.SetContainerFilter(container.Current{ID: folderA}); err != nil {
		t.Fatalf("container filter %q: %v", text, err)
	}
	return ti
}

// --- Golden SQL (PostgreSQL) ---

func TestGoldenSQL(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values map[string]any
	}{
		{"single_column", "SELECT Name FROM Samples", nil},
		{"lookup_chain", "SELECT RowId, Sample.Name, Sample.Study.Label FROM Results ORDER BY RowId", nil},
		{"self_join_siblings", "SELECT * FROM Samples a INNER JOIN Tags b ON a.RowId = b.RowId", nil},
		{"grouped_lookup", "SELECT Sample.Name AS SampleName, COUNT(*) AS n, AVG(Value) AS mean FROM Results GROUP BY Sample.Name HAVING COUNT(*) > 1", nil},
		{"lateral", "SELECT s.Name, c.n FROM Samples s CROSS JOIN (SELECT COUNT(*) AS n FROM Results r WHERE r.Sample = s.RowId) c", nil},
		{"union_order", "SELECT Name FROM Samples UNION ALL SELECT Name FROM Tags ORDER BY Name LIMIT 5", nil},
		{"parameters", "PARAMETERS (MinValue FLOAT DEFAULT 0.5) SELECT RowId, Value FROM Results WHERE Value >= MinValue", nil},
		{"nullable_join", "SELECT s.Name, t.Label FROM Samples s LEFT JOIN Studies t ON s.Study = t.RowId", nil},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := compile(t, pgCatalog, sqlf.Postgres, tt.text)
			frag, err := ti.SQL()
			require.NoError(t, err)
			args, err := ti.Bind(frag.Args(), tt.values)
			require.NoError(t, err)
			text, err := sq.Dollar.ReplacePlaceholders(frag.SQL())
			require.NoError(t, err)

			var b strings.Builder
			b.WriteString(text)
			b.WriteString("\n-- args: ")
			b.WriteString(fmt.Sprint(args))
			b.WriteString("\n")
			g.Assert(t, tt.name, []byte(b.String()))
		})
	}
}

// --- Execution against SQLite ---

const fixture = `
CREATE TABLE studies (id INTEGER PRIMARY KEY, label TEXT, container TEXT);
CREATE TABLE samples (id INTEGER PRIMARY KEY, name TEXT, study_id INTEGER, container TEXT);
CREATE TABLE results (id INTEGER PRIMARY KEY, sample_id INTEGER, value REAL);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT);

INSERT INTO studies VALUES (1, 'Alpha', '%[1]s'), (2, 'Beta', '%[2]s');
INSERT INTO samples VALUES (1, 'S1', 1, '%[1]s'), (2, 'S2', 2, '%[1]s'), (3, 'S3', 1, '%[2]s');
INSERT INTO results VALUES (1, 1, 1.5), (2, 1, 2.5), (3, 2, 4.0), (4, 3, 9.0);
INSERT INTO tags VALUES (1, 'red'), (2, 'blue');
`

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(fmt.Sprintf(fixture, folderA, folderB), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

// run executes the compiled view and returns every cell as text, "NULL"
// for nulls.
func run(t *testing.T, db *sql.DB, ti *lksql.TableInfo, values map[string]any) [][]string {
	t.Helper()
	frag, err := ti.SQL()
	require.NoError(t, err)
	args, err := ti.Bind(frag.Args(), values)
	require.NoError(t, err)

	rows, err := db.Query(frag.SQL(), args...)
	require.NoError(t, err, frag.SQL())
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	var out [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		require.NoError(t, rows.Scan(dest...))
		row := make([]string, len(cols))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			} else {
				row[i] = "NULL"
			}
		}
		out = append(out, row)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestExecuteOnSQLite(t *testing.T) {
	db := openDB(t)

	tests := []struct {
		name   string
		text   string
		values map[string]any
		want   [][]string
	}{
		{
			name: "lookups respect the container of each target",
			text: "SELECT RowId, Sample.Name, Sample.Study.Label FROM Results ORDER BY RowId",
			want: [][]string{
				{"1", "S1", "Alpha"},
				{"2", "S1", "Alpha"},
				{"3", "S2", "NULL"},
				{"4", "NULL", "NULL"},
			},
		},
		{
			name: "grouped lookup",
			text: "SELECT Sample.Name AS SampleName, COUNT(*) AS n FROM Results GROUP BY Sample.Name HAVING COUNT(*) > 1",
			want: [][]string{{"S1", "2"}},
		},
		{
			name: "nullable side filtered before the join",
			text: "SELECT s.Name, t.Label FROM Samples s LEFT JOIN Studies t ON s.Study = t.RowId ORDER BY s.Name",
			want: [][]string{{"S1", "Alpha"}, {"S2", "NULL"}},
		},
		{
			name: "correlated scalar subquery",
			text: "SELECT s.Name, (SELECT COUNT(*) FROM Results r WHERE r.Sample = s.RowId) AS total FROM Samples s ORDER BY s.Name",
			want: [][]string{{"S1", "2"}, {"S2", "1"}},
		},
		{
			name: "union",
			text: "SELECT Name FROM Samples UNION SELECT Label FROM Studies ORDER BY Name",
			want: [][]string{{"Alpha"}, {"S1"}, {"S2"}},
		},
		{
			name:   "bound parameter",
			text:   "PARAMETERS (MinValue FLOAT DEFAULT 2) SELECT RowId FROM Results WHERE Value >= MinValue ORDER BY RowId",
			values: map[string]any{"MinValue": 3.0},
			want:   [][]string{{"3"}, {"4"}},
		},
		{
			name: "default parameter",
			text: "PARAMETERS (MinValue FLOAT DEFAULT 2) SELECT RowId FROM Results WHERE Value >= MinValue ORDER BY RowId",
			want: [][]string{{"2"}, {"3"}, {"4"}},
		},
		{
			name: "pushdown through derived table",
			text: "SELECT x.RowId, x.Sample.Name FROM (SELECT RowId, Sample FROM Results WHERE Value < 5) x ORDER BY x.RowId",
			want: [][]string{{"1", "S1"}, {"2", "S1"}, {"3", "S2"}},
		},
		{
			name: "fallback lookup through union",
			text: "SELECT u.Sample.Name FROM (SELECT Sample FROM Results WHERE RowId = 1 UNION SELECT Sample FROM Results WHERE RowId = 4) u ORDER BY u.Sample",
			want: [][]string{{"S1"}, {"NULL"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := compile(t, sqliteCatalog, sqlf.SQLite, tt.text)
			assert.Equal(t, tt.want, run(t, db, ti, tt.values))
		})
	}
}

func TestFromSQLEmbedsInOuterQuery(t *testing.T) {
	db := openDB(t)
	ti := compile(t, sqliteCatalog, sqlf.SQLite, "SELECT Name FROM Samples")
	from, err := ti.FromSQL("v")
	require.NoError(t, err)

	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM "+from.SQL(), from.Args()...).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "S3 lives in another container")
}

func TestViewQueriesOnSQLite(t *testing.T) {
	db := openDB(t)
	ti := compile(t, sqliteCatalog, sqlf.SQLite,
		"PARAMETERS (MinValue FLOAT DEFAULT 0) SELECT RowId, Sample.Name AS SampleName, Value FROM Results WHERE Value >= MinValue")

	params, err := query.ParseParams(ti, query.ParamsInput{
		Select:  []string{"RowId", "SampleName"},
		Filters: map[string]string{"SampleName": "ilike.s%"},
		Order:   []string{"RowId.desc"},
		Limit:   2,
		Values:  map[string]any{"MinValue": 2.0},
	})
	require.NoError(t, err)
	b := query.NewBuilder(ti)

	listSQL, listArgs, err := b.BuildList(params)
	require.NoError(t, err)
	rows, err := db.Query(listSQL, listArgs...)
	require.NoError(t, err, listSQL)
	defer rows.Close()
	var got [][]any
	for rows.Next() {
		var id int
		var name string
		require.NoError(t, rows.Scan(&id, &name))
		got = append(got, []any{id, name})
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][]any{{3, "S2"}, {2, "S1"}}, got)

	countSQL, countArgs, err := b.BuildCount(params)
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow(countSQL, countArgs...).Scan(&n), countSQL)
	assert.Equal(t, 2, n)
}
