package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogPath = "testdata/catalog.yaml"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCompileText(t *testing.T) {
	out, _, err := execute(t, "compile", "-s", catalogPath,
		"--sql", "SELECT Name FROM Samples",
		"--container", "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT \"Samples\".name AS \"Name\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = $1\n"+
			"-- args: [11111111-1111-1111-1111-111111111111]\n",
		out)
}

func TestCompileJSONWithParameters(t *testing.T) {
	out, _, err := execute(t, "compile", "-s", catalogPath, "-d", "sqlite", "--format", "json",
		"--sql", "PARAMETERS (MinValue FLOAT) SELECT RowId FROM Results WHERE Value >= MinValue",
		"-p", "minvalue=2.5")
	require.NoError(t, err)

	var got CompileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "query", got.Name)
	assert.Equal(t, "SELECT \"Results\".rowid AS \"RowId\"\nFROM \"core\".\"results\" \"Results\"\nWHERE (\"Results\".value >= CAST(? AS REAL))", got.SQL)
	assert.Equal(t, []any{2.5}, got.Args)
}

func TestCompileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT Label FROM Studies"), 0o644))

	out, _, err := execute(t, "compile", "-s", catalogPath, path, "--alias", "v")
	require.NoError(t, err)
	assert.Equal(t, "(SELECT \"Studies\".label AS \"Label\"\nFROM \"core\".\"studies\" \"Studies\") v\n", out)
}

func TestCompileDiagnostics(t *testing.T) {
	_, errOut, err := execute(t, "compile", "-s", catalogPath, "--sql", "SELECT Nope, Bogus FROM Samples")
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(errOut, "error: unresolved field"))
	assert.Contains(t, errOut, "2 diagnostic(s)")
}

func TestCompileUsageErrors(t *testing.T) {
	tests := [][]string{
		{"compile", "--sql", "SELECT Name FROM Samples"},
		{"compile", "-s", catalogPath},
		{"compile", "-s", catalogPath, "--sql", "SELECT Name FROM Samples", "extra.sql"},
		{"compile", "-s", catalogPath, "--format", "xml", "--sql", "SELECT Name FROM Samples"},
		{"compile", "-s", catalogPath, "-d", "oracle", "--sql", "SELECT Name FROM Samples"},
		{"compile", "-s", catalogPath, "--container-filter", "Current", "--sql", "SELECT Name FROM Samples"},
		{"compile", "-s", catalogPath, "--sql", "PARAMETERS (x INTEGER) SELECT Name FROM Samples WHERE RowId = x"},
	}
	for _, args := range tests {
		_, _, err := execute(t, args...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestColumns(t *testing.T) {
	out, _, err := execute(t, "columns", "-s", catalogPath,
		"--sql", "SELECT Sample, Sample.Name AS SampleName, Value FROM Results")
	require.NoError(t, err)
	assert.Contains(t, out, "SampleName")
	assert.Contains(t, out, "core.Samples")
	assert.Contains(t, out, "Results.Sample.Name")
	assert.Contains(t, out, "3 column(s)")

	out, _, err = execute(t, "columns", "-s", catalogPath, "--format", "json",
		"--sql", "SELECT Sample, Sample.Name AS SampleName FROM Results")
	require.NoError(t, err)
	var cols []ColumnOutput
	require.NoError(t, json.Unmarshal([]byte(out), &cols))
	require.Len(t, cols, 2)
	assert.Equal(t, ColumnOutput{
		Name: "Sample", Type: "INTEGER", Label: "Sample", Lookup: "core.Samples", DisplayField: "SampleName", Source: "Results.Sample",
	}, cols[0])
	assert.Equal(t, "Sample Name", cols[1].Label)
}

func TestTables(t *testing.T) {
	out, _, err := execute(t, "tables", "-s", catalogPath)
	require.NoError(t, err)
	for _, name := range []string{"core.Results", "core.Samples", "core.Studies", "core.Tags"} {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "core.Results"), strings.Index(out, "core.Tags"))
	assert.Contains(t, out, "4 table(s)")
}
