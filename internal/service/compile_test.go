package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/api/annotations"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/server"
	"github.com/atlekbai/lksql/internal/service"
)

const catalog = `
tables:
  - name: Studies
    schema: core
    storage: studies
    container: Container
    columns:
      - {name: RowId, type: integer, key: true, storage: rowid}
      - {name: Label, type: varchar, storage: label}
      - {name: Container, type: entityid, storage: container, hidden: true}
  - name: Samples
    schema: core
    storage: samples
    container: Container
    columns:
      - {name: RowId, type: integer, key: true, storage: rowid}
      - {name: Name, type: varchar, storage: name, label: Sample Name}
      - {name: Study, type: integer, storage: study, fk: {schema: core, table: Studies}, display_field: Study.Label}
      - {name: Container, type: entityid, storage: container, hidden: true}
`

const folder = "11111111-1111-1111-1111-111111111111"

type clients struct {
	compile *connect.Client[structpb.Struct, structpb.Struct]
	batch   *connect.Client[structpb.Struct, structpb.Struct]
	logs    *bytes.Buffer
}

func newCache(t *testing.T) *schema.Cache {
	t.Helper()
	cache := schema.NewCache()
	require.NoError(t, cache.LoadYAML([]byte(catalog)))
	return cache
}

func newClients(t *testing.T) clients {
	t.Helper()
	cache := newCache(t)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mux := server.NewMux(
		[]server.ConnectService{service.NewCompileService(cache, 2, logger)},
		server.RecoverInterceptor(logger),
		server.LoggingInterceptor(logger),
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return clients{
		compile: connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+service.CompileProcedure),
		batch:   connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+service.CompileBatchProcedure),
		logs:    logs,
	}
}

func call(t *testing.T, c *connect.Client[structpb.Struct, structpb.Struct], msg map[string]any) (map[string]any, error) {
	t.Helper()
	st, err := structpb.NewStruct(msg)
	require.NoError(t, err)
	resp, err := c.CallUnary(context.Background(), connect.NewRequest(st))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

func TestCompile(t *testing.T) {
	c := newClients(t)

	out, err := call(t, c.compile, map[string]any{
		"sql":              "SELECT Name, Study FROM Samples",
		"name":             "samples_view",
		"container_filter": "Current",
		"container":        folder,
	})
	require.NoError(t, err)

	assert.Equal(t, "samples_view", out["name"])
	assert.Equal(t, "postgres", out["dialect"])
	assert.Equal(t,
		"SELECT \"Samples\".name AS \"Name\", \"Samples\".study AS \"Study\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = $1",
		out["sql"])
	assert.Equal(t, []any{folder}, out["args"])

	cols := out["columns"].([]any)
	require.Len(t, cols, 2)
	name := cols[0].(map[string]any)
	assert.Equal(t, "Name", name["name"])
	assert.Equal(t, "VARCHAR", name["type"])
	assert.Equal(t, "Sample Name", name["label"])
	assert.Equal(t, "Samples.Name", name["source"])
	study := cols[1].(map[string]any)
	assert.Equal(t, "core.Studies", study["lookup"])
	assert.NotContains(t, study, "display_field", "Study.Label is not part of the view")

	assert.Contains(t, c.logs.String(), service.CompileProcedure)
}

func TestCompileSQLiteAlias(t *testing.T) {
	c := newClients(t)

	out, err := call(t, c.compile, map[string]any{
		"sql":       "SELECT Name FROM Samples",
		"dialect":   "sqlite",
		"container": folder,
		"alias":     "v",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"(SELECT \"Samples\".name AS \"Name\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = ?) v",
		out["sql"])
}

func TestCompileParameters(t *testing.T) {
	c := newClients(t)
	text := "PARAMETERS (Minimum INTEGER) SELECT Name FROM Samples WHERE RowId >= Minimum"

	_, err := call(t, c.compile, map[string]any{"sql": text})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	out, err := call(t, c.compile, map[string]any{
		"sql":        text,
		"parameters": map[string]any{"minimum": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, out["args"])

	params := out["parameters"].([]any)
	require.Len(t, params, 1)
	p := params[0].(map[string]any)
	assert.Equal(t, "Minimum", p["name"])
	assert.Equal(t, "INTEGER", p["type"])
	assert.Equal(t, true, p["required"])
}

func TestCompileDiagnostics(t *testing.T) {
	c := newClients(t)

	_, err := call(t, c.compile, map[string]any{"sql": "SELECT Nope, Bogus FROM Samples"})
	require.Error(t, err)
	var cerr *connect.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connect.CodeInvalidArgument, cerr.Code())

	require.Len(t, cerr.Details(), 1)
	value, err := cerr.Details()[0].Value()
	require.NoError(t, err)
	detail, ok := value.(*structpb.Struct)
	require.True(t, ok)
	diags := detail.AsMap()["diagnostics"].([]any)
	require.Len(t, diags, 2)
	first := diags[0].(map[string]any)
	assert.Equal(t, "unresolved", first["kind"])
	assert.Equal(t, "Nope", first["field"])
}

func TestCompileRejectsBadRequests(t *testing.T) {
	c := newClients(t)

	for _, msg := range []map[string]any{
		{},
		{"sql": "SELECT Name FROM Samples", "dialect": "oracle"},
		{"sql": "SELECT Name FROM Samples", "container": "not-a-uuid"},
		{"sql": "SELECT Name FROM Samples", "container_filter": "Current"},
		{"sql": "SELECT Name FROM Samples", "container_filter": "Sideways", "container": folder},
		{"sql": "SELECT Name FROM Samples", "parameters": "x"},
	} {
		_, err := call(t, c.compile, msg)
		require.Error(t, err, msg)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err), msg)
	}
}

func TestCompileBatch(t *testing.T) {
	c := newClients(t)

	out, err := call(t, c.batch, map[string]any{
		"dialect":   "sqlite",
		"container": folder,
		"queries": []any{
			map[string]any{"sql": "SELECT Name FROM Samples"},
			map[string]any{"sql": "SELECT Missing FROM Samples"},
			map[string]any{"sql": "SELECT Label FROM Studies", "dialect": "postgres", "container_filter": "AllFolders"},
			"not an object",
		},
	})
	require.NoError(t, err)

	results := out["results"].([]any)
	require.Len(t, results, 4)

	first := results[0].(map[string]any)
	require.Equal(t, true, first["ok"])
	assert.Equal(t,
		"SELECT \"Samples\".name AS \"Name\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = ?",
		first["result"].(map[string]any)["sql"])

	second := results[1].(map[string]any)
	assert.Equal(t, false, second["ok"])
	assert.Contains(t, second["error"], "Missing")
	assert.Len(t, second["diagnostics"], 1)

	third := results[2].(map[string]any)
	require.Equal(t, true, third["ok"])
	result := third["result"].(map[string]any)
	assert.Equal(t, "postgres", result["dialect"])
	assert.Equal(t, "SELECT \"Studies\".label AS \"Label\"\nFROM \"core\".\"studies\" \"Studies\"", result["sql"])
	assert.Empty(t, result["args"])

	assert.Equal(t, false, results[3].(map[string]any)["ok"])
}

func TestCompileBatchLimits(t *testing.T) {
	c := newClients(t)

	_, err := call(t, c.batch, map[string]any{"queries": []any{}})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	many := make([]any, 101)
	for i := range many {
		many[i] = map[string]any{"sql": "SELECT Name FROM Samples"}
	}
	_, err = call(t, c.batch, map[string]any{"queries": many})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestCompileSiblings(t *testing.T) {
	c := newClients(t)

	out, err := call(t, c.compile, map[string]any{
		"sql": "SELECT a.Name, b.Name FROM Samples a INNER JOIN Samples b ON a.RowId = b.RowId",
	})
	require.NoError(t, err)
	siblings := out["siblings"].(map[string]any)
	assert.Equal(t, []any{"Name_1"}, siblings["Name"])
	assert.Equal(t, []any{"Name"}, siblings["Name_1"])
}

func TestDescriptorCarriesHTTPRules(t *testing.T) {
	sd := service.CompileServiceDescriptor
	require.NotNil(t, sd)
	assert.Equal(t, service.CompileServiceName, string(sd.FullName()))
	require.Equal(t, 2, sd.Methods().Len())

	routes := map[string]string{}
	for i := 0; i < sd.Methods().Len(); i++ {
		m := sd.Methods().Get(i)
		assert.Equal(t, "google.protobuf.Struct", string(m.Input().FullName()))
		opts := m.Options().(*descriptorpb.MethodOptions)
		rule := proto.GetExtension(opts, annotations.E_Http).(*annotations.HttpRule)
		routes[string(m.Name())] = rule.GetPost()
	}
	assert.Equal(t, map[string]string{
		"Compile":      service.CompileRoute,
		"CompileBatch": service.CompileBatchRoute,
	}, routes)
}

func TestCompileREST(t *testing.T) {
	transcoder, err := server.NewTranscoder([]server.ConnectService{service.NewCompileService(newCache(t), 1, nil)})
	require.NoError(t, err)
	srv := httptest.NewServer(transcoder)
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+service.CompileRoute, "application/json",
		strings.NewReader(`{"sql": "SELECT Name FROM Samples", "dialect": "sqlite"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "SELECT \"Samples\".name AS \"Name\"\nFROM \"core\".\"samples\" \"Samples\"", out["sql"])
	assert.Equal(t, "sqlite", out["dialect"])

	bad, err := srv.Client().Post(srv.URL+service.CompileRoute, "application/json",
		strings.NewReader(`{"sql": "SELECT Nope FROM Samples"}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	batch, err := srv.Client().Post(srv.URL+service.CompileBatchRoute, "application/json",
		strings.NewReader(`{"queries": [{"sql": "SELECT Label FROM Studies"}]}`))
	require.NoError(t, err)
	defer batch.Body.Close()
	require.Equal(t, http.StatusOK, batch.StatusCode)
	var batchOut map[string]any
	require.NoError(t, json.NewDecoder(batch.Body).Decode(&batchOut))
	results := batchOut["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, true, results[0].(map[string]any)["ok"])
}

func TestCompileView(t *testing.T) {
	c := newClients(t)

	out, err := call(t, c.compile, map[string]any{
		"sql":       "SELECT Name, Study FROM Samples",
		"container": folder,
		"view": map[string]any{
			"select":  []any{"Name"},
			"filters": map[string]any{"study": "eq.1"},
			"order":   []any{"Name.desc"},
			"limit":   10,
		},
	})
	require.NoError(t, err)

	view := out["view"].(map[string]any)
	assert.Equal(t, "_v", view["alias"])
	assert.Equal(t,
		"SELECT _v.\"Name\" FROM (SELECT \"Samples\".name AS \"Name\", \"Samples\".study AS \"Study\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = $1) _v WHERE _v.\"Study\" = $2 ORDER BY _v.\"Name\" DESC LIMIT 10",
		view["list_sql"])
	assert.Equal(t, []any{folder, float64(1)}, view["list_args"])
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT \"Samples\".name AS \"Name\", \"Samples\".study AS \"Study\"\nFROM \"core\".\"samples\" \"Samples\"\nWHERE \"Samples\".container = $1) _v WHERE _v.\"Study\" = $2",
		view["count_sql"])
	assert.Contains(t, c.logs.String(), "built view queries")
}

func TestCompileViewErrors(t *testing.T) {
	c := newClients(t)

	for _, view := range []any{
		"x",
		map[string]any{"select": "Name"},
		map[string]any{"select": []any{"Nope"}},
		map[string]any{"filters": map[string]any{"Study": "eq.abc"}},
		map[string]any{"limit": 1.5},
		map[string]any{"order": []any{"Name.up"}},
	} {
		_, err := call(t, c.compile, map[string]any{"sql": "SELECT Name, Study FROM Samples", "view": view})
		require.Error(t, err, view)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err), view)
	}
}
