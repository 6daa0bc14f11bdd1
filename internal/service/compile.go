package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/lksql"
	"github.com/atlekbai/lksql/internal/query"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

const (
	CompileServiceName = "lksql.v1.CompileService"

	CompileProcedure      = "/" + CompileServiceName + "/Compile"
	CompileBatchProcedure = "/" + CompileServiceName + "/CompileBatch"
)

// maxBatchSize caps the number of queries in one CompileBatch call.
const maxBatchSize = 100

// CompileService compiles LabKey SQL against the shared catalog. Requests
// and responses are google.protobuf.Struct messages:
//
//	{"sql": "SELECT ...", "name": "q", "dialect": "postgres",
//	 "container_filter": "Current", "container": "<uuid>", "folders": [...],
//	 "parameters": {"MinValue": 1}, "alias": "x",
//	 "view": {"select": ["Name"], "filters": {"Name": "like.S%"},
//	          "order": ["Name.desc"], "limit": 10, "offset": 0}}
//
// With "view", the response also carries list and count queries that read
// from the compiled view.
type CompileService struct {
	cache       *schema.Cache
	concurrency int
	logger      *slog.Logger
}

func NewCompileService(cache *schema.Cache, concurrency int, logger *slog.Logger) *CompileService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompileService{cache: cache, concurrency: concurrency, logger: logger}
}

func (s *CompileService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := connect.WithInterceptors(interceptors...)
	methods := CompileServiceDescriptor.Methods()
	mux := http.NewServeMux()
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.Compile,
		connect.WithSchema(methods.ByName("Compile")), opts))
	mux.Handle(CompileBatchProcedure, connect.NewUnaryHandler(CompileBatchProcedure, s.CompileBatch,
		connect.WithSchema(methods.ByName("CompileBatch")), opts))
	return "/" + CompileServiceName + "/", mux
}

func (s *CompileService) Compile(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := parseCompileRequest(req.Msg.AsMap(), nil)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	out, err := s.compile(in)
	if err != nil {
		return nil, toConnectError(err)
	}
	st, err := structpb.NewStruct(out)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	return connect.NewResponse(st), nil
}

// CompileBatch compiles every entry of "queries" concurrently. Top-level
// fields other than "queries" are defaults for each entry. A failing entry
// reports its error inline and does not fail the batch.
func (s *CompileService) CompileBatch(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg.AsMap()
	queries, _ := msg["queries"].([]any)
	if len(queries) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("queries must not be empty"))
	}
	if len(queries) > maxBatchSize {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("at most %d queries per batch, got %d", maxBatchSize, len(queries)))
	}
	delete(msg, "queries")

	results := make([]any, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, ok := q.(map[string]any)
			if !ok {
				results[i] = failure(fmt.Errorf("queries[%d] must be an object", i))
				return nil
			}
			in, err := parseCompileRequest(entry, msg)
			if err != nil {
				results[i] = failure(err)
				return nil
			}
			out, err := s.compile(in)
			if err != nil {
				results[i] = failure(err)
				return nil
			}
			results[i] = map[string]any{"ok": true, "result": out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		code := connect.CodeCanceled
		if errors.Is(err, context.DeadlineExceeded) {
			code = connect.CodeDeadlineExceeded
		}
		return nil, connect.NewError(code, err)
	}

	st, err := structpb.NewStruct(map[string]any{"results": results})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal results: %w", err))
	}
	return connect.NewResponse(st), nil
}

type compileRequest struct {
	sql     string
	name    string
	dialect sqlf.Dialect
	filter  container.Filter
	params  map[string]any
	alias   string
	view    *query.ParamsInput
}

// parseCompileRequest reads one request object. Missing fields fall back to
// defaults, which may be nil.
func parseCompileRequest(m, defaults map[string]any) (*compileRequest, error) {
	get := func(key string) any {
		if v, ok := m[key]; ok {
			return v
		}
		return defaults[key]
	}
	str := func(key string) (string, error) {
		v := get(key)
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%s must be a string", key)
		}
		return s, nil
	}

	in := &compileRequest{}
	var err error
	if in.sql, err = str("sql"); err != nil {
		return nil, err
	}
	if in.sql == "" {
		return nil, errors.New("sql is required")
	}
	if in.name, err = str("name"); err != nil {
		return nil, err
	}
	if in.alias, err = str("alias"); err != nil {
		return nil, err
	}

	dialect, err := str("dialect")
	if err != nil {
		return nil, err
	}
	d, ok := sqlf.ByName(dialect)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	in.dialect = d

	if p := get("parameters"); p != nil {
		params, ok := p.(map[string]any)
		if !ok {
			return nil, errors.New("parameters must be an object")
		}
		in.params = params
	}

	if in.filter, err = parseFilter(str, get("folders")); err != nil {
		return nil, err
	}
	if v, ok := m["view"]; ok {
		if in.view, err = parseView(v); err != nil {
			return nil, err
		}
		in.view.Values = in.params
	}
	return in, nil
}

func parseView(v any) (*query.ParamsInput, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("view must be an object")
	}
	in := &query.ParamsInput{}
	list := func(key string) ([]string, error) {
		raw, ok := m[key]
		if !ok {
			return nil, nil
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("view.%s must be a list", key)
		}
		out := make([]string, len(items))
		for i, e := range items {
			if out[i], ok = e.(string); !ok {
				return nil, fmt.Errorf("view.%s must contain strings", key)
			}
		}
		return out, nil
	}
	number := func(key string) (int, error) {
		raw, ok := m[key]
		if !ok {
			return 0, nil
		}
		f, ok := raw.(float64)
		if !ok || f != float64(int(f)) {
			return 0, fmt.Errorf("view.%s must be an integer", key)
		}
		return int(f), nil
	}

	var err error
	if in.Select, err = list("select"); err != nil {
		return nil, err
	}
	if in.Order, err = list("order"); err != nil {
		return nil, err
	}
	if in.Limit, err = number("limit"); err != nil {
		return nil, err
	}
	if in.Offset, err = number("offset"); err != nil {
		return nil, err
	}
	if raw, ok := m["filters"]; ok {
		filters, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.New("view.filters must be an object")
		}
		in.Filters = make(map[string]string, len(filters))
		for k, f := range filters {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("view.filters.%s must be a string", k)
			}
			in.Filters[k] = s
		}
	}
	return in, nil
}

func parseFilter(str func(string) (string, error), rawFolders any) (container.Filter, error) {
	kind, err := str("container_filter")
	if err != nil {
		return nil, err
	}
	current, err := str("container")
	if err != nil {
		return nil, err
	}
	if kind == "" && current == "" {
		return nil, nil
	}
	if container.Type(kind) == container.TypeAllFolders {
		return container.AllFolders{}, nil
	}

	var raw []string
	if rawFolders != nil {
		list, ok := rawFolders.([]any)
		if !ok {
			return nil, errors.New("folders must be a list")
		}
		for _, f := range list {
			s, ok := f.(string)
			if !ok {
				return nil, errors.New("folders must contain strings")
			}
			raw = append(raw, s)
		}
	}
	folders, err := container.ParseIDs(raw)
	if err != nil {
		return nil, err
	}

	id := uuid.Nil
	if current != "" {
		if id, err = uuid.Parse(current); err != nil {
			return nil, fmt.Errorf("container %q: %w", current, err)
		}
	}
	if id == uuid.Nil && container.Type(kind) != container.TypeFolders {
		return nil, fmt.Errorf("container_filter %s needs a container", kind)
	}
	return container.New(kind, id, folders)
}

// compile builds the view and the response object for one request.
func (s *CompileService) compile(in *compileRequest) (map[string]any, error) {
	ti, err := lksql.NewCompiler(s.cache, in.dialect).Compile(in.sql, in.name)
	if err != nil {
		return nil, err
	}
	if in.filter != nil {
		if err := ti.SetContainerFilter(in.filter); err != nil {
			return nil, err
		}
	}

	var frag *sqlf.Fragment
	if in.alias != "" {
		frag, err = ti.FromSQL(in.alias)
	} else {
		frag, err = ti.SQL()
	}
	if err != nil {
		return nil, err
	}
	args, err := ti.Bind(frag.Args(), in.params)
	if err != nil {
		return nil, err
	}
	text, err := in.dialect.Placeholder().ReplacePlaceholders(frag.SQL())
	if err != nil {
		return nil, fmt.Errorf("placeholders: %w", err)
	}

	s.logger.Debug("compiled query",
		slog.String("name", ti.Name()),
		slog.String("dialect", in.dialect.Name()),
		slog.Int("columns", len(ti.Columns())),
		slog.Int("args", len(args)),
	)

	out := map[string]any{
		"name":       ti.Name(),
		"dialect":    in.dialect.Name(),
		"sql":        text,
		"args":       argValues(args),
		"columns":    columnsOf(ti),
		"parameters": parametersOf(ti),
		"siblings":   siblingsOf(ti),
	}
	if in.view != nil {
		view, err := s.view(ti, in.view)
		if err != nil {
			return nil, err
		}
		out["view"] = view
	}
	return out, nil
}

// view builds the list and count queries over ti.
func (s *CompileService) view(ti *lksql.TableInfo, in *query.ParamsInput) (map[string]any, error) {
	params, err := query.ParseParams(ti, *in)
	if err != nil {
		return nil, &ViewError{Err: err}
	}
	b := query.NewBuilder(ti)
	listSQL, listArgs, err := b.BuildList(params)
	if err != nil {
		return nil, &ViewError{Err: err}
	}
	countSQL, countArgs, err := b.BuildCount(params)
	if err != nil {
		return nil, &ViewError{Err: err}
	}
	s.logger.Debug("built view queries",
		slog.String("name", ti.Name()),
		slog.String("params", query.Describe(params)),
	)
	return map[string]any{
		"alias":      query.Alias(),
		"list_sql":   listSQL,
		"list_args":  argValues(listArgs),
		"count_sql":  countSQL,
		"count_args": argValues(countArgs),
	}, nil
}

// ViewError reports a view request that does not fit the compiled query.
type ViewError struct {
	Err error
}

func (e *ViewError) Error() string { return "view: " + e.Err.Error() }

func (e *ViewError) Unwrap() error { return e.Err }

func columnsOf(ti *lksql.TableInfo) []any {
	out := make([]any, 0, len(ti.Columns()))
	for _, c := range ti.Columns() {
		col := map[string]any{
			"name":   c.Name,
			"type":   string(c.Type),
			"label":  c.Label,
			"hidden": c.Hidden,
		}
		if c.FK != nil {
			col["lookup"] = c.FK.TargetName()
		}
		if !c.DisplayField.IsEmpty() {
			col["display_field"] = c.DisplayField.String()
		}
		if src := c.SourceTable(); src != nil {
			col["source"] = src.Name + "." + c.Source().String()
		}
		out = append(out, col)
	}
	return out
}

func parametersOf(ti *lksql.TableInfo) []any {
	params := ti.NamedParameters()
	out := make([]any, 0, len(params))
	for _, p := range params {
		entry := map[string]any{
			"name":     p.Name,
			"type":     string(p.Type),
			"required": p.Required,
		}
		if !p.Required {
			entry["default"] = argValue(p.Default)
		}
		out = append(out, entry)
	}
	return out
}

func siblingsOf(ti *lksql.TableInfo) map[string]any {
	out := make(map[string]any)
	for key, sibs := range ti.SiblingRemap() {
		names := make([]string, len(sibs))
		for i, s := range sibs {
			names[i] = s.String()
		}
		sort.Strings(names)
		list := make([]any, len(names))
		for i, n := range names {
			list[i] = n
		}
		out[key.String()] = list
	}
	return out
}

func argValues(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = argValue(a)
	}
	return out
}

// argValue converts a bind argument to something structpb accepts.
func argValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func failure(err error) map[string]any {
	out := map[string]any{"ok": false, "error": err.Error()}
	var cerr *lksql.CompileError
	if errors.As(err, &cerr) {
		out["diagnostics"] = diagnostics(cerr.Errors)
	}
	return out
}

// diagnostics describes each collected compile error.
func diagnostics(errs []error) []any {
	out := make([]any, 0, len(errs))
	for _, err := range errs {
		d := map[string]any{"message": err.Error()}
		var (
			perr       *lksql.ParseError
			unresolved *lksql.UnresolvedFieldError
			ambiguous  *lksql.AmbiguousColumnError
		)
		switch {
		case errors.As(err, &perr):
			d["kind"] = "parse"
			if perr.Pos >= 0 {
				d["position"] = perr.Pos
			}
		case errors.As(err, &unresolved):
			d["kind"] = "unresolved"
			d["field"] = unresolved.Key.String()
		case errors.As(err, &ambiguous):
			d["kind"] = "ambiguous"
			d["field"] = ambiguous.Key.String()
			candidates := make([]any, len(ambiguous.Candidates))
			for i, c := range ambiguous.Candidates {
				candidates[i] = c
			}
			d["candidates"] = candidates
		default:
			d["kind"] = "other"
		}
		out = append(out, d)
	}
	return out
}

// toConnectError maps compiler errors onto connect codes. Diagnostics ride
// along as a Struct error detail.
func toConnectError(err error) error {
	var cerr *lksql.CompileError
	switch {
	case errors.As(err, &cerr):
		ce := connect.NewError(connect.CodeInvalidArgument, err)
		if st, serr := structpb.NewStruct(map[string]any{"diagnostics": diagnostics(cerr.Errors)}); serr == nil {
			if detail, derr := connect.NewErrorDetail(st); derr == nil {
				ce.AddDetail(detail)
			}
		}
		return ce
	case errors.Is(err, lksql.ErrNamedParameterNotProvided):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, new(*ViewError)):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, lksql.ErrRenderInvariant):
		return connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
