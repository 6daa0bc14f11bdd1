package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atlekbai/lksql/internal/container"
	"github.com/atlekbai/lksql/internal/lksql"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// CompileOptions holds flags shared by the commands that compile a query.
type CompileOptions struct {
	*RootOptions
	SQL             string
	Name            string
	Container       string
	ContainerFilter string
	Folders         []string
	Params          map[string]string
	Alias           string
}

// CompileOutput is the JSON form of a compiled query.
type CompileOutput struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [query-file]",
		Short: "Print the SQL generated for a LabKey SQL query",
		Long: `Compile a LabKey SQL query and print the SQL for the target dialect.

The query is read from --sql, from the named file, or from stdin when the
file is "-".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}
	addCompileFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Alias, "alias", "", "wrap the query as a FROM item with this alias")

	return cmd
}

func addCompileFlags(cmd *cobra.Command, opts *CompileOptions) {
	cmd.Flags().StringVarP(&opts.SQL, "sql", "q", "", "query text")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "query", "name of the compiled view")
	cmd.Flags().StringVar(&opts.Container, "container", "", "current container id")
	cmd.Flags().StringVar(&opts.ContainerFilter, "container-filter", "", "Current|CurrentAndSubfolders|Folders|AllFolders")
	cmd.Flags().StringSliceVar(&opts.Folders, "folders", nil, "additional container ids")
	cmd.Flags().StringToStringVarP(&opts.Params, "param", "p", nil, "named parameter value, name=value")
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	ti, err := compileQuery(opts, args, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var frag *sqlf.Fragment
	if opts.Alias != "" {
		frag, err = ti.FromSQL(opts.Alias)
	} else {
		frag, err = ti.SQL()
	}
	if err != nil {
		return err
	}
	bound, err := ti.Bind(frag.Args(), paramValues(opts.Params))
	if err != nil {
		return err
	}
	text, err := opts.dialect().Placeholder().ReplacePlaceholders(frag.SQL())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(CompileOutput{Name: ti.Name(), SQL: text, Args: bound})
	}
	fmt.Fprintln(out, text)
	if len(bound) > 0 {
		fmt.Fprintf(out, "-- args: %v\n", bound)
	}
	return nil
}

// compileQuery loads the catalog, reads the query and compiles it with the
// requested container filter. Diagnostics are printed to errOut.
func compileQuery(opts *CompileOptions, args []string, in io.Reader, errOut io.Writer) (*lksql.TableInfo, error) {
	cache, err := opts.catalog()
	if err != nil {
		return nil, err
	}
	text, err := queryText(opts.SQL, args, in)
	if err != nil {
		return nil, err
	}
	filter, err := filterFor(opts)
	if err != nil {
		return nil, err
	}

	ti, err := lksql.NewCompiler(cache, opts.dialect()).Compile(text, opts.Name)
	if err != nil {
		printDiagnostics(errOut, err)
		return nil, err
	}
	if filter != nil {
		if err := ti.SetContainerFilter(filter); err != nil {
			return nil, err
		}
	}
	return ti, nil
}

func queryText(inline string, args []string, in io.Reader) (string, error) {
	if inline != "" {
		if len(args) > 0 {
			return "", errors.New("use either --sql or a query file, not both")
		}
		return inline, nil
	}
	if len(args) == 0 {
		return "", errors.New("no query: pass --sql or a query file")
	}
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read query: %w", err)
	}
	return string(data), nil
}

func filterFor(opts *CompileOptions) (container.Filter, error) {
	if opts.ContainerFilter == "" && opts.Container == "" {
		return nil, nil
	}
	if container.Type(opts.ContainerFilter) == container.TypeAllFolders {
		return container.AllFolders{}, nil
	}
	var current []string
	if opts.Container != "" {
		current = []string{opts.Container}
	}
	ids, err := container.ParseIDs(current)
	if err != nil {
		return nil, err
	}
	folders, err := container.ParseIDs(opts.Folders)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if container.Type(opts.ContainerFilter) != container.TypeFolders {
			return nil, fmt.Errorf("--container-filter %s needs --container", opts.ContainerFilter)
		}
		return container.New(opts.ContainerFilter, uuid.Nil, folders)
	}
	return container.New(opts.ContainerFilter, ids[0], folders)
}

// paramValues converts flag strings into typed bind values.
func paramValues(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch {
		case strings.EqualFold(v, "null"):
			out[k] = nil
		case strings.EqualFold(v, "true"), strings.EqualFold(v, "false"):
			out[k] = strings.EqualFold(v, "true")
		default:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[k] = i
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = f
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func printDiagnostics(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	var cerr *lksql.CompileError
	if !errors.As(err, &cerr) {
		red.Fprintf(w, "error: ")
		fmt.Fprintln(w, err)
		return
	}
	for _, e := range cerr.Errors {
		red.Fprintf(w, "error: ")
		fmt.Fprintln(w, e)
	}
	color.New(color.FgYellow).Fprintf(w, "%d diagnostic(s)\n", len(cerr.Errors))
}
