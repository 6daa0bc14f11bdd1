package cli

import (
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/sqlf"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Schema  string
	Dialect string
	Format  string // "text" | "json"
	NoColor bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the lksql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lksql",
		Short: "Compile LabKey SQL to database SQL",
		Long: `Compile LabKey SQL queries against a YAML catalog and print the
generated SQL or the columns of the resulting view.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, ok := sqlf.ByName(opts.Dialect); !ok {
				return fmt.Errorf("unknown dialect %q", opts.Dialect)
			}
			if opts.NoColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "", "catalog YAML file (required)")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "postgres", "target dialect (postgres|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored diagnostics")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewColumnsCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))

	return cmd
}

func (o *RootOptions) catalog() (*schema.Cache, error) {
	if o.Schema == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	return schema.LoadFile(o.Schema)
}

func (o *RootOptions) dialect() sqlf.Dialect {
	d, ok := sqlf.ByName(o.Dialect)
	if !ok {
		return sqlf.Postgres
	}
	return d
}
