package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/atlekbai/lksql/internal/lksql"
)

// ColumnOutput is the JSON form of one view column.
type ColumnOutput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Label        string `json:"label,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
	Lookup       string `json:"lookup,omitempty"`
	DisplayField string `json:"display_field,omitempty"`
	Source       string `json:"source,omitempty"`
}

// NewColumnsCommand creates the columns command.
func NewColumnsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "columns [query-file]",
		Short:         "List the columns of the view a query compiles to",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ti, err := compileQuery(opts, args, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return writeColumns(cmd.OutOrStdout(), opts.Format, ti)
		},
	}
	addCompileFlags(cmd, opts)

	return cmd
}

func columnOutputs(ti *lksql.TableInfo) []ColumnOutput {
	out := make([]ColumnOutput, 0, len(ti.Columns()))
	for _, c := range ti.Columns() {
		co := ColumnOutput{
			Name:         c.Name,
			Type:         string(c.Type),
			Label:        c.Label,
			Hidden:       c.Hidden,
			DisplayField: c.DisplayField.String(),
		}
		if c.FK != nil {
			co.Lookup = c.FK.TargetName()
		}
		if src := c.SourceTable(); src != nil {
			co.Source = src.Name + "." + c.Source().String()
		}
		out = append(out, co)
	}
	return out
}

func writeColumns(w io.Writer, format string, ti *lksql.TableInfo) error {
	cols := columnOutputs(ti)
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cols)
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Name", "Type", "Label", "Lookup", "Display", "Source", "Hidden"})
	for _, c := range cols {
		if err := table.Append([]string{
			c.Name, c.Type, c.Label, c.Lookup, c.DisplayField, c.Source, strconv.FormatBool(c.Hidden),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d column(s)\n", len(cols))
	return nil
}
