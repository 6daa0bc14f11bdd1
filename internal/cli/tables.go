package cli

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command, which lists the catalog.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tables",
		Short:         "List the tables of the catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := opts.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			table := tablewriter.NewTable(out,
				tablewriter.WithRenderer(renderer.NewMarkdown()),
				tablewriter.WithHeaderAutoFormat(tw.Off),
			)
			table.Header([]string{"Table", "Storage", "Columns", "Container"})
			for _, t := range cache.Tables() {
				if err := table.Append([]string{
					t.QualifiedName(), t.TableName(), strconv.Itoa(len(t.Columns)), t.ContainerColumn,
				}); err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d table(s)\n", cache.TableCount())
			return nil
		},
	}
}
