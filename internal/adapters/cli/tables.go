package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newTablesCommand(r *runner) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List loaded tables with their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Tables == nil {
				return errNotConfigured
			}
			schemas := svc.Tables.AllSchemas(cmd.Context())
			if asJSON {
				return printJSON(cmd, schemas)
			}
			if len(schemas) == 0 {
				cmd.Println("No tables loaded.")
				return nil
			}
			for _, schema := range schemas {
				cmd.Printf("%s (%d rows)\n", schema.TableName, schema.RowCount)
				for _, col := range schema.Columns {
					cmd.Printf("  %-30s %s\n", col.Name, col.DataType)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newPreviewCommand(r *runner) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "preview [table]",
		Short: "Show the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Tables == nil {
				return errNotConfigured
			}
			preview, err := svc.Tables.Preview(cmd.Context(), args[0], rows)
			if err != nil {
				return err
			}
			cmd.Println(preview)
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 5, "number of rows")
	return cmd
}

func newSQLCommand(r *runner) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "sql [query]",
		Short: "Run a read-only SQL query over the loaded tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Tables == nil {
				return errNotConfigured
			}
			if limit <= 0 {
				limit = svc.SQLLimit
			}
			if !asJSON {
				cmd.Println(svc.Tables.ExecuteToString(cmd.Context(), args[0], limit))
				return nil
			}
			result := svc.Tables.Execute(cmd.Context(), args[0], limit)
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum rows returned (default from SQL_QUERY_LIMIT)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
