package sqlite

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
)

// ExecuteToString runs query and renders the result as text for a model.
func (e *Engine) ExecuteToString(ctx context.Context, query string, limit int) string {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	result := e.Execute(ctx, query, limit)
	if !result.Success {
		return "Error executing query: " + result.Error
	}
	if result.RowCount == 0 {
		return "Query executed successfully but returned no results."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query Results (%d rows):\n\n", result.RowCount)
	writeGrid(&b, result.Columns, result.Data, limit)
	if result.RowCount > limit {
		fmt.Fprintf(&b, "\n\n... (showing first %d of %d rows)", limit, result.RowCount)
	}
	return b.String()
}

// Preview renders the table header and its first rows.
func (e *Engine) Preview(ctx context.Context, name string, rows int) (string, error) {
	if rows <= 0 {
		rows = 5
	}
	schema, err := e.TableSchema(ctx, name)
	if err != nil {
		return fmt.Sprintf("Table '%s' not found", name), err
	}
	result := e.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(name), rows), rows)
	if !result.Success {
		return "", fmt.Errorf("preview table %s: %s", name, result.Error)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", name)
	fmt.Fprintf(&b, "Total Rows: %d\n", schema.RowCount)
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(schema.ColumnNames(), ", "))
	b.WriteString("First few rows:\n")
	writeGrid(&b, result.Columns, result.Data, rows)
	return b.String(), nil
}

// SchemaText renders one table schema, or all schemas when name is empty.
func (e *Engine) SchemaText(ctx context.Context, name string) string {
	if name != "" {
		schema, err := e.TableSchema(ctx, name)
		if err != nil {
			return fmt.Sprintf("Table '%s' not found", name)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Table: %s\n", schema.TableName)
		fmt.Fprintf(&b, "Total Rows: %d\n\n", schema.RowCount)
		b.WriteString("Columns:\n")
		for _, col := range schema.Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.DataType)
			fmt.Fprintf(&b, "    Sample: %v\n", col.SampleValues)
		}
		return b.String()
	}

	schemas := e.AllSchemas(ctx)
	if len(schemas) == 0 {
		return "No SQL tables available. Upload CSV files first."
	}
	var b strings.Builder
	b.WriteString("Available SQL Tables:\n\n")
	for _, schema := range schemas {
		fmt.Fprintf(&b, "%s (%d rows)\n", strings.ToUpper(schema.TableName), schema.RowCount)
		fmt.Fprintf(&b, "   Columns: %s\n\n", strings.Join(schema.ColumnNames(), ", "))
	}
	return b.String()
}

func writeGrid(b *strings.Builder, columns []string, data []map[string]any, maxRows int) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for i, record := range data {
		if i >= maxRows {
			break
		}
		cells := make([]string, len(columns))
		for j, col := range columns {
			cells[j] = formatCell(record[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	out := strings.TrimRight(b.String(), "\n")
	b.Reset()
	b.WriteString(out)
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
