package domain

type ColumnSchema struct {
	Name         string   `json:"column_name"`
	DataType     string   `json:"data_type"`
	SampleValues []string `json:"sample_values"`
}

type TableSchema struct {
	TableName string         `json:"table_name"`
	RowCount  int            `json:"row_count"`
	Columns   []ColumnSchema `json:"columns"`
}

// ColumnNames lists the schema's columns in table order.
func (s TableSchema) ColumnNames() []string {
	out := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		out = append(out, col.Name)
	}
	return out
}

// TableInfo is returned after a tabular file is loaded.
type TableInfo struct {
	Name       string `json:"table_name"`
	SourceFile string `json:"source_file"`
	RowCount   int    `json:"row_count"`
	Columns    int    `json:"column_count"`
	Encoding   string `json:"encoding,omitempty"`
	Skipped    bool   `json:"skipped"`
}

type TableLoadOptions struct {
	Force bool
}

type QueryResult struct {
	Success     bool             `json:"success"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []string         `json:"columns,omitempty"`
	Data        []map[string]any `json:"data,omitempty"`
	Query       string           `json:"query"`
	Error       string           `json:"error,omitempty"`
}
