package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const (
	ToolSQLQuery           = "sql_query"
	ToolSQLSchema          = "get_sql_schema"
	ToolAvailableTables    = "get_available_tables"
	ToolTablePreview       = "table_preview"
	ToolRAGSearch          = "rag_search"
	toolFamilySQL          = "sql"
	toolFamilyRAG          = "rag"
	defaultPreviewRows     = 5
	ragPassageDisplayChars = 500
)

type agentTool struct {
	name        string
	family      string
	description string
	inputHint   string
}

var (
	sqlQueryTool = agentTool{
		name:        ToolSQLQuery,
		family:      toolFamilySQL,
		description: "Execute a SQL SELECT over the CSV data tables to filter, aggregate or count records.",
		inputHint:   `{"query":"SELECT COUNT(*) FROM table_providers WHERE state='NSW'"}`,
	}
	sqlSchemaTool = agentTool{
		name:        ToolSQLSchema,
		family:      toolFamilySQL,
		description: "Show column names, types and sample values. Leave table_name empty for every table.",
		inputHint:   `{"table_name":"table_providers"}`,
	}
	availableTablesTool = agentTool{
		name:        ToolAvailableTables,
		family:      toolFamilySQL,
		description: "List the SQL tables loaded from CSV and XLSX files.",
		inputHint:   `{}`,
	}
	tablePreviewTool = agentTool{
		name:        ToolTablePreview,
		family:      toolFamilySQL,
		description: "Show the first rows of a table.",
		inputHint:   `{"table_name":"table_providers","rows":5}`,
	}
	ragSearchTool = agentTool{
		name:        ToolRAGSearch,
		family:      toolFamilyRAG,
		description: "Search the document knowledge base with semantic and keyword retrieval for processes, procedures and explanations.",
		inputHint:   `{"query":"How to add a new lead in the CRM system?"}`,
	}
)

// toolsFor returns the tool family offered for a classification.
func toolsFor(queryType domain.QueryType) []agentTool {
	sqlTools := []agentTool{sqlQueryTool, sqlSchemaTool, availableTablesTool, tablePreviewTool}
	switch queryType {
	case domain.QueryTypeStructured:
		return sqlTools
	case domain.QueryTypeSemantic:
		return []agentTool{ragSearchTool}
	default:
		return append(sqlTools, ragSearchTool)
	}
}

// ToolFamily reports whether a tool belongs to the sql or rag family.
func ToolFamily(name string) string {
	switch name {
	case ToolSQLQuery, ToolSQLSchema, ToolAvailableTables, ToolTablePreview:
		return toolFamilySQL
	case ToolRAGSearch:
		return toolFamilyRAG
	default:
		return ""
	}
}

func findTool(tools []agentTool, name string) (agentTool, bool) {
	for _, tool := range tools {
		if tool.name == name {
			return tool, true
		}
	}
	return agentTool{}, false
}

// toolResult is one tool execution plus the retrieval results it surfaced.
type toolResult struct {
	output    string
	documents []domain.RetrievalResult
}

// ExecuteTool runs a single tool outside the agent loop.
func (o *Orchestrator) ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (string, error) {
	result, err := o.executeTool(ctx, name, input, "")
	if err != nil {
		return "", err
	}
	return result.output, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, name string, input map[string]interface{}, fallbackQuestion string) (toolResult, error) {
	switch name {
	case ToolSQLQuery:
		query := strings.TrimSpace(stringInput(input, "query", ""))
		if query == "" {
			return toolResult{}, domain.WrapError(domain.ErrInvalidInput, ToolSQLQuery, fmt.Errorf("query is required"))
		}
		return toolResult{output: o.tables.ExecuteToString(ctx, query, o.sqlLimit)}, nil
	case ToolSQLSchema:
		return toolResult{output: o.tables.SchemaText(ctx, strings.TrimSpace(stringInput(input, "table_name", "")))}, nil
	case ToolAvailableTables:
		return toolResult{output: formatAvailableTables(o.tables.Tables())}, nil
	case ToolTablePreview:
		tableName := strings.TrimSpace(stringInput(input, "table_name", ""))
		if tableName == "" {
			return toolResult{}, domain.WrapError(domain.ErrInvalidInput, ToolTablePreview, fmt.Errorf("table_name is required"))
		}
		preview, err := o.tables.Preview(ctx, tableName, intInput(input, "rows", defaultPreviewRows))
		if err != nil && preview == "" {
			return toolResult{}, err
		}
		return toolResult{output: preview}, nil
	case ToolRAGSearch:
		query := strings.TrimSpace(stringInput(input, "query", fallbackQuestion))
		if query == "" {
			return toolResult{}, domain.WrapError(domain.ErrInvalidInput, ToolRAGSearch, fmt.Errorf("query is required"))
		}
		documents, err := o.retriever.HybridSearch(ctx, query, domain.HybridSearchOptions{
			K:              o.limits.KnowledgeTopK,
			SemanticWeight: o.semanticWeight,
			UseRerank:      true,
		})
		if err != nil {
			return toolResult{}, fmt.Errorf("rag search: %w", err)
		}
		o.countSourceUse(ctx, documents)
		return toolResult{output: formatRAGResults(documents), documents: documents}, nil
	default:
		return toolResult{}, domain.WrapError(domain.ErrInvalidInput, "execute tool", fmt.Errorf("unsupported tool: %s", name))
	}
}

func (o *Orchestrator) countSourceUse(ctx context.Context, documents []domain.RetrievalResult) {
	if o.dataSources == nil {
		return
	}
	seen := make(map[string]struct{}, len(documents))
	for _, doc := range documents {
		name := doc.Chunk.Metadata.SourceFile
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		_ = o.dataSources.IncrementQueryCount(ctx, name)
	}
}

func formatAvailableTables(tables []string) string {
	if len(tables) == 0 {
		return "No SQL tables available. Upload CSV files to enable SQL queries."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Available Tables (%d):\n", len(tables))
	for _, table := range tables {
		fmt.Fprintf(&b, "  - %s\n", table)
	}
	b.WriteString("\nUse get_sql_schema to see column details for each table.")
	return b.String()
}

func formatRAGResults(documents []domain.RetrievalResult) string {
	if len(documents) == 0 {
		return "No relevant documents found in the knowledge base."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant documents:\n\n", len(documents))
	for i, doc := range documents {
		source := doc.Chunk.Metadata.SourceFile
		if source == "" {
			source = "Unknown"
		}
		scores := make([]string, 0, 2)
		if doc.Scores.HasRerank && doc.Scores.RerankMethod == domain.RerankCrossEncoder {
			scores = append(scores, fmt.Sprintf("Relevance: %.3f", doc.Scores.Rerank))
		}
		scores = append(scores, fmt.Sprintf("RRF: %.3f", doc.Scores.Fused))
		fmt.Fprintf(&b, "[%d] Source: %s (%s)\n", i+1, source, strings.Join(scores, ", "))
		fmt.Fprintf(&b, "%s...\n\n", truncateRunes(doc.Chunk.Text, ragPassageDisplayChars))
	}
	return b.String()
}

func stringInput(input map[string]interface{}, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]interface{}, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}
