package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/usecase"
)

const toolAsk = "ask"

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(usecase.ToolAvailableTables,
		mcp.WithDescription("List the SQL tables loaded from CSV and XLSX files."),
	), s.handleAvailableTables)

	s.mcp.AddTool(mcp.NewTool(usecase.ToolSQLSchema,
		mcp.WithDescription("Show column names, types and sample values of a table, or of every table when table_name is empty."),
		mcp.WithString("table_name", mcp.Description("table to describe, for example table_fees")),
	), s.handleSQLSchema)

	s.mcp.AddTool(mcp.NewTool(usecase.ToolTablePreview,
		mcp.WithDescription("Show the first rows of a table."),
		mcp.WithString("table_name", mcp.Required(), mcp.Description("table to preview")),
		mcp.WithNumber("rows", mcp.Description("number of rows (default 5)"), mcp.Min(1), mcp.Max(100)),
	), s.handleTablePreview)

	s.mcp.AddTool(mcp.NewTool(usecase.ToolSQLQuery,
		mcp.WithDescription("Run a read-only SQL SELECT over the loaded tables."),
		mcp.WithString("query", mcp.Required(), mcp.Description("SQLite SELECT statement")),
	), s.handleSQLQuery)

	s.mcp.AddTool(mcp.NewTool(usecase.ToolRAGSearch,
		mcp.WithDescription("Search the document knowledge base with semantic and keyword retrieval."),
		mcp.WithString("query", mcp.Required(), mcp.Description("search query")),
	), s.handleRAGSearch)

	if s.ports.Queries != nil {
		s.mcp.AddTool(mcp.NewTool(toolAsk,
			mcp.WithDescription("Answer a study counselling question end to end, choosing tables, documents or both."),
			mcp.WithString("question", mcp.Required(), mcp.Description("the question to answer")),
			mcp.WithString("session_id", mcp.Description("conversation to continue")),
		), s.handleAsk)
	}
}

func (s *Server) handleAvailableTables(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execute(ctx, usecase.ToolAvailableTables, map[string]interface{}{})
}

func (s *Server) handleSQLSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execute(ctx, usecase.ToolSQLSchema, map[string]interface{}{
		"table_name": req.GetString("table_name", ""),
	})
}

func (s *Server) handleTablePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := req.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, usecase.ToolTablePreview, map[string]interface{}{
		"table_name": table,
		"rows":       req.GetInt("rows", 5),
	})
}

func (s *Server) handleSQLQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, usecase.ToolSQLQuery, map[string]interface{}{"query": query})
}

func (s *Server) handleRAGSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, usecase.ToolRAGSearch, map[string]interface{}{"query": query})
}

type askOutput struct {
	Answer     string           `json:"answer"`
	SessionID  string           `json:"session_id"`
	QueryType  domain.QueryType `json:"query_type"`
	ToolsUsed  []string         `json:"tools_used"`
	Confidence float64          `json:"confidence_score"`
	Outcome    domain.Outcome   `json:"outcome"`
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question must not be empty"), nil
	}
	resp := s.ports.Queries.Process(ctx, domain.QueryRequest{
		Query:     question,
		SessionID: req.GetString("session_id", ""),
	})
	payload, err := json.MarshalIndent(askOutput{
		Answer:     resp.Answer,
		SessionID:  resp.SessionID,
		QueryType:  resp.QueryType,
		ToolsUsed:  resp.ToolsUsed,
		Confidence: resp.Confidence,
		Outcome:    resp.Outcome,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// execute reports tool failures as error results so the assistant sees
// them; only transport problems are returned as errors.
func (s *Server) execute(ctx context.Context, name string, input map[string]interface{}) (*mcp.CallToolResult, error) {
	output, err := s.ports.Tools.ExecuteTool(ctx, name, input)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}
