package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type fakeIngestor struct {
	err      error
	filename string
	mimeType string
	body     string
	opts     domain.UploadOptions
}

func (f *fakeIngestor) Upload(_ context.Context, filename, mimeType string, body io.Reader, opts domain.UploadOptions) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.filename, f.mimeType, f.body, f.opts = filename, mimeType, string(raw), opts
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type fakeDocuments struct {
	err error
}

func (f fakeDocuments) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", StoragePath: "a.txt", Status: domain.StatusReady}, nil
}

type fakeQueries struct {
	mu       sync.Mutex
	requests []domain.QueryRequest
	answer   string
}

func (f *fakeQueries) Process(_ context.Context, req domain.QueryRequest) domain.QueryResponse {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	answer := f.answer
	if answer == "" {
		answer = "Tuition for the MSc is 9000 GBP per year."
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "generated-session"
	}
	return domain.QueryResponse{
		Answer:     answer,
		SessionID:  sessionID,
		QueryType:  domain.QueryTypeStructured,
		ToolsUsed:  []string{"sql_query"},
		SQLUsed:    true,
		Sources:    []domain.Source{{Type: "sql", Tool: "sql_query", Content: "1 row"}},
		Confidence: 0.9,
		Iterations: 2,
		Outcome:    domain.Ok(),
	}
}

func (f *fakeQueries) last() domain.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return domain.QueryRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type fakeRetriever struct {
	size int
	err  error
}

func (f *fakeRetriever) HybridSearch(context.Context, string, domain.HybridSearchOptions) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func (f *fakeRetriever) RebuildKeywordIndex(context.Context) (int, error) {
	return f.size, f.err
}

type fakeTables struct {
	lastQuery string
	lastLimit int
}

func (f *fakeTables) LoadTable(context.Context, string, string, io.Reader, domain.TableLoadOptions) (domain.TableInfo, error) {
	return domain.TableInfo{}, nil
}

func (f *fakeTables) Execute(_ context.Context, query string, limit int) domain.QueryResult {
	f.lastQuery, f.lastLimit = query, limit
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return domain.QueryResult{Success: false, Query: query, Error: "only SELECT queries are allowed"}
	}
	return domain.QueryResult{
		Success:     true,
		RowCount:    1,
		ColumnCount: 2,
		Columns:     []string{"program", "fee"},
		Data:        []map[string]any{{"program": "MSc", "fee": 9000}},
		Query:       query,
	}
}

func (f *fakeTables) ExecuteToString(context.Context, string, int) string { return "" }

func (f *fakeTables) TableSchema(_ context.Context, name string) (domain.TableSchema, error) {
	if name != "table_fees" {
		return domain.TableSchema{}, domain.ErrTableNotFound
	}
	return domain.TableSchema{TableName: name, RowCount: 1}, nil
}

func (f *fakeTables) AllSchemas(context.Context) []domain.TableSchema {
	return []domain.TableSchema{{TableName: "table_fees", RowCount: 1}}
}

func (f *fakeTables) SchemaText(context.Context, string) string { return "" }

func (f *fakeTables) Tables() []string { return []string{"table_fees"} }

func (f *fakeTables) Preview(_ context.Context, name string, rows int) (string, error) {
	if name != "table_fees" {
		return "", domain.WrapError(domain.ErrTableNotFound, "preview", errors.New(name))
	}
	return strings.Repeat("MSc | 9000\n", rows), nil
}

func (f *fakeTables) SanitizeTableName(filename string) string { return "table_" + filename }

type fakeSessions struct {
	messages []domain.ConversationMessage
	cleared  string
	limit    int
}

func (f *fakeSessions) History(_ context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error) {
	f.limit = limit
	if sessionID == "missing" {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "history", errors.New(sessionID))
	}
	return f.messages, nil
}

func (f *fakeSessions) Clear(_ context.Context, sessionID string) error {
	f.cleared = sessionID
	return nil
}

type fakeKnowledgeBase struct{}

func (fakeKnowledgeBase) Status(context.Context) (domain.KnowledgeBaseStatus, error) {
	return domain.KnowledgeBaseStatus{
		ParentChunks: 3,
		ChildChunks:  12,
		Tables:       []string{"table_fees"},
		DataSources:  []domain.DataSource{{SourceName: "fees.csv", SourceType: domain.SourceCSVTable}},
	}, nil
}

type testServices struct {
	ingestor *fakeIngestor
	queries  *fakeQueries
	tables   *fakeTables
	sessions *fakeSessions
	services Services
}

func newTestServices() testServices {
	ts := testServices{
		ingestor: &fakeIngestor{},
		queries:  &fakeQueries{},
		tables:   &fakeTables{},
		sessions: &fakeSessions{},
	}
	ts.services = Services{
		Ingestor:      ts.ingestor,
		Documents:     fakeDocuments{},
		Queries:       ts.queries,
		Retriever:     &fakeRetriever{size: 12},
		Tables:        ts.tables,
		Sessions:      ts.sessions,
		KnowledgeBase: fakeKnowledgeBase{},
	}
	return ts
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, newTestServices().services, nil).Handler()
}
