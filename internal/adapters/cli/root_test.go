package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type loadCall struct {
	dir    string
	hardKB bool
	opts   domain.LoadOptions
}

type fakeLoader struct {
	calls  []loadCall
	failed []string
}

func (f *fakeLoader) LoadDirectory(_ context.Context, dir string, hardKB bool, opts domain.LoadOptions) (domain.LoadReport, error) {
	f.calls = append(f.calls, loadCall{dir: dir, hardKB: hardKB, opts: opts})
	return domain.LoadReport{Folder: dir, DocumentsLoaded: 2, TablesLoaded: 1, Failed: f.failed}, nil
}

func (f *fakeLoader) Status(context.Context) (domain.KnowledgeBaseStatus, error) {
	return domain.KnowledgeBaseStatus{ParentChunks: 4, ChildChunks: 9, Tables: []string{"table_fees"}}, nil
}

type fakeSearcher struct {
	k       int
	context string
}

func (f *fakeSearcher) IntelligentSearch(_ context.Context, _ string, k int, conversation string) ([]domain.RetrievalResult, error) {
	f.k, f.context = k, conversation
	return []domain.RetrievalResult{{
		Chunk:       domain.Chunk{ID: "c1", Text: "Student visa   applications take\nthree weeks."},
		SourceLabel: "visa.txt",
		Scores:      domain.RetrievalScores{Fused: 0.03},
	}}, nil
}

func (f *fakeSearcher) RebuildKeywordIndex(context.Context) (int, error) { return 9, nil }

type fakeTables struct {
	limit int
}

func (f *fakeTables) LoadTable(context.Context, string, string, io.Reader, domain.TableLoadOptions) (domain.TableInfo, error) {
	return domain.TableInfo{}, nil
}
func (f *fakeTables) Execute(_ context.Context, query string, limit int) domain.QueryResult {
	f.limit = limit
	return domain.QueryResult{Success: false, Query: query, Error: "no such table: x"}
}
func (f *fakeTables) ExecuteToString(_ context.Context, _ string, limit int) string {
	f.limit = limit
	return "program | fee\nMSc | 9000"
}
func (f *fakeTables) TableSchema(context.Context, string) (domain.TableSchema, error) {
	return domain.TableSchema{}, nil
}
func (f *fakeTables) AllSchemas(context.Context) []domain.TableSchema {
	return []domain.TableSchema{{TableName: "table_fees", RowCount: 1, Columns: []domain.ColumnSchema{{Name: "fee", DataType: "INTEGER"}}}}
}
func (f *fakeTables) SchemaText(context.Context, string) string { return "" }
func (f *fakeTables) Tables() []string                          { return []string{"table_fees"} }
func (f *fakeTables) Preview(_ context.Context, name string, rows int) (string, error) {
	return strings.Repeat(name+"\n", rows), nil
}
func (f *fakeTables) SanitizeTableName(name string) string { return name }

type fakeQueries struct {
	req domain.QueryRequest
}

func (f *fakeQueries) Process(_ context.Context, req domain.QueryRequest) domain.QueryResponse {
	f.req = req
	return domain.QueryResponse{Answer: "Three weeks.", SessionID: "s-9", Outcome: domain.Degraded("tool_failure")}
}

type fixture struct {
	loader  *fakeLoader
	search  *fakeSearcher
	tables  *fakeTables
	queries *fakeQueries
	closed  int
	builds  int
}

func (f *fixture) factory(context.Context) (*Services, error) {
	f.builds++
	return &Services{
		Loader:           f.loader,
		Tables:           f.tables,
		Retriever:        f.search,
		Queries:          f.queries,
		KnowledgeBaseDir: "kb",
		UploadsDir:       "uploads",
		SearchK:          3,
		SQLLimit:         100,
		Close:            func() { f.closed++ },
	}, nil
}

func newFixture() *fixture {
	return &fixture{loader: &fakeLoader{}, search: &fakeSearcher{}, tables: &fakeTables{}, queries: &fakeQueries{}}
}

func run(t *testing.T, f *fixture, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), f.factory, args, &out)
	return out.String(), err
}

func TestLoadKBImportsBothFolders(t *testing.T) {
	f := newFixture()
	out, err := run(t, f, "load-kb", "--force")
	if err != nil {
		t.Fatalf("load-kb error = %v", err)
	}
	if len(f.loader.calls) != 2 {
		t.Fatalf("expected two folders, got %+v", f.loader.calls)
	}
	if f.loader.calls[0].dir != "kb" || !f.loader.calls[0].hardKB || f.loader.calls[1].dir != "uploads" || f.loader.calls[1].hardKB {
		t.Fatalf("unexpected folders: %+v", f.loader.calls)
	}
	if !f.loader.calls[0].opts.Force {
		t.Fatalf("force flag not forwarded")
	}
	if !strings.Contains(out, "kb: 2 document(s), 1 table(s)") {
		t.Fatalf("unexpected output: %s", out)
	}
	if f.closed != 1 {
		t.Fatalf("expected services closed once, got %d", f.closed)
	}
}

func TestLoadKBFolderAndKindFilters(t *testing.T) {
	f := newFixture()
	if _, err := run(t, f, "load-kb", "--hard-kb-only", "--csv-only"); err != nil {
		t.Fatalf("load-kb error = %v", err)
	}
	if len(f.loader.calls) != 1 || f.loader.calls[0].dir != "kb" || !f.loader.calls[0].opts.CSVOnly {
		t.Fatalf("unexpected calls: %+v", f.loader.calls)
	}

	f = newFixture()
	if _, err := run(t, f, "load-kb", "--csv-only", "--docs-only"); err == nil {
		t.Fatalf("expected conflicting flags to fail")
	}
	if f.builds != 0 {
		t.Fatalf("services must not be built for invalid flags")
	}
}

func TestLoadKBReportsFailures(t *testing.T) {
	f := newFixture()
	f.loader.failed = []string{"broken.pdf"}
	out, err := run(t, f, "load-kb", "--uploads-only")
	if err == nil || !strings.Contains(err.Error(), "1 file(s) failed") {
		t.Fatalf("expected failure error, got %v", err)
	}
	if !strings.Contains(out, "failed: broken.pdf") {
		t.Fatalf("failed file not printed: %s", out)
	}
}

func TestSearchDefaultsToConfiguredK(t *testing.T) {
	f := newFixture()
	out, err := run(t, f, "search", "visa processing time", "--context", "user: I am from Nepal")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if f.search.k != 3 || f.search.context != "user: I am from Nepal" {
		t.Fatalf("unexpected search call: k=%d context=%q", f.search.k, f.search.context)
	}
	if !strings.Contains(out, "[1] visa.txt") || !strings.Contains(out, "Student visa applications take three weeks.") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSQLUsesDefaultLimitAndJSONFailure(t *testing.T) {
	f := newFixture()
	out, err := run(t, f, "sql", "SELECT * FROM table_fees")
	if err != nil {
		t.Fatalf("sql error = %v", err)
	}
	if f.tables.limit != 100 || !strings.Contains(out, "MSc | 9000") {
		t.Fatalf("unexpected sql run: limit=%d out=%s", f.tables.limit, out)
	}

	if _, err := run(t, f, "sql", "--json", "--limit", "7", "SELECT * FROM x"); err == nil {
		t.Fatalf("expected failed query to return an error")
	}
	if f.tables.limit != 7 {
		t.Fatalf("expected limit 7, got %d", f.tables.limit)
	}
}

func TestAskPrintsOutcome(t *testing.T) {
	f := newFixture()
	out, err := run(t, f, "ask", "--session", "s-9", "How long does a visa take?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if f.queries.req.SessionID != "s-9" {
		t.Fatalf("session not forwarded: %+v", f.queries.req)
	}
	if !strings.Contains(out, "Three weeks.") || !strings.Contains(out, "outcome: degraded") || !strings.Contains(out, "reason: tool_failure") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestTablesStatusAndPreview(t *testing.T) {
	f := newFixture()
	out, err := run(t, f, "tables")
	if err != nil || !strings.Contains(out, "table_fees (1 rows)") || !strings.Contains(out, "INTEGER") {
		t.Fatalf("tables: err=%v out=%s", err, out)
	}
	out, err = run(t, f, "status")
	if err != nil || !strings.Contains(out, "Child chunks:  9") {
		t.Fatalf("status: err=%v out=%s", err, out)
	}
	out, err = run(t, f, "preview", "-n", "2", "table_fees")
	if err != nil || strings.Count(out, "table_fees") != 2 {
		t.Fatalf("preview: err=%v out=%s", err, out)
	}
}

func TestFactoryErrorIsReturned(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("postgres unreachable")
	err := Execute(context.Background(), func(context.Context) (*Services, error) { return nil, boom }, []string{"reindex"}, &out)
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestMCPServeRequiresTools(t *testing.T) {
	f := newFixture()
	if _, err := run(t, f, "mcp", "serve"); err == nil {
		t.Fatalf("expected error without a tool executor")
	}
}
