package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// hashEmbedder maps words onto a small bag-of-words vector so cosine
// similarity follows word overlap.
type hashEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func hashVector(text string) []float32 {
	v := make([]float32, 64)
	for _, token := range wordTokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		v[h.Sum32()%64]++
	}
	return v
}

func wordTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// scriptedChat returns queued replies in order, then the fallback reply.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []string
	fallback string
	err      error
	prompts  []string
}

func (c *scriptedChat) Complete(_ context.Context, prompt string, _ domain.CompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		return reply, nil
	}
	return c.fallback, nil
}

func (c *scriptedChat) promptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// routedChat answers by matching a marker in the prompt.
type routedChat struct {
	mu      sync.Mutex
	routes  map[string]string
	errs    map[string]error
	prompts []string
}

func (c *routedChat) Complete(_ context.Context, prompt string, _ domain.CompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	for marker, err := range c.errs {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	for marker, reply := range c.routes {
		if strings.Contains(prompt, marker) {
			return reply, nil
		}
	}
	return "", errors.New("no route for prompt")
}

type fakeCrossEncoder struct {
	scores map[string]float64
	err    error
}

func (f *fakeCrossEncoder) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(texts))
	for i, text := range texts {
		out[i] = f.scores[text]
	}
	return out, nil
}

type splitterFunc func(string) ([]string, error)

func (f splitterFunc) Split(text string) ([]string, error) { return f(text) }

type fakeTableEngine struct {
	mu      sync.Mutex
	tables  []string
	queries []string
	limits  []int
}

func (f *fakeTableEngine) LoadTable(_ context.Context, name string, filename string, _ io.Reader, _ domain.TableLoadOptions) (domain.TableInfo, error) {
	if name == "" {
		name = f.SanitizeTableName(filename)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, name)
	return domain.TableInfo{Name: name, SourceFile: filename}, nil
}

func (f *fakeTableEngine) Execute(_ context.Context, query string, limit int) domain.QueryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	return domain.QueryResult{Success: true, Query: query, RowCount: 1, ColumnCount: 1, Columns: []string{"n"}, Data: []map[string]any{{"n": 42}}}
}

func (f *fakeTableEngine) ExecuteToString(ctx context.Context, query string, limit int) string {
	result := f.Execute(ctx, query, limit)
	return fmt.Sprintf("Query Results (%d rows):\n\nn\n42\n%s", result.RowCount, strings.Repeat("padding ", 40))
}

func (f *fakeTableEngine) TableSchema(_ context.Context, name string) (domain.TableSchema, error) {
	for _, table := range f.Tables() {
		if table == name {
			return domain.TableSchema{TableName: name, RowCount: 1, Columns: []domain.ColumnSchema{{Name: "n", DataType: "INTEGER"}}}, nil
		}
	}
	return domain.TableSchema{}, domain.ErrTableNotFound
}

func (f *fakeTableEngine) AllSchemas(ctx context.Context) []domain.TableSchema {
	out := make([]domain.TableSchema, 0)
	for _, table := range f.Tables() {
		schema, _ := f.TableSchema(ctx, table)
		out = append(out, schema)
	}
	return out
}

func (f *fakeTableEngine) SchemaText(_ context.Context, name string) string {
	if name == "" {
		return "Available SQL Tables:\n\n" + strings.Join(f.Tables(), "\n")
	}
	return "Table: " + name
}

func (f *fakeTableEngine) Tables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tables...)
}

func (f *fakeTableEngine) Preview(_ context.Context, name string, rows int) (string, error) {
	return fmt.Sprintf("Table: %s\nFirst %d rows", name, rows), nil
}

func (f *fakeTableEngine) SanitizeTableName(filename string) string {
	return "table_" + strings.ToLower(strings.TrimSuffix(filename, ".csv"))
}

type fakeRetriever struct {
	mu       sync.Mutex
	results  []domain.RetrievalResult
	err      error
	queries  []string
	rebuilds int
}

func (f *fakeRetriever) HybridSearch(_ context.Context, query string, _ domain.HybridSearchOptions) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.RetrievalResult(nil), f.results...), nil
}

func (f *fakeRetriever) RebuildKeywordIndex(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	return len(f.results), f.err
}

type fakeConversationStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	messages []domain.ConversationMessage
	err      error
}

func (f *fakeConversationStore) EnsureSession(_ context.Context, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.sessions == nil {
		f.sessions = make(map[string]domain.Session)
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		session = domain.Session{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		f.sessions[sessionID] = session
	}
	return &session, nil
}

func (f *fakeConversationStore) AppendMessage(_ context.Context, message domain.ConversationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeConversationStore) ListRecentMessages(_ context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.ConversationMessage, 0)
	for _, msg := range f.messages {
		if msg.SessionID == sessionID {
			matched = append(matched, msg)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (f *fakeConversationStore) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(f.sessions, sessionID)
	kept := f.messages[:0]
	for _, msg := range f.messages {
		if msg.SessionID != sessionID {
			kept = append(kept, msg)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeConversationStore) roles(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for _, msg := range f.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg.Role)
		}
	}
	return out
}

type fakeQueryLogStore struct {
	mu      sync.Mutex
	entries []domain.QueryLogEntry
}

func (f *fakeQueryLogStore) AppendQueryLog(_ context.Context, entry domain.QueryLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeDataSourceStore struct {
	mu      sync.Mutex
	sources map[string]domain.DataSource
	counts  map[string]int
}

func (f *fakeDataSourceStore) UpsertDataSource(_ context.Context, source domain.DataSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sources == nil {
		f.sources = make(map[string]domain.DataSource)
	}
	f.sources[source.SourceName] = source
	return nil
}

func (f *fakeDataSourceStore) GetDataSource(_ context.Context, name string) (*domain.DataSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[name]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return &source, nil
}

func (f *fakeDataSourceStore) ListDataSources(context.Context) ([]domain.DataSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DataSource, 0, len(f.sources))
	for _, source := range f.sources {
		out = append(out, source)
	}
	return out, nil
}

func (f *fakeDataSourceStore) IncrementQueryCount(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[name]++
	return nil
}
