package ports

import (
	"context"
	"io"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// DocumentRepository persists and reads ingest state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result domain.IngestResult) error
}

// ObjectStorage stores source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// ContentExtractor extracts plain text from raw file content; the
// extension of filename selects the format.
type ContentExtractor interface {
	ExtractContent(ctx context.Context, filename string, data io.Reader) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel is the opaque completion service.
type ChatModel interface {
	Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error)
}

// CrossEncoder scores (query, passage) pairs jointly. Scores are returned
// in the order of texts.
type CrossEncoder interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Chunker splits text into windows.
type Chunker interface {
	Split(text string) ([]string, error)
}

// ChunkIndex stores child chunks with their vectors.
type ChunkIndex interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.ScoredChunk, error)
	All(ctx context.Context) ([]domain.Chunk, error)
	HasDocument(ctx context.Context, docID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// ParentStore keeps parent chunk text keyed by parent id.
type ParentStore interface {
	SaveParents(ctx context.Context, parents []domain.ParentChunk) error
	GetParents(ctx context.Context, ids []string) (map[string]domain.ParentChunk, error)
	CountParents(ctx context.Context) (int, error)
	ClearParents(ctx context.Context) error
}

// KeywordIndex is a rebuildable lexical index over child chunks.
type KeywordIndex interface {
	Build(chunks []domain.Chunk)
	Search(query string, k int) []domain.ScoredChunk
	Len() int
}

// TableEngine runs ad hoc SQL over loaded tabular files.
type TableEngine interface {
	LoadTable(ctx context.Context, name string, filename string, data io.Reader, opts domain.TableLoadOptions) (domain.TableInfo, error)
	Execute(ctx context.Context, query string, limit int) domain.QueryResult
	ExecuteToString(ctx context.Context, query string, limit int) string
	TableSchema(ctx context.Context, name string) (domain.TableSchema, error)
	AllSchemas(ctx context.Context) []domain.TableSchema
	SchemaText(ctx context.Context, name string) string
	Tables() []string
	Preview(ctx context.Context, name string, rows int) (string, error)
	SanitizeTableName(filename string) string
}

// ConversationStore persists sessions and their messages.
type ConversationStore interface {
	EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// DataSourceStore keeps bookkeeping about loaded documents and tables.
type DataSourceStore interface {
	UpsertDataSource(ctx context.Context, source domain.DataSource) error
	GetDataSource(ctx context.Context, name string) (*domain.DataSource, error)
	ListDataSources(ctx context.Context) ([]domain.DataSource, error)
	IncrementQueryCount(ctx context.Context, name string) error
}

// QueryLogStore appends one entry per orchestrator run.
type QueryLogStore interface {
	AppendQueryLog(ctx context.Context, entry domain.QueryLogEntry) error
}
