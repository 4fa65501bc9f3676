package ports

import (
	"context"
	"io"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader, opts domain.UploadOptions) (*domain.Document, error)
}

// DocumentReader is the inbound read model for ingest state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QueryProcessor answers a question end to end.
type QueryProcessor interface {
	Process(ctx context.Context, req domain.QueryRequest) domain.QueryResponse
}

// KnowledgeRetriever is the inbound retrieval contract.
type KnowledgeRetriever interface {
	HybridSearch(ctx context.Context, query string, opts domain.HybridSearchOptions) ([]domain.RetrievalResult, error)
	RebuildKeywordIndex(ctx context.Context) (int, error)
}

// SessionService exposes conversation history.
type SessionService interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
	Clear(ctx context.Context, sessionID string) error
}

// KnowledgeBaseInspector reports what has been loaded.
type KnowledgeBaseInspector interface {
	Status(ctx context.Context) (domain.KnowledgeBaseStatus, error)
}
