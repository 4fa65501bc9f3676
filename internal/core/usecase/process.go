package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

// ProcessDocumentUseCase turns a stored upload into searchable knowledge:
// documents go through the document store, tables through the table engine.
type ProcessDocumentUseCase struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	extractor   ports.TextExtractor
	store       *DocumentStore
	retriever   ports.KnowledgeRetriever
	tables      ports.TableEngine
	dataSources ports.DataSourceStore
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	store *DocumentStore,
	retriever ports.KnowledgeRetriever,
	tables ports.TableEngine,
	dataSources ports.DataSourceStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:        repo,
		storage:     storage,
		extractor:   extractor,
		store:       store,
		retriever:   retriever,
		tables:      tables,
		dataSources: dataSources,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, result, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveResult(ctx, doc.ID, result); err != nil {
		err = fmt.Errorf("save ingest result: %w", err)
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}
	uc.recordDataSource(ctx, doc, result)

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, domain.IngestResult, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, domain.IngestResult{}, err
	}

	var result domain.IngestResult
	switch doc.Kind {
	case domain.KindTable:
		result, err = uc.loadTable(ctx, doc)
	default:
		result, err = uc.indexDocument(ctx, doc)
	}
	if err != nil {
		return nil, domain.IngestResult{}, err
	}
	return doc, result, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) indexDocument(ctx context.Context, doc *domain.Document) (domain.IngestResult, error) {
	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return domain.IngestResult{}, err
	}

	source := domain.SourceDocument{
		Text: text,
		Metadata: domain.ChunkMetadata{
			SourceFile:   doc.Filename,
			SourceFolder: doc.SourceFolder,
			HardKB:       doc.HardKB,
		},
	}
	parentIDs, err := uc.store.Ingest(ctx, []domain.SourceDocument{source}, IngestOptions{})
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("ingest into document store: %w", err)
	}

	if uc.retriever != nil {
		size, err := uc.retriever.RebuildKeywordIndex(ctx)
		if err != nil {
			// The lexical index is rebuilt lazily on the next search.
			slog.Warn("keyword_index_rebuild_failed", "document_id", doc.ID, "error", err)
		} else {
			slog.Info("keyword_index_rebuilt", "document_id", doc.ID, "chunks", size)
		}
	}
	return domain.IngestResult{ChunkCount: len(parentIDs)}, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) loadTable(ctx context.Context, doc *domain.Document) (domain.IngestResult, error) {
	if uc.tables == nil {
		return domain.IngestResult{}, domain.WrapError(domain.ErrUnsupportedFormat, "load table", errors.New("table engine is not configured"))
	}
	body, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("open stored table: %w", err)
	}
	defer body.Close()

	info, err := uc.tables.LoadTable(ctx, "", doc.Filename, body, domain.TableLoadOptions{Force: true})
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("load table: %w", err)
	}
	return domain.IngestResult{TableName: info.Name}, nil
}

// recordDataSource is bookkeeping only; a failure never fails the ingest.
func (uc *ProcessDocumentUseCase) recordDataSource(ctx context.Context, doc *domain.Document, result domain.IngestResult) {
	if uc.dataSources == nil {
		return
	}
	source := domain.DataSource{
		SourceName: doc.Filename,
		SourceType: domain.SourceTypeFor(doc.Filename),
		ChunkCount: result.ChunkCount,
		FileSizeKB: doc.SizeBytes / 1024,
		HardKB:     doc.HardKB,
		FilePath:   doc.StoragePath,
		UpdatedAt:  time.Now().UTC(),
	}
	if result.TableName != "" && uc.tables != nil {
		if schema, err := uc.tables.TableSchema(ctx, result.TableName); err == nil {
			source.RowCount = schema.RowCount
			source.Columns = schema.ColumnNames()
		}
	}
	if err := uc.dataSources.UpsertDataSource(ctx, source); err != nil {
		slog.Warn("data_source_upsert_failed", "source", source.SourceName, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
