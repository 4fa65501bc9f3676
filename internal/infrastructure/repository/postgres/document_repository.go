package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, kind, hard_kb, source_folder, size_bytes, chunk_count, table_name, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, string(doc.Kind), doc.HardKB, doc.SourceFolder,
		doc.SizeBytes, doc.ChunkCount, doc.TableName, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, kind, hard_kb, source_folder, size_bytes, chunk_count, table_name, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var kind, status string
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &kind, &doc.HardKB, &doc.SourceFolder,
		&doc.SizeBytes, &doc.ChunkCount, &doc.TableName, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound(domain.ErrDocumentNotFound, "get document", id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Kind = domain.DocumentKind(kind)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectAffected(res, domain.ErrDocumentNotFound, "update document status", id)
}

func (r *DocumentRepository) SaveResult(ctx context.Context, id string, result domain.IngestResult) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET chunk_count = $2, table_name = $3, updated_at = $4
WHERE id = $1
`, id, result.ChunkCount, result.TableName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save ingest result: %w", err)
	}
	return expectAffected(res, domain.ErrDocumentNotFound, "save ingest result", id)
}
