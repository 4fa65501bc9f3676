package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

// IngestDocumentUseCase stores an upload and queues it for processing.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
	opts domain.UploadOptions,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	if !isSupportedUpload(filename) {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "upload document", fmt.Errorf("extension %q", filepath.Ext(filename)))
	}

	id := uuid.NewString()
	kind := domain.KindForFilename(filename)
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if kind == domain.KindTable {
		storageKey = TableStorageKey(filename)
	}
	now := time.Now().UTC()

	counted := &countingReader{r: body}
	if err := uc.storage.Save(ctx, storageKey, counted); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:           id,
		Filename:     filename,
		MimeType:     mimeType,
		StoragePath:  storageKey,
		Kind:         kind,
		HardKB:       opts.HardKB,
		SourceFolder: opts.SourceFolder,
		SizeBytes:    counted.n,
		Status:       domain.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "publish ingestion event", errors.New("message queue is not configured"))
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

// GetByID returns the ingest state of one upload.
func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, id)
}

// TableStorageDir holds uploaded tabular files under their own names so the
// table engine can reload them from disk on startup.
const TableStorageDir = "tables"

// TableStorageKey is the storage key of an uploaded tabular file. A later
// upload with the same name replaces the earlier one, as the table does.
func TableStorageKey(filename string) string {
	return TableStorageDir + "/" + sanitizeFilename(filename)
}

var supportedUploadExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".pdf": {}, ".html": {}, ".htm": {}, ".csv": {}, ".xlsx": {},
}

func isSupportedUpload(filename string) bool {
	_, ok := supportedUploadExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
