package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", 4, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveResult(context.Background(), "missing", domain.IngestResult{ChunkCount: 4})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAndGetRoundTripColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	doc := &domain.Document{
		ID: "doc-1", Filename: "fees.csv", MimeType: "text/csv", StoragePath: "doc-1_fees.csv",
		Kind: domain.KindTable, HardKB: true, SourceFolder: "kb", SizeBytes: 2048,
		Status: domain.StatusUploaded, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "fees.csv", "text/csv", "doc-1_fees.csv", "table", true, "kb", int64(2048), 0, "", "uploaded", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "filename", "mime_type", "storage_path", "kind", "hard_kb", "source_folder", "size_bytes", "chunk_count", "table_name", "status", "error_message", "created_at", "updated_at"}).
		AddRow("doc-1", "fees.csv", "text/csv", "doc-1_fees.csv", "table", true, "kb", int64(2048), 0, "table_fees", "ready", "", now, now)
	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").WithArgs("doc-1").WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Kind != domain.KindTable || got.Status != domain.StatusReady || got.TableName != "table_fees" || !got.HardKB {
		t.Fatalf("unexpected document: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
