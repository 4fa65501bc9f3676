package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// DocumentKind selects the ingest path: documents go to the chunk index,
// tables go to the tabular engine.
type DocumentKind string

const (
	KindDocument DocumentKind = "document"
	KindTable    DocumentKind = "table"
)

type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	StoragePath  string         `json:"storage_path"`
	Kind         DocumentKind   `json:"kind"`
	HardKB       bool           `json:"hard_kb"`
	SourceFolder string         `json:"source_folder,omitempty"`
	SizeBytes    int64          `json:"size_bytes"`
	ChunkCount   int            `json:"chunk_count"`
	TableName    string         `json:"table_name,omitempty"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// KindForFilename picks the ingest path from the file extension.
func KindForFilename(filename string) DocumentKind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return KindTable
	default:
		return KindDocument
	}
}

// SourceTypeFor maps a filename to its data source type. Unknown
// extensions are treated as plain text.
func SourceTypeFor(filename string) DataSourceType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return SourcePDFDocument
	case ".html", ".htm":
		return SourceHTMLDocument
	case ".csv":
		return SourceCSVTable
	case ".xlsx":
		return SourceXLSXTable
	default:
		return SourceTextDocument
	}
}

// IngestResult is what processing a stored document produced.
type IngestResult struct {
	ChunkCount int    `json:"chunk_count"`
	TableName  string `json:"table_name,omitempty"`
}

// SourceDocument is raw text handed to the document store.
type SourceDocument struct {
	Text     string
	Metadata ChunkMetadata
}

// UploadOptions describe where an uploaded file came from.
type UploadOptions struct {
	HardKB       bool
	SourceFolder string
}

type DataSourceType string

const (
	SourcePDFDocument  DataSourceType = "pdf_document"
	SourceTextDocument DataSourceType = "text_document"
	SourceHTMLDocument DataSourceType = "html_document"
	SourceCSVTable     DataSourceType = "csv_table"
	SourceXLSXTable    DataSourceType = "xlsx_table"
)

// DataSource is bookkeeping for one loaded document or table.
type DataSource struct {
	SourceName string         `json:"source_name"`
	SourceType DataSourceType `json:"source_type"`
	RowCount   int            `json:"row_count"`
	ChunkCount int            `json:"chunk_count"`
	Columns    []string       `json:"columns,omitempty"`
	FileSizeKB int64          `json:"file_size_kb"`
	HardKB     bool           `json:"hard_kb"`
	FilePath   string         `json:"file_path,omitempty"`
	QueryCount int            `json:"query_count"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// LoadOptions controls a knowledge-base directory import.
type LoadOptions struct {
	Force    bool
	CSVOnly  bool
	DocsOnly bool
}

// LoadReport summarises a directory import.
type LoadReport struct {
	Folder          string   `json:"folder"`
	DocumentsLoaded int      `json:"documents_loaded"`
	TablesLoaded    int      `json:"tables_loaded"`
	Skipped         int      `json:"skipped"`
	Failed          []string `json:"failed,omitempty"`
}

// KnowledgeBaseStatus is a snapshot of everything the assistant can
// answer from.
type KnowledgeBaseStatus struct {
	ParentChunks int          `json:"parent_chunks"`
	ChildChunks  int          `json:"child_chunks"`
	Tables       []string     `json:"tables"`
	DataSources  []DataSource `json:"data_sources"`
}
