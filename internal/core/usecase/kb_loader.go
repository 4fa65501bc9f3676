package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

var knowledgeDocumentExtensions = map[string]struct{}{
	".pdf": {}, ".txt": {}, ".md": {}, ".html": {}, ".htm": {},
}

// KnowledgeBaseLoader imports a knowledge-base directory: documents into
// the document store and tabular files into the table engine. Files already
// tracked as data sources are skipped unless the load is forced.
type KnowledgeBaseLoader struct {
	store       *DocumentStore
	retriever   ports.KnowledgeRetriever
	tables      ports.TableEngine
	extractor   ports.ContentExtractor
	dataSources ports.DataSourceStore
}

func NewKnowledgeBaseLoader(
	store *DocumentStore,
	retriever ports.KnowledgeRetriever,
	tables ports.TableEngine,
	extractor ports.ContentExtractor,
	dataSources ports.DataSourceStore,
) *KnowledgeBaseLoader {
	return &KnowledgeBaseLoader{
		store:       store,
		retriever:   retriever,
		tables:      tables,
		extractor:   extractor,
		dataSources: dataSources,
	}
}

// LoadDirectory imports the top level of dir, creating it when missing.
func (l *KnowledgeBaseLoader) LoadDirectory(ctx context.Context, dir string, hardKB bool, opts domain.LoadOptions) (domain.LoadReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.LoadReport{Folder: dir}, fmt.Errorf("create knowledge base dir: %w", err)
	}
	return l.LoadFolder(ctx, os.DirFS(dir), dir, hardKB, opts)
}

// LoadFolder imports every supported file at the root of fsys. folder is
// recorded as the source folder of the imported chunks.
func (l *KnowledgeBaseLoader) LoadFolder(ctx context.Context, fsys fs.FS, folder string, hardKB bool, opts domain.LoadOptions) (domain.LoadReport, error) {
	report := domain.LoadReport{Folder: folder}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return report, fmt.Errorf("read knowledge base dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		l.importInto(ctx, &report, fsys, folder, name, hardKB, opts)
	}

	if report.DocumentsLoaded > 0 {
		l.rebuildKeywordIndex(ctx)
	}
	slog.Info("knowledge_base_loaded",
		"folder", folder,
		"hard_kb", hardKB,
		"documents", report.DocumentsLoaded,
		"tables", report.TablesLoaded,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)
	return report, nil
}

// ImportFile imports a single file, as the directory watcher does for new
// files. It reports whether anything was loaded.
func (l *KnowledgeBaseLoader) ImportFile(ctx context.Context, path string, hardKB bool, opts domain.LoadOptions) (bool, error) {
	folder, name := filepath.Split(path)
	folder = filepath.Clean(folder)
	report := domain.LoadReport{Folder: folder}
	l.importInto(ctx, &report, os.DirFS(folder), folder, name, hardKB, opts)
	if len(report.Failed) > 0 {
		return false, fmt.Errorf("import %s failed", name)
	}
	if report.DocumentsLoaded > 0 {
		l.rebuildKeywordIndex(ctx)
	}
	return report.DocumentsLoaded+report.TablesLoaded > 0, nil
}

func (l *KnowledgeBaseLoader) importInto(ctx context.Context, report *domain.LoadReport, fsys fs.FS, folder, name string, hardKB bool, opts domain.LoadOptions) {
	kind, ok := knowledgeFileKind(name)
	if !ok {
		return
	}
	if (kind == domain.KindTable && opts.DocsOnly) || (kind == domain.KindDocument && opts.CSVOnly) {
		return
	}
	if !opts.Force && l.isTracked(ctx, name) {
		slog.Info("knowledge_file_skipped", "file", name, "reason", "already_loaded")
		report.Skipped++
		return
	}

	var err error
	switch kind {
	case domain.KindTable:
		err = l.importTable(ctx, fsys, name, hardKB, opts)
		if err == nil {
			report.TablesLoaded++
		}
	default:
		err = l.importDocument(ctx, fsys, folder, name, hardKB, opts)
		if err == nil {
			report.DocumentsLoaded++
		}
	}
	if err != nil {
		slog.Error("knowledge_file_failed", "file", name, "error", err)
		report.Failed = append(report.Failed, name)
	}
}

func (l *KnowledgeBaseLoader) importDocument(ctx context.Context, fsys fs.FS, folder, name string, hardKB bool, opts domain.LoadOptions) error {
	if l.store == nil || l.extractor == nil {
		return errors.New("document store is not configured")
	}
	file, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	text, err := l.extractor.ExtractContent(ctx, name, file)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("empty document"))
	}

	parentIDs, err := l.store.Ingest(ctx, []domain.SourceDocument{{
		Text: text,
		Metadata: domain.ChunkMetadata{
			SourceFile:   name,
			SourceFolder: folder,
			HardKB:       hardKB,
		},
	}}, IngestOptions{Force: opts.Force})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	l.track(ctx, domain.DataSource{
		SourceName: name,
		SourceType: domain.SourceTypeFor(name),
		ChunkCount: len(parentIDs),
		FileSizeKB: fileSizeKB(fsys, name),
		HardKB:     hardKB,
		FilePath:   filepath.Join(folder, name),
	})
	slog.Info("knowledge_document_loaded", "file", name, "parents", len(parentIDs))
	return nil
}

func (l *KnowledgeBaseLoader) importTable(ctx context.Context, fsys fs.FS, name string, hardKB bool, opts domain.LoadOptions) error {
	if l.tables == nil {
		return errors.New("table engine is not configured")
	}
	file, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	info, err := l.tables.LoadTable(ctx, "", name, file, domain.TableLoadOptions{Force: opts.Force})
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}

	source := domain.DataSource{
		SourceName: name,
		SourceType: domain.SourceTypeFor(name),
		FileSizeKB: fileSizeKB(fsys, name),
		HardKB:     hardKB,
		FilePath:   name,
	}
	if schema, err := l.tables.TableSchema(ctx, info.Name); err == nil {
		source.RowCount = schema.RowCount
		source.Columns = schema.ColumnNames()
	}
	l.track(ctx, source)
	slog.Info("knowledge_table_loaded", "file", name, "table", info.Name, "rows", source.RowCount)
	return nil
}

// Status reports collection sizes, loaded tables and tracked sources.
// Data source bookkeeping is optional and its failure is not fatal.
func (l *KnowledgeBaseLoader) Status(ctx context.Context) (domain.KnowledgeBaseStatus, error) {
	status := domain.KnowledgeBaseStatus{Tables: []string{}, DataSources: []domain.DataSource{}}
	if l.store != nil {
		stats, err := l.store.Stats(ctx)
		if err != nil {
			return status, fmt.Errorf("document store stats: %w", err)
		}
		status.ParentChunks = stats.ParentChunks
		status.ChildChunks = stats.ChildChunks
	}
	if l.tables != nil {
		status.Tables = append(status.Tables, l.tables.Tables()...)
	}
	if l.dataSources != nil {
		sources, err := l.dataSources.ListDataSources(ctx)
		if err != nil {
			slog.Warn("data_source_list_failed", "error", err)
		} else {
			status.DataSources = append(status.DataSources, sources...)
		}
	}
	return status, nil
}

func (l *KnowledgeBaseLoader) isTracked(ctx context.Context, name string) bool {
	if l.dataSources == nil {
		return false
	}
	source, err := l.dataSources.GetDataSource(ctx, name)
	return err == nil && source != nil
}

func (l *KnowledgeBaseLoader) track(ctx context.Context, source domain.DataSource) {
	if l.dataSources == nil {
		return
	}
	source.UpdatedAt = time.Now().UTC()
	if err := l.dataSources.UpsertDataSource(ctx, source); err != nil {
		slog.Warn("data_source_upsert_failed", "source", source.SourceName, "error", err)
	}
}

func (l *KnowledgeBaseLoader) rebuildKeywordIndex(ctx context.Context) {
	if l.retriever == nil {
		return
	}
	if _, err := l.retriever.RebuildKeywordIndex(ctx); err != nil {
		slog.Warn("keyword_index_rebuild_failed", "error", err)
	}
}

func knowledgeFileKind(name string) (domain.DocumentKind, bool) {
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	if domain.KindForFilename(name) == domain.KindTable {
		return domain.KindTable, true
	}
	_, ok := knowledgeDocumentExtensions[strings.ToLower(filepath.Ext(name))]
	return domain.KindDocument, ok
}

func fileSizeKB(fsys fs.FS, name string) int64 {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return 0
	}
	return info.Size() / 1024
}
