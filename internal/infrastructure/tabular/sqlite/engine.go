// Package sqlite is the tabular engine: CSV and XLSX files loaded into
// named tables of an in-memory SQLite database and queried with ad hoc SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const (
	DefaultQueryLimit = 100
	sampleValueCount  = 3
)

type Options struct {
	Directories  []string
	DefaultLimit int
	Logger       *slog.Logger
}

type tableMeta struct {
	schema     domain.TableSchema
	sourceFile string
}

// Engine owns one in-memory database. Loads take the write lock, queries
// the read lock.
type Engine struct {
	mu     sync.RWMutex
	db     *sql.DB
	tables map[string]*tableMeta
	order  []string

	directories  []string
	defaultLimit int
	logger       *slog.Logger
}

func New(opts Options) (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open tabular database: %w", err)
	}
	// Every connection to :memory: is a separate database, so the pool is
	// pinned to one long-lived connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure tabular database: %w", err)
	}

	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:           db,
		tables:       make(map[string]*tableMeta),
		directories:  append([]string(nil), opts.Directories...),
		defaultLimit: limit,
		logger:       logger,
	}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) SanitizeTableName(filename string) string {
	return SanitizeTableName(filename)
}

// Tables lists table names in load order.
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.order...)
}

func (e *Engine) HasTable(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tables[name]
	return ok
}

// LoadTable decodes data and stores it under name, or under the sanitized
// filename when name is empty. An existing table is left untouched unless
// opts.Force is set.
func (e *Engine) LoadTable(ctx context.Context, name, filename string, data io.Reader, opts domain.TableLoadOptions) (domain.TableInfo, error) {
	if name == "" {
		name = SanitizeTableName(filepath.Base(filename))
	}
	info := domain.TableInfo{Name: name, SourceFile: filename}

	if !opts.Force && e.HasTable(name) {
		e.logger.Info("table already loaded", "table", name, "file", filename)
		info.Skipped = true
		return info, nil
	}

	f, err := decodeFile(filename, data)
	if err != nil {
		return info, domain.WrapError(domain.ErrInvalidInput, "decode table file", err)
	}
	if len(f.columns) == 0 {
		return info, domain.WrapError(domain.ErrInvalidInput, "decode table file", errors.New("no columns"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[name]; exists && !opts.Force {
		info.Skipped = true
		return info, nil
	}
	if err := e.writeTable(ctx, name, f); err != nil {
		return info, fmt.Errorf("write table %s: %w", name, err)
	}

	if _, exists := e.tables[name]; !exists {
		e.order = append(e.order, name)
	}
	e.tables[name] = &tableMeta{
		schema:     buildSchema(name, f),
		sourceFile: filename,
	}

	info.RowCount = len(f.rows)
	info.Columns = len(f.columns)
	info.Encoding = f.encoding
	e.logger.Info("table loaded", "table", name, "file", filename, "rows", info.RowCount, "columns", info.Columns, "encoding", f.encoding)
	return info, nil
}

// AddFile loads a tabular file from disk, optionally under a custom name.
func (e *Engine) AddFile(ctx context.Context, path, name string, opts domain.TableLoadOptions) (domain.TableInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.TableInfo{}, fmt.Errorf("open table file: %w", err)
	}
	defer file.Close()
	return e.LoadTable(ctx, name, filepath.Base(path), file, opts)
}

// LoadDirectory loads every tabular file in dir. Missing directories are
// skipped; files that fail to load are logged and skipped.
func (e *Engine) LoadDirectory(ctx context.Context, dir string, opts domain.TableLoadOptions) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Info("table directory does not exist", "dir", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("read table directory: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsTabularFile(entry.Name()) {
			continue
		}
		info, err := e.AddFile(ctx, filepath.Join(dir, entry.Name()), "", opts)
		if err != nil {
			e.logger.Error("load table failed", "file", entry.Name(), "error", err)
			continue
		}
		if !info.Skipped {
			loaded++
		}
	}
	return loaded, nil
}

// Reload drops every table and loads the configured directories again.
func (e *Engine) Reload(ctx context.Context) (int, error) {
	if err := e.dropAll(ctx); err != nil {
		return 0, err
	}
	total := 0
	for _, dir := range e.directories {
		n, err := e.LoadDirectory(ctx, dir, domain.TableLoadOptions{})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Execute runs query with the row-limit guard applied. Failures are
// reported in the result, never returned as errors.
func (e *Engine) Execute(ctx context.Context, query string, limit int) domain.QueryResult {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if err := CheckReadOnly(query); err != nil {
		e.logger.Warn("sql query refused", "error", err)
		return domain.QueryResult{Success: false, Error: err.Error(), Query: query}
	}
	query = ApplyRowLimit(query, limit)

	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		e.logger.Warn("sql query failed", "error", err)
		return domain.QueryResult{Success: false, Error: err.Error(), Query: query}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return domain.QueryResult{Success: false, Error: err.Error(), Query: query}
	}

	data := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.QueryResult{Success: false, Error: err.Error(), Query: query}
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return domain.QueryResult{Success: false, Error: err.Error(), Query: query}
	}

	e.logger.Info("sql query executed", "rows", len(data))
	return domain.QueryResult{
		Success:     true,
		RowCount:    len(data),
		ColumnCount: len(columns),
		Columns:     columns,
		Data:        data,
		Query:       query,
	}
}

// ApplyRowLimit appends a LIMIT clause unless the query already mentions
// LIMIT or ends with a statement terminator.
func ApplyRowLimit(query string, limit int) string {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.Contains(upper, "LIMIT") || strings.HasSuffix(upper, ";") {
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(query, ";"), limit)
}

func (e *Engine) TableSchema(_ context.Context, name string) (domain.TableSchema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta, ok := e.tables[name]
	if !ok {
		return domain.TableSchema{}, fmt.Errorf("table '%s' not found: %w", name, domain.ErrTableNotFound)
	}
	return meta.schema, nil
}

func (e *Engine) AllSchemas(_ context.Context) []domain.TableSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.TableSchema, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.tables[name].schema)
	}
	return out
}

func (e *Engine) writeTable(ctx context.Context, name string, f *frame) (err error) {
	if _, err := e.db.ExecContext(ctx, "PRAGMA query_only = OFF"); err != nil {
		return err
	}
	defer func() {
		if _, resetErr := e.db.ExecContext(context.Background(), "PRAGMA query_only = ON"); resetErr != nil && err == nil {
			err = resetErr
		}
	}()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return err
	}

	defs := make([]string, len(f.columns))
	placeholders := make([]string, len(f.columns))
	for i, col := range f.columns {
		defs[i] = quoteIdent(col) + " " + f.types[i]
		placeholders[i] = "?"
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(placeholders, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(f.columns))
	for _, row := range f.rows {
		for i := range f.columns {
			args[i] = convertValue(row[i], f.types[i])
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (e *Engine) dropAll(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.db.ExecContext(ctx, "PRAGMA query_only = OFF"); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	defer func() {
		if _, resetErr := e.db.ExecContext(context.Background(), "PRAGMA query_only = ON"); resetErr != nil && err == nil {
			err = resetErr
		}
	}()
	for _, name := range e.order {
		if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	e.tables = make(map[string]*tableMeta)
	e.order = nil
	return nil
}

func buildSchema(name string, f *frame) domain.TableSchema {
	columns := make([]domain.ColumnSchema, len(f.columns))
	for i, col := range f.columns {
		samples := make([]string, 0, sampleValueCount)
		for _, row := range f.rows {
			if len(samples) == sampleValueCount {
				break
			}
			samples = append(samples, row[i])
		}
		columns[i] = domain.ColumnSchema{Name: col, DataType: f.types[i], SampleValues: samples}
	}
	return domain.TableSchema{TableName: name, RowCount: len(f.rows), Columns: columns}
}

// IsTabularFile reports whether filename has a supported tabular extension.
func IsTabularFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	default:
		return false
	}
}

func decodeFile(filename string, data io.Reader) (*frame, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return decodeXLSX(data)
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}
	return decodeCSV(raw)
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
