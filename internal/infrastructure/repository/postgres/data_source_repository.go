package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type DataSourceRepository struct {
	db *sql.DB
}

func NewDataSourceRepository(db *sql.DB) *DataSourceRepository {
	return &DataSourceRepository{db: db}
}

// UpsertDataSource records a loaded source. The query counter survives
// reloads.
func (r *DataSourceRepository) UpsertDataSource(ctx context.Context, source domain.DataSource) error {
	columns := source.Columns
	if columns == nil {
		columns = []string{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	if source.UpdatedAt.IsZero() {
		source.UpdatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO data_sources (source_name, source_type, row_count, chunk_count, columns, file_size_kb, hard_kb, file_path, query_count, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9)
ON CONFLICT (source_name) DO UPDATE SET
	source_type = EXCLUDED.source_type,
	row_count = EXCLUDED.row_count,
	chunk_count = EXCLUDED.chunk_count,
	columns = EXCLUDED.columns,
	file_size_kb = EXCLUDED.file_size_kb,
	hard_kb = EXCLUDED.hard_kb,
	file_path = EXCLUDED.file_path,
	updated_at = EXCLUDED.updated_at
`, source.SourceName, string(source.SourceType), source.RowCount, source.ChunkCount, columnsJSON,
		source.FileSizeKB, source.HardKB, source.FilePath, source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert data source: %w", err)
	}
	return nil
}

const dataSourceColumns = `source_name, source_type, row_count, chunk_count, columns, file_size_kb, hard_kb, file_path, query_count, updated_at`

func (r *DataSourceRepository) GetDataSource(ctx context.Context, name string) (*domain.DataSource, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE source_name = $1`, name)
	source, err := scanDataSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound(domain.ErrDocumentNotFound, "get data source", name)
		}
		return nil, err
	}
	return &source, nil
}

func (r *DataSourceRepository) ListDataSources(ctx context.Context) ([]domain.DataSource, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY hard_kb DESC, source_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list data sources: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DataSource, 0)
	for rows.Next() {
		source, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data sources: %w", err)
	}
	return out, nil
}

func (r *DataSourceRepository) IncrementQueryCount(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE data_sources
SET query_count = query_count + 1
WHERE source_name = $1
`, name)
	if err != nil {
		return fmt.Errorf("increment query count: %w", err)
	}
	return expectAffected(res, domain.ErrDocumentNotFound, "increment query count", name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (domain.DataSource, error) {
	var source domain.DataSource
	var sourceType string
	var columnsRaw []byte
	err := row.Scan(
		&source.SourceName, &sourceType, &source.RowCount, &source.ChunkCount, &columnsRaw,
		&source.FileSizeKB, &source.HardKB, &source.FilePath, &source.QueryCount, &source.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return source, err
		}
		return source, fmt.Errorf("scan data source: %w", err)
	}
	if len(columnsRaw) > 0 {
		if err := json.Unmarshal(columnsRaw, &source.Columns); err != nil {
			return source, fmt.Errorf("unmarshal columns: %w", err)
		}
	}
	source.SourceType = domain.DataSourceType(sourceType)
	return source, nil
}
