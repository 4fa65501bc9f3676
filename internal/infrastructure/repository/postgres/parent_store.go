package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// ParentStore keeps parent chunk text so that children held in a remote
// vector index can be expanded to their context window.
type ParentStore struct {
	db *sql.DB
}

func NewParentStore(db *sql.DB) *ParentStore {
	return &ParentStore{db: db}
}

func (s *ParentStore) SaveParents(ctx context.Context, parents []domain.ParentChunk) error {
	if len(parents) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save parents tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO parent_chunks (id, doc_id, content, metadata, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata
`)
	if err != nil {
		return fmt.Errorf("prepare save parents: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, parent := range parents {
		metadata, err := json.Marshal(parent.Metadata)
		if err != nil {
			return fmt.Errorf("marshal parent metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, parent.ID, parent.Metadata.DocID, parent.Text, metadata, now); err != nil {
			return fmt.Errorf("save parent %s: %w", parent.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save parents: %w", err)
	}
	return nil
}

func (s *ParentStore) GetParents(ctx context.Context, ids []string) (map[string]domain.ParentChunk, error) {
	out := make(map[string]domain.ParentChunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata FROM parent_chunks WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get parents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parent domain.ParentChunk
		var metadata []byte
		if err := rows.Scan(&parent.ID, &parent.Text, &metadata); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &parent.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal parent metadata: %w", err)
			}
		}
		out[parent.ID] = parent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parents: %w", err)
	}
	return out, nil
}

func (s *ParentStore) CountParents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parent_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count parents: %w", err)
	}
	return n, nil
}

func (s *ParentStore) ClearParents(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parent_chunks`); err != nil {
		return fmt.Errorf("clear parents: %w", err)
	}
	return nil
}
