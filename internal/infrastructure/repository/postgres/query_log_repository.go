package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) AppendQueryLog(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_logs (
	id, session_id, query_text, query_type, classification_method, response_time_ms,
	prompt_tokens, completion_tokens, total_tokens, sql_used, rag_used, sources_count,
	confidence_score, outcome, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		entry.ID, entry.SessionID, entry.QueryText, string(entry.QueryType), entry.Method, entry.ResponseTime.Milliseconds(),
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens, entry.SQLUsed, entry.RAGUsed, entry.SourcesCount,
		entry.Confidence, string(entry.Outcome), entry.ErrorMessage, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append query log: %w", err)
	}
	return nil
}
