package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Session struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ConversationMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryLogEntry records one orchestrator run. Token counts are estimated
// from word counts and are approximate.
type QueryLogEntry struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"session_id"`
	QueryText        string        `json:"query_text"`
	QueryType        QueryType     `json:"query_type"`
	Method           string        `json:"classification_method"`
	ResponseTime     time.Duration `json:"response_time"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	SQLUsed          bool          `json:"sql_used"`
	RAGUsed          bool          `json:"rag_used"`
	SourcesCount     int           `json:"sources_count"`
	Confidence       float64       `json:"confidence_score"`
	Outcome          OutcomeKind   `json:"outcome"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}
