package httpadapter

import (
	"fmt"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
	Name    string      `json:"name,omitempty"`
}

type chatCompletionMetadata struct {
	SessionID string `json:"session_id,omitempty"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatMessage           `json:"messages"`
	Stream   bool                    `json:"stream"`
	User     string                  `json:"user,omitempty"`
	Metadata *chatCompletionMetadata `json:"metadata,omitempty"`
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// chatCompletionDebug carries the orchestrator's view of the answer so
// clients can show where it came from.
type chatCompletionDebug struct {
	SessionID  string           `json:"session_id"`
	QueryType  domain.QueryType `json:"query_type"`
	ToolsUsed  []string         `json:"tools_used"`
	Confidence float64          `json:"confidence_score"`
	Outcome    domain.Outcome   `json:"outcome"`
	Sources    []domain.Source  `json:"sources,omitempty"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   chatCompletionUsage    `json:"usage"`
	Debug   *chatCompletionDebug   `json:"debug,omitempty"`
}

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

func buildChatCompletionResponse(completionID string, created int64, modelID, prompt string, answer domain.QueryResponse) chatCompletionResponse {
	return chatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   modelID,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      responseMessage{Role: domain.RoleAssistant, Content: answer.Answer},
			FinishReason: "stop",
		}},
		Usage: estimateUsage(prompt, answer.Answer),
		Debug: &chatCompletionDebug{
			SessionID:  answer.SessionID,
			QueryType:  answer.QueryType,
			ToolsUsed:  answer.ToolsUsed,
			Confidence: answer.Confidence,
			Outcome:    answer.Outcome,
			Sources:    answer.Sources,
		},
	}
}

func estimateUsage(prompt, completion string) chatCompletionUsage {
	promptTokens := domain.EstimateTokenCount(prompt)
	completionTokens := domain.EstimateTokenCount(completion)
	return chatCompletionUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
