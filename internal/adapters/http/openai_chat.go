package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const defaultModelID = "studynet-counselor"

func (rt *Router) modelID(requested string) string {
	if id := strings.TrimSpace(requested); id != "" {
		return id
	}
	if rt.openAICompatModelID != "" {
		return rt.openAICompatModelID
	}
	return defaultModelID
}

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelList{
		Object: "list",
		Data: []modelObject{{
			ID:      rt.modelID(""),
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "studynet",
		}},
	})
}

// chatCompletions answers the last user message through the orchestrator.
// Earlier messages become conversation context; the session comes from
// metadata.session_id or the user field.
func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages are required")
		return
	}
	current, question, ok := latestUserMessage(req.Messages)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one user message with text content is required")
		return
	}

	modelID := rt.modelID(req.Model)
	query := domain.QueryRequest{
		Query:     question,
		SessionID: chatSessionID(req),
		Context:   conversationContext(req.Messages, current, rt.openAICompatContextMessages),
	}

	start := time.Now()
	answer := rt.svc.Queries.Process(r.Context(), query)
	rt.httpMetrics.RecordQuery(serviceName, "chat_completions", answer, time.Since(start))

	prompt := question
	if query.Context != "" {
		prompt = query.Context + "\n" + question
	}
	response := buildChatCompletionResponse(newCompletionID(), time.Now().Unix(), modelID, prompt, answer)
	rt.httpMetrics.RecordTokenUsage(serviceName, "chat_completions", modelID, response.Usage.PromptTokens, response.Usage.CompletionTokens)
	slog.Info("chat_completion_answered",
		"request_id", requestIDFromContext(r.Context()),
		"session_id", answer.SessionID,
		"model", modelID,
		"stream", req.Stream,
		"query_type", answer.QueryType,
		"outcome", answer.Outcome.Kind,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	if req.Stream {
		chunks := buildTextStreamChunks(response.ID, response.Created, modelID, answer.Answer, rt.openAICompatStreamChunkChars)
		if err := writeChatCompletionStream(w, chunks); err != nil {
			slog.Warn("chat_completion_stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, response)
}
