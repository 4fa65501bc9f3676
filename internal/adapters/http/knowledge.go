package httpadapter

import (
	"net/http"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type sessionHistoryResponse struct {
	SessionID string                       `json:"session_id"`
	Messages  []domain.ConversationMessage `json:"messages"`
}

type reindexResponse struct {
	Chunks     int     `json:"chunks"`
	DurationMS float64 `json:"duration_ms"`
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Sessions == nil {
		writeUnavailable(w, "conversation store")
		return
	}
	id, err := bindPathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	limit, err := bindOptionalIntQuery(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	messages, err := rt.svc.Sessions.History(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ConversationMessage{}
	}
	writeJSON(w, http.StatusOK, sessionHistoryResponse{SessionID: id, Messages: messages})
}

func (rt *Router) clearSession(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Sessions == nil {
		writeUnavailable(w, "conversation store")
		return
	}
	id, err := bindPathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := rt.svc.Sessions.Clear(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) knowledgeBaseStatus(w http.ResponseWriter, r *http.Request) {
	if rt.svc.KnowledgeBase == nil {
		writeUnavailable(w, "knowledge base")
		return
	}
	status, err := rt.svc.KnowledgeBase.Status(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) reindex(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Retriever == nil {
		writeUnavailable(w, "retriever")
		return
	}
	start := time.Now()
	n, err := rt.svc.Retriever.RebuildKeywordIndex(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{
		Chunks:     n,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}
