package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/routers"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/metrics"
)

const (
	defaultPreviewRows  = 5
	defaultHistoryLimit = 50
	defaultMaxUpload    = 50 << 20
	serviceName         = "api"
)

// Services are the inbound ports the HTTP adapter drives. Ingestor,
// Documents and Queries are required; the rest switch their routes off
// with 503 when nil.
type Services struct {
	Ingestor      ports.DocumentIngestor
	Documents     ports.DocumentReader
	Queries       ports.QueryProcessor
	Retriever     ports.KnowledgeRetriever
	Tables        ports.TableEngine
	Sessions      ports.SessionService
	KnowledgeBase ports.KnowledgeBaseInspector
}

type Router struct {
	svc         Services
	httpMetrics *metrics.HTTPServerMetrics
	validator   routers.Router

	sqlLimit                     int
	maxUploadBytes               int64
	rateLimitRPS                 float64
	rateLimitBurst               int
	maxInFlight                  int
	backpressureWait             time.Duration
	openAICompatAPIKey           string
	openAICompatModelID          string
	openAICompatContextMessages  int
	openAICompatStreamChunkChars int
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPServerMetrics(serviceName)
	}
	validator, err := loadOpenAPIRouter(context.Background())
	if err != nil {
		slog.Error("openapi_validator_disabled", "error", err)
		validator = nil
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Router{
		svc:                          svc,
		httpMetrics:                  httpMetrics,
		validator:                    validator,
		sqlLimit:                     cfg.SQLQueryLimit,
		maxUploadBytes:               maxUpload,
		rateLimitRPS:                 cfg.APIRateLimitRPS,
		rateLimitBurst:               cfg.APIRateLimitBurst,
		maxInFlight:                  cfg.APIMaxInFlight,
		backpressureWait:             cfg.APIBackpressureWait,
		openAICompatAPIKey:           cfg.OpenAICompatAPIKey,
		openAICompatModelID:          cfg.OpenAICompatModelID,
		openAICompatContextMessages:  cfg.OpenAICompatContextMessages,
		openAICompatStreamChunkChars: cfg.OpenAICompatStreamChunkChars,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())

	mux.HandleFunc("POST /v1/query", rt.query)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("POST /v1/text", rt.ingestText)

	mux.HandleFunc("GET /v1/tables", rt.listTables)
	mux.HandleFunc("GET /v1/tables/{name}/preview", rt.previewTable)
	mux.HandleFunc("POST /v1/sql", rt.executeSQL)

	mux.HandleFunc("GET /v1/sessions/{id}/messages", rt.sessionHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.clearSession)

	mux.HandleFunc("GET /v1/knowledge-base/status", rt.knowledgeBaseStatus)
	mux.HandleFunc("POST /v1/knowledge-base/reindex", rt.reindex)

	mux.Handle("GET /v1/models", rt.openAICompatAuth(http.HandlerFunc(rt.listModels)))
	mux.Handle("POST /v1/chat/completions", rt.openAICompatAuth(http.HandlerFunc(rt.chatCompletions)))

	var handler http.Handler = mux
	handler = requestValidationMiddleware(rt.validator, handler)
	handler = backpressureMiddlewareWithReject(handler, rt.maxInFlight, rt.backpressureWait, rt.onReject)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.onReject)
	handler = rt.httpMetrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onReject(reason string) {
	rt.httpMetrics.RecordRejected(serviceName, reason)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	start := time.Now()
	response := rt.svc.Queries.Process(r.Context(), req)
	rt.httpMetrics.RecordQuery(serviceName, "query", response, time.Since(start))
	slog.Info("query_answered",
		"request_id", requestIDFromContext(r.Context()),
		"session_id", response.SessionID,
		"query_type", response.QueryType,
		"outcome", response.Outcome.Kind,
		"reason", response.Outcome.Reason,
		"sources", len(response.Sources),
		"iterations", response.Iterations,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	opts := domain.UploadOptions{
		HardKB:       strings.EqualFold(r.FormValue("hard_kb"), "true"),
		SourceFolder: strings.TrimSpace(r.FormValue("source_folder")),
	}
	doc, err := rt.svc.Ingestor.Upload(r.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file, opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id, err := bindPathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	doc, err := rt.svc.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type textIngestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ingestText stores pasted text as a .txt upload so it follows the same
// processing path as files.
func (rt *Router) ingestText(w http.ResponseWriter, r *http.Request) {
	var req textIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title and content are required")
		return
	}
	filename := title
	if !strings.HasSuffix(strings.ToLower(filename), ".txt") {
		filename += ".txt"
	}
	doc, err := rt.svc.Ingestor.Upload(r.Context(), filename, "text/plain", strings.NewReader(req.Content), domain.UploadOptions{})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func writeUnavailable(w http.ResponseWriter, feature string) {
	writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", feature+" is not configured")
}
