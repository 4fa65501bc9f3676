package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents/abc":          "/v1/documents/{document_id}",
		"/v1/tables/fees/preview":    "/v1/tables/{name}/preview",
		"/v1/sessions/s-1/messages":  "/v1/sessions/{session_id}/messages",
		"/v1/sessions/s-1":           "/v1/sessions/{session_id}",
		"/v1/query":                  "/v1/query",
		"/v1/knowledge-base/reindex": "/v1/knowledge-base/reindex",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordQueryCountsRunsAndToolCalls(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordQuery("api", "query", domain.QueryResponse{
		QueryType:  domain.QueryTypeHybrid,
		Outcome:    domain.Degraded("tool_budget_exhausted"),
		Confidence: 0.4,
		Iterations: 2,
		ToolEvents: []domain.ToolEvent{
			{Tool: "sql_query", Status: "ok"},
			{Tool: "rag_search", Status: "error"},
		},
	}, 150*time.Millisecond)

	if got := testutil.ToFloat64(m.queryRunsTotal.WithLabelValues("api", "query", "hybrid", "degraded")); got != 1 {
		t.Fatalf("expected one degraded hybrid run, got %v", got)
	}
	if got := testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("api", "rag_search", "error")); got != 1 {
		t.Fatalf("expected one failed rag_search call, got %v", got)
	}
}

func TestMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil))

	counter := m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/{document_id}", "404")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("expected one 404 request, got %v", got)
	}
}
