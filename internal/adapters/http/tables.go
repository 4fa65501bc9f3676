package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type tableListResponse struct {
	Tables  []string             `json:"tables"`
	Schemas []domain.TableSchema `json:"schemas"`
}

type tablePreviewResponse struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Preview string `json:"preview"`
}

type sqlRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (rt *Router) listTables(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Tables == nil {
		writeUnavailable(w, "table engine")
		return
	}
	tables := rt.svc.Tables.Tables()
	if tables == nil {
		tables = []string{}
	}
	schemas := rt.svc.Tables.AllSchemas(r.Context())
	if schemas == nil {
		schemas = []domain.TableSchema{}
	}
	writeJSON(w, http.StatusOK, tableListResponse{Tables: tables, Schemas: schemas})
}

func (rt *Router) previewTable(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Tables == nil {
		writeUnavailable(w, "table engine")
		return
	}
	name, err := bindPathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rows, err := bindOptionalIntQuery(r, "rows", defaultPreviewRows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	preview, err := rt.svc.Tables.Preview(r.Context(), name, rows)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tablePreviewResponse{Table: name, Rows: rows, Preview: preview})
}

// executeSQL always answers 200 once the request is well formed; query
// failures are reported in the result body.
func (rt *Router) executeSQL(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Tables == nil {
		writeUnavailable(w, "table engine")
		return
	}
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = rt.sqlLimit
	}
	result := rt.svc.Tables.Execute(r.Context(), req.Query, limit)
	rt.httpMetrics.RecordSQLQuery(serviceName, result.Success)
	writeJSON(w, http.StatusOK, result)
}
