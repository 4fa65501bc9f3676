package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				ids = append(ids, p.ID)
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	chunks := []domain.Chunk{
		{ID: "p1_child_0", Text: "a", Vector: []float32{0.1, 0.2}},
		{ID: "p1_child_1", Text: "b", Vector: []float32{0.3, 0.4}},
	}
	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), chunks); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected one ensure call, got %d", got)
	}
	if len(ids) != 4 || ids[0] != ids[2] || ids[0] == ids[1] {
		t.Fatalf("point ids must be stable per chunk: %v", ids)
	}
}

func TestSearchDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.91,"payload":{"chunk_id":"p1_child_0","text":"visa steps","doc_id":"abc","metadata":{"source_file":"visa.txt","parent_id":"p1","chunk_index":0,"hard_kb":true}}}]}`))
	}))
	defer server.Close()

	hits, err := New(server.URL, "docs").Search(context.Background(), []float32{0.1}, 4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "p1_child_0" || hits[0].Chunk.Metadata.ParentID != "p1" || hits[0].Chunk.Metadata.DocID != "abc" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestScrollFollowsPagesAndMissingCollectionIsEmpty(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/docs/points/scroll":
			if atomic.AddInt32(&calls, 1) == 1 {
				_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"chunk_id":"a","text":"one"}}],"next_page_offset":"x"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"chunk_id":"b","text":"two"}}],"next_page_offset":null}}`))
		default:
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		}
	}))
	defer server.Close()

	chunks, err := New(server.URL, "docs").All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(chunks) != 2 || chunks[1].ID != "b" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}

	n, err := New(server.URL, "other").Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("missing collection should count as empty, got %d, %v", n, err)
	}
}
