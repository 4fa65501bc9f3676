// Package qdrant stores child chunks in a Qdrant collection over its REST
// API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/resilience"
)

const scrollPageSize = 256

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithExecutor(baseURL, collection, nil)
}

func NewWithExecutor(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector,omitempty"`
	Payload chunkPayload `json:"payload"`
}

type chunkPayload struct {
	ChunkID  string               `json:"chunk_id"`
	Text     string               `json:"text"`
	DocID    string               `json:"doc_id"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// pointID maps a chunk id onto the UUID space Qdrant accepts; the mapping
// is stable so re-ingesting a chunk overwrites its point.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks[0].Vector) == 0 {
		return errors.New("qdrant upsert: chunk has no vector")
	}
	if err := c.ensureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID:     pointID(chunk.ID),
			Vector: chunk.Vector,
			Payload: chunkPayload{
				ChunkID:  chunk.ID,
				Text:     chunk.Text,
				DocID:    chunk.Metadata.DocID,
				Metadata: chunk.Metadata,
			},
		})
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64      `json:"score"`
			Payload chunkPayload `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		if isMissingCollection(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredChunk{Chunk: r.Payload.chunk(), Score: r.Score})
	}
	return out, nil
}

// All scrolls the whole collection. Vectors are not fetched.
func (c *Client) All(ctx context.Context) ([]domain.Chunk, error) {
	return c.scroll(ctx, nil, 0)
}

func (c *Client) HasDocument(ctx context.Context, docID string) (bool, error) {
	filter := map[string]any{
		"must": []map[string]any{{"key": "doc_id", "match": map[string]any{"value": docID}}},
	}
	chunks, err := c.scroll(ctx, filter, 1)
	if err != nil {
		return false, err
	}
	return len(chunks) > 0, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	if err := c.do(ctx, "count", http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		if isMissingCollection(err) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection; the next upsert recreates it.
func (c *Client) Clear(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.do(ctx, "delete collection", http.MethodDelete, path, nil, nil); err != nil && !isMissingCollection(err) {
		return err
	}
	c.ensureMu.Lock()
	c.ensuredCollection = false
	c.ensuredVectorSize = 0
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) scroll(ctx context.Context, filter map[string]any, max int) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0)
	var offset any
	for {
		reqBody := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if filter != nil {
			reqBody["filter"] = filter
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload chunkPayload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
		if err := c.do(ctx, "scroll", http.MethodPost, path, reqBody, &resp); err != nil {
			if isMissingCollection(err) {
				return out, nil
			}
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, p.Payload.chunk())
			if max > 0 && len(out) >= max {
				return out, nil
			}
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (p chunkPayload) chunk() domain.Chunk {
	meta := p.Metadata
	if meta.DocID == "" {
		meta.DocID = p.DocID
	}
	return domain.Chunk{ID: p.ChunkID, Text: p.Text, Metadata: meta}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, "ensure collection", http.MethodPut, path, reqBody, nil)
	// 409 if already exists (depends on version/config).
	if err != nil && resilience.StatusCode(err) != http.StatusConflict {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func isMissingCollection(err error) bool {
	return resilience.StatusCode(err) == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	call := func(callCtx context.Context) error {
		return c.send(callCtx, operation, method, path, payload, out)
	}
	if c.executor == nil {
		return call(ctx)
	}
	err := c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), call, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err)
}

func (c *Client) send(ctx context.Context, operation, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
