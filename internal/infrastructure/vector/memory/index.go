// Package memory holds in-process chunk and parent stores used when no
// external vector database is configured, and in tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// ChunkIndex is a brute-force cosine index over child chunks.
type ChunkIndex struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
	byID   map[string]int
}

func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{byID: make(map[string]int)}
}

func (i *ChunkIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, chunk := range chunks {
		if pos, ok := i.byID[chunk.ID]; ok {
			i.chunks[pos] = chunk
			continue
		}
		i.byID[chunk.ID] = len(i.chunks)
		i.chunks = append(i.chunks, chunk)
	}
	return nil
}

func (i *ChunkIndex) Search(_ context.Context, queryVector []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]domain.ScoredChunk, 0, len(i.chunks))
	for _, chunk := range i.chunks {
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: Cosine(queryVector, chunk.Vector)})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (i *ChunkIndex) All(_ context.Context) ([]domain.Chunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]domain.Chunk(nil), i.chunks...), nil
}

func (i *ChunkIndex) HasDocument(_ context.Context, docID string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, chunk := range i.chunks {
		if chunk.Metadata.DocID == docID {
			return true, nil
		}
	}
	return false, nil
}

func (i *ChunkIndex) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks), nil
}

func (i *ChunkIndex) Clear(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = nil
	i.byID = make(map[string]int)
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ParentStore keeps parent chunks in a map.
type ParentStore struct {
	mu      sync.RWMutex
	parents map[string]domain.ParentChunk
}

func NewParentStore() *ParentStore {
	return &ParentStore{parents: make(map[string]domain.ParentChunk)}
}

func (s *ParentStore) SaveParents(_ context.Context, parents []domain.ParentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, parent := range parents {
		s.parents[parent.ID] = parent
	}
	return nil
}

func (s *ParentStore) GetParents(_ context.Context, ids []string) (map[string]domain.ParentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ParentChunk, len(ids))
	for _, id := range ids {
		if parent, ok := s.parents[id]; ok {
			out[id] = parent
		}
	}
	return out, nil
}

func (s *ParentStore) CountParents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parents), nil
}

func (s *ParentStore) ClearParents(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents = make(map[string]domain.ParentChunk)
	return nil
}
