package usecase

import (
	"fmt"
	"sort"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const defaultRRFK = 60

// fuseCandidatesRRF merges the semantic and keyword rankings with weighted
// reciprocal rank fusion. A result at 0-indexed rank r in a list of weight w
// gains w/(k+r+1). Results are identified by chunk id, so the same chunk
// reached through both lists accumulates both contributions.
func fuseCandidatesRRF(semantic, keyword []domain.ScoredChunk, semanticWeight float64, rrfK int) []domain.RetrievalResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if semanticWeight < 0 {
		semanticWeight = 0
	}
	if semanticWeight > 1 {
		semanticWeight = 1
	}

	acc := make(map[string]*domain.RetrievalResult, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))
	lookup := func(hit domain.ScoredChunk) *domain.RetrievalResult {
		key := retrievalChunkKey(hit.Chunk)
		result, ok := acc[key]
		if !ok {
			result = &domain.RetrievalResult{Chunk: hit.Chunk, SourceLabel: domain.SourceLabelRAG}
			acc[key] = result
			order = append(order, key)
		}
		if result.ParentContext == "" && hit.ParentContext != "" {
			result.ParentContext = hit.ParentContext
		}
		result.Chunk = preferRicherChunk(result.Chunk, hit.Chunk)
		return result
	}

	for rank, hit := range semantic {
		result := lookup(hit)
		result.Scores.Fused += semanticWeight / float64(rrfK+rank+1)
		if !result.Scores.HasSemantic || hit.Score > result.Scores.Semantic {
			result.Scores.Semantic = hit.Score
			result.Scores.HasSemantic = true
		}
	}
	for rank, hit := range keyword {
		result := lookup(hit)
		result.Scores.Fused += (1 - semanticWeight) / float64(rrfK+rank+1)
		if !result.Scores.HasKeyword || hit.Score > result.Scores.Keyword {
			result.Scores.Keyword = hit.Score
			result.Scores.HasKeyword = true
		}
	}

	out := make([]domain.RetrievalResult, 0, len(acc))
	for _, key := range order {
		out = append(out, *acc[key])
	}
	sortByFusedScore(out)
	return out
}

func sortByFusedScore(results []domain.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scores.Fused != results[j].Scores.Fused {
			return results[i].Scores.Fused > results[j].Scores.Fused
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func trimResults(results []domain.RetrievalResult, limit int) []domain.RetrievalResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func retrievalChunkKey(chunk domain.Chunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	if chunk.Metadata.ParentID != "" {
		return fmt.Sprintf("%s:%d", chunk.Metadata.ParentID, chunk.Metadata.ChunkIndex)
	}
	return fmt.Sprintf("%s|%s", chunk.Metadata.SourceFile, chunk.Text)
}

func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	if current.ID == "" && current.Text == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Metadata.SourceFile == "" && candidate.Metadata.SourceFile != "" {
		current.Metadata.SourceFile = candidate.Metadata.SourceFile
	}
	if current.Metadata.ParentID == "" && candidate.Metadata.ParentID != "" {
		current.Metadata.ParentID = candidate.Metadata.ParentID
	}
	if current.Metadata.DocID == "" && candidate.Metadata.DocID != "" {
		current.Metadata.DocID = candidate.Metadata.DocID
	}
	return current
}
