package domain

const SourceLabelRAG = "rag"

// RetrievalScores keeps every score a result collected on its way
// through fusion and reranking.
type RetrievalScores struct {
	Semantic     float64 `json:"semantic_score"`
	HasSemantic  bool    `json:"-"`
	Keyword      float64 `json:"bm25_score"`
	HasKeyword   bool    `json:"-"`
	Fused        float64 `json:"rrf_score"`
	Rerank       float64 `json:"rerank_score"`
	HasRerank    bool    `json:"-"`
	RerankMethod string  `json:"rerank_method,omitempty"`
}

const (
	RerankCrossEncoder = "cross_encoder"
	RerankLLM          = "llm"
)

type RetrievalResult struct {
	Chunk         Chunk           `json:"chunk"`
	ParentContext string          `json:"parent_context,omitempty"`
	Scores        RetrievalScores `json:"scores"`
	SourceLabel   string          `json:"source_label"`
}

// BestScore is the score used for confidence: the semantic similarity when
// the result came through the embedding path, otherwise the cross-encoder
// score, otherwise the fused score.
func (r RetrievalResult) BestScore() float64 {
	switch {
	case r.Scores.HasSemantic:
		return r.Scores.Semantic
	case r.Scores.HasRerank && r.Scores.RerankMethod == RerankCrossEncoder:
		return r.Scores.Rerank
	default:
		return r.Scores.Fused
	}
}

type HybridSearchOptions struct {
	K              int
	SemanticWeight float64
	UseRerank      bool
}
