package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const (
	defaultRetrieverK       = 5
	defaultSemanticWeight   = 0.6
	crossEncoderPassageSize = 512
	llmRerankWindow         = 10
	llmRerankPassageSize    = 500
)

// RetrieverOptions configure the hybrid retriever defaults.
type RetrieverOptions struct {
	K              int
	SemanticWeight float64
	RRFK           int
	RerankTimeout  time.Duration
	// MinScore drops semantic hits below this cosine similarity.
	MinScore float64
}

// HybridRetriever combines embedding search over child chunks with BM25,
// fuses the two rankings and optionally reranks the head.
type HybridRetriever struct {
	store    *DocumentStore
	keywords ports.KeywordIndex
	encoder  ports.CrossEncoder
	enhancer *QueryEnhancer
	chat     ports.ChatModel
	opts     RetrieverOptions

	rebuildMu sync.Mutex
	// fingerprint identifies the chunk ids behind the current BM25 snapshot.
	fingerprint uint64
}

func NewHybridRetriever(
	store *DocumentStore,
	keywords ports.KeywordIndex,
	encoder ports.CrossEncoder,
	enhancer *QueryEnhancer,
	chat ports.ChatModel,
	opts RetrieverOptions,
) *HybridRetriever {
	if opts.K <= 0 {
		opts.K = defaultRetrieverK
	}
	if opts.SemanticWeight <= 0 || opts.SemanticWeight > 1 {
		opts.SemanticWeight = defaultSemanticWeight
	}
	if opts.RRFK <= 0 {
		opts.RRFK = defaultRRFK
	}
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = defaultAuxiliaryTimeout
	}
	return &HybridRetriever{
		store:    store,
		keywords: keywords,
		encoder:  encoder,
		enhancer: enhancer,
		chat:     chat,
		opts:     opts,
	}
}

func (r *HybridRetriever) HybridSearch(ctx context.Context, query string, opts domain.HybridSearchOptions) ([]domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", fmt.Errorf("query is required"))
	}
	k := opts.K
	if k <= 0 {
		k = r.opts.K
	}
	weight := opts.SemanticWeight
	if weight <= 0 || weight > 1 {
		weight = r.opts.SemanticWeight
	}

	if r.keywords.Len() == 0 {
		r.ensureKeywordIndex(ctx)
	}

	var semantic, keyword []domain.ScoredChunk
	var g errgroup.Group
	g.Go(func() error {
		hits, err := r.store.Search(ctx, query, 2*k, r.opts.MinScore)
		if err != nil {
			slog.Warn("semantic_search_failed", "error", err)
			return nil
		}
		semantic = hits
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		keyword = r.keywords.Search(query, 2*k)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	fused := trimResults(fuseCandidatesRRF(semantic, keyword, weight, r.opts.RRFK), 2*k)
	if len(fused) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if !opts.UseRerank {
		return trimResults(fused, k), nil
	}
	return r.rerank(ctx, query, fused, k), nil
}

// rerank reorders the fused head with the cross-encoder. Without one, or
// when scoring fails, the fused order is kept and truncated to k.
func (r *HybridRetriever) rerank(ctx context.Context, query string, fused []domain.RetrievalResult, k int) []domain.RetrievalResult {
	if r.encoder == nil {
		return trimResults(fused, k)
	}
	rerankCtx, cancel := context.WithTimeout(ctx, r.opts.RerankTimeout)
	defer cancel()
	reranked, err := r.crossEncoderRerank(rerankCtx, query, fused, k)
	if err != nil {
		slog.Warn("cross_encoder_rerank_failed", "error", err)
		return trimResults(fused, k)
	}
	return reranked
}

func (r *HybridRetriever) crossEncoderRerank(ctx context.Context, query string, fused []domain.RetrievalResult, k int) ([]domain.RetrievalResult, error) {
	texts := make([]string, len(fused))
	for i, result := range fused {
		texts[i] = truncateRunes(result.Chunk.Text, crossEncoderPassageSize)
	}
	scores, err := r.encoder.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(fused) {
		return nil, fmt.Errorf("cross encoder returned %d scores for %d passages", len(scores), len(fused))
	}

	out := make([]domain.RetrievalResult, len(fused))
	copy(out, fused)
	for i := range out {
		out[i].Scores.Rerank = scores[i]
		out[i].Scores.HasRerank = true
		out[i].Scores.RerankMethod = domain.RerankCrossEncoder
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Rerank > out[j].Scores.Rerank
	})
	return trimResults(out, k), nil
}

// ensureKeywordIndex builds the BM25 index from the child corpus when it is
// still empty. Concurrent first callers build once.
func (r *HybridRetriever) ensureKeywordIndex(ctx context.Context) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()
	if r.keywords.Len() > 0 {
		return
	}
	chunks, err := r.store.All(ctx)
	if err != nil {
		slog.Warn("keyword_index_build_failed", "error", err)
		return
	}
	if len(chunks) == 0 {
		return
	}
	r.keywords.Build(chunks)
	r.fingerprint = corpusFingerprint(chunks)
	slog.Info("keyword_index_built", "documents", len(chunks))
}

// RebuildKeywordIndex replaces the BM25 snapshot with the current corpus.
func (r *HybridRetriever) RebuildKeywordIndex(ctx context.Context) (int, error) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()
	chunks, err := r.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild keyword index: %w", err)
	}
	r.keywords.Build(chunks)
	r.fingerprint = corpusFingerprint(chunks)
	slog.Info("keyword_index_rebuilt", "documents", len(chunks))
	return len(chunks), nil
}

// RefreshKeywordIndex rebuilds the BM25 snapshot when the set of child
// chunk ids no longer matches it, as happens when another process ingests
// into or clears a shared chunk index. A re-ingest that keeps the same chunk
// count still changes the ids. It reports whether a rebuild ran.
func (r *HybridRetriever) RefreshKeywordIndex(ctx context.Context) (bool, error) {
	chunks, err := r.store.All(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh keyword index: %w", err)
	}
	fingerprint := corpusFingerprint(chunks)

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()
	if len(chunks) == r.keywords.Len() && fingerprint == r.fingerprint {
		return false, nil
	}
	r.keywords.Build(chunks)
	r.fingerprint = fingerprint
	slog.Info("keyword_index_refreshed", "documents", len(chunks))
	return true, nil
}

func corpusFingerprint(chunks []domain.Chunk) uint64 {
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	sort.Strings(ids)
	digest := xxhash.New()
	for _, id := range ids {
		_, _ = digest.WriteString(id)
		_, _ = digest.Write([]byte{0})
	}
	return digest.Sum64()
}

// IntelligentSearch searches every variation of the query, keeps the best
// fused score per chunk and lets the model reorder the head.
func (r *HybridRetriever) IntelligentSearch(ctx context.Context, query string, k int, conversationContext string) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.opts.K
	}
	queries := r.searchQueries(ctx, query, conversationContext)

	best := make(map[string]domain.RetrievalResult)
	order := make([]string, 0)
	var lastErr error
	for _, q := range queries {
		results, err := r.HybridSearch(ctx, q, domain.HybridSearchOptions{K: 2 * k})
		if err != nil {
			lastErr = err
			continue
		}
		for _, result := range results {
			key := retrievalChunkKey(result.Chunk)
			current, seen := best[key]
			if !seen {
				order = append(order, key)
			}
			if !seen || result.Scores.Fused > current.Scores.Fused {
				best[key] = result
			}
		}
	}
	if len(order) == 0 && lastErr != nil {
		return nil, lastErr
	}

	merged := make([]domain.RetrievalResult, 0, len(order))
	for _, key := range order {
		merged = append(merged, best[key])
	}
	sortByFusedScore(merged)
	return r.llmRerank(ctx, query, merged, k), nil
}

// searchQueries lists the enhanced variations followed by the parts of a
// multi-question query, without duplicates.
func (r *HybridRetriever) searchQueries(ctx context.Context, query, conversationContext string) []string {
	queries := []string{query}
	if r.enhancer != nil {
		queries = r.enhancer.Enhance(ctx, query, conversationContext).Variations
	}
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		seen[strings.ToLower(q)] = struct{}{}
	}
	for _, part := range Decompose(query) {
		key := strings.ToLower(part)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, part)
	}
	return queries
}

func (r *HybridRetriever) llmRerank(ctx context.Context, query string, results []domain.RetrievalResult, topN int) []domain.RetrievalResult {
	if len(results) <= topN || r.chat == nil {
		return trimResults(results, topN)
	}
	window := trimResults(results, llmRerankWindow)
	lines := make([]string, len(window))
	for i, result := range window {
		lines[i] = fmt.Sprintf("[%d] %s", i, truncateRunes(result.Chunk.Text, llmRerankPassageSize))
	}
	prompt := fmt.Sprintf(`Given the query and the following documents, rank them by relevance to the query.
Return only the indices of the top %d most relevant documents in order, separated by commas.

Query: %s

Documents:
%s

Top %d indices (comma-separated):`, topN, query, strings.Join(lines, "\n"), topN)

	callCtx, cancel := context.WithTimeout(ctx, r.opts.RerankTimeout)
	defer cancel()
	reply, err := r.chat.Complete(callCtx, prompt, domain.CompletionOptions{Temperature: 0, MaxTokens: 50})
	if err != nil {
		slog.Warn("llm_rerank_failed", "error", err)
		return trimResults(results, topN)
	}

	picked := make([]domain.RetrievalResult, 0, topN)
	used := make(map[int]struct{}, topN)
	for _, field := range strings.Split(reply, ",") {
		if len(picked) == topN {
			break
		}
		idx, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || idx < 0 || idx >= len(results) {
			continue
		}
		if _, dup := used[idx]; dup {
			continue
		}
		used[idx] = struct{}{}
		result := results[idx]
		result.Scores.RerankMethod = domain.RerankLLM
		picked = append(picked, result)
	}
	for i := 0; i < len(results) && len(picked) < topN; i++ {
		if _, ok := used[i]; ok {
			continue
		}
		used[i] = struct{}{}
		picked = append(picked, results[i])
	}
	return picked
}

func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
