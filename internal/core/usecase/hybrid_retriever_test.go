package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/search/bm25"
)

var retrieverCorpus = []domain.SourceDocument{
	{Text: "student visa application checklist and documents", Metadata: domain.ChunkMetadata{SourceFile: "visa.txt"}},
	{Text: "nursing diploma tuition fees per semester", Metadata: domain.ChunkMetadata{SourceFile: "fees.txt"}},
	{Text: "enrolment confirmation steps for international students", Metadata: domain.ChunkMetadata{SourceFile: "enrol.txt"}},
	{Text: "campus accommodation options near sydney", Metadata: domain.ChunkMetadata{SourceFile: "housing.txt"}},
}

type retrieverFixture struct {
	store     storeFixture
	keywords  *bm25.Index
	retriever *HybridRetriever
}

func newRetrieverFixture(t *testing.T, encoder *fakeCrossEncoder, enhancer *QueryEnhancer, chat *routedChat) retrieverFixture {
	t.Helper()
	store := newStoreFixture()
	if _, err := store.store.Ingest(context.Background(), retrieverCorpus, IngestOptions{}); err != nil {
		t.Fatalf("ingest corpus: %v", err)
	}
	keywords := bm25.New(1.5, 0.75)

	var encoderPort ports.CrossEncoder
	if encoder != nil {
		encoderPort = encoder
	}
	var chatPort ports.ChatModel
	if chat != nil {
		chatPort = chat
	}
	retriever := NewHybridRetriever(store.store, keywords, encoderPort, enhancer, chatPort, RetrieverOptions{})
	return retrieverFixture{store: store, keywords: keywords, retriever: retriever}
}

func TestHybridSearchBuildsKeywordIndexLazilyAndFuses(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	if f.keywords.Len() != 0 {
		t.Fatalf("keyword index should start empty")
	}

	results, err := f.retriever.HybridSearch(context.Background(), "visa application", domain.HybridSearchOptions{K: 2})
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if f.keywords.Len() != len(retrieverCorpus) {
		t.Fatalf("expected lazy build over %d chunks, got %d", len(retrieverCorpus), f.keywords.Len())
	}
	if len(results) != 2 {
		t.Fatalf("expected k=2 results, got %d", len(results))
	}
	top := results[0]
	if top.Chunk.Metadata.SourceFile != "visa.txt" || !top.Scores.HasSemantic || !top.Scores.HasKeyword {
		t.Fatalf("expected visa chunk found by both paths first: %+v", top)
	}
	if top.Scores.HasRerank || top.SourceLabel != domain.SourceLabelRAG {
		t.Fatalf("unexpected scores/label: %+v", top)
	}
	if top.ParentContext == "" {
		t.Fatalf("expected parent context on fused result")
	}
	want := defaultSemanticWeight/61 + (1-defaultSemanticWeight)/61
	if diff := top.Scores.Fused - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("fused score = %v, want %v", top.Scores.Fused, want)
	}
}

func TestHybridSearchFallsBackToKeywordsWhenEmbeddingFails(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	f.store.embedder.err = errors.New("embedding service down")

	results, err := f.retriever.HybridSearch(context.Background(), "nursing fees", domain.HybridSearchOptions{K: 3})
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the keyword hit, got %d", len(results))
	}
	if results[0].Scores.HasSemantic || !results[0].Scores.HasKeyword || results[0].Chunk.Metadata.SourceFile != "fees.txt" {
		t.Fatalf("expected keyword-only fees hit: %+v", results[0])
	}
}

func TestHybridSearchCrossEncoderRerank(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: map[string]float64{
		retrieverCorpus[1].Text: 0.9,
		retrieverCorpus[0].Text: 0.4,
	}}
	f := newRetrieverFixture(t, encoder, nil, nil)

	results, err := f.retriever.HybridSearch(context.Background(), "visa application", domain.HybridSearchOptions{K: 2, UseRerank: true})
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Metadata.SourceFile != "fees.txt" || results[0].Scores.Rerank != 0.9 {
		t.Fatalf("expected cross-encoder order, got %+v", results[0])
	}
	if results[0].Scores.RerankMethod != domain.RerankCrossEncoder || results[1].Chunk.Metadata.SourceFile != "visa.txt" {
		t.Fatalf("unexpected rerank: %+v", results)
	}
}

func TestHybridSearchKeepsFusedOrderWhenEncoderFails(t *testing.T) {
	f := newRetrieverFixture(t, &fakeCrossEncoder{err: errors.New("rerank service down")}, nil, nil)
	ctx := context.Background()

	for _, query := range []string{"visa application", "housing fees", "documents for enrolment fees", "accommodation visa checklist students"} {
		plain, err := f.retriever.HybridSearch(ctx, query, domain.HybridSearchOptions{K: 2})
		if err != nil {
			t.Fatalf("%q: hybrid search: %v", query, err)
		}
		reranked, err := f.retriever.HybridSearch(ctx, query, domain.HybridSearchOptions{K: 2, UseRerank: true})
		if err != nil {
			t.Fatalf("%q: hybrid search with rerank: %v", query, err)
		}
		assertSameResults(t, query, reranked, plain)
	}
}

func TestHybridSearchTruncatesWithoutEncoder(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	ctx := context.Background()

	for _, query := range []string{"housing fees", "documents for enrolment fees", "accommodation visa checklist students"} {
		plain, err := f.retriever.HybridSearch(ctx, query, domain.HybridSearchOptions{K: 2})
		if err != nil {
			t.Fatalf("%q: hybrid search: %v", query, err)
		}
		reranked, err := f.retriever.HybridSearch(ctx, query, domain.HybridSearchOptions{K: 2, UseRerank: true})
		if err != nil {
			t.Fatalf("%q: hybrid search with rerank: %v", query, err)
		}
		assertSameResults(t, query, reranked, plain)
	}
}

func assertSameResults(t *testing.T, query string, got, want []domain.RetrievalResult) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%q: got %d results, want %d", query, len(got), len(want))
	}
	for i := range want {
		if got[i].Chunk.ID != want[i].Chunk.ID {
			t.Fatalf("%q: result %d = %s, want %s", query, i, got[i].Chunk.Metadata.SourceFile, want[i].Chunk.Metadata.SourceFile)
		}
		if got[i].Scores.HasRerank || got[i].Scores.RerankMethod != "" {
			t.Fatalf("%q: result %d carries rerank scores without a reranker: %+v", query, i, got[i].Scores)
		}
	}
}

func TestHybridSearchRejectsEmptyQuery(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	_, err := f.retriever.HybridSearch(context.Background(), "  ", domain.HybridSearchOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRebuildKeywordIndex(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	n, err := f.retriever.RebuildKeywordIndex(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != len(retrieverCorpus) || f.keywords.Len() != n {
		t.Fatalf("rebuilt %d, index has %d", n, f.keywords.Len())
	}

	if _, err := f.store.store.Ingest(context.Background(), []domain.SourceDocument{{Text: "scholarship deadlines for march intake"}}, IngestOptions{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n, _ := f.retriever.RebuildKeywordIndex(context.Background()); n != len(retrieverCorpus)+1 {
		t.Fatalf("expected rebuilt corpus to include new chunk, got %d", n)
	}
	hits := f.keywords.Search("scholarship", 3)
	if len(hits) != 1 {
		t.Fatalf("expected new chunk searchable, got %d hits", len(hits))
	}
}

func TestRefreshKeywordIndexOnlyWhenStale(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	ctx := context.Background()

	refreshed, err := f.retriever.RefreshKeywordIndex(ctx)
	if err != nil || !refreshed {
		t.Fatalf("empty index should be refreshed, got %v/%v", refreshed, err)
	}
	if refreshed, _ := f.retriever.RefreshKeywordIndex(ctx); refreshed {
		t.Fatalf("index in sync must not be rebuilt")
	}

	if _, err := f.store.store.Ingest(ctx, []domain.SourceDocument{{Text: "english test requirements ielts"}}, IngestOptions{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if refreshed, _ := f.retriever.RefreshKeywordIndex(ctx); !refreshed {
		t.Fatalf("new chunks should trigger a rebuild")
	}
	if len(f.keywords.Search("ielts", 1)) != 1 {
		t.Fatalf("new chunk not searchable after refresh")
	}
}

func TestRefreshKeywordIndexCatchesSameSizeReingest(t *testing.T) {
	f := newRetrieverFixture(t, nil, nil, nil)
	ctx := context.Background()
	if _, err := f.retriever.RefreshKeywordIndex(ctx); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	if err := f.store.store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	replacement := []domain.SourceDocument{
		{Text: "scholarship deadlines for postgraduate study"},
		{Text: "part time work limits while studying"},
		{Text: "overseas student health cover providers"},
		{Text: "english test requirements ielts"},
	}
	if _, err := f.store.store.Ingest(ctx, replacement, IngestOptions{}); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if f.keywords.Len() != len(replacement) {
		t.Fatalf("corpus size should be unchanged for this case, got %d", f.keywords.Len())
	}

	refreshed, err := f.retriever.RefreshKeywordIndex(ctx)
	if err != nil || !refreshed {
		t.Fatalf("same-size re-ingest should trigger a rebuild, got %v/%v", refreshed, err)
	}
	if len(f.keywords.Search("ielts", 1)) != 1 {
		t.Fatalf("re-ingested chunk not searchable after refresh")
	}
	if len(f.keywords.Search("nursing", 1)) != 0 {
		t.Fatalf("cleared chunk still searchable after refresh")
	}
	if refreshed, _ := f.retriever.RefreshKeywordIndex(ctx); refreshed {
		t.Fatalf("index in sync must not be rebuilt")
	}
}

func TestIntelligentSearchMergesVariationsAndReranks(t *testing.T) {
	chat := &routedChat{routes: map[string]string{
		"alternative phrasings":  "visa checklist\nnursing fees",
		"rank them by relevance": "1, 1, 0",
	}}
	enhancer := NewQueryEnhancer(chat, domain.DefaultVocabulary(), 3, 0)
	f := newRetrieverFixture(t, nil, enhancer, chat)

	results, err := f.retriever.IntelligentSearch(context.Background(), "visa application", 2, "")
	if err != nil {
		t.Fatalf("intelligent search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID == results[1].Chunk.ID {
		t.Fatalf("expected distinct chunks")
	}
	if results[0].Scores.RerankMethod != domain.RerankLLM {
		t.Fatalf("expected model-picked head, got %+v", results[0].Scores)
	}

	rerankPrompts := 0
	for _, prompt := range chat.prompts {
		if strings.Contains(prompt, "rank them by relevance") {
			rerankPrompts++
			if !strings.Contains(prompt, "[3]") {
				t.Fatalf("expected every merged chunk in the rerank window: %s", prompt)
			}
		}
	}
	if rerankPrompts != 1 {
		t.Fatalf("expected one rerank prompt, got %d", rerankPrompts)
	}
}

func TestIntelligentSearchAddsSubQuestions(t *testing.T) {
	chat := &routedChat{routes: map[string]string{
		"alternative phrasings": "visa checklist",
	}}
	enhancer := NewQueryEnhancer(chat, domain.DefaultVocabulary(), 3, 0)
	f := newRetrieverFixture(t, nil, enhancer, nil)

	query := "What documents does the visa need? Where can students live near campus?"
	got := f.retriever.searchQueries(context.Background(), query, "")
	want := []string{query, "visa checklist", "What documents does the visa need", "Where can students live near campus"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("queries = %q, want %q", got, want)
	}

	if got := f.retriever.searchQueries(context.Background(), "visa application", ""); len(got) != 2 {
		t.Fatalf("a single question should not be split, got %q", got)
	}

	results, err := f.retriever.IntelligentSearch(context.Background(), query, 4, "")
	if err != nil {
		t.Fatalf("intelligent search: %v", err)
	}
	files := make(map[string]bool)
	for _, result := range results {
		files[result.Chunk.Metadata.SourceFile] = true
	}
	if !files["visa.txt"] || !files["housing.txt"] {
		t.Fatalf("expected both sub-questions answered, got %v", files)
	}
}

func TestLLMRerankFillsFromOriginalOrder(t *testing.T) {
	results := []domain.RetrievalResult{
		fusedResult("a", "a.txt", "alpha", 0.4),
		fusedResult("b", "b.txt", "beta", 0.3),
		fusedResult("c", "c.txt", "gamma", 0.2),
		fusedResult("d", "d.txt", "delta", 0.1),
	}
	retriever := &HybridRetriever{chat: &scriptedChat{replies: []string{"2, 9, x"}}, opts: RetrieverOptions{RerankTimeout: defaultAuxiliaryTimeout}}

	got := retriever.llmRerank(context.Background(), "q", results, 3)
	ids := []string{got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID}
	if strings.Join(ids, ",") != "c,a,b" {
		t.Fatalf("order = %v, want c,a,b", ids)
	}

	failing := &HybridRetriever{chat: &scriptedChat{err: errors.New("down")}, opts: RetrieverOptions{RerankTimeout: defaultAuxiliaryTimeout}}
	got = failing.llmRerank(context.Background(), "q", results, 2)
	if len(got) != 2 || got[0].Chunk.ID != "a" {
		t.Fatalf("failure should keep original order: %+v", got)
	}
}
