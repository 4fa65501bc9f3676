// Package bm25 implements an in-memory Okapi BM25 keyword index over child
// chunks. A build produces an immutable snapshot that is swapped in
// atomically, so searches never see a partially built index.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

type Index struct {
	k1       float64
	b        float64
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	chunks    []domain.Chunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func New(k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	return &Index{k1: k1, b: b}
}

// Tokenize lowercases and splits on whitespace. No stemming or stop words.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Build replaces the current snapshot with one built from chunks.
func (i *Index) Build(chunks []domain.Chunk) {
	snap := &snapshot{
		chunks:    append([]domain.Chunk(nil), chunks...),
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for idx, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term := range tf {
			docFreq[term]++
		}
		snap.termFreqs[idx] = tf
		snap.docLens[idx] = len(tokens)
		totalLen += len(tokens)
	}
	if len(chunks) > 0 {
		snap.avgDocLen = float64(totalLen) / float64(len(chunks))
	}

	n := float64(len(chunks))
	for term, df := range docFreq {
		snap.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
	i.snapshot.Store(snap)
}

// Len reports how many chunks the current snapshot covers.
func (i *Index) Len() int {
	snap := i.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

// Search returns up to k chunks with a strictly positive score, best first.
func (i *Index) Search(query string, k int) []domain.ScoredChunk {
	snap := i.snapshot.Load()
	if snap == nil || len(snap.chunks) == 0 || k <= 0 {
		return nil
	}
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type hit struct {
		idx   int
		score float64
	}
	hits := make([]hit, 0)
	for idx := range snap.chunks {
		score := i.score(snap, idx, queryTokens)
		if score > 0 {
			hits = append(hits, hit{idx: idx, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.ScoredChunk{Chunk: snap.chunks[h.idx], Score: h.score})
	}
	return out
}

func (i *Index) score(snap *snapshot, idx int, queryTokens []string) float64 {
	tf := snap.termFreqs[idx]
	docLen := float64(snap.docLens[idx])
	avg := snap.avgDocLen
	if avg == 0 {
		avg = 1
	}
	score := 0.0
	for _, term := range queryTokens {
		freq := float64(tf[term])
		if freq == 0 {
			continue
		}
		numerator := freq * (i.k1 + 1.0)
		denominator := freq + i.k1*(1.0-i.b+i.b*(docLen/avg))
		score += snap.idf[term] * (numerator / denominator)
	}
	return score
}
