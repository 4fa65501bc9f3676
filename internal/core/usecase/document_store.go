package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

// IngestOptions tune a document store ingestion.
type IngestOptions struct {
	// Force re-ingests documents whose doc id is already indexed.
	Force bool
}

// DocumentStore is the hierarchical parent/child chunk store. Children are
// embedded and searched; parents are looked up to give matches context.
type DocumentStore struct {
	children       ports.ChunkIndex
	parents        ports.ParentStore
	embedder       ports.Embedder
	parentSplitter ports.Chunker
	childSplitter  ports.Chunker
	newID          func() string

	// ingestMu serializes writes; reads go straight to the indexes.
	ingestMu sync.Mutex
}

func NewDocumentStore(
	children ports.ChunkIndex,
	parents ports.ParentStore,
	embedder ports.Embedder,
	parentSplitter ports.Chunker,
	childSplitter ports.Chunker,
) *DocumentStore {
	return &DocumentStore{
		children:       children,
		parents:        parents,
		embedder:       embedder,
		parentSplitter: parentSplitter,
		childSplitter:  childSplitter,
		newID:          uuid.NewString,
	}
}

// DocumentID is the content identity used for deduplication: the first 12
// hex characters of the md5 of the text.
func DocumentID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

// Ingest splits each document into parents and children, embeds the
// children and stores both. It returns the ids of stored parents.
func (s *DocumentStore) Ingest(ctx context.Context, docs []domain.SourceDocument, opts IngestOptions) ([]string, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	parentIDs := make([]string, 0)
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		if doc.Metadata.DocID == "" {
			doc.Metadata.DocID = DocumentID(doc.Text)
		}
		if !opts.Force {
			exists, err := s.children.HasDocument(ctx, doc.Metadata.DocID)
			if err != nil {
				return parentIDs, fmt.Errorf("check document %s: %w", doc.Metadata.DocID, err)
			}
			if exists {
				slog.Info("document already indexed", "doc_id", doc.Metadata.DocID, "source_file", doc.Metadata.SourceFile)
				continue
			}
		}

		ids, err := s.ingestOne(ctx, doc)
		if err != nil {
			return parentIDs, err
		}
		parentIDs = append(parentIDs, ids...)
	}
	return parentIDs, nil
}

func (s *DocumentStore) ingestOne(ctx context.Context, doc domain.SourceDocument) ([]string, error) {
	parentTexts, err := s.parentSplitter.Split(doc.Text)
	if err != nil || len(parentTexts) == 0 {
		if err != nil {
			slog.Warn("parent split failed, using whole document", "source_file", doc.Metadata.SourceFile, "error", err)
		}
		parentTexts = []string{doc.Text}
	}

	parents := make([]domain.ParentChunk, 0, len(parentTexts))
	children := make([]domain.Chunk, 0, len(parentTexts)*3)
	for _, parentText := range parentTexts {
		parentID := s.newID()
		childTexts, err := s.childSplitter.Split(parentText)
		if err != nil {
			slog.Warn("child split failed, using whole parent", "parent_id", parentID, "error", err)
			childTexts = []string{parentText}
		}

		kept := 0
		for i, childText := range childTexts {
			if strings.TrimSpace(childText) == "" {
				continue
			}
			meta := cloneMetadata(doc.Metadata)
			meta.ParentID = parentID
			meta.ChunkIndex = i
			meta.ChunkType = domain.ChunkTypeChild
			children = append(children, domain.Chunk{
				ID:       fmt.Sprintf("%s_child_%d", parentID, i),
				Text:     childText,
				Metadata: meta,
			})
			kept++
		}
		if kept == 0 {
			continue
		}

		meta := cloneMetadata(doc.Metadata)
		meta.ChunkType = domain.ChunkTypeParent
		meta.NumChildren = kept
		parents = append(parents, domain.ParentChunk{ID: parentID, Text: parentText, Metadata: meta})
	}
	if len(children) == 0 {
		return nil, nil
	}

	texts := make([]string, len(children))
	for i, child := range children {
		texts[i] = child.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed children: %w", err)
	}
	if len(vectors) != len(children) {
		return nil, fmt.Errorf("embed children: got %d vectors for %d chunks", len(vectors), len(children))
	}
	for i := range children {
		children[i].Vector = vectors[i]
	}

	// Parents first: a child must never be visible without its parent.
	if err := s.parents.SaveParents(ctx, parents); err != nil {
		return nil, fmt.Errorf("save parents: %w", err)
	}
	if err := s.children.Upsert(ctx, children); err != nil {
		return nil, fmt.Errorf("index children: %w", err)
	}

	ids := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}
	slog.Info("document ingested", "source_file", doc.Metadata.SourceFile, "doc_id", doc.Metadata.DocID, "parents", len(parents), "children", len(children))
	return ids, nil
}

// Search embeds the query, fetches 2k children, keeps those scoring at
// least minScore and attaches parent context to the first k.
func (s *DocumentStore) Search(ctx context.Context, query string, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if k < 1 {
		k = 1
	}
	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	total, err := s.children.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count children: %w", err)
	}
	if total == 0 {
		return []domain.ScoredChunk{}, nil
	}
	// k never exceeds the corpus, whatever the caller asked for.
	k = min(k, total)
	hits, err := s.children.Search(ctx, queryVector, min(2*k, total))
	if err != nil {
		return nil, fmt.Errorf("search children: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, k)
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		out = append(out, hit)
		if len(out) == k {
			break
		}
	}
	s.attachParents(ctx, out)
	return out, nil
}

func (s *DocumentStore) attachParents(ctx context.Context, hits []domain.ScoredChunk) {
	if len(hits) == 0 {
		return
	}
	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		id := hit.Chunk.Metadata.ParentID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	parents, err := s.parents.GetParents(ctx, ids)
	if err != nil {
		slog.Warn("parent lookup failed", "error", err)
		return
	}
	for i := range hits {
		if parent, ok := parents[hits[i].Chunk.Metadata.ParentID]; ok {
			hits[i].ParentContext = parent.Text
		}
	}
}

// All returns every child chunk; it is the corpus of the keyword index.
func (s *DocumentStore) All(ctx context.Context) ([]domain.Chunk, error) {
	chunks, err := s.children.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return chunks, nil
}

func (s *DocumentStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	children, err := s.children.Count(ctx)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("count children: %w", err)
	}
	parents, err := s.parents.CountParents(ctx)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("count parents: %w", err)
	}
	return domain.StoreStats{ParentChunks: parents, ChildChunks: children}, nil
}

// Clear deletes both collections.
func (s *DocumentStore) Clear(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	if err := s.children.Clear(ctx); err != nil {
		return fmt.Errorf("clear children: %w", err)
	}
	if err := s.parents.ClearParents(ctx); err != nil {
		return fmt.Errorf("clear parents: %w", err)
	}
	return nil
}

func cloneMetadata(meta domain.ChunkMetadata) domain.ChunkMetadata {
	if meta.Extra != nil {
		extra := make(map[string]string, len(meta.Extra))
		for k, v := range meta.Extra {
			extra[k] = v
		}
		meta.Extra = extra
	}
	return meta
}
