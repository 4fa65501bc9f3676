// Package extractor routes files to a format-specific text extractor by
// extension.
package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
	htmlextractor "github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/extractor/html"
	pdfextractor "github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/extractor/pdf"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/extractor/plaintext"
)

// Router implements both extractor ports: ExtractContent for raw files and
// Extract for uploads held in object storage.
type Router struct {
	storage ports.ObjectStorage
	byExt   map[string]ports.ContentExtractor
}

func NewRouter(storage ports.ObjectStorage) *Router {
	text := plaintext.NewExtractor()
	page := htmlextractor.NewExtractor()
	return &Router{
		storage: storage,
		byExt: map[string]ports.ContentExtractor{
			".txt":  text,
			".md":   text,
			".html": page,
			".htm":  page,
			".pdf":  pdfextractor.NewExtractor(),
		},
	}
}

func (r *Router) ExtractContent(ctx context.Context, filename string, data io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	extractor, ok := r.byExt[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("extension %q", ext))
	}
	return extractor.ExtractContent(ctx, filename, data)
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()
	return r.ExtractContent(ctx, doc.Filename, reader)
}
