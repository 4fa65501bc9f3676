package extractor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type memoryStorage map[string]string

func (m memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	m[key] = string(raw)
	return err
}

func (m memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestRouterPicksExtractorByExtension(t *testing.T) {
	storage := memoryStorage{
		"1_notes.TXT": "  nursing intake dates ",
		"2_page.html": "<p>Tuition <b>fees</b></p>",
	}
	router := NewRouter(storage)
	ctx := context.Background()

	text, err := router.Extract(ctx, &domain.Document{Filename: "notes.TXT", StoragePath: "1_notes.TXT"})
	if err != nil || text != "nursing intake dates" {
		t.Fatalf("plaintext: %q, %v", text, err)
	}
	text, err = router.Extract(ctx, &domain.Document{Filename: "page.html", StoragePath: "2_page.html"})
	if err != nil || text != "Tuition fees" {
		t.Fatalf("html: %q, %v", text, err)
	}
}

func TestRouterRejectsUnknownExtension(t *testing.T) {
	_, err := NewRouter(memoryStorage{}).ExtractContent(context.Background(), "slides.pptx", bytes.NewBufferString("x"))
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
