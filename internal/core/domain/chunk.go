package domain

type ChunkType string

const (
	ChunkTypeParent ChunkType = "parent"
	ChunkTypeChild  ChunkType = "child"
)

// ChunkMetadata travels with every parent and child chunk.
type ChunkMetadata struct {
	SourceFile   string            `json:"source_file,omitempty"`
	SourceFolder string            `json:"source_folder,omitempty"`
	DocID        string            `json:"doc_id,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	ChunkIndex   int               `json:"chunk_index"`
	ChunkType    ChunkType         `json:"chunk_type,omitempty"`
	NumChildren  int               `json:"num_children,omitempty"`
	HardKB       bool              `json:"hard_kb"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Chunk is a child chunk: the unit that is embedded and searched.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Vector   []float32     `json:"-"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ParentChunk is a large context window owning one or more children.
type ParentChunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ScoredChunk struct {
	Chunk         Chunk   `json:"chunk"`
	Score         float64 `json:"score"`
	ParentContext string  `json:"parent_context,omitempty"`
}

// StoreStats reports collection sizes of the document store.
type StoreStats struct {
	ParentChunks int `json:"parent_chunks"`
	ChildChunks  int `json:"child_chunks"`
}
