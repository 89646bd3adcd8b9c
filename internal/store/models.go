package store

import "time"

type Document struct {
	ID         string    `json:"id"` // UUID
	Filename   string    `json:"filename"`
	ByteSize   int64     `json:"byte_size"`
	SHA256     string    `json:"-"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is one bounded span of a document's text, the unit of retrieval.
// Embeddings are not stored here: they live in the vector index, which is
// rebuilt from scratch each process lifetime.
type Chunk struct {
	ID         string `json:"id"` // UUID
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"` // ordinal within the document, for citation ordering
	Content    string `json:"content"`
	Page       int    `json:"page"` // 0 when the source page is unknown
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	ID        string    `json:"id"` // UUID
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"` // cited chunk IDs, assistant turns only
	CreatedAt time.Time `json:"created_at"`
}
