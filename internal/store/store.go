package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"docflow/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

var ErrDocumentNotFound = errors.New("document not found")

type Document struct {
	ID        uuid.UUID
	Filename  string
	Status    DocumentStatus
	Outline   []string // breadcrumb per top-level-visible heading, document order
	CreatedAt time.Time
}

// Chunk is a persisted document fragment with its outline metadata.
type Chunk struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	Index        int
	Content      string
	Heading      string
	HeadingLevel int
	Breadcrumb   string
	ParentHeader string
	Inherited    bool
	Format       string
	SourceFile   string
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateDocument(ctx context.Context, filename string) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	SaveOutline(ctx context.Context, docID uuid.UUID, outline []string) error
	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, docIDs []uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error)
}
