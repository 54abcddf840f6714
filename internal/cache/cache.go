package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache provides chat answer caching
type Cache interface {
	// GetAnswer retrieves a cached answer by key
	// Returns nil if not found
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL
	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	// InvalidateDocument removes all cached answers touching a document
	InvalidateDocument(ctx context.Context, docID string) error

	// Close closes the cache connection
	Close() error
}

// Answer represents a cached chat response
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Source represents a document chunk source in chat responses
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float32 `json:"score"`
	Breadcrumb string  `json:"breadcrumb,omitempty"`
	Preview    string  `json:"preview"` // Truncated text preview
}

// GenerateCacheKey derives a stable key from the message, the document
// scope and the result count.
func GenerateCacheKey(message string, docIDs []string, topK int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", message, strings.Join(docIDs, ","), topK)))
	return hex.EncodeToString(h[:])
}
