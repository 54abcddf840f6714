package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docflow/internal/embeddings"
	"docflow/internal/store"
)

const defaultQueryTopK = 5

// NewQueryIndex returns a tool that runs a vector search over indexed chunks.
// Expects args: {"query": string, "document_ids": []string (optional), "top_k": number (optional)}.
func NewQueryIndex(st store.Store, embedder embeddings.Embedder) Tool {
	return Tool{
		Name:        "query_index",
		Description: "Search indexed document chunks (args: query, document_ids, top_k)",
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, fmt.Errorf("query argument required")
			}

			topK := defaultQueryTopK
			if v, ok := args["top_k"].(float64); ok && v > 0 {
				topK = int(v)
			}

			var docIDs []uuid.UUID
			if raw, ok := args["document_ids"].([]any); ok {
				for _, item := range raw {
					s, ok := item.(string)
					if !ok {
						continue
					}
					id, err := uuid.Parse(s)
					if err != nil {
						return nil, fmt.Errorf("invalid document id %q: %w", s, err)
					}
					docIDs = append(docIDs, id)
				}
			}

			vec, err := embedder.Embed(query)
			if err != nil {
				return nil, fmt.Errorf("embed query: %w", err)
			}

			results, err := st.TopK(ctx, docIDs, vec, topK)
			if err != nil {
				return nil, fmt.Errorf("vector search: %w", err)
			}

			out := make([]map[string]any, 0, len(results))
			for _, r := range results {
				out = append(out, map[string]any{
					"chunk_id":   r.Chunk.ID.String(),
					"content":    r.Chunk.Content,
					"breadcrumb": r.Chunk.Breadcrumb,
					"score":      r.Score,
				})
			}
			return map[string]any{"query": query, "matches": out}, nil
		},
	}
}
