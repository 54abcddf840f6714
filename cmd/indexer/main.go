package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docflow/internal/app"
	"docflow/internal/httputil"
	"docflow/internal/queue"
	"docflow/internal/store"
)

type embedTaskPayload struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

func main() {
	deps, err := app.Build("indexer")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("indexer worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeEmbed, func(ctx context.Context, task queue.Task) error {
			var payload embedTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleEmbed(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, "indexer", deps.Config.HealthPort)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("indexer service stopped", "err", err)
	}
}

func handleEmbed(ctx context.Context, deps app.Deps, payload embedTaskPayload) error {
	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return err
	}

	chunks, err := deps.Store.ListChunks(ctx, docID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		deps.Log.Warn("no chunks to embed", "document_id", docID)
		return deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusReady)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		// Prefix the document name so vectors carry source context.
		texts[i] = fmt.Sprintf("Document: %s\n%s", payload.Filename, c.Content)
	}

	vectors, err := deps.Embedder.EmbedBatch(texts)
	if err != nil {
		return err
	}

	embs := make([]store.Embedding, len(chunks))
	for i, c := range chunks {
		embs[i] = store.Embedding{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Model:   deps.Config.EmbeddingModel,
		}
	}
	if err := deps.Store.SaveEmbeddings(ctx, embs); err != nil {
		return err
	}

	if err := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusReady); err != nil {
		return err
	}

	// Indexed content changed; cached answers may be stale.
	if err := deps.Cache.InvalidateDocument(ctx, docID.String()); err != nil {
		deps.Log.Warn("cache invalidation failed", "document_id", docID, "err", err)
	}

	deps.Log.Info("document indexed", "document_id", docID, "chunks", len(chunks))
	return nil
}
