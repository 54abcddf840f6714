package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docflow/internal/app"
	"docflow/internal/chunker"
	"docflow/internal/httputil"
	"docflow/internal/queue"
	"docflow/internal/store"
)

type chunkTaskPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
}

func main() {
	deps, err := app.Build("splitter")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("splitter worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeChunk, func(ctx context.Context, task queue.Task) error {
			var payload chunkTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleChunk(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, "splitter", deps.Config.HealthPort)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("splitter service stopped", "err", err)
	}
}

func handleChunk(ctx context.Context, deps app.Deps, payload chunkTaskPayload) error {
	headings := chunker.ParseHeadings(payload.Content)
	c := chunker.New(deps.Config.ChunkSize, deps.Config.ChunkOverlap)
	chunks := c.ChunkByHeadings(payload.Content, headings, payload.Filename, payload.Filename)

	storeChunks := make([]store.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		storeChunks = append(storeChunks, store.Chunk{
			Index:        ch.Metadata.ChunkID,
			Content:      ch.Content,
			Heading:      ch.Metadata.Heading,
			HeadingLevel: ch.Metadata.HeadingLevel,
			Breadcrumb:   ch.Metadata.Breadcrumb,
			ParentHeader: ch.Metadata.ParentHeader,
			Inherited:    ch.Metadata.InheritedHeading,
			Format:       ch.Metadata.Format,
			SourceFile:   ch.Metadata.SourceFile,
		})
	}
	if _, err := deps.Store.SaveChunks(ctx, payload.DocumentID, storeChunks); err != nil {
		return err
	}

	if err := deps.Store.SaveOutline(ctx, payload.DocumentID, buildOutline(headings)); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"document_id": payload.DocumentID.String(),
		"filename":    payload.Filename,
	})
	if err != nil {
		return err
	}
	task := queue.Task{Type: queue.TaskTypeEmbed, Payload: body, NotBefore: time.Now()}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
}

// buildOutline renders each heading with indentation by level, preserving
// document order.
func buildOutline(headings []chunker.Heading) []string {
	outline := make([]string, 0, len(headings))
	for _, h := range headings {
		prefix := ""
		for i := 1; i < h.Level; i++ {
			prefix += "  "
		}
		outline = append(outline, prefix+h.Title)
	}
	return outline
}
