package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"docflow/internal/agent"
	"docflow/internal/app"
	"docflow/internal/cache"
	"docflow/internal/executor"
	"docflow/internal/httputil"
	"docflow/internal/memory"
	"docflow/internal/planner"
	"docflow/internal/tools"
)

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Message     string        `json:"message" validate:"required,min=1,max=2000"`
	DocumentIDs []string      `json:"document_ids" validate:"omitempty,dive,uuid4"`
	History     []chatMessage `json:"history" validate:"omitempty,dive"`
	Mode        string        `json:"mode" validate:"omitempty,oneof=plan react"`
	TopK        int           `json:"top_k" validate:"omitempty,min=1,max=20"`
}

const systemPrompt = "You are a helpful assistant answering questions about uploaded documents."

func main() {
	deps, err := app.Build("agent")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewCalculator())
	registry.Register(tools.NewQueryIndex(deps.Store, deps.Embedder))

	r := httputil.NewRouter(deps.Log)
	r.Post("/api/chat", chatHandler(deps, registry))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("agent service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func chatHandler(deps app.Deps, registry *tools.Registry) http.HandlerFunc {
	window := memory.NewWindow(deps.Config.MaxContextTokens, systemPrompt, deps.Config.NearFieldTurns, deps.LLM, deps.Log)
	loop := agent.NewLoop(deps.LLM, registry, deps.Config.MaxIterations, deps.Log)
	exec := executor.New(deps.LLM, registry, deps.Log)

	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		if req.TopK == 0 {
			req.TopK = 5
		}

		ctx := r.Context()

		// History makes answers conversation-specific, so only stateless
		// requests hit the cache.
		cacheKey := cache.GenerateCacheKey(req.Message, req.DocumentIDs, req.TopK)
		if len(req.History) == 0 {
			if cached, err := deps.Cache.GetAnswer(ctx, cacheKey); err == nil && cached != nil {
				deps.Log.Info("cache hit", "message", req.Message)
				httputil.WriteJSON(w, http.StatusOK, map[string]any{
					"answer":  cached.Text,
					"sources": cached.Sources,
					"cached":  true,
				})
				return
			}
		}

		history := make([]memory.Message, len(req.History))
		for i, m := range req.History {
			history[i] = memory.Message{Role: m.Role, Content: m.Content}
		}
		contextText, stats := window.BuildContext(ctx, req.Message, history)
		if stats.Strategy == memory.StrategyInputTooLarge {
			httputil.Fail(deps.Log, w, "message too large for context window", nil, http.StatusBadRequest)
			return
		}
		deps.Log.Debug("context assembled", "strategy", stats.Strategy, "tokens", stats.MessageTokens)

		input := req.Message
		if contextText != "" {
			input = fmt.Sprintf("Conversation so far:\n%s\n\nUser: %s", contextText, req.Message)
		}

		var (
			answer  string
			sources []cache.Source
			err     error
		)
		if req.Mode == "react" {
			answer, err = loop.Run(ctx, input, nil)
			if err != nil {
				httputil.Fail(deps.Log, w, "agent failed", err, http.StatusInternalServerError)
				return
			}
		} else {
			tasks := injectScope(planner.Plan(input), req.DocumentIDs, req.TopK)
			results := exec.Execute(ctx, tasks, nil)
			answer, sources = collectAnswer(results)
			if answer == "" {
				httputil.Fail(deps.Log, w, "no answer produced", nil, http.StatusInternalServerError)
				return
			}
		}

		if len(req.History) == 0 {
			ttl := time.Duration(deps.Config.CacheTTL) * time.Second
			if err = deps.Cache.SetAnswer(ctx, cacheKey, &cache.Answer{Text: answer, Sources: sources}, ttl); err != nil {
				deps.Log.Warn("failed to cache answer", "err", err)
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"answer":  answer,
			"sources": sources,
			"cached":  false,
		})
	}
}

// injectScope narrows query_index tasks to the requested documents.
func injectScope(tasks []executor.Task, docIDs []string, topK int) []executor.Task {
	for i, t := range tasks {
		if t.Type == "tool" && t.Name == "query_index" {
			if len(docIDs) > 0 {
				ids := make([]any, len(docIDs))
				for j, id := range docIDs {
					ids[j] = id
				}
				tasks[i].Args["document_ids"] = ids
			}
			tasks[i].Args["top_k"] = float64(topK)
		}
	}
	return tasks
}

// collectAnswer picks the final LLM output and gathers search sources from
// tool results along the way.
func collectAnswer(results []executor.Result) (string, []cache.Source) {
	var answer string
	var sources []cache.Source

	for _, res := range results {
		if !res.OK {
			continue
		}
		if res.Tool == "query_index" {
			sources = append(sources, extractSources(res.Output)...)
			continue
		}
		if res.Tool == "" {
			if text, ok := res.Output.(string); ok {
				answer = text
			}
		}
	}
	return answer, sources
}

func extractSources(output any) []cache.Source {
	m, ok := output.(map[string]any)
	if !ok {
		return nil
	}
	matches, ok := m["matches"].([]map[string]any)
	if !ok {
		return nil
	}

	sources := make([]cache.Source, 0, len(matches))
	for _, match := range matches {
		src := cache.Source{}
		if v, ok := match["chunk_id"].(string); ok {
			src.ChunkID = v
		}
		if v, ok := match["score"].(float32); ok {
			src.Score = v
		}
		if v, ok := match["breadcrumb"].(string); ok {
			src.Breadcrumb = v
		}
		if v, ok := match["content"].(string); ok {
			src.Preview = truncate(v, 150)
		}
		sources = append(sources, src)
	}
	return sources
}

// truncate limits text to maxLen characters, cutting at word boundary.
// Slices on rune boundaries so multi-byte text stays valid UTF-8.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return cut[:idx] + "..."
	}
	return cut + "..."
}
