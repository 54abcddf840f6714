package executor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"docflow/internal/llm"
	"docflow/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func echoRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.Tool{
		Name: "echo",
		Run: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args["msg"]}, nil
		},
	})
	r.Register(tools.Tool{
		Name: "boom",
		Run: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("kaput")
		},
	})
	return r
}

func TestExecutePrependsToolObservations(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.HasPrefix(prompt, `[tool echo] {"echo":"hi"}`) &&
			strings.HasSuffix(prompt, "summarize")
	}), 0.2).Return("summary", nil)

	e := New(client, echoRegistry(), testLogger())
	results := e.Execute(context.Background(), []Task{
		{Type: "tool", Name: "echo", Args: map[string]any{"msg": "hi"}},
		{Type: "llm", Prompt: "summarize"},
	}, nil)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK || results[0].Tool != "echo" {
		t.Errorf("tool result = %+v", results[0])
	}
	if !results[1].OK || results[1].Output != "summary" {
		t.Errorf("llm result = %+v", results[1])
	}
	client.AssertExpectations(t)
}

func TestExecuteBlocksDisallowedTool(t *testing.T) {
	e := New(new(llm.MockClient), echoRegistry(), testLogger())
	results := e.Execute(context.Background(), []Task{
		{Type: "tool", Name: "echo", Args: map[string]any{"msg": "hi"}},
	}, []string{"boom"})

	if results[0].OK || !results[0].Blocked {
		t.Errorf("expected blocked result, got %+v", results[0])
	}
}

func TestExecuteContinuesPastFailures(t *testing.T) {
	client := new(llm.MockClient)
	// boom fails, so no observation prefix reaches the prompt.
	client.On("Generate", mock.Anything, "carry on", 0.2).Return("done", nil)

	e := New(client, echoRegistry(), testLogger())
	results := e.Execute(context.Background(), []Task{
		{Type: "tool", Name: "boom"},
		{Type: "tool", Name: "missing"},
		{Type: "noop"},
		{Type: "llm", Prompt: "carry on"},
	}, nil)

	if results[0].OK || results[0].Err != "kaput" {
		t.Errorf("boom result = %+v", results[0])
	}
	if results[1].OK || !strings.Contains(results[1].Err, "unknown tool") {
		t.Errorf("missing result = %+v", results[1])
	}
	if results[2].OK || !strings.Contains(results[2].Err, "unknown task type") {
		t.Errorf("noop result = %+v", results[2])
	}
	if !results[3].OK || results[3].Output != "done" {
		t.Errorf("llm result = %+v", results[3])
	}
	client.AssertExpectations(t)
}
