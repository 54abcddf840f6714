package memory

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"docflow/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := CountTokens(strings.Repeat("a", 25)); got != 10 {
		t.Errorf("25 chars = %d, want 10", got)
	}
	// Multi-byte runes count as single characters.
	if got := CountTokens(strings.Repeat("語", 25)); got != 10 {
		t.Errorf("25 CJK chars = %d, want 10", got)
	}
}

func TestCountMessageTokens(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: strings.Repeat("x", 10)},
		{Role: "assistant", Content: strings.Repeat("y", 10)},
	}
	// 4 content tokens + 6 overhead per message
	if got := CountMessageTokens(msgs); got != 20 {
		t.Errorf("got %d, want 20", got)
	}
}

func TestGroupTurns(t *testing.T) {
	turns := groupTurns([]Message{
		{Role: "assistant", Content: "orphan"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	})
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if len(turns[0]) != 2 || turns[0][0].Content != "q1" {
		t.Errorf("turn 1 = %+v", turns[0])
	}
	if len(turns[1]) != 1 || turns[1][0].Content != "q2" {
		t.Errorf("turn 2 = %+v", turns[1])
	}
}

func TestBuildContextInputTooLarge(t *testing.T) {
	w := NewWindow(100, "", 2, nil, testLogger())
	text, stats := w.BuildContext(context.Background(), strings.Repeat("x", 250), nil)
	if text != "" || stats.Strategy != StrategyInputTooLarge {
		t.Errorf("text=%q stats=%+v", text, stats)
	}
}

func TestBuildContextNearFieldOnly(t *testing.T) {
	w := NewWindow(100, "", 2, nil, testLogger())
	msgs := []Message{
		{Role: "user", Content: "q1q1q1q1q1"},
		{Role: "assistant", Content: "a1a1a1a1a1"},
		{Role: "user", Content: "q2q2q2q2q2"},
		{Role: "assistant", Content: "a2a2a2a2a2"},
	}
	text, stats := w.BuildContext(context.Background(), "hi", msgs)
	if stats.Strategy != StrategyNearOnly {
		t.Fatalf("strategy = %s", stats.Strategy)
	}
	if stats.MessageTokens != 40 {
		t.Errorf("message tokens = %d", stats.MessageTokens)
	}
	want := "User: q1q1q1q1q1\nAI: a1a1a1a1a1\nUser: q2q2q2q2q2\nAI: a2a2a2a2a2"
	if text != want {
		t.Errorf("text = %q", text)
	}
}

func TestBuildContextNearFieldPartial(t *testing.T) {
	w := NewWindow(100, "", 5, nil, testLogger())
	big := strings.Repeat("z", 50)
	var msgs []Message
	for i := 0; i < 3; i++ {
		msgs = append(msgs,
			Message{Role: "user", Content: big},
			Message{Role: "assistant", Content: "answer-" + string(rune('a'+i)) + strings.Repeat("z", 42)},
		)
	}
	text, stats := w.BuildContext(context.Background(), "hi", msgs)
	if stats.Strategy != StrategyNearPartial {
		t.Fatalf("strategy = %s", stats.Strategy)
	}
	if !strings.Contains(text, "answer-c") {
		t.Errorf("most recent turn missing: %q", text)
	}
	if strings.Contains(text, "answer-a") || strings.Contains(text, "answer-b") {
		t.Errorf("older turns should be dropped: %q", text)
	}
}

func TestBuildContextCompressesFarField(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "User: old question") && strings.Contains(p, "Summary:")
	}), 0.3).Return("they discussed boats", nil).Once()

	w := NewWindow(1000, "system prompt", 1, client, testLogger())
	msgs := []Message{
		{Role: "user", Content: "old question"},
		{Role: "assistant", Content: "old answer"},
		{Role: "user", Content: "new question"},
		{Role: "assistant", Content: "new answer"},
	}
	text, stats := w.BuildContext(context.Background(), "hi", msgs)
	if stats.Strategy != StrategyNearWithSummary {
		t.Fatalf("strategy = %s", stats.Strategy)
	}
	if !strings.Contains(text, "[System] [conversation summary] they discussed boats") {
		t.Errorf("summary missing: %q", text)
	}
	if !strings.Contains(text, "User: new question") {
		t.Errorf("near field missing: %q", text)
	}
	if strings.Contains(text, "User: old question") {
		t.Errorf("far field should be compressed away: %q", text)
	}
	client.AssertExpectations(t)
}

func TestBuildContextFallsBackWhenCompressionFails(t *testing.T) {
	client := new(llm.MockClient)
	client.On("Generate", mock.Anything, mock.Anything, 0.3).Return("", assertError{}).Once()

	w := NewWindow(1000, "", 1, client, testLogger())
	msgs := []Message{
		{Role: "user", Content: "old"},
		{Role: "assistant", Content: "older"},
		{Role: "user", Content: "new"},
		{Role: "assistant", Content: "newer"},
	}
	text, stats := w.BuildContext(context.Background(), "hi", msgs)
	if stats.Strategy != StrategyNearOnly {
		t.Fatalf("strategy = %s", stats.Strategy)
	}
	if !strings.Contains(text, "User: new") {
		t.Errorf("near field missing: %q", text)
	}
}

type assertError struct{}

func (assertError) Error() string { return "llm down" }
