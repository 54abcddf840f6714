package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"docflow/internal/llm"
)

// Message is one chat history entry.
type Message struct {
	Role    string // "user", "assistant" or "system"
	Content string
}

// Context assembly strategies, reported alongside the built prompt.
const (
	StrategyInputTooLarge   = "input_too_large"
	StrategyNearPartial     = "near_field_partial"
	StrategyNearWithSummary = "near_field_full_with_far_field_compressed"
	StrategyNearOnly        = "near_field_only"
)

const (
	messageOverheadTokens = 6
	compressTemperature   = 0.3
)

// CountTokens estimates token usage by character count. Close enough for
// window budgeting without shipping a tokenizer. Counts runes, not bytes,
// so multi-byte scripts are not over-billed.
func CountTokens(text string) int {
	return int(float64(utf8.RuneCountInString(text)) / 2.5)
}

// CountMessageTokens sums message tokens plus per-message framing overhead.
func CountMessageTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens + CountTokens(msg.Content)
	}
	return total
}

// Stats describes how a context window was assembled.
type Stats struct {
	Strategy        string
	MessageTokens   int
	RemainingTokens int
}

// Window manages a bounded conversation context: recent turns are kept
// verbatim, older turns are compressed into a summary when budget allows.
type Window struct {
	llm            llm.Client
	log            *slog.Logger
	nearFieldTurns int
	available      int
}

// NewWindow reserves 20% of maxContextTokens plus the system prompt as
// headroom; the rest is available for history and input.
func NewWindow(maxContextTokens int, systemPrompt string, nearFieldTurns int, client llm.Client, log *slog.Logger) *Window {
	reserved := maxContextTokens/5 + CountTokens(systemPrompt)
	return &Window{
		llm:            client,
		log:            log,
		nearFieldTurns: nearFieldTurns,
		available:      maxContextTokens - reserved,
	}
}

// BuildContext renders history into a prompt fragment that fits the window
// alongside userInput.
func (w *Window) BuildContext(ctx context.Context, userInput string, messages []Message) (string, Stats) {
	remaining := w.available - CountTokens(userInput)
	if remaining <= 0 {
		return "", Stats{Strategy: StrategyInputTooLarge, RemainingTokens: remaining}
	}

	turns := groupTurns(messages)
	nearTurns := turns
	var farTurns [][]Message
	if len(turns) > w.nearFieldTurns {
		farTurns = turns[:len(turns)-w.nearFieldTurns]
		nearTurns = turns[len(turns)-w.nearFieldTurns:]
	}

	nearMessages := flatten(nearTurns)
	nearTokens := CountMessageTokens(nearMessages)

	// Even the near field overflows: keep only the most recent whole turns
	// that fit.
	if nearTokens > remaining {
		var selected []Message
		selectedTokens := 0
		for i := len(nearTurns) - 1; i >= 0; i-- {
			turnTokens := CountMessageTokens(nearTurns[i])
			if selectedTokens+turnTokens > remaining {
				break
			}
			selected = append(nearTurns[i], selected...)
			selectedTokens += turnTokens
		}
		return formatMessages(selected), Stats{
			Strategy:        StrategyNearPartial,
			MessageTokens:   selectedTokens,
			RemainingTokens: remaining - selectedTokens,
		}
	}

	budget := remaining - nearTokens
	if budget > 0 && len(farTurns) > 0 && w.llm != nil {
		if summary := w.compressFarField(ctx, farTurns); summary != "" {
			summaryTokens := CountTokens(summary)
			if summaryTokens <= budget {
				all := append(append([]Message{}, nearMessages...), Message{Role: "system", Content: summary})
				return formatMessages(all), Stats{
					Strategy:        StrategyNearWithSummary,
					MessageTokens:   nearTokens + summaryTokens,
					RemainingTokens: remaining - nearTokens - summaryTokens,
				}
			}
		}
	}

	return formatMessages(nearMessages), Stats{
		Strategy:        StrategyNearOnly,
		MessageTokens:   nearTokens,
		RemainingTokens: remaining - nearTokens,
	}
}

// groupTurns splits messages into turns: a user message opens a turn, the
// following assistant message closes it. Leading assistant messages without
// a user opener are dropped.
func groupTurns(messages []Message) [][]Message {
	var turns [][]Message
	var current []Message

	for _, msg := range messages {
		switch msg.Role {
		case "user":
			if len(current) > 0 {
				turns = append(turns, current)
			}
			current = []Message{msg}
		case "assistant":
			if len(current) > 0 {
				current = append(current, msg)
				turns = append(turns, current)
				current = nil
			}
		}
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func (w *Window) compressFarField(ctx context.Context, turns [][]Message) string {
	prompt := fmt.Sprintf(`Compress the following conversation history into a concise summary, keeping the key facts:

%s

Summary:`, formatMessages(flatten(turns)))

	summary, err := w.llm.Generate(ctx, prompt, compressTemperature)
	if err != nil {
		w.log.Error("far-field compression failed", "err", err)
		return ""
	}
	return "[conversation summary] " + summary
}

func formatMessages(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			lines = append(lines, "User: "+msg.Content)
		case "assistant":
			lines = append(lines, "AI: "+msg.Content)
		case "system":
			lines = append(lines, "[System] "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func flatten(turns [][]Message) []Message {
	var out []Message
	for _, turn := range turns {
		out = append(out, turn...)
	}
	return out
}
