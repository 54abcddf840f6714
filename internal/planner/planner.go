package planner

import (
	"strings"
	"unicode"

	"docflow/internal/executor"
)

const searchTopK = 4

var searchKeywords = []string{"search", "find", "look up", "lookup", "retrieve", "in the document", "from the document"}

// Plan maps a user message to a task sequence by keyword heuristics. The
// fallback is a single LLM task with the message as prompt; the agent loop
// covers anything these rules cannot.
func Plan(input string) []executor.Task {
	low := strings.ToLower(input)

	if wantsCalculation(low) {
		return []executor.Task{
			{Type: "tool", Name: "calculator", Args: map[string]any{"expr": extractExpr(input)}},
			{Type: "llm", Prompt: "Explain the calculation result briefly."},
		}
	}

	for _, kw := range searchKeywords {
		if strings.Contains(low, kw) {
			return []executor.Task{
				{Type: "tool", Name: "query_index", Args: map[string]any{
					"query": input,
					"top_k": float64(searchTopK),
				}},
				{Type: "llm", Prompt: "Answer the question concisely using the search results above."},
			}
		}
	}

	return []executor.Task{{Type: "llm", Prompt: input}}
}

func wantsCalculation(low string) bool {
	if strings.Contains(low, "calculate") || strings.Contains(low, "compute") {
		return true
	}
	hasOp := strings.ContainsAny(low, "+-*/%")
	hasDigit := strings.IndexFunc(low, unicode.IsDigit) >= 0
	return hasOp && hasDigit
}

// extractExpr strips the input down to arithmetic characters.
func extractExpr(input string) string {
	var b strings.Builder
	for _, r := range input {
		if strings.ContainsRune("0123456789+-*/(). %", r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
