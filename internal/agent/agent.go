package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"docflow/internal/llm"
	"docflow/internal/tools"
)

const (
	defaultMaxIterations = 10
	thinkTemperature     = 0.3
)

var (
	actionPattern      = regexp.MustCompile(`(?is)Action:\s*(\w+)\s*\((.+?)\)`)
	finishPattern      = regexp.MustCompile(`(?i)Action:\s*FINISH`)
	finalAnswerPattern = regexp.MustCompile(`(?i)Final Answer:\s*(.+)`)
	kvPattern          = regexp.MustCompile(`(\w+)\s*[:=]\s*"([^"]+)"`)
)

// Loop drives a Thought/Action/Observation cycle: the model proposes an
// action, the loop executes it and feeds the observation back, until the
// model produces a final answer or the iteration cap is hit.
type Loop struct {
	llm           llm.Client
	registry      *tools.Registry
	maxIterations int
	log           *slog.Logger
}

func NewLoop(client llm.Client, registry *tools.Registry, maxIterations int, log *slog.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Loop{llm: client, registry: registry, maxIterations: maxIterations, log: log}
}

// Run answers query, optionally restricted to the allowed tool names.
func (l *Loop) Run(ctx context.Context, query string, allowed []string) (string, error) {
	var history []string

	for i := 0; i < l.maxIterations; i++ {
		thought, err := l.llm.Generate(ctx, l.buildPrompt(query, history), thinkTemperature)
		if err != nil {
			return "", fmt.Errorf("generate thought: %w", err)
		}

		if answer, done := extractFinalAnswer(thought); done {
			return answer, nil
		}

		observation := l.act(ctx, thought, allowed)
		l.log.Debug("react step", "iteration", i+1, "observation", observation)
		history = append(history, observation)
	}

	if len(history) == 0 {
		return "", fmt.Errorf("no progress after %d iterations", l.maxIterations)
	}
	return l.summarize(ctx, query, history)
}

func (l *Loop) buildPrompt(query string, history []string) string {
	var historyText string
	if len(history) > 0 {
		parts := make([]string, len(history))
		for i, obs := range history {
			parts[i] = fmt.Sprintf("Observation %d: %s", i+1, obs)
		}
		historyText = "\n\n" + strings.Join(parts, "\n\n")
	}

	return fmt.Sprintf(`You are an assistant solving problems step by step.

Available tools:
%s

Respond in this format:
Thought: [what to do next]
Action: tool_name({"arg": "value"})
or, when you can answer directly:
Action: FINISH
Final Answer: [the answer]

User query: %s%s

Begin:`, l.registry.Describe(), query, historyText)
}

// extractFinalAnswer reports whether thought terminates the loop and, if so,
// the answer text. A FINISH action without an explicit answer line falls
// back to the whole thought.
func extractFinalAnswer(thought string) (string, bool) {
	if m := finalAnswerPattern.FindStringSubmatch(thought); m != nil {
		if answer := strings.TrimSpace(m[1]); answer != "" {
			return answer, true
		}
	}
	if finishPattern.MatchString(thought) && !actionPattern.MatchString(thought) {
		return strings.TrimSpace(thought), true
	}
	return "", false
}

// act parses and executes the Action in thought, returning the observation.
func (l *Loop) act(ctx context.Context, thought string, allowed []string) string {
	m := actionPattern.FindStringSubmatch(thought)
	if m == nil {
		return "no valid Action found; use the required format"
	}

	name := strings.TrimSpace(m[1])
	argsText := strings.TrimSpace(m[2])

	if allowed != nil && !containsName(allowed, name) {
		return fmt.Sprintf("error: tool %s not allowed", name)
	}
	tool, ok := l.registry.Get(name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %s", name)
	}

	args, err := parseArgs(argsText)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	result, err := tool.Run(ctx, args)
	if err != nil {
		l.log.Warn("tool failed", "tool", name, "err", err)
		return fmt.Sprintf("error: %v (tool %s)", err, name)
	}

	var resultText string
	if data, jerr := json.Marshal(result); jerr == nil {
		resultText = string(data)
	} else {
		resultText = fmt.Sprintf("%v", result)
	}
	return fmt.Sprintf("[tool %s] %s", name, resultText)
}

// parseArgs decodes tool arguments as JSON, falling back to key="value"
// pairs for model output that is not quite JSON.
func parseArgs(text string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(text), &args); err == nil {
		return args, nil
	}

	args = map[string]any{}
	for _, m := range kvPattern.FindAllStringSubmatch(text, -1) {
		args[m[1]] = m[2]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("cannot parse action arguments: %s", text)
	}
	return args, nil
}

func (l *Loop) summarize(ctx context.Context, query string, history []string) (string, error) {
	parts := make([]string, len(history))
	for i, obs := range history {
		parts[i] = fmt.Sprintf("Observation %d: %s", i+1, obs)
	}

	prompt := fmt.Sprintf(`Answer the user's question based on the observations below.

User query: %s

Observations:
%s

Give a concise, accurate final answer:`, query, strings.Join(parts, "\n\n"))

	answer, err := l.llm.Generate(ctx, prompt, thinkTemperature)
	if err != nil {
		return "", fmt.Errorf("generate final answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
