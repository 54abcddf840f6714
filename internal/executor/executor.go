package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"docflow/internal/llm"
	"docflow/internal/tools"
)

// Task is one step of a plan: either a tool invocation or an LLM generation.
type Task struct {
	Type   string         // "tool" or "llm"
	Name   string         // tool name, when Type == "tool"
	Args   map[string]any // tool arguments
	Prompt string         // generation prompt, when Type == "llm"
}

// Result reports the outcome of a single task.
type Result struct {
	OK      bool
	Tool    string
	Blocked bool
	Output  any
	Err     string
}

const llmTemperature = 0.2

// Executor runs planned task sequences. Tool outputs observed earlier in the
// sequence are prepended to later LLM prompts so the model can ground its
// answer in them.
type Executor struct {
	llm      llm.Client
	registry *tools.Registry
	log      *slog.Logger
}

func New(client llm.Client, registry *tools.Registry, log *slog.Logger) *Executor {
	return &Executor{llm: client, registry: registry, log: log}
}

// Execute runs tasks in order. allowed restricts which tools may run; a nil
// slice allows every registered tool. Failures are recorded per task and do
// not stop the sequence.
func (e *Executor) Execute(ctx context.Context, tasks []Task, allowed []string) []Result {
	results := make([]Result, 0, len(tasks))
	var observations []string

	for _, task := range tasks {
		switch task.Type {
		case "tool":
			res := e.runTool(ctx, task, allowed)
			if res.OK {
				observations = append(observations, formatObservation(task.Name, res.Output))
			}
			results = append(results, res)

		case "llm":
			prompt := task.Prompt
			if len(observations) > 0 {
				prompt = strings.Join(observations, "\n\n") + "\n\n" + prompt
			}
			resp, err := e.llm.Generate(ctx, prompt, llmTemperature)
			if err != nil {
				e.log.Error("llm task failed", "err", err)
				results = append(results, Result{Err: err.Error()})
				continue
			}
			results = append(results, Result{OK: true, Output: resp})

		default:
			results = append(results, Result{Err: fmt.Sprintf("unknown task type %q", task.Type)})
		}
	}

	return results
}

func (e *Executor) runTool(ctx context.Context, task Task, allowed []string) Result {
	tool, ok := e.registry.Get(task.Name)
	if !ok {
		return Result{Tool: task.Name, Err: fmt.Sprintf("unknown tool: %s", task.Name)}
	}
	if allowed != nil && !contains(allowed, task.Name) {
		e.log.Warn("tool blocked", "tool", task.Name)
		return Result{Tool: task.Name, Blocked: true, Err: fmt.Sprintf("tool %s not allowed", task.Name)}
	}

	out, err := tool.Run(ctx, task.Args)
	if err != nil {
		e.log.Error("tool failed", "tool", task.Name, "err", err)
		return Result{Tool: task.Name, Err: err.Error()}
	}
	return Result{OK: true, Tool: task.Name, Output: out}
}

// formatObservation renders a tool output for inclusion in an LLM prompt.
func formatObservation(name string, output any) string {
	var text string
	if data, err := json.Marshal(output); err == nil {
		text = string(data)
	} else {
		text = fmt.Sprintf("%v", output)
	}
	return fmt.Sprintf("[tool %s] %s", name, text)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
