package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Func executes a tool invocation with loosely typed JSON arguments.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named callable the planner and agent loop can dispatch to.
type Tool struct {
	Name        string
	Description string
	Run         Func
}

// Registry holds the tools available to a service. Registration happens at
// startup; lookups afterwards are read-only.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name] = t
}

// Get returns the named tool, reporting whether it exists.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders a bulleted list of tools for prompt construction.
func (r *Registry) Describe() string {
	if len(r.tools) == 0 {
		return "no tools available"
	}
	var b strings.Builder
	for i, name := range r.Names() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", name, r.tools[name].Description)
	}
	return b.String()
}
