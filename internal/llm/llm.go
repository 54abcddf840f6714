package llm

import "context"

// Client is a minimal text-generation interface to allow pluggable providers.
// Every consumer (agent loop, executor, far-field compression) needs exactly
// one operation: prompt in, completion out.
type Client interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}
