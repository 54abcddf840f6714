package llm

import (
	"context"
	"strings"
)

// StubClient is a deterministic Client for local runs without an API key.
// It echoes a clipped version of the prompt.
type StubClient struct{}

const stubClipLen = 200

func (StubClient) Generate(_ context.Context, prompt string, _ float64) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) > stubClipLen {
		trimmed = trimmed[:stubClipLen]
	}
	return "stub: " + trimmed, nil
}
