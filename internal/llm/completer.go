package llm

import (
	"context"
)

// CompletionRequest is one chat completion: a system instruction and a single
// user prompt.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer turns a prompt into model output. Implementations return the text
// verbatim; callers treat it as opaque.
//
//go:generate mockgen -destination=../../mocks/mock_completer.go -package=mocks . Completer
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
