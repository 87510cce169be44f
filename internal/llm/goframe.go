package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/goframe/llms"
)

// ModelFactory creates a goframe model for a model name.
type ModelFactory func(ctx context.Context, model string) (llms.Model, error)

type goframeCompleter struct {
	factory ModelFactory
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewGoframeCompleter adapts goframe models (ollama, gemini) to Completer. One
// model instance is created per model name on first use. goframe models take a
// single prompt, so the system instruction is prepended to it.
func NewGoframeCompleter(factory ModelFactory, timeout time.Duration, logger *slog.Logger) Completer {
	return &goframeCompleter{
		factory: factory,
		timeout: timeout,
		logger:  logger,
		models:  make(map[string]llms.Model),
	}
}

func (g *goframeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model, err := g.getOrCreateModel(ctx, req.Model)
	if err != nil {
		return "", err
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	return g.callWithTimeout(ctx, model, prompt)
}

func (g *goframeCompleter) getOrCreateModel(ctx context.Context, name string) (llms.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.models[name]; ok {
		return m, nil
	}
	g.logger.Info("creating LLM instance", "model", name)
	m, err := g.factory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %s: %w", name, err)
	}
	g.models[name] = m
	return m, nil
}

// callWithTimeout wraps generation with a hard timeout.
func (g *goframeCompleter) callWithTimeout(ctx context.Context, model llms.Model, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type result struct {
		resp string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := model.Call(ctx, prompt)
		resultCh <- result{resp, err}
	}()

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
