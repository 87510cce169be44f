package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const apiVersionPath = "/v1/"

type openAICompleter struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAICompleter creates a Completer for any OpenAI-compatible chat
// completions API. baseURL is the API root without the /v1 suffix.
// Rate limits, timeouts and 5xx answers are retried up to maxRetries times.
func NewOpenAICompleter(baseURL, apiKey string, httpClient *http.Client, maxRetries int, logger *slog.Logger) Completer {
	return &openAICompleter{
		client: newOpenAIClient(baseURL, apiKey, httpClient, maxRetries),
		logger: logger,
	}
}

func newOpenAIClient(baseURL, apiKey string, httpClient *http.Client, maxRetries int) openai.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/") + apiVersionPath),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(max(maxRetries, 0)),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return openai.NewClient(opts...)
}

func (o *openAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if status := apiStatusCode(err); status == http.StatusTooManyRequests {
			o.logger.Warn("AI provider kept rate limiting the request", "model", req.Model)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	o.logger.Debug("AI completion received", "model", req.Model, "chars", len(content), "total_tokens", resp.Usage.TotalTokens)
	return content, nil
}

// apiStatusCode returns the HTTP status of a provider error, or 0 when err did
// not come from an API response.
func apiStatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ListModels fetches the model ids exposed by an OpenAI-compatible API.
func ListModels(ctx context.Context, httpClient *http.Client, baseURL, apiKey string) ([]string, error) {
	client := newOpenAIClient(baseURL, apiKey, httpClient, 0)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
