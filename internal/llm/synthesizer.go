package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iotserver24/xibe-review/internal/core"
)

// SynthesisInput carries the PR context and all Stage 1 results.
type SynthesisInput struct {
	Title       string
	Body        string
	Author      string
	RequestedBy string
	UserComment string
	Files       []core.ChangedFile
	Analyses    []core.FileAnalysis
}

// ReviewSynthesizer merges the per-file analyses into the final review.
type ReviewSynthesizer struct {
	completer Completer
	prompts   *PromptManager
	provider  ModelProvider
	model     string
	logger    *slog.Logger
}

func NewReviewSynthesizer(completer Completer, prompts *PromptManager, provider ModelProvider, model string, logger *slog.Logger) *ReviewSynthesizer {
	if completer == nil || prompts == nil || logger == nil {
		panic("NewReviewSynthesizer received a nil dependency")
	}
	return &ReviewSynthesizer{
		completer: completer,
		prompts:   prompts,
		provider:  provider,
		model:     model,
		logger:    logger,
	}
}

type synthesisData struct {
	Title       string
	Description string
	Author      string
	RequestedBy string
	UserComment string
	Language    string
	Files       []core.ChangedFile
	Analyses    string
}

// Synthesize makes exactly one completion call and returns its output verbatim.
func (s *ReviewSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	requestedBy := in.RequestedBy
	if requestedBy == in.Author {
		requestedBy = ""
	}

	prompt, err := s.prompts.Render(ReviewSynthesisPrompt, s.provider, synthesisData{
		Title:       in.Title,
		Description: orDefault(in.Body, noDescription),
		Author:      in.Author,
		RequestedBy: requestedBy,
		UserComment: in.UserComment,
		Language:    DetectLanguage(in.Files),
		Files:       in.Files,
		Analyses:    JoinAnalyses(in.Analyses),
	})
	if err != nil {
		return "", err
	}
	system, err := s.prompts.Render(ReviewSynthesisSystemPrompt, s.provider, nil)
	if err != nil {
		return "", err
	}

	s.logger.Info("synthesizing final review", "analyses", len(in.Analyses), "model", s.model)
	out, err := s.completer.Complete(ctx, CompletionRequest{
		Model:       s.model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   synthesisMaxTokens,
		Temperature: synthesisTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("review synthesis failed: %w", err)
	}
	return out, nil
}

// JoinAnalyses concatenates analyses in order with a horizontal rule between them.
func JoinAnalyses(analyses []core.FileAnalysis) string {
	parts := make([]string, len(analyses))
	for i, a := range analyses {
		parts[i] = a.Content
	}
	return strings.Join(parts, analysisSeparator)
}
