package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iotserver24/xibe-review/internal/core"
)

// AnalysisInput is everything Stage 1 knows about one file.
type AnalysisInput struct {
	Title              string
	Body               string
	File               core.ChangedFile
	UserComment        string
	CustomInstructions []string
}

// FileAnalyzer produces the Stage 1 analysis of a single changed file.
type FileAnalyzer struct {
	completer     Completer
	prompts       *PromptManager
	provider      ModelProvider
	model         string
	maxPatchChars int
	logger        *slog.Logger
}

// NewFileAnalyzer creates a FileAnalyzer. maxPatchChars <= 0 uses 8000.
func NewFileAnalyzer(completer Completer, prompts *PromptManager, provider ModelProvider, model string, maxPatchChars int, logger *slog.Logger) *FileAnalyzer {
	if completer == nil || prompts == nil || logger == nil {
		panic("NewFileAnalyzer received a nil dependency")
	}
	if maxPatchChars <= 0 {
		maxPatchChars = defaultMaxPatchChars
	}
	return &FileAnalyzer{
		completer:     completer,
		prompts:       prompts,
		provider:      provider,
		model:         model,
		maxPatchChars: maxPatchChars,
		logger:        logger,
	}
}

type fileAnalysisData struct {
	Title              string
	Description        string
	File               core.ChangedFile
	Patch              string
	UserComment        string
	CustomInstructions []string
}

// Analyze returns the model's analysis of in.File verbatim.
func (a *FileAnalyzer) Analyze(ctx context.Context, in AnalysisInput) (string, error) {
	prompt, err := a.prompts.Render(FileAnalysisPrompt, a.provider, fileAnalysisData{
		Title:              in.Title,
		Description:        orDefault(in.Body, noDescription),
		File:               in.File,
		Patch:              truncateRunes(in.File.Patch, a.maxPatchChars),
		UserComment:        in.UserComment,
		CustomInstructions: in.CustomInstructions,
	})
	if err != nil {
		return "", err
	}
	system, err := a.prompts.Render(FileAnalysisSystemPrompt, a.provider, nil)
	if err != nil {
		return "", err
	}

	a.logger.Debug("analyzing file", "file", in.File.Filename, "model", a.model)
	out, err := a.completer.Complete(ctx, CompletionRequest{
		Model:       a.model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("analysis of %s failed: %w", in.File.Filename, err)
	}
	return out, nil
}

// SkippedAnalysis is the placeholder used when a file could not be analyzed.
func SkippedAnalysis(filename string, err error) string {
	return fmt.Sprintf("## 📄 **File: %s**\n\n⚠️ Analysis skipped due to error: %s", filename, err.Error())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
