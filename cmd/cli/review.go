package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/jobs"
	"github.com/iotserver24/xibe-review/internal/wire"
)

var (
	render         bool
	dryRun         bool
	installationID int64
	requestedBy    string
	userComment    string
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-url]",
	Short: "Run one review for a GitHub Pull Request",
	Long: `Run one review for a GitHub Pull Request, synchronously.

The command runs the same pipeline as the webhook server: lock, duplicate
checks, per-file analysis, synthesis and posting. Without GitHub credentials it
runs in test mode against placeholder data.

Examples:
  xibe-cli review https://github.com/owner/repo/pull/123
  xibe-cli review --dry-run --render owner/repo#123
  xibe-cli review --user alice --comment "focus on error handling" owner/repo#123`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().BoolVar(&render, "render", false, "Render the review as markdown in the terminal")
	reviewCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not post comments or reactions to GitHub")
	reviewCmd.Flags().Int64Var(&installationID, "installation-id", 0, "GitHub App installation id (app mode only)")
	reviewCmd.Flags().StringVar(&requestedBy, "user", "", "Review on behalf of this GitHub user, bypassing the recent-review window")
	reviewCmd.Flags().StringVar(&userComment, "comment", "", "Extra request passed to the reviewer")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	ref, err := github.ParsePullRequestURL(args[0])
	if err != nil {
		return fmt.Errorf("%w\n\nExpected format: https://github.com/owner/repo/pull/123 or owner/repo#123", err)
	}

	titleColor.Println("Xibe-review - PR Review")
	dimColor.Printf("   Target: %s\n\n", ref)

	start := time.Now()
	app, cleanup, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w\n\nTip: check your .env file and environment", err)
	}
	defer cleanup()
	if verbose {
		dimColor.Printf("   Auth mode: %s, analysis model: %s, comment model: %s\n",
			app.Clients.Mode(), app.Cfg.AI.AnalysisModelName(), app.Cfg.AI.CommentModelName())
	}

	recorder := github.NewRecordingClientFactory(app.Clients, dryRun)
	job := jobs.NewReviewJob(app.Cfg, app.KV, recorder, app.Analyzer, app.Synthesizer, app.Logs, app.Reviews, app.Logger)

	req := &core.ReviewRequest{
		Owner:          ref.Owner,
		Repo:           ref.Repo,
		PRNumber:       ref.Number,
		InstallationID: installationID,
		UserComment:    userComment,
		RequestedBy:    requestedBy,
	}

	fmt.Println("Generating review...")
	err = job.Run(ctx, req)
	switch {
	case core.IsSuppressed(err):
		warnColor.Printf("Review skipped: %v\n", err)
		return nil
	case errors.Is(err, github.ErrMissingInstallation):
		return fmt.Errorf("%w\n\nTip: pass --installation-id or use a GITHUB_TOKEN", err)
	case err != nil:
		return fmt.Errorf("review failed: %w", err)
	}

	successColor.Printf("Review finished in %s\n", time.Since(start).Round(time.Millisecond))
	if dryRun {
		warnColor.Println("Dry run: nothing was posted to GitHub")
	}

	comments := recorder.Comments()
	if len(comments) == 0 {
		return nil
	}
	return printReview(comments[len(comments)-1])
}

func printReview(body string) error {
	separator := strings.Repeat("=", 60)
	fmt.Println()
	titleColor.Println(separator)
	titleColor.Println("REVIEW")
	titleColor.Println(separator)

	if !render {
		fmt.Println(body)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(body)
	if err != nil {
		return fmt.Errorf("failed to render review: %w", err)
	}
	fmt.Print(out)
	return nil
}
