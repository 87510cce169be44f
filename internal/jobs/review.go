package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/kvstore"
	"github.com/iotserver24/xibe-review/internal/llm"
	"github.com/iotserver24/xibe-review/internal/mention"
	"github.com/iotserver24/xibe-review/internal/storage"
)

const (
	processedValue  = "processed"
	eyesReaction    = "eyes"
	reviewCompleted = "completed"
)

// Placeholder pull request data used when GitHub answers 403/404, so a review
// can still run against a repository the bot cannot read.
const (
	placeholderTitle  = "Mock PR Title"
	placeholderBody   = "Mock PR description for testing purposes"
	placeholderAuthor = "test-user"
	placeholderDiff   = "Mock diff content for testing"
	unknownAuthor     = "unknown"
)

// ReviewJob runs one review attempt: lock, duplicate checks, PR fetch,
// greeting, per-file analysis, synthesis, posting and bookkeeping.
type ReviewJob struct {
	cfg         *config.Config
	kv          kvstore.Store
	clients     github.ClientFactory
	analyzer    *llm.FileAnalyzer
	synthesizer *llm.ReviewSynthesizer
	logs        bookkeeping.Store
	reviews     storage.ReviewStore
	logger      *slog.Logger

	now      func() time.Time
	newToken func() string
}

// NewReviewJob creates a new ReviewJob with all its dependencies.
func NewReviewJob(
	cfg *config.Config,
	kv kvstore.Store,
	clients github.ClientFactory,
	analyzer *llm.FileAnalyzer,
	synthesizer *llm.ReviewSynthesizer,
	logs bookkeeping.Store,
	reviews storage.ReviewStore,
	logger *slog.Logger,
) *ReviewJob {
	if cfg == nil || kv == nil || clients == nil || analyzer == nil || synthesizer == nil || logs == nil || reviews == nil || logger == nil {
		panic("NewReviewJob received a nil dependency")
	}
	return &ReviewJob{
		cfg:         cfg,
		kv:          kv,
		clients:     clients,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		logs:        logs,
		reviews:     reviews,
		logger:      logger,
		now:         time.Now,
		newToken:    uuid.NewString,
	}
}

// prLock is the single-flight lock of one pull request. held is false when
// the store was unreachable and the run continues unlocked.
type prLock struct {
	key   string
	token string
	held  bool
}

type reviewOutcome struct {
	author    string
	content   string
	fileCount int
}

func lockKey(req *core.ReviewRequest) string {
	return fmt.Sprintf("lock:%s:%s:%d", req.Owner, req.Repo, req.PRNumber)
}

func processedKey(req *core.ReviewRequest) string {
	return fmt.Sprintf("processed_comment:%s:%s:%s", req.Owner, req.Repo, req.CommentKey())
}

func recentKey(req *core.ReviewRequest) string {
	return fmt.Sprintf("recent_comment:%s:%s:%d", req.Owner, req.Repo, req.PRNumber)
}

// Run executes the review. Skipped runs return one of the core sentinel
// errors; failures leave a processed marker so the same comment is not
// retried, and never produce a PR comment.
func (j *ReviewJob) Run(ctx context.Context, req *core.ReviewRequest) error {
	if err := req.Validate(); err != nil {
		j.finishLog(ctx, req, core.StatusError, err.Error(), "Invalid review request")
		return fmt.Errorf("invalid review request: %w", err)
	}

	start := j.now()
	logger := j.logger.With("repo", req.RepoFullName(), "pr", req.PRNumber)
	logger.Info("starting review", "auto", req.IsAutoReview, "requested_by", req.RequestedBy)

	lock, err := j.acquireLock(ctx, req, logger)
	if err != nil {
		j.finishLog(ctx, req, core.StatusIgnored, "", "Skipped: another review is in progress")
		return err
	}
	return j.runLocked(ctx, req, lock, start, logger)
}

// runLocked owns the lock until it returns. A panic past this point is
// converted to an error and takes the same failure path as any other error.
func (j *ReviewJob) runLocked(ctx context.Context, req *core.ReviewRequest, lock *prLock, start time.Time, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("review panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("review panicked: %v", r)
			j.fail(ctx, req, lock, err, logger)
		}
	}()

	if err := j.checkDuplicates(ctx, req, logger); err != nil {
		j.releaseLock(ctx, lock, logger)
		j.finishLog(ctx, req, core.StatusIgnored, "", "Skipped: "+err.Error())
		return err
	}

	outcome, err := j.review(ctx, req, logger)
	if err != nil {
		if core.IsSuppressed(err) {
			j.releaseLock(ctx, lock, logger)
			j.finishLog(ctx, req, core.StatusIgnored, "", "Skipped: "+err.Error())
			return err
		}
		j.fail(ctx, req, lock, err, logger)
		return err
	}

	j.finalize(ctx, req, lock, outcome, start, logger)
	return nil
}

// fail releases the lock and marks the comment processed so a failed review
// is not retried for the same comment.
func (j *ReviewJob) fail(ctx context.Context, req *core.ReviewRequest, lock *prLock, err error, logger *slog.Logger) {
	j.releaseLock(ctx, lock, logger)
	j.markProcessed(ctx, req, logger)
	j.finishLog(ctx, req, core.StatusError, err.Error(), "Review failed")
}

// acquireLock returns core.ErrLockHeld when another run owns the PR. A store
// failure is not an error: the run proceeds without the guarantee.
func (j *ReviewJob) acquireLock(ctx context.Context, req *core.ReviewRequest, logger *slog.Logger) (*prLock, error) {
	lock := &prLock{key: lockKey(req), token: j.newToken()}
	acquired, err := j.kv.SetNX(ctx, lock.key, lock.token, j.cfg.Review.LockTTL)
	if err != nil {
		logger.Warn("could not acquire review lock, proceeding without it", "error", err)
		return lock, nil
	}
	if !acquired {
		logger.Info("another review is already running for this pull request")
		return nil, core.ErrLockHeld
	}
	lock.held = true
	logger.Debug("acquired review lock", "key", lock.key)
	return lock, nil
}

func (j *ReviewJob) releaseLock(ctx context.Context, lock *prLock, logger *slog.Logger) {
	if !lock.held {
		return
	}
	released, err := j.kv.DelIfEquals(ctx, lock.key, lock.token)
	switch {
	case err != nil:
		logger.Warn("could not release review lock", "key", lock.key, "error", err)
	case !released:
		logger.Warn("review lock expired before release", "key", lock.key)
	default:
		logger.Debug("released review lock", "key", lock.key)
	}
}

// checkDuplicates suppresses replays of a processed comment and, for
// automatic runs, reviews of a PR the bot commented on within the recent window.
func (j *ReviewJob) checkDuplicates(ctx context.Context, req *core.ReviewRequest, logger *slog.Logger) error {
	if req.CommentID != nil {
		processed, err := j.kv.Exists(ctx, processedKey(req))
		if err != nil {
			logger.Warn("could not check processed marker", "comment_id", *req.CommentID, "error", err)
		} else if processed {
			logger.Info("comment was already processed", "comment_id", *req.CommentID)
			return core.ErrAlreadyProcessed
		}
	}

	if req.IsMentionTriggered() {
		return nil
	}

	value, found, err := j.kv.Get(ctx, recentKey(req))
	if err != nil {
		logger.Warn("could not check recent review marker", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	postedAt, err := time.Parse(time.RFC3339, value)
	if err != nil {
		logger.Warn("ignoring unreadable recent review marker", "value", value, "error", err)
		return nil
	}
	if j.now().Sub(postedAt) < j.cfg.Review.RecentTTL {
		logger.Info("pull request was reviewed recently", "at", value)
		return core.ErrRecentlyReviewed
	}
	return nil
}

func (j *ReviewJob) review(ctx context.Context, req *core.ReviewRequest, logger *slog.Logger) (*reviewOutcome, error) {
	client, err := j.clients.ForInstallation(ctx, req.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	repoCfg := j.loadRepoConfig(ctx, client, req, logger)
	if req.IsAutoReview && !repoCfg.AutoReview {
		logger.Info("automatic reviews are disabled by repository config")
		return nil, core.ErrAutoReviewDisabled
	}

	snapshot, err := j.fetchSnapshot(ctx, client, req, logger)
	if err != nil {
		return nil, err
	}
	files, excluded := FilterExcludedFiles(logger, snapshot.Files, repoCfg)
	j.addActions(ctx, req, fmt.Sprintf("Fetched PR data: %d files", len(snapshot.Files)))
	if len(excluded) > 0 {
		j.addActions(ctx, req, fmt.Sprintf("Excluded %d files by repository config", len(excluded)))
	}

	if req.IsMentionTriggered() && req.CommentID != nil {
		if err := client.CreateCommentReaction(ctx, req.Owner, req.Repo, *req.CommentID, eyesReaction); err != nil {
			logger.Warn("failed to add reaction", "comment_id", *req.CommentID, "error", err)
			j.addActions(ctx, req, "Failed to add reaction: "+err.Error())
		} else {
			j.addActions(ctx, req, "Added 👀 reaction to comment")
		}
	}

	greetUser := req.RequestedBy
	if greetUser == "" {
		greetUser = snapshot.Author
	}
	greeting := mention.LimitMentions(github.FormatGreeting(greetUser, req.IsAutoReview), j.cfg.Review.MaxMentionsPerUser)
	if err := j.post(ctx, client, req, greeting, logger); err != nil {
		logger.Warn("failed to post greeting", "error", err)
	}

	analyses := j.analyzeFiles(ctx, req, snapshot, files, repoCfg, logger)

	review, err := j.synthesizer.Synthesize(ctx, llm.SynthesisInput{
		Title:       snapshot.Title,
		Body:        snapshot.Body,
		Author:      snapshot.Author,
		RequestedBy: req.RequestedBy,
		UserComment: req.UserComment,
		Files:       files,
		Analyses:    analyses,
	})
	if err != nil {
		return nil, err
	}
	j.addActions(ctx, req, "Generated review")

	analyzed := core.PullRequestSnapshot{Files: files}
	body := github.AppendFooter(review, github.FooterStats{
		CharactersAnalyzed: analyzed.CharactersAnalyzed(),
		FileCount:          len(files),
		IsAutoReview:       req.IsAutoReview,
	})
	limited := mention.LimitMentions(body, j.cfg.Review.MaxMentionsPerUser)
	if limited != body {
		logger.Info("applied mention limiting to review comment", "mentions", mention.Count(limited))
	}
	if err := j.post(ctx, client, req, limited, logger); err != nil {
		return nil, fmt.Errorf("failed to post review: %w", err)
	}

	return &reviewOutcome{author: snapshot.Author, content: review, fileCount: len(files)}, nil
}

// post creates a PR comment. A 403/404 means the bot cannot write here; the
// body is logged instead and nil is returned.
func (j *ReviewJob) post(ctx context.Context, client github.Client, req *core.ReviewRequest, body string, logger *slog.Logger) error {
	err := client.CreateComment(ctx, req.Owner, req.Repo, req.PRNumber, body)
	if err == nil {
		j.addActions(ctx, req, "Posted comment")
		return nil
	}
	if github.IsNotFoundOrForbidden(err) {
		logger.Info("no permission to comment, logging content locally", "status", github.StatusCode(err), "body", body)
		j.addActions(ctx, req, "Comment not posted: no permission")
		return nil
	}
	return err
}

// loadRepoConfig reads the repository's config file, falling back to the
// defaults when it is missing or invalid.
func (j *ReviewJob) loadRepoConfig(ctx context.Context, client github.Client, req *core.ReviewRequest, logger *slog.Logger) *core.RepoConfig {
	data, err := client.GetFileContent(ctx, req.Owner, req.Repo, config.RepoConfigFile)
	if err != nil {
		if !github.IsNotFoundOrForbidden(err) {
			logger.Warn("failed to read repository config, using defaults", "error", err)
		}
		return core.DefaultRepoConfig()
	}
	repoCfg, err := config.ParseRepoConfig(data)
	if err != nil {
		logger.Warn("invalid repository config, using defaults", "error", err)
		return core.DefaultRepoConfig()
	}
	return repoCfg
}

// fetchSnapshot reads the PR metadata, files and diff. 403/404 answers are
// replaced by placeholder data; any other error fails the run.
func (j *ReviewJob) fetchSnapshot(ctx context.Context, client github.Client, req *core.ReviewRequest, logger *slog.Logger) (*core.PullRequestSnapshot, error) {
	snapshot := &core.PullRequestSnapshot{}

	pr, err := client.GetPullRequest(ctx, req.Owner, req.Repo, req.PRNumber)
	switch {
	case err == nil:
		snapshot.Title = pr.GetTitle()
		snapshot.Body = pr.GetBody()
		snapshot.Author = pr.GetUser().GetLogin()
		if snapshot.Author == "" {
			snapshot.Author = unknownAuthor
		}
	case github.IsNotFoundOrForbidden(err):
		logger.Info("pull request not accessible, using placeholder metadata", "status", github.StatusCode(err))
		snapshot.Title = placeholderTitle
		snapshot.Body = placeholderBody
		snapshot.Author = placeholderAuthor
	default:
		return nil, fmt.Errorf("failed to get pull request: %w", err)
	}

	files, diff, err := j.fetchChanges(ctx, client, req)
	switch {
	case err == nil:
		snapshot.Files = files
		snapshot.Diff = diff
	case github.IsNotFoundOrForbidden(err):
		logger.Info("pull request files not accessible, using placeholder file", "status", github.StatusCode(err))
		snapshot.Files = []core.ChangedFile{{
			Filename:  github.MockFilename,
			Status:    "modified",
			Additions: 1,
			Deletions: 0,
			Patch:     `+ console.log("Mock file content");`,
		}}
		snapshot.Diff = placeholderDiff
	default:
		return nil, err
	}

	logger.Info("fetched pull request", "title", snapshot.Title, "files", len(snapshot.Files))
	return snapshot, nil
}

func (j *ReviewJob) fetchChanges(ctx context.Context, client github.Client, req *core.ReviewRequest) ([]core.ChangedFile, string, error) {
	files, err := client.GetChangedFiles(ctx, req.Owner, req.Repo, req.PRNumber)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get changed files: %w", err)
	}
	diff, err := client.GetPullRequestDiff(ctx, req.Owner, req.Repo, req.PRNumber)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get pull request diff: %w", err)
	}
	return files, diff, nil
}

// analyzeFiles runs Stage 1 one file at a time, in order. A failed file gets
// a placeholder entry so the result always has one entry per file.
func (j *ReviewJob) analyzeFiles(ctx context.Context, req *core.ReviewRequest, snapshot *core.PullRequestSnapshot, files []core.ChangedFile, repoCfg *core.RepoConfig, logger *slog.Logger) []core.FileAnalysis {
	analyses := make([]core.FileAnalysis, 0, len(files))
	failed := 0
	for i, file := range files {
		logger.Info("analyzing file", "file", file.Filename, "index", i+1, "total", len(files))
		content, err := j.analyzer.Analyze(ctx, llm.AnalysisInput{
			Title:              snapshot.Title,
			Body:               snapshot.Body,
			File:               file,
			UserComment:        req.UserComment,
			CustomInstructions: repoCfg.CustomInstructions,
		})
		if err != nil {
			logger.Warn("file analysis failed, continuing", "file", file.Filename, "error", err)
			failed++
			analyses = append(analyses, core.FileAnalysis{
				Filename: file.Filename,
				Content:  llm.SkippedAnalysis(file.Filename, err),
				Skipped:  true,
			})
			continue
		}
		analyses = append(analyses, core.FileAnalysis{Filename: file.Filename, Content: content})
	}
	j.addActions(ctx, req, fmt.Sprintf("Analyzed %d files (%d failed)", len(files), failed))
	return analyses
}

func (j *ReviewJob) finalize(ctx context.Context, req *core.ReviewRequest, lock *prLock, outcome *reviewOutcome, start time.Time, logger *slog.Logger) {
	j.releaseLock(ctx, lock, logger)
	j.markProcessed(ctx, req, logger)
	if err := j.kv.SetEX(ctx, recentKey(req), j.now().UTC().Format(time.RFC3339), j.cfg.Review.RecentTTL); err != nil {
		logger.Warn("could not write recent review marker", "error", err)
	}

	elapsed := j.now().Sub(start)
	record := &core.ReviewRecord{
		Repository:     req.RepoFullName(),
		PullRequest:    req.PRNumber,
		User:           outcome.author,
		InstallationID: req.InstallationID,
		Model:          j.recordedModel(),
		ReviewContent:  outcome.content,
		ProcessingTime: elapsed.Milliseconds(),
		Status:         reviewCompleted,
	}
	if err := j.reviews.SaveReview(ctx, record); err != nil {
		logger.Warn("failed to save review analytics", "error", err)
	}

	j.finishLog(ctx, req, core.StatusCompleted, "", "Review completed")
	logger.Info("review completed", "files", outcome.fileCount, "duration", elapsed)
}

// recordedModel prefers MODEL_ID and falls back to the analysis model.
func (j *ReviewJob) recordedModel() string {
	if j.cfg.AI.Model != "" {
		return j.cfg.AI.Model
	}
	return j.cfg.AI.AnalysisModelName()
}

func (j *ReviewJob) markProcessed(ctx context.Context, req *core.ReviewRequest, logger *slog.Logger) {
	if req.CommentID == nil {
		return
	}
	if err := j.kv.SetEX(ctx, processedKey(req), processedValue, j.cfg.Review.ProcessedTTL); err != nil {
		logger.Warn("could not mark comment as processed", "comment_id", *req.CommentID, "error", err)
	}
}

func (j *ReviewJob) addActions(ctx context.Context, req *core.ReviewRequest, actions ...string) {
	if req.LogID == "" {
		return
	}
	if err := j.logs.AddActions(ctx, req.LogID, actions...); err != nil && !errors.Is(err, bookkeeping.ErrLogNotFound) {
		j.logger.Warn("failed to annotate webhook log", "log_id", req.LogID, "error", err)
	}
}

func (j *ReviewJob) finishLog(ctx context.Context, req *core.ReviewRequest, status core.LogStatus, errMsg string, actions ...string) {
	if req.LogID == "" {
		return
	}
	if err := j.logs.UpdateStatus(ctx, req.LogID, status, errMsg, actions...); err != nil {
		j.logger.Warn("failed to update webhook log", "log_id", req.LogID, "status", status, "error", err)
	}
}
