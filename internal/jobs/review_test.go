package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gogithub "github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/kvstore"
	"github.com/iotserver24/xibe-review/internal/llm"
	"github.com/iotserver24/xibe-review/internal/storage"
	"github.com/iotserver24/xibe-review/mocks"
)

var analyzedFilePattern = regexp.MustCompile(`- Filename: (\S+)`)

type reviewHarness struct {
	job       *ReviewJob
	mr        *miniredis.Miniredis
	logs      bookkeeping.Store
	client    *mocks.MockClient
	completer *mocks.MockCompleter
}

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{Model: "test-model"},
		Review: config.ReviewConfig{
			LockTTL:            10 * time.Minute,
			ProcessedTTL:       24 * time.Hour,
			RecentTTL:          5 * time.Minute,
			MaxMentionsPerUser: 2,
		},
	}
}

func newReviewHarness(t *testing.T) *reviewHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	kv, err := kvstore.NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return newReviewHarnessWithStore(t, kv, mr)
}

func newReviewHarnessWithStore(t *testing.T, kv kvstore.Store, mr *miniredis.Miniredis) *reviewHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	prompts, err := llm.NewPromptManager()
	require.NoError(t, err)

	client := mocks.NewMockClient(ctrl)
	completer := mocks.NewMockCompleter(ctrl)
	logs := bookkeeping.NewStore(kv, logger)

	job := NewReviewJob(
		testConfig(),
		kv,
		github.NewStaticClientFactory(config.AuthModePAT, client),
		llm.NewFileAnalyzer(completer, prompts, llm.DefaultProvider, "analysis-model", 0, logger),
		llm.NewReviewSynthesizer(completer, prompts, llm.DefaultProvider, "comment-model", logger),
		logs,
		storage.NewRedisReviewStore(kv, logger),
		logger,
	)
	return &reviewHarness{job: job, mr: mr, logs: logs, client: client, completer: completer}
}

func ghError(status int) error {
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/", nil)
	return &gogithub.ErrorResponse{Response: &http.Response{StatusCode: status, Request: req}, Message: http.StatusText(status)}
}

func testPullRequest(author string) *gogithub.PullRequest {
	return &gogithub.PullRequest{
		Title: gogithub.Ptr("Add retry support"),
		Body:  gogithub.Ptr("Retries failed uploads."),
		User:  &gogithub.User{Login: gogithub.Ptr(author)},
	}
}

func testFiles(names ...string) []core.ChangedFile {
	files := make([]core.ChangedFile, len(names))
	for i, name := range names {
		files[i] = core.ChangedFile{Filename: name, Status: "modified", Additions: 2, Deletions: 1, Patch: "+line " + name}
	}
	return files
}

// fakeModel answers analysis prompts with "analysis of <file>" and fails for
// the files in failing. Any other prompt is the synthesis call.
type fakeModel struct {
	mu              sync.Mutex
	failing         map[string]bool
	synthesisErr    error
	synthesisOutput string
	analyzed        []string
	synthesisPrompt string
	synthesisCalls  int
}

func (m *fakeModel) complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match := analyzedFilePattern.FindStringSubmatch(req.Prompt); match != nil {
		m.analyzed = append(m.analyzed, match[1])
		if m.failing[match[1]] {
			return "", errors.New("upstream timeout")
		}
		return "analysis of " + match[1], nil
	}
	m.synthesisCalls++
	m.synthesisPrompt = req.Prompt
	if m.synthesisErr != nil {
		return "", m.synthesisErr
	}
	return m.synthesisOutput, nil
}

func (h *reviewHarness) expectFetch(pr *gogithub.PullRequest, files []core.ChangedFile) {
	h.client.EXPECT().GetFileContent(gomock.Any(), "octo", "app", config.RepoConfigFile).Return(nil, ghError(http.StatusNotFound))
	h.client.EXPECT().GetPullRequest(gomock.Any(), "octo", "app", 7).Return(pr, nil)
	h.client.EXPECT().GetChangedFiles(gomock.Any(), "octo", "app", 7).Return(files, nil)
	h.client.EXPECT().GetPullRequestDiff(gomock.Any(), "octo", "app", 7).Return("diff --git", nil)
}

func (h *reviewHarness) capturePosts(times int) *[]string {
	var posted []string
	h.client.EXPECT().CreateComment(gomock.Any(), "octo", "app", 7, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, body string) error {
			posted = append(posted, body)
			return nil
		}).Times(times)
	return &posted
}

func (h *reviewHarness) recordLog(t *testing.T) string {
	t.Helper()
	log := bookkeeping.NewLog("issue_comment", "delivery-1")
	require.NoError(t, h.logs.RecordLog(context.Background(), log))
	return log.ID
}

func mentionRequest(commentID int64, logID string) *core.ReviewRequest {
	return &core.ReviewRequest{
		Owner:       "octo",
		Repo:        "app",
		PRNumber:    7,
		CommentID:   &commentID,
		LogID:       logID,
		UserComment: "@Xibe-review please check error handling",
		RequestedBy: "bob",
	}
}

func TestReviewJob_MentionEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newReviewHarness(t)
	logID := h.recordLog(t)

	model := &fakeModel{
		failing:         map[string]bool{"b.go": true},
		synthesisOutput: "## Final review\n\nThanks @bob @bob @bob",
	}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(4)

	h.expectFetch(testPullRequest("alice"), testFiles("a.go", "b.go", "c.go"))
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(99), "eyes").Return(nil)
	posted := h.capturePosts(2)

	err := h.job.Run(ctx, mentionRequest(99, logID))
	require.NoError(t, err)

	require.Len(t, *posted, 2)
	assert.Contains(t, (*posted)[0], "Hey @bob! 👋")
	assert.Contains(t, (*posted)[1], "## Final review")
	assert.Contains(t, (*posted)[1], "across 3 files")
	assert.Equal(t, 2, strings.Count((*posted)[1], "@bob"), "mentions are limited per user")

	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, model.analyzed, "files are analyzed in order")
	assert.Equal(t, 1, model.synthesisCalls)
	assert.Contains(t, model.synthesisPrompt, "analysis of a.go")
	assert.Contains(t, model.synthesisPrompt, "⚠️ Analysis skipped due to error")
	assert.Contains(t, model.synthesisPrompt, "analysis of c.go")

	assert.True(t, h.mr.Exists("processed_comment:octo:app:99"))
	assert.Equal(t, 24*time.Hour, h.mr.TTL("processed_comment:octo:app:99"))
	assert.True(t, h.mr.Exists("recent_comment:octo:app:7"))
	assert.False(t, h.mr.Exists("lock:octo:app:7"), "lock is released")

	log, err := h.logs.GetLog(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, log.Status)
	assert.NotNil(t, log.ProcessingTime)
	assert.Contains(t, log.Actions, "Review completed")

	stats, err := h.logs.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Processing)

	ids, err := h.mr.List("reviews:all")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, "1", h.mr.HGet("user:alice:stats", "reviews"), "analytics are attributed to the PR author")
}

func TestReviewJob_StageOneIsolation(t *testing.T) {
	tests := []struct {
		name    string
		failing map[string]bool
		skipped []bool
	}{
		{name: "no failures", failing: nil, skipped: []bool{false, false, false}},
		{name: "middle file fails", failing: map[string]bool{"b.go": true}, skipped: []bool{false, true, false}},
		{name: "all files fail", failing: map[string]bool{"a.go": true, "b.go": true, "c.go": true}, skipped: []bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newReviewHarness(t)
			model := &fakeModel{failing: tt.failing}
			h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(3)

			req := &core.ReviewRequest{Owner: "octo", Repo: "app", PRNumber: 7}
			snapshot := &core.PullRequestSnapshot{Title: "t", Files: testFiles("a.go", "b.go", "c.go")}
			analyses := h.job.analyzeFiles(context.Background(), req, snapshot, snapshot.Files, core.DefaultRepoConfig(), h.job.logger)

			require.Len(t, analyses, 3)
			for i, a := range analyses {
				assert.Equal(t, snapshot.Files[i].Filename, a.Filename)
				assert.Equal(t, tt.skipped[i], a.Skipped, a.Filename)
				if a.Skipped {
					assert.Contains(t, a.Content, "Analysis skipped due to error: ")
				} else {
					assert.Equal(t, "analysis of "+a.Filename, a.Content)
				}
			}
		})
	}
}

func TestReviewJob_LockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	h := newReviewHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.EXPECT().GetFileContent(gomock.Any(), "octo", "app", config.RepoConfigFile).
		DoAndReturn(func(context.Context, string, string, string) ([]byte, error) {
			close(entered)
			<-release
			return nil, ghError(http.StatusNotFound)
		})
	h.client.EXPECT().GetPullRequest(gomock.Any(), "octo", "app", 7).Return(nil, ghError(http.StatusInternalServerError))

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- h.job.Run(ctx, mentionRequest(1, ""))
	}()
	<-entered

	// The first run holds the lock; the second gives up without touching GitHub.
	err := h.job.Run(ctx, mentionRequest(2, ""))
	assert.ErrorIs(t, err, core.ErrLockHeld)
	assert.False(t, h.mr.Exists("processed_comment:octo:app:2"))

	close(release)
	err = <-firstErr
	require.Error(t, err)
	assert.False(t, core.IsSuppressed(err))
	assert.False(t, h.mr.Exists("lock:octo:app:7"), "lock is released after a failure")
}

func TestReviewJob_LockHeldByOtherProcess(t *testing.T) {
	h := newReviewHarness(t)
	logID := h.recordLog(t)
	require.NoError(t, h.mr.Set("lock:octo:app:7", "other-token"))

	err := h.job.Run(context.Background(), mentionRequest(5, logID))
	assert.ErrorIs(t, err, core.ErrLockHeld)

	value, err := h.mr.Get("lock:octo:app:7")
	require.NoError(t, err)
	assert.Equal(t, "other-token", value, "a foreign lock is never released")

	log, err := h.logs.GetLog(context.Background(), logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIgnored, log.Status)
}

func TestReviewJob_ReplayIsIgnored(t *testing.T) {
	tests := []struct {
		name        string
		synthErr    error
		wantFirstOK bool
	}{
		{name: "after success", wantFirstOK: true},
		{name: "after failure", synthErr: errors.New("model unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newReviewHarness(t)

			model := &fakeModel{synthesisErr: tt.synthErr, synthesisOutput: "review"}
			h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
			h.expectFetch(testPullRequest("alice"), testFiles("a.go"))
			h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(42), "eyes").Return(nil)
			posts := 1
			if tt.wantFirstOK {
				posts = 2
			}
			h.capturePosts(posts)

			err := h.job.Run(ctx, mentionRequest(42, ""))
			if tt.wantFirstOK {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
			assert.True(t, h.mr.Exists("processed_comment:octo:app:42"))

			// No further GitHub or model calls are expected.
			err = h.job.Run(ctx, mentionRequest(42, ""))
			assert.ErrorIs(t, err, core.ErrAlreadyProcessed)
			assert.Equal(t, 1, model.synthesisCalls)
			assert.False(t, h.mr.Exists("lock:octo:app:7"))
		})
	}
}

func TestReviewJob_RecentReviewWindow(t *testing.T) {
	ctx := context.Background()
	h := newReviewHarness(t)
	logID := h.recordLog(t)
	require.NoError(t, h.mr.Set("recent_comment:octo:app:7", time.Now().UTC().Format(time.RFC3339)))

	auto := &core.ReviewRequest{Owner: "octo", Repo: "app", PRNumber: 7, IsAutoReview: true, LogID: logID}
	err := h.job.Run(ctx, auto)
	assert.ErrorIs(t, err, core.ErrRecentlyReviewed)
	assert.False(t, h.mr.Exists("lock:octo:app:7"))

	log, err := h.logs.GetLog(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIgnored, log.Status)

	// A mention bypasses the window.
	model := &fakeModel{synthesisOutput: "review"}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
	h.expectFetch(testPullRequest("alice"), testFiles("a.go"))
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(8), "eyes").Return(nil)
	h.capturePosts(2)

	require.NoError(t, h.job.Run(ctx, mentionRequest(8, "")))
}

func TestReviewJob_StaleRecentMarker(t *testing.T) {
	tests := []struct {
		name   string
		marker string
	}{
		{name: "outside the window", marker: time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)},
		{name: "unreadable timestamp", marker: "not-a-timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newReviewHarness(t)
			require.NoError(t, h.mr.Set("recent_comment:octo:app:7", tt.marker))

			model := &fakeModel{synthesisOutput: "review"}
			h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
			h.expectFetch(testPullRequest("alice"), testFiles("a.go"))
			posted := h.capturePosts(2)

			auto := &core.ReviewRequest{Owner: "octo", Repo: "app", PRNumber: 7, IsAutoReview: true}
			require.NoError(t, h.job.Run(context.Background(), auto))
			assert.Contains(t, (*posted)[0], "Hey @alice!")
			assert.Contains(t, (*posted)[0], "with an automated review")
			assert.Contains(t, (*posted)[1], "Auto-generated")

			value, err := h.mr.Get("recent_comment:octo:app:7")
			require.NoError(t, err)
			assert.NotEqual(t, tt.marker, value, "marker is refreshed after the review")
		})
	}
}

func TestReviewJob_PlaceholderSnapshot(t *testing.T) {
	h := newReviewHarness(t)

	model := &fakeModel{synthesisOutput: "review"}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
	h.client.EXPECT().GetFileContent(gomock.Any(), "octo", "app", config.RepoConfigFile).Return(nil, ghError(http.StatusForbidden))
	h.client.EXPECT().GetPullRequest(gomock.Any(), "octo", "app", 7).Return(nil, ghError(http.StatusForbidden))
	h.client.EXPECT().GetChangedFiles(gomock.Any(), "octo", "app", 7).Return(nil, ghError(http.StatusNotFound))
	h.client.EXPECT().CreateComment(gomock.Any(), "octo", "app", 7, gomock.Any()).Return(ghError(http.StatusForbidden)).Times(2)

	auto := &core.ReviewRequest{Owner: "octo", Repo: "app", PRNumber: 7, IsAutoReview: true}
	require.NoError(t, h.job.Run(context.Background(), auto), "403 on posting is not a failure")

	assert.Equal(t, []string{github.MockFilename}, model.analyzed)
	assert.Contains(t, model.synthesisPrompt, "Mock PR Title")
	assert.Equal(t, "1", h.mr.HGet("user:test-user:stats", "reviews"))
}

func TestReviewJob_AutoReviewDisabled(t *testing.T) {
	h := newReviewHarness(t)
	logID := h.recordLog(t)
	h.client.EXPECT().GetFileContent(gomock.Any(), "octo", "app", config.RepoConfigFile).Return([]byte("auto_review: false\n"), nil)

	auto := &core.ReviewRequest{Owner: "octo", Repo: "app", PRNumber: 7, IsAutoReview: true, LogID: logID}
	err := h.job.Run(context.Background(), auto)
	assert.ErrorIs(t, err, core.ErrAutoReviewDisabled)
	assert.False(t, h.mr.Exists("lock:octo:app:7"))
	assert.False(t, h.mr.Exists("recent_comment:octo:app:7"))

	log, err := h.logs.GetLog(context.Background(), logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIgnored, log.Status)
}

func TestReviewJob_ExcludedPaths(t *testing.T) {
	h := newReviewHarness(t)

	model := &fakeModel{synthesisOutput: "review"}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
	h.client.EXPECT().GetFileContent(gomock.Any(), "octo", "app", config.RepoConfigFile).
		Return([]byte("exclude_paths:\n  - \"*.lock\"\n  - \"vendor/*\"\n"), nil)
	h.client.EXPECT().GetPullRequest(gomock.Any(), "octo", "app", 7).Return(testPullRequest("alice"), nil)
	h.client.EXPECT().GetChangedFiles(gomock.Any(), "octo", "app", 7).Return(testFiles("go.lock", "vendor/x.go", "main.go"), nil)
	h.client.EXPECT().GetPullRequestDiff(gomock.Any(), "octo", "app", 7).Return("diff", nil)
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(3), "eyes").Return(nil)
	posted := h.capturePosts(2)

	require.NoError(t, h.job.Run(context.Background(), mentionRequest(3, "")))
	assert.Equal(t, []string{"main.go"}, model.analyzed)
	assert.Contains(t, (*posted)[1], "across 1 file\n")
}

func TestReviewJob_SynthesisFailure(t *testing.T) {
	ctx := context.Background()
	h := newReviewHarness(t)
	logID := h.recordLog(t)

	model := &fakeModel{synthesisErr: errors.New("model unavailable")}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(3)
	h.expectFetch(testPullRequest("alice"), testFiles("a.go", "b.go"))
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(11), "eyes").Return(ghError(http.StatusNotFound))
	posted := h.capturePosts(1)

	err := h.job.Run(ctx, mentionRequest(11, logID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")

	assert.Len(t, *posted, 1, "only the greeting is posted")
	assert.True(t, h.mr.Exists("processed_comment:octo:app:11"))
	assert.False(t, h.mr.Exists("lock:octo:app:7"))
	assert.False(t, h.mr.Exists("recent_comment:octo:app:7"))

	log, err := h.logs.GetLog(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, log.Status)
	assert.Contains(t, log.Error, "model unavailable")

	stats, err := h.logs.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Error)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestReviewJob_PanicRunsFailureCleanup(t *testing.T) {
	ctx := context.Background()
	h := newReviewHarness(t)
	logID := h.recordLog(t)

	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, llm.CompletionRequest) (string, error) {
			panic("analysis exploded")
		})
	h.expectFetch(testPullRequest("alice"), testFiles("a.go", "b.go"))
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(21), "eyes").Return(nil)
	posted := h.capturePosts(1)

	d := NewDispatcher(h.job, 1, discardLogger())
	defer d.Stop()
	task, err := d.Dispatch(ctx, mentionRequest(21, logID))
	require.NoError(t, err)
	waitTask(t, task)

	assert.Equal(t, core.TaskFailed, task.State())
	assert.ErrorContains(t, task.Err(), "analysis exploded")
	assert.Len(t, *posted, 1, "only the greeting is posted")

	assert.False(t, h.mr.Exists("lock:octo:app:7"), "lock is released")
	assert.True(t, h.mr.Exists("processed_comment:octo:app:21"))
	assert.False(t, h.mr.Exists("recent_comment:octo:app:7"))

	log, err := h.logs.GetLog(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, log.Status)
	assert.Contains(t, log.Error, "review panicked: analysis exploded")

	stats, err := h.logs.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestReviewJob_StoreUnavailable(t *testing.T) {
	kv, err := kvstore.New("")
	require.NoError(t, err)
	h := newReviewHarnessWithStore(t, kv, nil)
	logID := h.recordLog(t)

	model := &fakeModel{synthesisOutput: "review"}
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(model.complete).Times(2)
	h.expectFetch(testPullRequest("alice"), testFiles("a.go"))
	h.client.EXPECT().CreateCommentReaction(gomock.Any(), "octo", "app", int64(12), "eyes").Return(nil)
	h.capturePosts(2)

	require.NoError(t, h.job.Run(context.Background(), mentionRequest(12, logID)))

	log, err := h.logs.GetLog(context.Background(), logID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, log.Status, "bookkeeping falls back to memory")
}

func TestReviewJob_InvalidRequest(t *testing.T) {
	h := newReviewHarness(t)
	err := h.job.Run(context.Background(), &core.ReviewRequest{Owner: "octo", Repo: "app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull request number must be positive")
}

func TestNewReviewJob_PanicsOnNilDependency(t *testing.T) {
	assert.Panics(t, func() {
		NewReviewJob(nil, nil, nil, nil, nil, nil, nil, nil)
	})
}
