package github

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/iotserver24/xibe-review/internal/core"
)

// Fixed data served by the test-mode client.
const (
	MockFilename = "test/file.js"
	MockDiff     = "diff --git a/test/file.js b/test/file.js\n" +
		"+ console.log(\"Mock diff content for testing\");\n" +
		"- console.log(\"Old content\");"
)

// testModeClient stands in for GitHub when no credentials are configured. It
// answers like a repository the bot cannot see: pull request lookups are 404,
// comments are 403, reactions 404. Files and the diff come back as fixed data,
// so a review still runs end to end and its output is logged locally.
type testModeClient struct {
	logger *slog.Logger
}

// NewTestModeClient returns the in-process client used in test mode.
func NewTestModeClient(logger *slog.Logger) Client {
	return &testModeClient{logger: logger}
}

func (c *testModeClient) GetPullRequest(_ context.Context, _, _ string, _ int) (*github.PullRequest, error) {
	return nil, newErrorResponse(http.StatusNotFound, http.MethodGet, "Mock: PR not found (expected for testing)")
}

func (c *testModeClient) GetPullRequestDiff(_ context.Context, _, _ string, _ int) (string, error) {
	return MockDiff, nil
}

func (c *testModeClient) GetChangedFiles(_ context.Context, _, _ string, _ int) ([]core.ChangedFile, error) {
	return []core.ChangedFile{{
		Filename:  MockFilename,
		Status:    "modified",
		Additions: 1,
		Deletions: 1,
		Patch:     "+ console.log(\"Mock patch content\");",
	}}, nil
}

func (c *testModeClient) CreateComment(_ context.Context, owner, repo string, number int, _ string) error {
	c.logger.Debug("test mode: refusing comment", "repo", owner+"/"+repo, "pr", number)
	return newErrorResponse(http.StatusForbidden, http.MethodPost, "Mock: Resource not accessible (expected for testing)")
}

func (c *testModeClient) CreateCommentReaction(_ context.Context, _, _ string, _ int64, _ string) error {
	return newErrorResponse(http.StatusNotFound, http.MethodPost, "Mock: Comment not found (expected for testing)")
}

func (c *testModeClient) GetFileContent(_ context.Context, _, _, _ string) ([]byte, error) {
	return nil, newErrorResponse(http.StatusNotFound, http.MethodGet, "Mock: file not found")
}
