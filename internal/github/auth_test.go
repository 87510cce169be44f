package github

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotserver24/xibe-review/internal/config"
)

func TestNewClientFactory_Modes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("pat", func(t *testing.T) {
		f, err := NewClientFactory(ctx, &config.Config{GitHub: config.GitHubConfig{Token: "ghp_x"}}, logger)
		require.NoError(t, err)
		assert.Equal(t, config.AuthModePAT, f.Mode())

		c1, err := f.ForInstallation(ctx, 0)
		require.NoError(t, err)
		c2, err := f.ForInstallation(ctx, 99)
		require.NoError(t, err)
		assert.Same(t, c1, c2)
	})

	t.Run("test", func(t *testing.T) {
		f, err := NewClientFactory(ctx, &config.Config{}, logger)
		require.NoError(t, err)
		assert.Equal(t, config.AuthModeTest, f.Mode())

		n, err := f.CountInstallations(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("app with malformed key", func(t *testing.T) {
		cfg := &config.Config{GitHub: config.GitHubConfig{AppID: 1, PrivateKey: "not a key"}}
		_, err := NewClientFactory(ctx, cfg, logger)
		assert.Error(t, err)
	})
}

func TestAppClientFactory_MissingInstallation(t *testing.T) {
	f := &appClientFactory{clients: map[int64]Client{}}
	_, err := f.ForInstallation(context.Background(), 0)
	assert.ErrorIs(t, err, ErrMissingInstallation)
}

func TestTestModeClient(t *testing.T) {
	ctx := context.Background()
	c := NewTestModeClient(slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.GetPullRequest(ctx, "o", "r", 1)
	assert.True(t, IsNotFoundOrForbidden(err))
	assert.Equal(t, 404, StatusCode(err))

	files, err := c.GetChangedFiles(ctx, "o", "r", 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, MockFilename, files[0].Filename)

	diff, err := c.GetPullRequestDiff(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, MockDiff, diff)

	err = c.CreateComment(ctx, "o", "r", 1, "hi")
	assert.Equal(t, 403, StatusCode(err))

	err = c.CreateCommentReaction(ctx, "o", "r", 5, "eyes")
	assert.Equal(t, 404, StatusCode(err))
}

func TestIsNotFoundOrForbidden(t *testing.T) {
	assert.True(t, IsNotFoundOrForbidden(newErrorResponse(403, "GET", "forbidden")))
	assert.True(t, IsNotFoundOrForbidden(newErrorResponse(404, "GET", "missing")))
	assert.False(t, IsNotFoundOrForbidden(newErrorResponse(500, "GET", "boom")))
	assert.False(t, IsNotFoundOrForbidden(io.EOF))
	assert.False(t, IsNotFoundOrForbidden(nil))
}
