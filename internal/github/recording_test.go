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

func TestRecordingClientFactory(t *testing.T) {
	ctx := context.Background()
	inner := NewStaticClientFactory(config.AuthModeTest, NewTestModeClient(slog.New(slog.NewTextHandler(io.Discard, nil))))

	tests := []struct {
		name        string
		dryRun      bool
		wantPostErr bool
	}{
		{name: "forwarding", dryRun: false, wantPostErr: true},
		{name: "dry run", dryRun: true, wantPostErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRecordingClientFactory(inner, tt.dryRun)
			assert.Equal(t, config.AuthModeTest, f.Mode())

			client, err := f.ForInstallation(ctx, 0)
			require.NoError(t, err)

			err = client.CreateComment(ctx, "octo", "repo", 1, "first")
			assert.Equal(t, tt.wantPostErr, err != nil)
			assert.True(t, !tt.wantPostErr || IsNotFoundOrForbidden(err))
			_ = client.CreateComment(ctx, "octo", "repo", 1, "second")

			err = client.CreateCommentReaction(ctx, "octo", "repo", 5, "eyes")
			assert.Equal(t, tt.wantPostErr, err != nil)

			diff, err := client.GetPullRequestDiff(ctx, "octo", "repo", 1)
			require.NoError(t, err)
			assert.Equal(t, MockDiff, diff)

			assert.Equal(t, []string{"first", "second"}, f.Comments())
		})
	}
}
