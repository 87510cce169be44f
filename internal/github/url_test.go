package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePullRequestURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    PullRequestRef
		wantErr bool
	}{
		{
			name: "Valid HTTPS URL",
			url:  "https://github.com/iotserver24/xibe-review/pull/123",
			want: PullRequestRef{Owner: "iotserver24", Repo: "xibe-review", Number: 123},
		},
		{
			name: "Valid URL without scheme",
			url:  "github.com/iotserver24/xibe-review/pull/456",
			want: PullRequestRef{Owner: "iotserver24", Repo: "xibe-review", Number: 456},
		},
		{
			name: "URL with trailing slash",
			url:  "https://github.com/iotserver24/xibe-review/pull/789/",
			want: PullRequestRef{Owner: "iotserver24", Repo: "xibe-review", Number: 789},
		},
		{
			name: "Shorthand",
			url:  "octo-org/my.repo#42",
			want: PullRequestRef{Owner: "octo-org", Repo: "my.repo", Number: 42},
		},
		{
			name:    "Invalid PR ID",
			url:     "https://github.com/iotserver24/xibe-review/pull/abc",
			wantErr: true,
		},
		{
			name:    "Zero PR number",
			url:     "owner/repo#0",
			wantErr: true,
		},
		{
			name:    "Invalid format (missing pull)",
			url:     "https://github.com/iotserver24/xibe-review/issues/123",
			wantErr: true,
		},
		{
			name:    "Invalid format (too many segments)",
			url:     "https://github.com/iotserver24/xibe-review/pull/123/files",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePullRequestURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPullRequestRef_String(t *testing.T) {
	assert.Equal(t, "a/b#3", PullRequestRef{Owner: "a", Repo: "b", Number: 3}.String())
}
