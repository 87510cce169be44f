package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/kvstore"
)

const testSecret = "s3cret"

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []*core.ReviewRequest
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req *core.ReviewRequest) (*core.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.requests = append(d.requests, req)
	return core.NewTask("task-1", req), nil
}

func (d *fakeDispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *fakeDispatcher) Stop() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		GitHub: config.GitHubConfig{WebhookSecret: testSecret, BotUsername: "Xibe-review"},
		AI:     config.AIConfig{Provider: config.ProviderOpenAI, BaseURL: "http://ai.local", Model: "test-model"},
	}
}

func newTestKV(t *testing.T) (kvstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv, err := kvstore.NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

type webhookFixture struct {
	handler    *WebhookHandler
	dispatcher *fakeDispatcher
	logs       bookkeeping.Store
}

func newWebhookFixture(t *testing.T, authMode string) *webhookFixture {
	t.Helper()
	kv, _ := newTestKV(t)
	logs := bookkeeping.NewStore(kv, testLogger())
	d := &fakeDispatcher{}
	return &webhookFixture{
		handler:    NewWebhookHandler(testConfig(), d, logs, authMode, testLogger()),
		dispatcher: d,
		logs:       logs,
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (f *webhookFixture) deliver(t *testing.T, event string, payload any) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (f *webhookFixture) log(t *testing.T, id string) *core.WebhookLog {
	t.Helper()
	require.NotEmpty(t, id)
	log, err := f.logs.GetLog(context.Background(), id)
	require.NoError(t, err)
	return log
}

func commentPayload(action, body, author string, isPR bool, installationID int64) map[string]any {
	issue := map[string]any{"number": 7}
	if isPR {
		issue["pull_request"] = map[string]any{"url": "https://api.github.com/repos/octo/repo/pulls/7"}
	}
	return map[string]any{
		"action":       action,
		"installation": map[string]any{"id": installationID},
		"repository":   map[string]any{"full_name": "octo/repo", "name": "repo", "owner": map[string]any{"login": "octo"}},
		"sender":       map[string]any{"login": author},
		"issue":        issue,
		"comment":      map[string]any{"id": 99, "body": body, "user": map[string]any{"login": author}},
	}
}

func pullRequestPayload(action string, installationID int64) map[string]any {
	return map[string]any{
		"action":       action,
		"number":       12,
		"installation": map[string]any{"id": installationID},
		"repository":   map[string]any{"full_name": "octo/repo", "name": "repo", "owner": map[string]any{"login": "octo"}},
		"sender":       map[string]any{"login": "alice"},
		"pull_request": map[string]any{"number": 12},
	}
}

func TestWebhook_MentionDispatchesReview(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModeApp)

	rec, resp := f.deliver(t, "issue_comment", commentPayload("created", "@Xibe-review please look", "alice", true, 42))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Review request received", resp["message"])

	require.Len(t, f.dispatcher.requests, 1)
	req := f.dispatcher.requests[0]
	assert.Equal(t, "octo", req.Owner)
	assert.Equal(t, "repo", req.Repo)
	assert.Equal(t, 7, req.PRNumber)
	assert.Equal(t, int64(42), req.InstallationID)
	assert.Equal(t, "alice", req.RequestedBy)
	assert.Equal(t, "@Xibe-review please look", req.UserComment)
	require.NotNil(t, req.CommentID)
	assert.Equal(t, int64(99), *req.CommentID)
	assert.False(t, req.IsAutoReview)
	assert.Equal(t, resp["logId"], req.LogID)

	log := f.log(t, resp["logId"])
	assert.Equal(t, core.StatusProcessing, log.Status)
	assert.Equal(t, "octo/repo", log.Repository)
	assert.Equal(t, "alice", log.User)
	assert.True(t, log.IsPR)
	assert.Equal(t, 7, log.PRNumber)
	assert.Contains(t, log.Actions, "Bot mentioned in PR")
	assert.Contains(t, log.Actions, "Starting PR review process")
}

func TestWebhook_CommentIgnored(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		author string
		isPR   bool
		reason string
	}{
		{name: "plain issue", body: "@Xibe-review hi", author: "alice", isPR: false, reason: "Ignored: not a PR"},
		{name: "no mention", body: "looks good to me", author: "alice", isPR: true, reason: "Ignored: bot not mentioned"},
		{name: "bot author", body: "Hi @Xibe-review here", author: "xibe-review[bot]", isPR: true, reason: "Ignored: comment from bot itself"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, config.AuthModePAT)

			rec, resp := f.deliver(t, "issue_comment", commentPayload("created", tt.body, tt.author, tt.isPR, 1))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, f.dispatcher.requests)
			log := f.log(t, resp["logId"])
			assert.Equal(t, core.StatusIgnored, log.Status)
			assert.Contains(t, log.Actions, tt.reason)
			assert.NotNil(t, log.ProcessingTime)
		})
	}
}

func TestWebhook_PullRequestAutoReview(t *testing.T) {
	tests := []struct {
		action   string
		dispatch bool
	}{
		{action: "opened", dispatch: true},
		{action: "synchronize", dispatch: true},
		{action: "reopened", dispatch: true},
		{action: "closed", dispatch: false},
		{action: "labeled", dispatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			f := newWebhookFixture(t, config.AuthModeApp)

			rec, resp := f.deliver(t, "pull_request", pullRequestPayload(tt.action, 42))

			assert.Equal(t, http.StatusOK, rec.Code)
			if !tt.dispatch {
				assert.Equal(t, "Event ignored", resp["message"])
				assert.Empty(t, f.dispatcher.requests)
				return
			}
			assert.Equal(t, "Auto-review request received", resp["message"])
			require.Len(t, f.dispatcher.requests, 1)
			req := f.dispatcher.requests[0]
			assert.True(t, req.IsAutoReview)
			assert.Equal(t, 12, req.PRNumber)
			assert.Nil(t, req.CommentID)
			assert.Empty(t, req.RequestedBy)
		})
	}
}

func TestWebhook_OtherEventsIgnored(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModeApp)

	rec, resp := f.deliver(t, "push", map[string]any{"ref": "refs/heads/main", "repository": map[string]any{"full_name": "octo/repo"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event ignored", resp["message"])

	logs, err := f.logs.RecentLogs(context.Background(), 10, core.StatusIgnored)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "push", logs[0].Event)
	assert.Equal(t, "octo/repo", logs[0].Repository)
	assert.Contains(t, logs[0].Actions, "Event ignored - event=push, action=")
}

func TestWebhook_MissingInstallationInAppMode(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModeApp)

	rec, resp := f.deliver(t, "issue_comment", commentPayload("created", "@Xibe-review review", "alice", true, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.dispatcher.requests)
	log := f.log(t, resp["logId"])
	assert.Equal(t, core.StatusError, log.Status)
	assert.Equal(t, "Installation ID missing", log.Error)
}

func TestWebhook_MissingInstallationOutsideAppMode(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModeTest)

	rec, _ := f.deliver(t, "issue_comment", commentPayload("created", "@Xibe-review review", "alice", true, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.dispatcher.requests, 1)
}

func TestWebhook_DispatchFailure(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModePAT)
	f.dispatcher.err = errors.New("job queue is full")

	rec, resp := f.deliver(t, "issue_comment", commentPayload("created", "@Xibe-review review", "alice", true, 1))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", resp["error"])
	log := f.log(t, resp["logId"])
	assert.Equal(t, core.StatusError, log.Status)
	assert.Equal(t, "job queue is full", log.Error)

	stats, err := f.logs.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.WebhookStats{Total: 1, Error: 1}, stats)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModePAT)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"action":"created"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()

	f.handler.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.dispatcher.requests)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	f := newWebhookFixture(t, config.AuthModePAT)

	body := []byte(`{"action":"created","comment":`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()

	f.handler.Handle(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	stats, err := f.logs.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.WebhookStats{Total: 1, Error: 1}, stats)
}

func TestNewWebhookHandler_PanicsOnNilDependency(t *testing.T) {
	assert.Panics(t, func() {
		NewWebhookHandler(testConfig(), nil, nil, config.AuthModeTest, testLogger())
	})
}
