// Package handler provides the HTTP handlers of the review bot: the GitHub
// webhook receiver and the read-only status API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v73/github"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/mention"
)

const (
	eventPullRequest  = "pull_request"
	eventIssueComment = "issue_comment"

	maxLoggedComment = 100
)

// WebhookHandler turns GitHub deliveries into review requests. It records one
// webhook log per delivery and never waits for the review itself.
type WebhookHandler struct {
	cfg        *config.Config
	dispatcher core.JobDispatcher
	logs       bookkeeping.Store
	authMode   string
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration and dispatcher.
func NewWebhookHandler(cfg *config.Config, dispatcher core.JobDispatcher, logs bookkeeping.Store, authMode string, logger *slog.Logger) *WebhookHandler {
	if cfg == nil || dispatcher == nil || logs == nil || logger == nil {
		panic("NewWebhookHandler received a nil dependency")
	}
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		logs:       logs,
		authMode:   authMode,
		logger:     logger,
	}
}

// envelope holds the fields common to every delivery, used to fill the log
// even for events the bot does not act on.
type envelope struct {
	Action       string `json:"action"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.GitHub.WebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	ctx := r.Context()
	eventType := github.WebHookType(r)
	log := bookkeeping.NewLog(eventType, github.DeliveryID(r))

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.fail(ctx, w, log, fmt.Errorf("could not decode webhook payload: %w", err))
		return
	}
	log.InstallationID = env.Installation.ID
	if env.Repository.FullName != "" {
		log.Repository = env.Repository.FullName
	}
	if env.Sender.Login != "" {
		log.User = env.Sender.Login
	}

	switch eventType {
	case eventPullRequest:
		if isReviewablePRAction(env.Action) {
			h.handlePullRequest(ctx, w, log, payload)
			return
		}
	case eventIssueComment:
		if env.Action == "created" || env.Action == "edited" {
			h.handleIssueComment(ctx, w, log, payload)
			return
		}
	}

	h.logger.Debug("ignoring unhandled webhook event", "event", eventType, "action", env.Action)
	bookkeeping.Finish(log, core.StatusIgnored, "", fmt.Sprintf("Event ignored - event=%s, action=%s", eventType, env.Action))
	h.record(ctx, log)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event ignored"})
}

func isReviewablePRAction(action string) bool {
	switch action {
	case "opened", "synchronize", "reopened":
		return true
	}
	return false
}

// handlePullRequest dispatches an automatic review for new or updated PRs.
func (h *WebhookHandler) handlePullRequest(ctx context.Context, w http.ResponseWriter, log *core.WebhookLog, payload []byte) {
	event, err := parseEvent[*github.PullRequestEvent](eventPullRequest, payload)
	if err != nil {
		h.fail(ctx, w, log, err)
		return
	}

	log.IsPR = true
	log.PRNumber = event.GetNumber()
	log.Actions = append(log.Actions,
		"Auto-review triggered for PR",
		fmt.Sprintf("PR #%d %s", event.GetNumber(), event.GetAction()),
		"Repository: "+event.GetRepo().GetFullName(),
	)

	if h.missingInstallation(log) {
		h.record(ctx, log)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Installation ID missing", "logId": log.ID})
		return
	}

	req := &core.ReviewRequest{
		Owner:          event.GetRepo().GetOwner().GetLogin(),
		Repo:           event.GetRepo().GetName(),
		PRNumber:       event.GetNumber(),
		LogID:          log.ID,
		IsAutoReview:   true,
		InstallationID: event.GetInstallation().GetID(),
	}
	h.dispatch(ctx, w, log, req, "Auto-review request received")
}

// handleIssueComment dispatches a review when the bot is mentioned on a PR.
func (h *WebhookHandler) handleIssueComment(ctx context.Context, w http.ResponseWriter, log *core.WebhookLog, payload []byte) {
	event, err := parseEvent[*github.IssueCommentEvent](eventIssueComment, payload)
	if err != nil {
		h.fail(ctx, w, log, err)
		return
	}

	body := event.GetComment().GetBody()
	author := event.GetComment().GetUser().GetLogin()
	log.Comment = truncate(body, maxLoggedComment)
	log.IsPR = event.GetIssue().IsPullRequest()
	log.PRNumber = event.GetIssue().GetNumber()
	log.Actions = append(log.Actions,
		"Comment received",
		fmt.Sprintf("Comment ID: %d", event.GetComment().GetID()),
		fmt.Sprintf("Comment: %q", log.Comment),
	)

	botName := h.cfg.GitHub.BotUsername
	var reason string
	switch {
	case !log.IsPR:
		reason = "not a PR"
	case !mention.IsBotMentioned(body, botName):
		reason = "bot not mentioned"
	case mention.IsFromBot(author, botName):
		reason = "comment from bot itself"
	}
	if reason != "" {
		bookkeeping.Finish(log, core.StatusIgnored, "", "Ignored: "+reason)
		h.record(ctx, log)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Comment ignored", "logId": log.ID})
		return
	}

	if h.missingInstallation(log) {
		h.record(ctx, log)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Installation ID missing", "logId": log.ID})
		return
	}

	log.Actions = append(log.Actions,
		"Bot mentioned in PR",
		"Repository: "+event.GetRepo().GetFullName(),
		fmt.Sprintf("PR Number: %d", log.PRNumber),
		"Starting PR review process",
	)
	commentID := event.GetComment().GetID()
	req := &core.ReviewRequest{
		Owner:          event.GetRepo().GetOwner().GetLogin(),
		Repo:           event.GetRepo().GetName(),
		PRNumber:       log.PRNumber,
		CommentID:      &commentID,
		LogID:          log.ID,
		InstallationID: event.GetInstallation().GetID(),
		UserComment:    body,
		RequestedBy:    author,
	}
	h.dispatch(ctx, w, log, req, "Review request received")
}

// missingInstallation finishes log with an error when the bot runs as a
// GitHub App and the delivery names no installation to act as.
func (h *WebhookHandler) missingInstallation(log *core.WebhookLog) bool {
	if h.authMode != config.AuthModeApp || log.InstallationID != 0 {
		return false
	}
	h.logger.Warn("webhook without installation id in app mode", "repo", log.Repository, "pr", log.PRNumber)
	bookkeeping.Finish(log, core.StatusError, "Installation ID missing")
	return true
}

func (h *WebhookHandler) dispatch(ctx context.Context, w http.ResponseWriter, log *core.WebhookLog, req *core.ReviewRequest, message string) {
	h.record(ctx, log)

	if _, err := h.dispatcher.Dispatch(ctx, req); err != nil {
		h.logger.Error("failed to dispatch review job", "error", err, "repo", req.RepoFullName(), "pr", req.PRNumber)
		if uerr := h.logs.UpdateStatus(ctx, log.ID, core.StatusError, err.Error()); uerr != nil {
			h.logger.Warn("failed to update webhook log", "error", uerr, "log_id", log.ID)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error", "logId": log.ID})
		return
	}

	h.logger.Info("review job dispatched", "repo", req.RepoFullName(), "pr", req.PRNumber, "log_id", log.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": message, "logId": log.ID})
}

// fail records log as errored and answers 500.
func (h *WebhookHandler) fail(ctx context.Context, w http.ResponseWriter, log *core.WebhookLog, err error) {
	h.logger.Error("webhook processing failed", "error", err, "event", log.Event)
	bookkeeping.Finish(log, core.StatusError, err.Error())
	h.record(ctx, log)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error", "logId": log.ID})
}

func (h *WebhookHandler) record(ctx context.Context, log *core.WebhookLog) {
	if err := h.logs.RecordLog(ctx, log); err != nil {
		h.logger.Warn("failed to record webhook log", "error", err, "log_id", log.ID)
	}
}

func parseEvent[T any](eventType string, payload []byte) (T, error) {
	var zero T
	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return zero, fmt.Errorf("could not parse %s webhook: %w", eventType, err)
	}
	event, ok := parsed.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected payload type %T for %s", parsed, eventType)
	}
	return event, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
