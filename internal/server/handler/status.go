package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/kvstore"
	"github.com/iotserver24/xibe-review/internal/mention"
	"github.com/iotserver24/xibe-review/internal/storage"
)

const (
	defaultLogLimit   = 50
	statusRecentLogs  = 10
	redisTestKey      = "test:connection"
	redisTestTTL      = time.Minute
	modelsListTimeout = 15 * time.Second

	troubleshootLogs        = 50
	troubleshootErrorSample = 5
	dashboardRecentReviews  = 5
	installationsTimeout    = 15 * time.Second
)

// ModelLister returns the model ids the configured AI provider offers.
type ModelLister func(ctx context.Context) ([]string, error)

// GitHubApp reports how the bot authenticates to GitHub and where it is
// installed. github.ClientFactory satisfies it.
type GitHubApp interface {
	Mode() string
	CountInstallations(ctx context.Context) (int, error)
}

// StatusHandler serves the read-only status and analytics API.
type StatusHandler struct {
	cfg        *config.Config
	logs       bookkeeping.Store
	reviews    storage.ReviewStore
	kv         kvstore.Store
	dispatcher core.JobDispatcher
	github     GitHubApp
	listModels ModelLister
	startedAt  time.Time
	logger     *slog.Logger
}

// NewStatusHandler creates the status API handler. listModels may be nil, in
// which case /api/models reports the configured models only.
func NewStatusHandler(
	cfg *config.Config,
	logs bookkeeping.Store,
	reviews storage.ReviewStore,
	kv kvstore.Store,
	dispatcher core.JobDispatcher,
	gh GitHubApp,
	listModels ModelLister,
	logger *slog.Logger,
) *StatusHandler {
	if cfg == nil || logs == nil || reviews == nil || kv == nil || dispatcher == nil || gh == nil || logger == nil {
		panic("NewStatusHandler received a nil dependency")
	}
	return &StatusHandler{
		cfg:        cfg,
		logs:       logs,
		reviews:    reviews,
		kv:         kv,
		dispatcher: dispatcher,
		github:     gh,
		listModels: listModels,
		startedAt:  time.Now(),
		logger:     logger,
	}
}

// Routes mounts the status endpoints on r.
func (h *StatusHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/status", h.Status)
	r.Get("/api/webhooks", h.ListWebhooks)
	r.Delete("/api/webhooks", h.ClearWebhooks)
	r.Get("/api/webhook/{id}", h.GetWebhook)
	r.Get("/api/test-redis", h.TestRedis)
	r.Get("/api/troubleshoot", h.Troubleshoot)
	r.Get("/api/analytics", h.Analytics)
	r.Get("/api/analytics/users", h.UsersAnalytics)
	r.Get("/api/analytics/reviews", h.RecentReviews)
	r.Get("/api/analytics/dashboard", h.Dashboard)
	r.Get("/api/analytics/user/{userId}", h.UserAnalytics)
	r.Get("/api/models", h.Models)
}

func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type botInfo struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	AuthMode    string `json:"authMode"`
	GitHubAppID int64  `json:"githubAppId,omitempty"`
	BotUsername string `json:"botUsername"`
	AIProvider  string `json:"aiProvider"`
	AIAPI       string `json:"aiApi,omitempty"`
	Model       string `json:"model"`
	InFlight    int    `json:"inFlight"`
}

type webhookSummary struct {
	Total       int64              `json:"total"`
	Recent      []*core.WebhookLog `json:"recent"`
	Stats       core.WebhookStats  `json:"stats"`
	SuccessRate int                `json:"successRate"`
}

// Status reports bot identity, uptime and webhook counters.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.logs.GetStats(ctx)
	if err != nil {
		h.internalError(w, "failed to load webhook stats", err)
		return
	}
	recent, err := h.logs.RecentLogs(ctx, statusRecentLogs, "")
	if err != nil {
		h.internalError(w, "failed to load recent webhooks", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bot": botInfo{
			Status:      "running",
			Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
			AuthMode:    h.github.Mode(),
			GitHubAppID: h.cfg.GitHub.AppID,
			BotUsername: h.cfg.GitHub.BotUsername,
			AIProvider:  h.cfg.AI.Provider,
			AIAPI:       h.cfg.AI.BaseURL,
			Model:       h.cfg.AI.CommentModelName(),
			InFlight:    h.dispatcher.InFlight(),
		},
		"webhooks": webhookSummary{
			Total:       stats.Total,
			Recent:      recent,
			Stats:       stats,
			SuccessRate: stats.SuccessRate(),
		},
	})
}

// ListWebhooks returns recent logs, optionally filtered by status.
func (h *StatusHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultLogLimit)
	status := core.LogStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid status filter"})
		return
	}

	ctx := r.Context()
	logs, err := h.logs.RecentLogs(ctx, limit, status)
	if err != nil {
		h.internalError(w, "failed to load webhook logs", err)
		return
	}
	stats, err := h.logs.GetStats(ctx)
	if err != nil {
		h.internalError(w, "failed to load webhook stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":     logs,
		"total":    stats.Total,
		"filtered": len(logs),
	})
}

func (h *StatusHandler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	log, err := h.logs.GetLog(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, bookkeeping.ErrLogNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Webhook log not found"})
		return
	}
	if err != nil {
		h.internalError(w, "failed to load webhook log", err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *StatusHandler) ClearWebhooks(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.logs.Clear(r.Context())
	if err != nil {
		h.internalError(w, "failed to clear webhook logs", err)
		return
	}
	h.logger.Info("webhook logs cleared", "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Webhook logs cleared", "deleted": deleted})
}

// TestRedis round-trips a value through the key-value store.
func (h *StatusHandler) TestRedis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	value := time.Now().UTC().Format(time.RFC3339Nano)
	err := h.kv.Ping(ctx)
	if err == nil {
		err = h.kv.SetEX(ctx, redisTestKey, value, redisTestTTL)
	}
	var got string
	if err == nil {
		got, _, err = h.kv.Get(ctx, redisTestKey)
	}
	if err != nil {
		h.logger.Warn("key-value store check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	_ = h.kv.Del(ctx, redisTestKey)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"testValue": got,
		"match":     got == value,
	})
}

type troubleshootStats struct {
	TotalWebhooks int64 `json:"totalWebhooks"`
	Errors        int64 `json:"errors"`
	Completed     int64 `json:"completed"`
	BotMentions   int   `json:"botMentions"`
}

type troubleshootConfig struct {
	AuthMode     string `json:"authMode"`
	HasGitHubApp bool   `json:"hasGitHubApp"`
	HasGitHubPAT bool   `json:"hasGitHubPAT"`
	HasAI        bool   `json:"hasAI"`
	BotUsername  string `json:"botUsername"`
}

// Troubleshoot checks the configuration and the recent webhook logs for the
// usual reasons reviews do not show up.
func (h *StatusHandler) Troubleshoot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.logs.GetStats(ctx)
	if err != nil {
		h.internalError(w, "failed to load webhook stats", err)
		return
	}
	recent, err := h.logs.RecentLogs(ctx, troubleshootLogs, "")
	if err != nil {
		h.internalError(w, "failed to load recent webhooks", err)
		return
	}

	bot := h.cfg.GitHub.BotUsername
	issues := []string{}
	recommendations := []string{}

	authMode := h.github.Mode()
	if authMode == config.AuthModeTest {
		issues = append(issues, "No GitHub authentication configured")
		recommendations = append(recommendations, "Set GITHUB_APP_ID + GITHUB_PRIVATE_KEY for a GitHub App (recommended) or GITHUB_TOKEN for a personal access token")
	}
	aiErr := h.cfg.AI.Validate()
	if aiErr != nil {
		issues = append(issues, "AI configuration invalid: "+aiErr.Error())
		recommendations = append(recommendations, "Set AI_API and AI_KEY, or the settings of the selected AI_PROVIDER")
	}

	var errorCount, missingInstallation, mentions int
	for _, log := range recent {
		if log.Status == core.StatusError && errorCount < troubleshootErrorSample {
			errorCount++
		}
		if strings.Contains(strings.ToLower(log.Error), "installation id") {
			missingInstallation++
		}
		if log.Comment != "" && mention.IsBotMentioned(log.Comment, bot) {
			mentions++
		}
	}
	if missingInstallation > 0 {
		issues = append(issues, strconv.Itoa(missingInstallation)+" webhook(s) failed due to missing installation ID")
		recommendations = append(recommendations, "Install your GitHub App on the target repository")
	}
	if errorCount > 0 {
		issues = append(issues, strconv.Itoa(errorCount)+" recent webhook error(s)")
		recommendations = append(recommendations, "Check webhook logs for detailed error information")
	}
	if mentions == 0 && stats.Total > 0 {
		issues = append(issues, "No bot mentions found in webhook logs")
		recommendations = append(recommendations, "Make sure to mention @"+bot+" in your PR comments")
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"issues":          issues,
		"recommendations": recommendations,
		"stats": troubleshootStats{
			TotalWebhooks: stats.Total,
			Errors:        stats.Error,
			Completed:     stats.Completed,
			BotMentions:   mentions,
		},
		"configuration": troubleshootConfig{
			AuthMode:     authMode,
			HasGitHubApp: h.cfg.GitHub.AuthMode() == config.AuthModeApp,
			HasGitHubPAT: h.cfg.GitHub.Token != "",
			HasAI:        aiErr == nil,
			BotUsername:  bot,
		},
	})
}

func (h *StatusHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviews.GlobalStats(r.Context())
	if err != nil {
		h.internalError(w, "failed to load analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UsersAnalytics reports user totals and the rounded average reviews per user.
func (h *StatusHandler) UsersAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviews.GlobalStats(r.Context())
	if err != nil {
		h.internalError(w, "failed to load analytics", err)
		return
	}
	var average int64
	if stats.TotalUsers > 0 {
		average = int64(math.Round(float64(stats.TotalReviews) / float64(stats.TotalUsers)))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalUsers":            stats.TotalUsers,
		"totalReviews":          stats.TotalReviews,
		"averageReviewsPerUser": average,
	})
}

func (h *StatusHandler) RecentReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.RecentReviews(r.Context(), queryLimit(r, 0))
	if err != nil {
		h.internalError(w, "failed to load reviews", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *StatusHandler) UserAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviews.UserStats(r.Context(), chi.URLParam(r, "userId"))
	if errors.Is(err, storage.ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if err != nil {
		h.internalError(w, "failed to load user analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type dashboardModels struct {
	Default  string `json:"default"`
	Analysis string `json:"analysis"`
	Comment  string `json:"comment"`
}

// Dashboard combines analytics, webhook counters, recent reviews and the
// number of GitHub App installations. A failed installation count reports 0.
func (h *StatusHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	global, err := h.reviews.GlobalStats(ctx)
	if err != nil {
		h.internalError(w, "failed to load analytics", err)
		return
	}
	recent, err := h.reviews.RecentReviews(ctx, dashboardRecentReviews)
	if err != nil {
		h.internalError(w, "failed to load reviews", err)
		return
	}
	stats, err := h.logs.GetStats(ctx)
	if err != nil {
		h.internalError(w, "failed to load webhook stats", err)
		return
	}

	countCtx, cancel := context.WithTimeout(ctx, installationsTimeout)
	defer cancel()
	installations, err := h.github.CountInstallations(countCtx)
	if err != nil {
		h.logger.Warn("failed to count GitHub App installations", "error", err)
		installations = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"global":         global,
		"webhooks":       stats,
		"recentActivity": recent,
		"installations":  installations,
		"bot": map[string]any{
			"status": "running",
			"uptime": time.Since(h.startedAt).Round(time.Second).String(),
			"models": dashboardModels{
				Default:  h.cfg.AI.Model,
				Analysis: h.cfg.AI.AnalysisModelName(),
				Comment:  h.cfg.AI.CommentModelName(),
			},
		},
	})
}

// Models lists the provider's models, falling back to the configured ones
// when the provider cannot be queried.
func (h *StatusHandler) Models(w http.ResponseWriter, r *http.Request) {
	configured := map[string]string{
		"analysis": h.cfg.AI.AnalysisModelName(),
		"comment":  h.cfg.AI.CommentModelName(),
	}
	if h.listModels == nil {
		writeJSON(w, http.StatusOK, map[string]any{"configured": configured, "models": []string{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), modelsListTimeout)
	defer cancel()
	models, err := h.listModels(ctx)
	if err != nil {
		h.logger.Warn("failed to list models", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"configured": configured, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": configured, "models": models})
}

func (h *StatusHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
