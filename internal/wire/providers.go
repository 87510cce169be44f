// Package wire assembles the application's object graph.
package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/iotserver24/xibe-review/internal/app"
	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/db"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/jobs"
	"github.com/iotserver24/xibe-review/internal/kvstore"
	"github.com/iotserver24/xibe-review/internal/llm"
	"github.com/iotserver24/xibe-review/internal/logger"
	"github.com/iotserver24/xibe-review/internal/server"
	"github.com/iotserver24/xibe-review/internal/server/handler"
	"github.com/iotserver24/xibe-review/internal/storage"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	server.NewRouter,
	config.LoadConfig,
	github.NewClientFactory,
	bookkeeping.NewStore,
	jobs.NewReviewJob,
	llm.NewPromptManager,
	wire.Bind(new(core.Job), new(*jobs.ReviewJob)),
	provideLoggerConfig,
	provideLogWriter,
	provideSlogLogger,
	provideKVStore,
	provideCompleter,
	provideFileAnalyzer,
	provideReviewSynthesizer,
	provideReviewStore,
	provideDispatcher,
	provideModelLister,
	provideWebhookHandler,
	provideStatusHandler,
)

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideLogWriter(cfg logger.Config) io.Writer {
	return logger.OpenOutput(cfg)
}

func provideSlogLogger(cfg logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(cfg, writer)
}

// provideKVStore connects to REDIS_URL. Without one the bot still runs, with
// locking and duplicate suppression disabled.
func provideKVStore(cfg *config.Config, logger *slog.Logger) (kvstore.Store, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL is not set, running without locks, duplicate suppression or persistent logs")
	}
	kv, err := kvstore.New(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return kv, func() {
		if err := kv.Close(); err != nil {
			logger.Error("failed to close redis connection", "error", err)
		}
	}, nil
}

func provideCompleter(cfg *config.Config, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		logger.Info("using OpenAI-compatible AI provider", "api", cfg.AI.BaseURL)
		client := &http.Client{Timeout: cfg.AI.Timeout}
		return llm.NewOpenAICompleter(cfg.AI.BaseURL, cfg.AI.APIKey, client, cfg.AI.MaxRetries, logger), nil
	case config.ProviderOllama, config.ProviderGemini:
		logger.Info("using goframe AI provider", "provider", cfg.AI.Provider)
		return llm.NewGoframeCompleter(goframeModelFactory(cfg.AI, logger), cfg.AI.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.AI.Provider)
	}
}

func goframeModelFactory(ai config.AIConfig, logger *slog.Logger) llm.ModelFactory {
	return func(ctx context.Context, model string) (llms.Model, error) {
		if ai.Provider == config.ProviderGemini {
			if ai.GeminiAPIKey == "" {
				return nil, fmt.Errorf("GEMINI_API_KEY is not set")
			}
			return gemini.New(ctx, gemini.WithModel(model), gemini.WithAPIKey(ai.GeminiAPIKey))
		}
		return ollama.New(
			ollama.WithServerURL(ai.OllamaHost),
			ollama.WithHTTPClient(newOllamaHTTPClient(ai.Timeout)),
			ollama.WithModel(model),
			ollama.WithLogger(logger),
		)
	}
}

func newOllamaHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxConnsPerHost:     10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: timeout,
	}
}

func provideFileAnalyzer(cfg *config.Config, completer llm.Completer, prompts *llm.PromptManager, logger *slog.Logger) *llm.FileAnalyzer {
	return llm.NewFileAnalyzer(completer, prompts, llm.ModelProvider(cfg.AI.Provider), cfg.AI.AnalysisModelName(), cfg.Review.MaxPatchChars, logger)
}

func provideReviewSynthesizer(cfg *config.Config, completer llm.Completer, prompts *llm.PromptManager, logger *slog.Logger) *llm.ReviewSynthesizer {
	return llm.NewReviewSynthesizer(completer, prompts, llm.ModelProvider(cfg.AI.Provider), cfg.AI.CommentModelName(), logger)
}

// provideReviewStore picks the analytics backend. Postgres is migrated on connect.
func provideReviewStore(cfg *config.Config, kv kvstore.Store, logger *slog.Logger) (storage.ReviewStore, func(), error) {
	if cfg.Storage.Backend != config.StoragePostgres {
		return storage.NewRedisReviewStore(kv, logger), func() {}, nil
	}
	conn, cleanup, err := db.NewDatabase(&cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewPostgresReviewStore(conn.DB), cleanup, nil
}

func provideDispatcher(cfg *config.Config, job core.Job, logger *slog.Logger) core.JobDispatcher {
	return jobs.NewDispatcher(job, cfg.Server.MaxWorkers, logger)
}

// provideModelLister queries the OpenAI-compatible models endpoint; goframe
// providers have no listing call.
func provideModelLister(cfg *config.Config) handler.ModelLister {
	if cfg.AI.Provider != config.ProviderOpenAI {
		return nil
	}
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context) ([]string, error) {
		return llm.ListModels(ctx, client, cfg.AI.BaseURL, cfg.AI.APIKey)
	}
}

func provideWebhookHandler(cfg *config.Config, dispatcher core.JobDispatcher, logs bookkeeping.Store, clients github.ClientFactory, logger *slog.Logger) *handler.WebhookHandler {
	return handler.NewWebhookHandler(cfg, dispatcher, logs, clients.Mode(), logger)
}

func provideStatusHandler(
	cfg *config.Config,
	logs bookkeeping.Store,
	reviews storage.ReviewStore,
	kv kvstore.Store,
	dispatcher core.JobDispatcher,
	clients github.ClientFactory,
	lister handler.ModelLister,
	logger *slog.Logger,
) *handler.StatusHandler {
	return handler.NewStatusHandler(cfg, logs, reviews, kv, dispatcher, clients, lister, logger)
}
