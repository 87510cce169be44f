// Package app holds the assembled review bot and controls its lifecycle.
package app

import (
	"log/slog"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/kvstore"
	"github.com/iotserver24/xibe-review/internal/llm"
	"github.com/iotserver24/xibe-review/internal/server"
	"github.com/iotserver24/xibe-review/internal/storage"
)

// App holds the main application components. The exported fields let the CLI
// run a review with the same components the server uses.
type App struct {
	Cfg         *config.Config
	Logger      *slog.Logger
	Clients     github.ClientFactory
	KV          kvstore.Store
	Logs        bookkeeping.Store
	Reviews     storage.ReviewStore
	Analyzer    *llm.FileAnalyzer
	Synthesizer *llm.ReviewSynthesizer

	server     *server.Server
	dispatcher core.JobDispatcher
}

// NewApp sets up the application with all its dependencies.
func NewApp(
	cfg *config.Config,
	srv *server.Server,
	dispatcher core.JobDispatcher,
	clients github.ClientFactory,
	kv kvstore.Store,
	logs bookkeeping.Store,
	reviews storage.ReviewStore,
	analyzer *llm.FileAnalyzer,
	synthesizer *llm.ReviewSynthesizer,
	logger *slog.Logger,
) *App {
	logger.Info("xibe-review initialized",
		"auth_mode", clients.Mode(),
		"ai_provider", cfg.AI.Provider,
		"analysis_model", cfg.AI.AnalysisModelName(),
		"comment_model", cfg.AI.CommentModelName(),
		"storage", cfg.Storage.Backend,
		"max_workers", cfg.Server.MaxWorkers)

	return &App{
		Cfg:         cfg,
		Logger:      logger,
		Clients:     clients,
		KV:          kv,
		Logs:        logs,
		Reviews:     reviews,
		Analyzer:    analyzer,
		Synthesizer: synthesizer,
		server:      srv,
		dispatcher:  dispatcher,
	}
}

// Start runs the HTTP server and blocks until it stops.
func (a *App) Start() error {
	a.Logger.Info("starting xibe-review",
		"server_port", a.Cfg.Server.Port,
		"bot_username", a.Cfg.GitHub.BotUsername)

	if err := a.server.Start(); err != nil {
		a.Logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly: no new deliveries are accepted,
// then queued and running reviews are allowed to finish.
func (a *App) Stop() error {
	a.Logger.Info("shutting down xibe-review services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.dispatcher.Stop()

	if serverErr != nil {
		return serverErr
	}
	a.Logger.Info("xibe-review stopped successfully")
	return nil
}
