// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/iotserver24/xibe-review/internal/app"
	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/config"
	"github.com/iotserver24/xibe-review/internal/github"
	"github.com/iotserver24/xibe-review/internal/jobs"
	"github.com/iotserver24/xibe-review/internal/llm"
	"github.com/iotserver24/xibe-review/internal/server"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	loggerConfig := provideLoggerConfig(cfg)
	writer := provideLogWriter(loggerConfig)
	logger := provideSlogLogger(loggerConfig, writer)

	kv, kvCleanup, err := provideKVStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	clients, err := github.NewClientFactory(ctx, cfg, logger)
	if err != nil {
		kvCleanup()
		return nil, nil, fmt.Errorf("failed to set up GitHub authentication: %w", err)
	}

	completer, err := provideCompleter(cfg, logger)
	if err != nil {
		kvCleanup()
		return nil, nil, err
	}

	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		kvCleanup()
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}
	analyzer := provideFileAnalyzer(cfg, completer, promptMgr, logger)
	synthesizer := provideReviewSynthesizer(cfg, completer, promptMgr, logger)

	logs := bookkeeping.NewStore(kv, logger)
	reviews, reviewsCleanup, err := provideReviewStore(cfg, kv, logger)
	if err != nil {
		kvCleanup()
		return nil, nil, fmt.Errorf("failed to set up review analytics: %w", err)
	}

	reviewJob := jobs.NewReviewJob(cfg, kv, clients, analyzer, synthesizer, logs, reviews, logger)
	dispatcher := provideDispatcher(cfg, reviewJob, logger)

	webhookHandler := provideWebhookHandler(cfg, dispatcher, logs, clients, logger)
	lister := provideModelLister(cfg)
	statusHandler := provideStatusHandler(cfg, logs, reviews, kv, dispatcher, clients, lister, logger)
	router := server.NewRouter(webhookHandler, statusHandler)
	srv := server.NewServer(cfg, router, logger)

	application := app.NewApp(cfg, srv, dispatcher, clients, kv, logs, reviews, analyzer, synthesizer, logger)

	cleanup := func() {
		reviewsCleanup()
		kvCleanup()
	}
	return application, cleanup, nil
}
