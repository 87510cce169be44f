package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iotserver24/xibe-review/internal/bookkeeping"
	"github.com/iotserver24/xibe-review/internal/kvstore"
)

var (
	githubToken string
	redisURL    string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "xibe-cli",
	Short: "xibe-cli is the command-line interface for the Xibe-review bot.",
	Long: `A CLI for the Xibe-review bot: run a review for a pull request from the
terminal and inspect the webhook logs the server keeps in Redis.`,
	SilenceUsage: true,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&githubToken, "github-token", "t", "", "GitHub token (overrides GITHUB_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (overrides REDIS_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for key, flag := range map[string]string{"GITHUB_TOKEN": "github-token", "REDIS_URL": "redis-url"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			slog.Error("Error binding flag", "flag", flag, "error", err)
			os.Exit(1)
		}
	}
}

// initConfig reads in ENV variables; the .env file is read by config.LoadConfig.
func initConfig() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// openLogStore connects to the bot's Redis without loading the full
// configuration, so the read-only commands work without AI credentials.
func openLogStore() (bookkeeping.Store, func(), error) {
	url := viper.GetString("REDIS_URL")
	if url == "" {
		return nil, nil, fmt.Errorf("REDIS_URL is not set\n\nTip: pass --redis-url or export REDIS_URL")
	}
	kv, err := kvstore.New(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := kv.Ping(ctx); err != nil {
		_ = kv.Close()
		return nil, nil, fmt.Errorf("redis is not reachable: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return bookkeeping.NewStore(kv, logger), func() { _ = kv.Close() }, nil
}
