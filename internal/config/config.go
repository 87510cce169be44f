package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iotserver24/xibe-review/internal/logger"
	"github.com/iotserver24/xibe-review/internal/mention"
)

// GitHub authentication modes.
const (
	AuthModeApp  = "app"
	AuthModePAT  = "pat"
	AuthModeTest = "test"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Analytics storage backends.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig
	GitHub   GitHubConfig
	AI       AIConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Database DBConfig
	Review   ReviewConfig
	Logging  logger.Config
}

type ServerConfig struct {
	Port            string
	MaxWorkers      int
	ShutdownTimeout time.Duration
}

type GitHubConfig struct {
	AppID          int64
	PrivateKey     string
	PrivateKeyPath string
	Token          string
	WebhookSecret  string
	BotUsername    string
}

// AuthMode picks how the bot talks to GitHub. App credentials win over a
// personal access token; with neither the bot runs in test mode.
func (g GitHubConfig) AuthMode() string {
	switch {
	case g.AppID != 0 && (g.PrivateKey != "" || g.PrivateKeyPath != ""):
		return AuthModeApp
	case g.Token != "":
		return AuthModePAT
	default:
		return AuthModeTest
	}
}

type AIConfig struct {
	Provider string
	// BaseURL of an OpenAI-compatible API; "/v1/chat/completions" is appended.
	BaseURL string
	APIKey  string
	// Model is recorded in review analytics and used when a stage model is unset.
	Model         string
	AnalysisModel string
	CommentModel  string
	OllamaHost    string
	GeminiAPIKey  string
	Timeout       time.Duration
	MaxRetries    int
}

// AnalysisModelName returns the model for per-file analysis.
func (a AIConfig) AnalysisModelName() string {
	if a.AnalysisModel != "" {
		return a.AnalysisModel
	}
	return a.Model
}

// CommentModelName returns the model for the final review.
func (a AIConfig) CommentModelName() string {
	if a.CommentModel != "" {
		return a.CommentModel
	}
	return a.Model
}

// Validate checks that the selected provider has what it needs.
func (a AIConfig) Validate() error {
	switch a.Provider {
	case ProviderOpenAI:
		if a.BaseURL == "" || a.APIKey == "" {
			return errors.New("AI_API and AI_KEY must be set")
		}
	case ProviderGemini:
		if a.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY must be set for the gemini provider")
		}
	case ProviderOllama:
		if a.OllamaHost == "" {
			return errors.New("OLLAMA_HOST must be set for the ollama provider")
		}
	default:
		return fmt.Errorf("unsupported AI provider: %s", a.Provider)
	}
	if a.AnalysisModelName() == "" || a.CommentModelName() == "" {
		return errors.New("MODEL_ID or both ANALYSIS_MODEL and COMMENT_MODEL must be set")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("AI_MAX_RETRIES must not be negative, got %d", a.MaxRetries)
	}
	return nil
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Backend string
}

// DBConfig holds the Postgres connection settings for review analytics.
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ReviewConfig tunes the review pipeline.
type ReviewConfig struct {
	LockTTL            time.Duration
	ProcessedTTL       time.Duration
	RecentTTL          time.Duration
	MaxMentionsPerUser int
	MaxPatchChars      int
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the global
// Viper instance, so flags bound by the CLI take precedence over both.
func LoadConfig() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to read config file", "error", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("MAX_WORKERS", 5)
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")

	v.SetDefault("BOT_USERNAME", "Xibe-review")

	v.SetDefault("AI_PROVIDER", ProviderOpenAI)
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("AI_TIMEOUT", "5m")
	v.SetDefault("AI_MAX_RETRIES", 3)

	v.SetDefault("STORAGE_BACKEND", StorageRedis)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "xibe")
	v.SetDefault("DB_NAME", "xibe_review")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("REVIEW_LOCK_TTL", "10m")
	v.SetDefault("REVIEW_PROCESSED_TTL", "24h")
	v.SetDefault("REVIEW_RECENT_TTL", "5m")
	v.SetDefault("REVIEW_MAX_MENTIONS", mention.DefaultMaxPerUser)
	v.SetDefault("REVIEW_MAX_PATCH_CHARS", 8000)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			MaxWorkers:      v.GetInt("MAX_WORKERS"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		GitHub: GitHubConfig{
			AppID:          v.GetInt64("GITHUB_APP_ID"),
			PrivateKey:     v.GetString("GITHUB_PRIVATE_KEY"),
			PrivateKeyPath: v.GetString("GITHUB_PRIVATE_KEY_PATH"),
			Token:          v.GetString("GITHUB_TOKEN"),
			WebhookSecret:  v.GetString("WEBHOOK_SECRET"),
			BotUsername:    v.GetString("BOT_USERNAME"),
		},
		AI: AIConfig{
			Provider:      strings.ToLower(v.GetString("AI_PROVIDER")),
			BaseURL:       strings.TrimSuffix(v.GetString("AI_API"), "/"),
			APIKey:        v.GetString("AI_KEY"),
			Model:         v.GetString("MODEL_ID"),
			AnalysisModel: v.GetString("ANALYSIS_MODEL"),
			CommentModel:  v.GetString("COMMENT_MODEL"),
			OllamaHost:    v.GetString("OLLAMA_HOST"),
			GeminiAPIKey:  v.GetString("GEMINI_API_KEY"),
			Timeout:       v.GetDuration("AI_TIMEOUT"),
			MaxRetries:    v.GetInt("AI_MAX_RETRIES"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		},
		Database: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Review: ReviewConfig{
			LockTTL:            v.GetDuration("REVIEW_LOCK_TTL"),
			ProcessedTTL:       v.GetDuration("REVIEW_PROCESSED_TTL"),
			RecentTTL:          v.GetDuration("REVIEW_RECENT_TTL"),
			MaxMentionsPerUser: v.GetInt("REVIEW_MAX_MENTIONS"),
			MaxPatchChars:      v.GetInt("REVIEW_MAX_PATCH_CHARS"),
		},
		Logging: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Server.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Server.MaxWorkers)
	}
	if c.GitHub.BotUsername == "" {
		return errors.New("BOT_USERNAME must not be empty")
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case StorageRedis:
	case StoragePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("DB_HOST and DB_NAME must be set for the postgres storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.Review.LockTTL <= 0 {
		return errors.New("REVIEW_LOCK_TTL must be positive")
	}
	return nil
}
