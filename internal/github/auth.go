package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"

	"github.com/iotserver24/xibe-review/internal/config"
)

// ErrMissingInstallation is returned in app mode when a webhook carries no
// installation id, so there is no identity to act as.
var ErrMissingInstallation = errors.New("github app mode requires an installation id")

// ClientFactory hands out a Client for the identity a review should act as.
type ClientFactory interface {
	// ForInstallation returns a client for the given installation. Only app
	// mode uses the id; installationID 0 is an error there.
	ForInstallation(ctx context.Context, installationID int64) (Client, error)
	// Mode reports the authentication mode: app, pat or test.
	Mode() string
	// CountInstallations returns the number of app installations, 0 outside app mode.
	CountInstallations(ctx context.Context) (int, error)
}

// NewClientFactory selects the authentication mode from the configuration:
// a GitHub App when its credentials are present, otherwise a personal access
// token, otherwise the in-process test client.
func NewClientFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ClientFactory, error) {
	switch mode := cfg.GitHub.AuthMode(); mode {
	case config.AuthModeApp:
		privateKey, err := loadPrivateKey(cfg.GitHub)
		if err != nil {
			return nil, err
		}
		appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.GitHub.AppID, privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
		}
		logger.Info("using GitHub App authentication", "app_id", cfg.GitHub.AppID)
		return &appClientFactory{
			appTransport: appTransport,
			logger:       logger,
			clients:      make(map[int64]Client),
		}, nil
	case config.AuthModePAT:
		logger.Warn("using personal access token authentication; comments will appear from the token owner")
		return &staticClientFactory{mode: mode, client: NewPATClient(ctx, cfg.GitHub.Token, logger)}, nil
	default:
		logger.Warn("no GitHub credentials configured, running in test mode")
		return &staticClientFactory{mode: config.AuthModeTest, client: NewTestModeClient(logger)}, nil
	}
}

// loadPrivateKey reads the App key from GITHUB_PRIVATE_KEY, accepting PEM with
// literal "\n" sequences as set in many hosting dashboards, or from the key file.
func loadPrivateKey(cfg config.GitHubConfig) ([]byte, error) {
	if cfg.PrivateKey != "" {
		key := strings.TrimSpace(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n"))
		if !strings.Contains(key, "-----BEGIN") || !strings.Contains(key, "PRIVATE KEY-----") {
			return nil, errors.New("invalid private key format: missing PEM headers")
		}
		return []byte(key), nil
	}
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.PrivateKeyPath, err)
	}
	return key, nil
}

type appClientFactory struct {
	appTransport *ghinstallation.AppsTransport
	logger       *slog.Logger

	mu      sync.Mutex
	clients map[int64]Client
}

func (f *appClientFactory) Mode() string { return config.AuthModeApp }

// ForInstallation builds an installation transport once per installation id.
// The transport refreshes its token before expiry.
func (f *appClientFactory) ForInstallation(_ context.Context, installationID int64) (Client, error) {
	if installationID == 0 {
		return nil, ErrMissingInstallation
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[installationID]; ok {
		return c, nil
	}

	itr := ghinstallation.NewFromAppsTransport(f.appTransport, installationID)
	client := NewGitHubClient(newInstallationHTTPClient(itr), f.logger.With("installation_id", installationID))
	f.clients[installationID] = client
	f.logger.Info("created GitHub installation client", "installation_id", installationID)
	return client, nil
}

func (f *appClientFactory) CountInstallations(ctx context.Context) (int, error) {
	appClient := github.NewClient(&http.Client{Transport: f.appTransport})
	opts := &github.ListOptions{PerPage: 100}
	total := 0
	for {
		installations, resp, err := appClient.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return 0, fmt.Errorf("failed to list installations: %w", err)
		}
		total += len(installations)
		if resp.NextPage == 0 {
			return total, nil
		}
		opts.Page = resp.NextPage
	}
}

type staticClientFactory struct {
	mode   string
	client Client
}

func (f *staticClientFactory) ForInstallation(context.Context, int64) (Client, error) {
	return f.client, nil
}

func (f *staticClientFactory) Mode() string { return f.mode }

func (f *staticClientFactory) CountInstallations(context.Context) (int, error) { return 0, nil }

// NewStaticClientFactory serves the same client for every installation.
func NewStaticClientFactory(mode string, client Client) ClientFactory {
	return &staticClientFactory{mode: mode, client: client}
}
