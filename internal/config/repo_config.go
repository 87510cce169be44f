package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/iotserver24/xibe-review/internal/core"
)

// RepoConfigFile is the per-repository settings file read from the default branch.
const RepoConfigFile = ".xibe-review.yml"

var ErrConfigParsing = errors.New("config parsing failed")

// ParseRepoConfig parses the contents of a .xibe-review.yml file on top of the
// defaults. Empty input yields the defaults.
func ParseRepoConfig(data []byte) (*core.RepoConfig, error) {
	config := core.DefaultRepoConfig()
	if len(data) == 0 {
		return config, nil
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return config, nil
}
