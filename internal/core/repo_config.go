package core

import (
	"path"
	"strings"
)

// RepoConfig represents the structure of the .xibe-review.yml file.
type RepoConfig struct {
	// AutoReview toggles reviews on pull_request events. Mention-triggered
	// reviews always run.
	AutoReview bool `yaml:"auto_review"`

	// Custom instructions appended to the file analysis prompt.
	CustomInstructions []string `yaml:"custom_instructions"`

	// Glob patterns (path.Match syntax) of files excluded from analysis.
	// Example: ["dist/*", "*.lock", "docs/*.md"]
	ExcludePaths []string `yaml:"exclude_paths"`
}

// DefaultRepoConfig returns a config with default values.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		AutoReview:         true,
		CustomInstructions: []string{},
		ExcludePaths:       []string{},
	}
}

// IsExcluded reports whether filename matches any exclude pattern. A pattern
// without a slash is also matched against the base name.
func (c *RepoConfig) IsExcluded(filename string) bool {
	for _, pattern := range c.ExcludePaths {
		pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "./")
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, filename); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := path.Match(pattern, path.Base(filename)); ok {
				return true
			}
		}
	}
	return false
}
