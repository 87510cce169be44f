package jobs

import (
	"log/slog"
	"strings"

	"github.com/iotserver24/xibe-review/internal/core"
)

// FilterExcludedFiles splits files into those to analyze and those matching
// the repository's exclude_paths. Order is preserved in both slices.
func FilterExcludedFiles(logger *slog.Logger, files []core.ChangedFile, repoCfg *core.RepoConfig) ([]core.ChangedFile, []core.ChangedFile) {
	if repoCfg == nil || len(repoCfg.ExcludePaths) == 0 {
		return files, nil
	}

	var kept []core.ChangedFile
	var excluded []core.ChangedFile

	for _, f := range files {
		cleanPath := strings.TrimPrefix(f.Filename, "./")
		if repoCfg.IsExcluded(cleanPath) {
			logger.Debug("excluding file from review", "file", f.Filename)
			excluded = append(excluded, f)
			continue
		}
		kept = append(kept, f)
	}
	return kept, excluded
}
