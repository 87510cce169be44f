package llm

import (
	"path"

	"github.com/iotserver24/xibe-review/internal/core"
)

// DetectLanguage returns the language most of the files are written in, judged
// by extension. Ties go to the language seen first. Files with unknown
// extensions are ignored; with no known file the result is "unknown".
func DetectLanguage(files []core.ChangedFile) string {
	counts := make(map[string]int)
	var order []string
	for _, f := range files {
		lang, ok := languageByExtension[path.Ext(f.Filename)]
		if !ok {
			continue
		}
		if counts[lang] == 0 {
			order = append(order, lang)
		}
		counts[lang]++
	}

	best, bestCount := unknownLanguage, 0
	for _, lang := range order {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}
