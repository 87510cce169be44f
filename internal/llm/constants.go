package llm

const (
	// Stage 1 sees at most this many characters of each patch.
	defaultMaxPatchChars = 8000

	analysisMaxTokens   = 2000
	analysisTemperature = 0.3

	synthesisMaxTokens   = 3000
	synthesisTemperature = 0.4

	noDescription     = "No description provided"
	analysisSeparator = "\n\n---\n\n"
	unknownLanguage   = "unknown"
)

var languageByExtension = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".java": "java",
	".go":   "go",
	".rb":   "ruby",
	".php":  "php",
	".cpp":  "cpp",
	".c":    "c",
	".cs":   "csharp",
	".rs":   "rust",
}
