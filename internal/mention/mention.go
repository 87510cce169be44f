// Package mention decides whether a comment addresses the bot and keeps
// generated comments from pinging the same user over and over.
package mention

import (
	"regexp"
	"strings"
)

// DefaultMaxPerUser is the number of @mentions of one user kept in a comment.
const DefaultMaxPerUser = 2

const botAccountSuffix = "[bot]"

var mentionRegex = regexp.MustCompile(`@(\w+)`)

// IsBotMentioned reports whether text addresses botName. Matching is
// deliberately loose: for "xibe-review" any of "@xibe-review", "@xibe",
// "xibe review", "xibe-review" or a standalone "xibe" counts.
func IsBotMentioned(text, botName string) bool {
	if text == "" || botName == "" {
		return false
	}
	for _, re := range mentionPatterns(botName) {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsFromBot reports whether author is the bot's own app account.
func IsFromBot(author, botName string) bool {
	if author == "" || botName == "" {
		return false
	}
	return strings.ToLower(author) == strings.ToLower(botName)+botAccountSuffix
}

func mentionPatterns(botName string) []*regexp.Regexp {
	base, qualifier, hasQualifier := strings.Cut(botName, "-")
	full := regexp.QuoteMeta(botName)
	quotedBase := regexp.QuoteMeta(base)

	exprs := []string{
		`@` + full,
		`@` + quotedBase,
		full + `\b`,
		`\b` + quotedBase + `\b`,
	}
	if hasQualifier && qualifier != "" {
		exprs = append(exprs, quotedBase+`\s+`+regexp.QuoteMeta(qualifier)+`\b`)
	}

	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+expr))
	}
	return patterns
}

// LimitMentions removes every @mention of a user beyond the first maxPerUser
// occurrences. All other text is left untouched. maxPerUser 0 removes every
// mention; a negative value is treated as 0.
func LimitMentions(text string, maxPerUser int) string {
	if text == "" {
		return text
	}
	maxPerUser = max(maxPerUser, 0)

	matches := mentionRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	seen := make(map[string]int, len(matches))
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	removed := false
	for _, m := range matches {
		user := text[m[2]:m[3]]
		seen[user]++
		if seen[user] <= maxPerUser {
			continue
		}
		b.WriteString(text[last:m[0]])
		last = m[1]
		removed = true
	}
	if !removed {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// Count returns how many times each user is mentioned in text.
func Count(text string) map[string]int {
	counts := make(map[string]int)
	for _, m := range mentionRegex.FindAllStringSubmatch(text, -1) {
		counts[m[1]]++
	}
	return counts
}
