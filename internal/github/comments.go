package github

import (
	"fmt"
	"strings"
)

const (
	attributionLine = "**🤖 Powered by [Xibe AI](https://xibe.app)**"
	linksLine       = "[💙 Support Development](https://razorpay.me/@megavault) • [📚 Documentation](https://xibe.app)"
)

// FormatGreeting builds the acknowledgement posted before the AI work starts.
func FormatGreeting(user string, isAutoReview bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hey @%s! 👋\n\n", user)
	sb.WriteString("I'll go through the changes and help you out")
	if isAutoReview {
		sb.WriteString(" with an automated review")
	}
	sb.WriteString("! 🔍\n\n")
	sb.WriteString("Starting the review now...")
	return sb.String()
}

// FooterStats describes what a review covered.
type FooterStats struct {
	CharactersAnalyzed int
	FileCount          int
	IsAutoReview       bool
}

// AppendFooter appends the attribution footer to a generated review.
func AppendFooter(review string, stats FooterStats) string {
	var sb strings.Builder
	sb.WriteString(review)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("<div align=\"center\">\n\n")
	sb.WriteString(attributionLine)
	if stats.IsAutoReview {
		sb.WriteString(" • Auto-generated")
	}
	sb.WriteString("\n")

	noun := "files"
	if stats.FileCount == 1 {
		noun = "file"
	}
	fmt.Fprintf(&sb, "**📊 Analysis:** %d characters analyzed across %d %s\n", stats.CharactersAnalyzed, stats.FileCount, noun)
	sb.WriteString(linksLine)
	sb.WriteString("\n\n</div>")
	return sb.String()
}
