package core

import (
	"errors"
	"time"
)

// Sentinel errors describing runs that were deliberately skipped. They are not
// failures and never move a webhook log to the error state.
var (
	ErrLockHeld           = errors.New("another review is already running for this pull request")
	ErrAlreadyProcessed   = errors.New("triggering comment was already processed")
	ErrRecentlyReviewed   = errors.New("pull request was reviewed recently")
	ErrAutoReviewDisabled = errors.New("automatic reviews are disabled for this repository")
)

// IsSuppressed reports whether err describes a skipped run rather than a failure.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrRecentlyReviewed) ||
		errors.Is(err, ErrAutoReviewDisabled)
}

// ChangedFile is one file of a pull request as returned by the files API.
type ChangedFile struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Patch     string
}

// PullRequestSnapshot is the PR data a single review works from. It is fetched
// fresh for every run and never cached.
type PullRequestSnapshot struct {
	Title  string
	Body   string
	Author string
	Files  []ChangedFile
	Diff   string
}

// CharactersAnalyzed returns the summed patch length of all files.
func (s *PullRequestSnapshot) CharactersAnalyzed() int {
	total := 0
	for _, f := range s.Files {
		total += len(f.Patch)
	}
	return total
}

// FileAnalysis is the Stage 1 output for one file. Skipped entries carry a
// placeholder produced when the analysis call failed.
type FileAnalysis struct {
	Filename string
	Content  string
	Skipped  bool
}

// ReviewRecord is the analytics entry persisted after a completed review.
type ReviewRecord struct {
	ID             string    `json:"id" db:"id"`
	Timestamp      time.Time `json:"timestamp" db:"created_at"`
	Repository     string    `json:"repository" db:"repository"`
	PullRequest    int       `json:"pullRequest" db:"pr_number"`
	User           string    `json:"user" db:"username"`
	InstallationID int64     `json:"installationId" db:"installation_id"`
	Model          string    `json:"model" db:"model"`
	ReviewContent  string    `json:"reviewContent" db:"review_content"`
	ProcessingTime int64     `json:"processingTime" db:"processing_time_ms"`
	Status         string    `json:"status" db:"status"`
}

// GlobalAnalytics aggregates review counts across all users.
type GlobalAnalytics struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalReviews  int64 `json:"totalReviews"`
	RecentReviews int   `json:"recentReviews"`
}

// UserStats is the per-user analytics view.
type UserStats struct {
	UserID       string `json:"userId"`
	TotalReviews int64  `json:"totalReviews"`
	LastActive   string `json:"lastActive,omitempty"`
}
