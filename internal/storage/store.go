// Package storage persists review analytics: one record per completed review
// plus per-user and global counters.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iotserver24/xibe-review/internal/core"
)

// ErrUserNotFound is returned when no review was ever recorded for a user.
var ErrUserNotFound = errors.New("user not found")

const defaultRecentReviews = 10

// ReviewStore defines the analytics operations used by the review job and the
// status API.
type ReviewStore interface {
	// SaveReview persists rec and updates the counters. An empty ID or zero
	// timestamp is filled in.
	SaveReview(ctx context.Context, rec *core.ReviewRecord) error
	// RecentReviews returns up to limit records, newest first.
	RecentReviews(ctx context.Context, limit int) ([]*core.ReviewRecord, error)
	GlobalStats(ctx context.Context) (*core.GlobalAnalytics, error)
	UserStats(ctx context.Context, user string) (*core.UserStats, error)
}

// NewReviewID generates a unique review record id.
func NewReviewID() string {
	return "review_" + uuid.NewString()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentReviews
	}
	return limit
}
