// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"strconv"
)

// ReviewRequest identifies one review attempt for a pull request. It is built
// by the webhook handler at dispatch time and is never mutated afterwards.
type ReviewRequest struct {
	Owner    string
	Repo     string
	PRNumber int

	// CommentID is the triggering comment, nil for automatic reviews.
	CommentID *int64
	// LogID references the WebhookLog tracking this request, empty when the
	// request did not originate from a webhook delivery (e.g. the CLI).
	LogID string

	IsAutoReview   bool
	InstallationID int64

	UserComment string
	RequestedBy string
}

// RepoFullName returns "owner/repo".
func (r *ReviewRequest) RepoFullName() string {
	return r.Owner + "/" + r.Repo
}

// IsMentionTriggered reports whether a user explicitly addressed the bot.
// Mention-triggered requests bypass the recent-review cooldown.
func (r *ReviewRequest) IsMentionTriggered() bool {
	return r.RequestedBy != ""
}

// CommentKey renders the triggering comment id for use in marker keys.
func (r *ReviewRequest) CommentKey() string {
	if r.CommentID == nil {
		return ""
	}
	return strconv.FormatInt(*r.CommentID, 10)
}

// Validate ensures the request carries everything the review job needs.
func (r *ReviewRequest) Validate() error {
	if r.Owner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if r.Repo == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if r.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", r.PRNumber)
	}
	if r.InstallationID < 0 {
		return fmt.Errorf("installation ID cannot be negative, got: %d", r.InstallationID)
	}
	if r.CommentID != nil && *r.CommentID <= 0 {
		return fmt.Errorf("comment ID must be positive, got: %d", *r.CommentID)
	}
	return nil
}
