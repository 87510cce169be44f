package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/iotserver24/xibe-review/internal/core"
)

type postgresReviewStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresReviewStore creates a ReviewStore backed by the reviews table.
// Counters are derived from the rows instead of being stored separately.
func NewPostgresReviewStore(db *sqlx.DB) ReviewStore {
	return &postgresReviewStore{db: db, now: time.Now}
}

// SaveReview inserts a new review record into the database.
func (s *postgresReviewStore) SaveReview(ctx context.Context, rec *core.ReviewRecord) error {
	if rec.ID == "" {
		rec.ID = NewReviewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	query := `
		INSERT INTO reviews (id, created_at, repository, pr_number, username, installation_id, model, review_content, processing_time_ms, status)
		VALUES (:id, :created_at, :repository, :pr_number, :username, :installation_id, :model, :review_content, :processing_time_ms, :status)`
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert review %s: %w", rec.ID, err)
	}
	return nil
}

// RecentReviews retrieves the newest reviews first.
func (s *postgresReviewStore) RecentReviews(ctx context.Context, limit int) ([]*core.ReviewRecord, error) {
	query := `
		SELECT id, created_at, repository, pr_number, username, installation_id, model, review_content, processing_time_ms, status
		FROM reviews
		ORDER BY created_at DESC
		LIMIT $1`

	var reviews []*core.ReviewRecord
	if err := s.db.SelectContext(ctx, &reviews, query, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

func (s *postgresReviewStore) GlobalStats(ctx context.Context) (*core.GlobalAnalytics, error) {
	query := `SELECT COUNT(*), COUNT(DISTINCT username) FROM reviews`

	var stats core.GlobalAnalytics
	if err := s.db.QueryRowxContext(ctx, query).Scan(&stats.TotalReviews, &stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("failed to read global analytics: %w", err)
	}
	stats.RecentReviews = int(min(stats.TotalReviews, recentWindow))
	return &stats, nil
}

func (s *postgresReviewStore) UserStats(ctx context.Context, user string) (*core.UserStats, error) {
	query := `SELECT COUNT(*), MAX(created_at) FROM reviews WHERE username = $1`

	var (
		total      int64
		lastActive sql.NullTime
	)
	err := s.db.QueryRowxContext(ctx, query, user).Scan(&total, &lastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read stats for %s: %w", user, err)
	}
	if total == 0 {
		return nil, ErrUserNotFound
	}

	stats := &core.UserStats{UserID: user, TotalReviews: total}
	if lastActive.Valid {
		stats.LastActive = lastActive.Time.UTC().Format(time.RFC3339)
	}
	return stats, nil
}
