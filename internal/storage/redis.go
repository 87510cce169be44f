package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iotserver24/xibe-review/internal/core"
	"github.com/iotserver24/xibe-review/internal/kvstore"
)

const (
	reviewKeyPrefix = "review:"
	reviewsListKey  = "reviews:all"
	globalKey       = "analytics:global"
	reviewTTL       = 30 * 24 * time.Hour
	// recentWindow is how many list entries GlobalStats reports as recent.
	recentWindow = 10
)

type redisReviewStore struct {
	kv     kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisReviewStore keeps analytics in the key-value store next to the
// webhook logs.
func NewRedisReviewStore(kv kvstore.Store, logger *slog.Logger) ReviewStore {
	if kv == nil || logger == nil {
		panic("NewRedisReviewStore received a nil dependency")
	}
	return &redisReviewStore{kv: kv, logger: logger, now: time.Now}
}

func userStatsKey(user string) string { return "user:" + user + ":stats" }
func userInfoKey(user string) string  { return "user:" + user + ":info" }

func (s *redisReviewStore) SaveReview(ctx context.Context, rec *core.ReviewRecord) error {
	now := s.now().UTC()
	if rec.ID == "" {
		rec.ID = NewReviewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode review %s: %w", rec.ID, err)
	}
	if err := s.kv.SetEX(ctx, reviewKeyPrefix+rec.ID, string(data), reviewTTL); err != nil {
		return fmt.Errorf("failed to store review %s: %w", rec.ID, err)
	}
	if err := s.kv.LPush(ctx, reviewsListKey, rec.ID); err != nil {
		return fmt.Errorf("failed to index review %s: %w", rec.ID, err)
	}

	// Must be checked before the increment below creates the hash.
	known, err := s.kv.Exists(ctx, userStatsKey(rec.User))
	if err != nil {
		return fmt.Errorf("failed to look up user %s: %w", rec.User, err)
	}
	total, err := s.kv.HIncrBy(ctx, userStatsKey(rec.User), "reviews", 1)
	if err != nil {
		return fmt.Errorf("failed to update stats for %s: %w", rec.User, err)
	}
	if err := s.kv.HSet(ctx, userInfoKey(rec.User), map[string]string{
		"lastActive":   now.Format(time.RFC3339),
		"totalReviews": strconv.FormatInt(total, 10),
	}); err != nil {
		return fmt.Errorf("failed to update info for %s: %w", rec.User, err)
	}

	if _, err := s.kv.HIncrBy(ctx, globalKey, "totalReviews", 1); err != nil {
		return fmt.Errorf("failed to update global analytics: %w", err)
	}
	if !known {
		if _, err := s.kv.HIncrBy(ctx, globalKey, "totalUsers", 1); err != nil {
			return fmt.Errorf("failed to update global analytics: %w", err)
		}
	}

	s.logger.Info("review analytics saved", "review_id", rec.ID, "user", rec.User, "repo", rec.Repository)
	return nil
}

func (s *redisReviewStore) RecentReviews(ctx context.Context, limit int) ([]*core.ReviewRecord, error) {
	ids, err := s.kv.LRange(ctx, reviewsListKey, 0, int64(normalizeLimit(limit)-1))
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	reviews := make([]*core.ReviewRecord, 0, len(ids))
	for _, id := range ids {
		raw, found, err := s.kv.Get(ctx, reviewKeyPrefix+id)
		if err != nil {
			return nil, fmt.Errorf("failed to read review %s: %w", id, err)
		}
		if !found {
			// expired
			continue
		}
		var rec core.ReviewRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping unreadable review record", "review_id", id, "error", err)
			continue
		}
		reviews = append(reviews, &rec)
	}
	return reviews, nil
}

func (s *redisReviewStore) GlobalStats(ctx context.Context) (*core.GlobalAnalytics, error) {
	fields, err := s.kv.HGetAll(ctx, globalKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read global analytics: %w", err)
	}
	recent, err := s.kv.LRange(ctx, reviewsListKey, 0, recentWindow-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return &core.GlobalAnalytics{
		TotalUsers:    parseCount(fields["totalUsers"]),
		TotalReviews:  parseCount(fields["totalReviews"]),
		RecentReviews: len(recent),
	}, nil
}

func (s *redisReviewStore) UserStats(ctx context.Context, user string) (*core.UserStats, error) {
	stats, err := s.kv.HGetAll(ctx, userStatsKey(user))
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for %s: %w", user, err)
	}
	info, err := s.kv.HGetAll(ctx, userInfoKey(user))
	if err != nil {
		return nil, fmt.Errorf("failed to read info for %s: %w", user, err)
	}
	if len(stats) == 0 && len(info) == 0 {
		return nil, ErrUserNotFound
	}
	return &core.UserStats{
		UserID:       user,
		TotalReviews: parseCount(stats["reviews"]),
		LastActive:   info["lastActive"],
	}, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
