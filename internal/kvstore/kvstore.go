// Package kvstore provides the key-value operations the bot relies on for
// locking, duplicate suppression, webhook bookkeeping and analytics.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by every operation of a store created without a URL.
var ErrNotConfigured = errors.New("key-value store is not configured")

// Store is the subset of key-value semantics used across the bot. All
// operations are atomic on the server side.
type Store interface {
	// SetNX sets key to value with a ttl only if the key does not exist.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value of key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// SetEX sets key to value with a ttl, overwriting any previous value.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// DelIfEquals deletes key only while it still holds value.
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)

	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// New connects to the store at url. An empty url yields a store whose
// operations all fail with ErrNotConfigured, so callers degrade the same way
// they do when the server is unreachable.
func New(url string) (Store, error) {
	if url == "" {
		return disabledStore{}, nil
	}
	return NewRedisStore(url)
}
