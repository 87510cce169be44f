package kvstore

import (
	"context"
	"time"
)

type disabledStore struct{}

func (disabledStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, ErrNotConfigured
}

func (disabledStore) Get(context.Context, string) (string, bool, error) {
	return "", false, ErrNotConfigured
}

func (disabledStore) SetEX(context.Context, string, string, time.Duration) error {
	return ErrNotConfigured
}

func (disabledStore) Del(context.Context, ...string) error { return ErrNotConfigured }

func (disabledStore) DelIfEquals(context.Context, string, string) (bool, error) {
	return false, ErrNotConfigured
}

func (disabledStore) Exists(context.Context, string) (bool, error) { return false, ErrNotConfigured }

func (disabledStore) HIncrBy(context.Context, string, string, int64) (int64, error) {
	return 0, ErrNotConfigured
}

func (disabledStore) HSet(context.Context, string, map[string]string) error {
	return ErrNotConfigured
}

func (disabledStore) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, ErrNotConfigured
}

func (disabledStore) LPush(context.Context, string, ...string) error { return ErrNotConfigured }

func (disabledStore) LTrim(context.Context, string, int64, int64) error { return ErrNotConfigured }

func (disabledStore) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, ErrNotConfigured
}

func (disabledStore) Keys(context.Context, string) ([]string, error) { return nil, ErrNotConfigured }

func (disabledStore) Ping(context.Context) error { return ErrNotConfigured }

func (disabledStore) Close() error { return nil }
