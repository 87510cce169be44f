package bookkeeping

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

type kvBookkeeper struct {
	kv       kvstore.Store
	fallback *ringBuffer
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates a Store on top of the key-value store. When the key-value
// store fails, records are kept in an in-process buffer of the newest 100 logs.
func NewStore(kv kvstore.Store, logger *slog.Logger) Store {
	if kv == nil {
		panic("bookkeeping: key-value store is required")
	}
	if logger == nil {
		panic("bookkeeping: logger is required")
	}
	return &kvBookkeeper{
		kv:       kv,
		fallback: newRingBuffer(fallbackSize),
		logger:   logger,
		now:      time.Now,
	}
}

func (b *kvBookkeeper) RecordLog(ctx context.Context, log *core.WebhookLog) error {
	if log == nil || log.ID == "" {
		return fmt.Errorf("webhook log must have an id")
	}
	if log.Status == "" {
		log.Status = core.StatusProcessing
	}
	if log.Actions == nil {
		log.Actions = []string{}
	}

	if err := b.writeLog(ctx, log); err != nil {
		b.logger.Warn("storing webhook log in memory", "log_id", log.ID, "error", err)
		b.fallback.push(log)
		return nil
	}
	if err := b.kv.LPush(ctx, recentKey, log.ID); err != nil {
		b.logger.Warn("failed to index webhook log", "log_id", log.ID, "error", err)
	}
	if err := b.kv.LTrim(ctx, recentKey, 0, maxRecentLogs-1); err != nil {
		b.logger.Warn("failed to trim recent webhook logs", "error", err)
	}
	if _, err := b.kv.HIncrBy(ctx, statsKey, string(log.Status), 1); err != nil {
		b.logger.Warn("failed to update webhook stats", "status", log.Status, "error", err)
	}
	if _, err := b.kv.HIncrBy(ctx, statsKey, totalField, 1); err != nil {
		b.logger.Warn("failed to update webhook stats", "status", totalField, "error", err)
	}
	b.logger.Debug("webhook log stored", "log_id", log.ID, "status", log.Status)
	return nil
}

func (b *kvBookkeeper) UpdateStatus(ctx context.Context, id string, status core.LogStatus, errMsg string, actions ...string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid webhook log status %q", status)
	}
	now := b.now()

	log, err := b.readLog(ctx, id)
	if err != nil {
		updated := b.fallback.update(id, func(l *core.WebhookLog) {
			applyStatus(l, status, errMsg, now)
			l.Actions = append(l.Actions, actions...)
		})
		if !updated {
			return err
		}
		return nil
	}

	oldStatus := log.Status
	applyStatus(log, status, errMsg, now)
	log.Actions = append(log.Actions, actions...)

	if err := b.writeLog(ctx, log); err != nil {
		b.logger.Warn("storing webhook log update in memory", "log_id", id, "error", err)
		b.fallback.push(log)
		return nil
	}

	if oldStatus != status {
		if _, err := b.kv.HIncrBy(ctx, statsKey, string(oldStatus), -1); err != nil {
			b.logger.Warn("failed to update webhook stats", "status", oldStatus, "error", err)
		}
		if _, err := b.kv.HIncrBy(ctx, statsKey, string(status), 1); err != nil {
			b.logger.Warn("failed to update webhook stats", "status", status, "error", err)
		}
	}
	return nil
}

func (b *kvBookkeeper) AddActions(ctx context.Context, id string, actions ...string) error {
	if len(actions) == 0 {
		return nil
	}
	log, err := b.readLog(ctx, id)
	if err != nil {
		if b.fallback.update(id, func(l *core.WebhookLog) { l.Actions = append(l.Actions, actions...) }) {
			return nil
		}
		return err
	}
	log.Actions = append(log.Actions, actions...)
	if err := b.writeLog(ctx, log); err != nil {
		b.fallback.push(log)
	}
	return nil
}

func (b *kvBookkeeper) GetLog(ctx context.Context, id string) (*core.WebhookLog, error) {
	log, err := b.readLog(ctx, id)
	if err == nil {
		return log, nil
	}
	if fb, ok := b.fallback.get(id); ok {
		return fb, nil
	}
	return nil, err
}

func (b *kvBookkeeper) RecentLogs(ctx context.Context, limit int, status core.LogStatus) ([]*core.WebhookLog, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	ids, err := b.kv.LRange(ctx, recentKey, 0, int64(limit-1))
	if err != nil {
		b.logger.Warn("reading webhook logs from memory", "error", err)
		return b.fallback.list(limit, status), nil
	}

	logs := make([]*core.WebhookLog, 0, len(ids))
	for _, id := range ids {
		log, err := b.readLog(ctx, id)
		if err != nil {
			b.logger.Debug("skipping unreadable webhook log", "log_id", id, "error", err)
			continue
		}
		if status != "" && log.Status != status {
			continue
		}
		logs = append(logs, log)
	}

	if len(logs) == 0 && b.fallback.len() > 0 {
		return b.fallback.list(limit, status), nil
	}
	return logs, nil
}

func (b *kvBookkeeper) GetStats(ctx context.Context) (core.WebhookStats, error) {
	m, err := b.kv.HGetAll(ctx, statsKey)
	if err != nil {
		b.logger.Warn("computing webhook stats from memory", "error", err)
		return b.fallback.stats(), nil
	}
	return core.WebhookStats{
		Total:      parseCount(m[totalField]),
		Processing: parseCount(m[string(core.StatusProcessing)]),
		Completed:  parseCount(m[string(core.StatusCompleted)]),
		Error:      parseCount(m[string(core.StatusError)]),
		Ignored:    parseCount(m[string(core.StatusIgnored)]),
	}, nil
}

func (b *kvBookkeeper) Clear(ctx context.Context) (int, error) {
	cleared := b.fallback.clear()

	keys, err := b.kv.Keys(ctx, logKeyPrefix+"*")
	if err != nil {
		return cleared, fmt.Errorf("failed to list webhook keys: %w", err)
	}
	if err := b.kv.Del(ctx, keys...); err != nil {
		return cleared, fmt.Errorf("failed to delete webhook keys: %w", err)
	}
	return cleared + len(keys), nil
}

func (b *kvBookkeeper) readLog(ctx context.Context, id string) (*core.WebhookLog, error) {
	raw, found, err := b.kv.Get(ctx, logKey(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, id)
	}
	var log core.WebhookLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("failed to decode webhook log %s: %w", id, err)
	}
	if log.Actions == nil {
		log.Actions = []string{}
	}
	return &log, nil
}

func (b *kvBookkeeper) writeLog(ctx context.Context, log *core.WebhookLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode webhook log: %w", err)
	}
	return b.kv.SetEX(ctx, logKey(log.ID), string(data), logTTL)
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
