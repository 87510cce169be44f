// Package bookkeeping records every webhook delivery and its outcome, and keeps
// aggregate counters per status for the status API and the CLI.
package bookkeeping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iotserver24/xibe-review/internal/core"
)

// ErrLogNotFound is returned when no record exists for a log id.
var ErrLogNotFound = errors.New("webhook log not found")

const (
	logKeyPrefix = "webhook:"
	recentKey    = "webhook:recent"
	statsKey     = "webhook:stats"
	totalField   = "total"

	logTTL        = 7 * 24 * time.Hour
	maxRecentLogs = 1000
	fallbackSize  = 100
	defaultLimit  = 50
)

// Store persists webhook logs. Implementations must keep the per-status
// counters consistent: a status change moves one unit from the old bucket to
// the new one and never touches the total.
type Store interface {
	// RecordLog stores a new log and counts it once in total and its status bucket.
	RecordLog(ctx context.Context, log *core.WebhookLog) error
	// UpdateStatus moves a log to status, stamps the processing time and
	// appends actions. errMsg is stored when non-empty.
	UpdateStatus(ctx context.Context, id string, status core.LogStatus, errMsg string, actions ...string) error
	AddActions(ctx context.Context, id string, actions ...string) error
	GetLog(ctx context.Context, id string) (*core.WebhookLog, error)
	// RecentLogs returns up to limit logs, newest first. An empty status
	// returns logs of any status.
	RecentLogs(ctx context.Context, limit int, status core.LogStatus) ([]*core.WebhookLog, error)
	GetStats(ctx context.Context) (core.WebhookStats, error)
	// Clear removes all logs and counters and returns how many keys were deleted.
	Clear(ctx context.Context) (int, error)
}

// NewLogID generates a unique webhook log id.
func NewLogID() string {
	return "webhook_" + uuid.NewString()
}

// NewLog builds a processing log for an incoming delivery.
func NewLog(event, deliveryID string) *core.WebhookLog {
	return &core.WebhookLog{
		ID:         NewLogID(),
		Timestamp:  time.Now().UTC(),
		Event:      event,
		DeliveryID: deliveryID,
		Repository: "Unknown",
		User:       "Unknown",
		Status:     core.StatusProcessing,
		Actions:    []string{},
	}
}

// Finish sets a terminal status on a log before it is recorded, for
// deliveries that are decided within the request.
func Finish(log *core.WebhookLog, status core.LogStatus, errMsg string, actions ...string) {
	applyStatus(log, status, errMsg, time.Now())
	log.Actions = append(log.Actions, actions...)
}

func logKey(id string) string {
	return logKeyPrefix + id
}

func applyStatus(log *core.WebhookLog, status core.LogStatus, errMsg string, now time.Time) {
	log.Status = status
	if errMsg != "" {
		log.Error = errMsg
	}
	if status.IsTerminal() {
		elapsed := now.Sub(log.Timestamp).Milliseconds()
		log.ProcessingTime = &elapsed
	}
}
