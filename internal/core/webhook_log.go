package core

import "time"

// LogStatus is the lifecycle state of a WebhookLog.
type LogStatus string

const (
	StatusProcessing LogStatus = "processing"
	StatusCompleted  LogStatus = "completed"
	StatusError      LogStatus = "error"
	StatusIgnored    LogStatus = "ignored"
)

// AllStatuses lists every status in display order.
var AllStatuses = []LogStatus{StatusProcessing, StatusCompleted, StatusError, StatusIgnored}

// IsTerminal reports whether no further transitions are expected.
func (s LogStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusIgnored
}

// Valid reports whether s is a known status.
func (s LogStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// WebhookLog is the bookkeeping record of one webhook delivery.
type WebhookLog struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Event          string    `json:"event"`
	DeliveryID     string    `json:"deliveryId,omitempty"`
	InstallationID int64     `json:"installationId,omitempty"`
	Repository     string    `json:"repository"`
	User           string    `json:"user"`
	Comment        string    `json:"comment"`
	IsPR           bool      `json:"isPR"`
	PRNumber       int       `json:"prNumber,omitempty"`
	Status         LogStatus `json:"status"`
	ProcessingTime *int64    `json:"processingTime"`
	Error          string    `json:"error,omitempty"`
	Actions        []string  `json:"actions"`
}

// WebhookStats is the aggregate counter view over all webhook logs.
type WebhookStats struct {
	Total      int64 `json:"total"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Error      int64 `json:"error"`
	Ignored    int64 `json:"ignored"`
}

// SuccessRate returns completed/total as a whole percentage.
func (s WebhookStats) SuccessRate() int {
	if s.Total <= 0 {
		return 0
	}
	return int(s.Completed * 100 / s.Total)
}
