package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/homestock/homestock/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries operator notifications ahead of maintenance work.
	QueueAlerts = "alerts"

	// TaskLowStockAlert delivers one low-stock notification.
	TaskLowStockAlert = "inventory:low_stock"
	// TaskAnalyticsWarmup precomputes the dashboard summaries.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskDailySummary sends the previous day's figures to the operator.
	TaskDailySummary = "analytics:daily_summary"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// DailySummaryPayload selects the reported day. Empty Date means yesterday.
type DailySummaryPayload struct {
	Date string `json:"date,omitempty"`
}

// IdempotencyCleanupPayload overrides the retention when positive.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewLowStockTask wraps an alert into a task.
func NewLowStockTask(alert notify.LowStockAlert) (*asynq.Task, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data), nil
}

// NewAnalyticsWarmupTask constructs the warmup task.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAnalyticsWarmup, nil)
}

// NewDailySummaryTask constructs the daily summary task for date (YYYY-MM-DD)
// or, when empty, for yesterday at run time.
func NewDailySummaryTask(date string) (*asynq.Task, error) {
	data, err := json.Marshal(DailySummaryPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySummary, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// decodePayload tolerates empty payloads from cron or CLI triggers.
func decodePayload(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
