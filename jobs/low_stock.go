package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/homestock/homestock/internal/jobs"
	"github.com/homestock/homestock/internal/notify"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LowStockJob delivers queued low-stock alerts.
type LowStockJob struct {
	Sender  notify.Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob wires the alert delivery handler.
func NewLowStockJob(sender notify.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockAlert tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("low stock: handler not configured")
	}
	var alert notify.LowStockAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return fmt.Errorf("low stock: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	if err := j.Sender.Send(ctx, notify.LowStockMessage(alert)); err != nil {
		jobLogger(j.Logger, TaskLowStockAlert).Error("deliver low stock alert", slog.String("product", alert.Name), slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AlertSent("low_stock", j.Sender.Channel())
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
