package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/homestock/homestock/internal/analytics"
	jobmetrics "github.com/homestock/homestock/internal/jobs"
)

// DashboardLoader computes the standard dashboard windows.
type DashboardLoader interface {
	Dashboard(ctx context.Context) (analytics.Dashboard, error)
}

// AnalyticsWarmupJob pre-populates the analytics cache so the first dashboard
// request after a write or a day rollover is served warm.
type AnalyticsWarmupJob struct {
	Analytics DashboardLoader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(loader DashboardLoader, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Analytics: loader, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// Handle processes analytics warmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskAnalyticsWarmup)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskAnalyticsWarmup)
	start := time.Now()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dash, err := j.Analytics.Dashboard(warmCtx)
	if err != nil {
		logger.Error("warm dashboard", slog.Any("error", err))
		return err
	}
	logger.Info("completed analytics warmup",
		slog.String("today_revenue", dash.Today.Revenue.StringFixed(2)),
		slog.Int("products", len(dash.All.Products)),
		slog.Duration("duration", time.Since(start)))
	return nil
}
