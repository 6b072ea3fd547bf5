package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/homestock/homestock/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	infos     map[string]*asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.infos[queue], nil
}

func (s *stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func (s *stubInspector) Close() error { return nil }

func run(c *JobsCLI, args ...string) (int, string, string) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.JobsCommand(context.Background(), args, JobsCommandOptions{Stdout: stdout, Stderr: stderr})
	return code, stdout.String(), stderr.String()
}

func TestTriggerEnqueuesKnownJobs(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: &stubInspector{}}

	for _, name := range []string{jobs.TaskAnalyticsWarmup, jobs.TaskDailySummary, jobs.TaskIdempotencyCleanup} {
		code, stdout, stderr := run(c, "trigger", name)
		require.Zero(t, code, stderr)
		require.Contains(t, stdout, "enqueued "+name)
	}
	require.Len(t, enq.tasks, 3)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	code, _, stderr := run(c, "trigger", jobs.TaskLowStockAlert)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unsupported job")
}

func TestStatsPrintsBothQueues(t *testing.T) {
	c := &JobsCLI{inspector: &stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueDefault: {Queue: jobs.QueueDefault, Pending: 4, Retry: 1},
		jobs.QueueAlerts:  {Queue: jobs.QueueAlerts, Active: 2},
	}}}
	code, stdout, _ := run(c, "stats")
	require.Zero(t, code)
	require.Contains(t, stdout, "QUEUE")
	require.Regexp(t, `default\s+4\s+0\s+0\s+1\s+0`, stdout)
	require.Regexp(t, `alerts\s+0\s+2`, stdout)
}

func TestStatsSurfacesInspectorErrors(t *testing.T) {
	c := &JobsCLI{inspector: &stubInspector{err: errors.New("redis down")}}
	code, _, stderr := run(c, "stats")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "redis down")
}

func TestScheduledListsTasks(t *testing.T) {
	next := time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC)
	c := &JobsCLI{inspector: &stubInspector{scheduled: []*asynq.TaskInfo{
		{ID: "abc", Type: jobs.TaskDailySummary, NextProcessAt: next},
	}}}
	code, stdout, _ := run(c, "scheduled")
	require.Zero(t, code)
	require.Contains(t, stdout, "abc\tanalytics:daily_summary\t2024-03-10T00:05:00Z")
}

func TestUsageErrors(t *testing.T) {
	c := &JobsCLI{}
	code, _, _ := run(c)
	require.Equal(t, 2, code)
	code, _, _ = run(c, "trigger")
	require.Equal(t, 2, code)
	code, _, stderr := run(c, "purge")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "unknown jobs command")
}
