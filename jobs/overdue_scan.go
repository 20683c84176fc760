package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/locallibrary/locallibrary/internal/jobs"
)

// TaskOverdueScan counts loaned copies past their due date.
const TaskOverdueScan = "catalog:overdue_scan"

// OverdueScanPayload configures a scan. GraceDays postpones the due date.
type OverdueScanPayload struct {
	GraceDays int `json:"grace_days"`
}

// NewOverdueScanTask builds the scheduled scan task.
func NewOverdueScanTask(graceDays int) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueScanPayload{GraceDays: graceDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// OverdueCounter reports how many loans were due before asOf.
type OverdueCounter interface {
	CountOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// OverdueScanJob publishes the overdue loan count.
type OverdueScanJob struct {
	Counter OverdueCounter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob initialises the scan handler.
func NewOverdueScanJob(counter OverdueCounter, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Counter: counter,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Counter == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.GraceDays < 0 {
		payload.GraceDays = 0
	}

	tracker := j.Metrics.Track(TaskOverdueScan)
	asOf := j.clock().AddDate(0, 0, -payload.GraceDays)
	count, err := j.Counter.CountOverdue(ctx, asOf)
	if err != nil {
		j.logger().Error("overdue scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.SetOverdue(count)
	j.logger().Info("completed overdue scan", slog.Int("overdue", count), slog.Time("as_of", asOf))
	return tracker.End(nil)
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
