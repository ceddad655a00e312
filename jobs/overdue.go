package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OverdueMarker is satisfied by credit.Service.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// MarkOverdueJob persists OVERDUE on installments past their due date so that
// list queries and reports see the status without deriving it.
type MarkOverdueJob struct {
	Credit  OverdueMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMarkOverdueJob wires dependencies for the overdue handler.
func NewMarkOverdueJob(credit OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *MarkOverdueJob {
	return &MarkOverdueJob{Credit: credit, Logger: logger, Metrics: metrics}
}

// Handle processes TaskMarkOverdue tasks.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Credit == nil {
		return errors.New("mark overdue: handler not configured")
	}
	var payload MarkOverduePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	metrics := j.metrics()
	tracker := metrics.Track(TaskMarkOverdue)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if !payload.ScheduledFor.IsZero() {
		logger = logger.With(slog.String("scheduled_for", payload.ScheduledFor.Format(time.RFC3339)))
	}
	n, err := j.Credit.MarkOverdue(ctx)
	if err != nil {
		logger.Error("mark overdue installments", slog.Any("error", err))
		return err
	}
	metrics.AddAffected(TaskMarkOverdue, n)
	logger.Info("overdue scan finished", slog.Int64("installments", n))
	return nil
}

func (j *MarkOverdueJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MarkOverdueJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
