package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMarkOverdue flags pending installments whose due date has passed.
	TaskMarkOverdue = "installments:mark-overdue"
	// TaskIdempotencyCleanup purges idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// MarkOverduePayload carries scheduling metadata.
type MarkOverduePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMarkOverdueTask constructs the overdue scan task.
func NewMarkOverdueTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MarkOverduePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMarkOverdue, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload overrides the worker's configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIdempotencyCleanupTask constructs the key purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
