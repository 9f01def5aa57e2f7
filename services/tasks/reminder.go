package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parley/models"
	"parley/utils"

	"github.com/hibiken/asynq"
)

const TypeSendReminder = utils.ReminderTaskType

// NewReminderTask builds the task for one interview reminder. The task id is
// derived from the request so a booking is only ever reminded once.
func NewReminderTask(payload models.ReminderPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("reminder:" + payload.RequestID),
		asynq.MaxRetry(3),
	}

	return task, opts, nil
}

// ParseReminderTask decodes a task built by NewReminderTask.
func ParseReminderTask(task *asynq.Task) (models.ReminderPayload, error) {
	var p models.ReminderPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid reminder payload: %w", err)
	}
	if p.RequestID == "" || len(p.Recipients) == 0 {
		return p, fmt.Errorf("reminder payload missing request id or recipients")
	}
	return p, nil
}

// Enqueuer is the subset of *asynq.Client the scheduler uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler queues interview reminders on Redis.
type AsynqScheduler struct {
	Client Enqueuer
}

func NewAsynqScheduler() *AsynqScheduler {
	addr, password, db := utils.ReminderRedisOpt()
	return &AsynqScheduler{Client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr, Password: password, DB: db})}
}

func (s *AsynqScheduler) ScheduleReminder(ctx context.Context, payload models.ReminderPayload, fireAt time.Time) error {
	task, opts, err := NewReminderTask(payload, fireAt)
	if err != nil {
		return err
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue reminder for %s: %w", payload.RequestID, err)
	}
	return nil
}

// Close releases the underlying client when it owns one.
func (s *AsynqScheduler) Close() error {
	if c, ok := s.Client.(*asynq.Client); ok {
		return c.Close()
	}
	return nil
}
