package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"parley/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() models.ReminderPayload {
	return models.ReminderPayload{
		RequestID:  "req_abc",
		Recipients: []string{"candidate@example.com", "hiring@example.com"},
		Title:      "Interview Reminder",
		Body:       "Reminder body",
		FireDate:   "2026-03-09T10:00:00Z",
	}
}

func TestNewReminderTask_RoundTrip(t *testing.T) {
	fireAt := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	task, opts, err := NewReminderTask(samplePayload(), fireAt)
	require.NoError(t, err)
	assert.Equal(t, TypeSendReminder, task.Type())
	assert.Len(t, opts, 3)

	got, err := ParseReminderTask(task)
	require.NoError(t, err)
	assert.Equal(t, samplePayload(), got)
}

func TestParseReminderTask_Rejects(t *testing.T) {
	_, err := ParseReminderTask(asynq.NewTask(TypeSendReminder, []byte("{")))
	assert.Error(t, err)

	_, err = ParseReminderTask(asynq.NewTask(TypeSendReminder, []byte(`{"requestId":"req_abc"}`)))
	assert.Error(t, err)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "reminder:req_abc"}, nil
}

func TestAsynqScheduler(t *testing.T) {
	q := &fakeEnqueuer{}
	s := &AsynqScheduler{Client: q}
	require.NoError(t, s.ScheduleReminder(context.Background(), samplePayload(), time.Now().Add(time.Hour)))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeSendReminder, q.tasks[0].Type())
	assert.NoError(t, s.Close())

	q.err = errors.New("redis down")
	err := s.ScheduleReminder(context.Background(), samplePayload(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, q.err)
}
