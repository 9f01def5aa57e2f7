package cron

import (
	"context"
	"testing"
	"time"

	"parley/models"
	"parley/services/notification"
	"parley/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleReminderTask_SendsToEveryRecipient(t *testing.T) {
	tr := notification.NewMemoryTransport()
	task, _, err := tasks.NewReminderTask(models.ReminderPayload{
		RequestID:  "req_abc",
		Recipients: []string{"candidate@example.com", "hiring@example.com"},
		Title:      "Interview Reminder",
		Body:       "See you soon",
	}, time.Now())
	require.NoError(t, err)

	require.NoError(t, HandleReminderTask(tr, zap.NewNop())(context.Background(), task))

	out := tr.Outbox()
	require.Len(t, out, 2)
	assert.Equal(t, "candidate@example.com", out[0].To)
	assert.Equal(t, "hiring@example.com", out[1].To)
	assert.Equal(t, "req_abc", out[1].RequestID)
}

func TestHandleReminderTask_BadPayloadSkipsRetry(t *testing.T) {
	err := HandleReminderTask(notification.NewMemoryTransport(), zap.NewNop())(context.Background(), asynq.NewTask(tasks.TypeSendReminder, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
