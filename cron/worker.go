package cron

import (
	"context"
	"fmt"
	"time"

	"parley/models"
	"parley/services/notification"
	"parley/services/tasks"
	"parley/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// InitReminderWorker runs the reminder worker in the background and returns
// the server so the caller can shut it down.
func InitReminderWorker(ctx context.Context, tr notification.Transport, logger *zap.Logger) *asynq.Server {
	addr, password, db := utils.ReminderRedisOpt()
	redisOpts := asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendReminder, HandleReminderTask(tr, logger))

	go monitorRedisConnection(ctx, addr, password, db, logger)

	go func() {
		logger.Info("Starting reminder worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Start(mux)
			if err == nil {
				return
			}
			logger.Error("Reminder worker failed to start",
				zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Error("Reminder worker gave up; reminders will not be delivered")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempts*2) * time.Second):
			}
		}
	}()
	return srv
}

// HandleReminderTask sends the reminder to every recipient through the transport.
func HandleReminderTask(tr notification.Transport, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseReminderTask(task)
		if err != nil {
			logger.Error("Invalid reminder task", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		logger.Info("Sending interview reminder",
			zap.String("requestID", p.RequestID), zap.Strings("recipients", p.Recipients))

		var failed int
		for _, to := range p.Recipients {
			msg := models.OutboundMessage{To: to, Subject: p.Title, Body: p.Body, RequestID: p.RequestID}
			if err := tr.Send(ctx, msg); err != nil {
				failed++
				logger.Error("Failed to send reminder", zap.String("to", to), zap.Error(err))
			}
		}
		if failed == len(p.Recipients) {
			return fmt.Errorf("reminder for %s not delivered to any recipient", p.RequestID)
		}
		return nil
	}
}

// monitorRedisConnection pings the reminder Redis periodically to surface failures at runtime.
func monitorRedisConnection(ctx context.Context, addr, password string, db int, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	defer client.Close()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("Reminder Redis connection lost", zap.Error(err))
			}
		}
	}
}
