// File: utils/constants.go
package utils

import "time"

// DedupKeyPrefix is the prefix used for Redis inbound dedup keys.
const DedupKeyPrefix = "inbound:"

// DedupTTL is how long a routed message id is remembered.
const DedupTTL = 14 * 24 * time.Hour

// ReminderTaskType is the asynq task type for interview reminders.
const ReminderTaskType = "reminder:send"
