package models

// ReminderPayload is the body of an interview reminder task.
type ReminderPayload struct {
	RequestID  string   `json:"requestId"`
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	FireDate   string   `json:"fireDate"` // RFC 3339, informational
}
