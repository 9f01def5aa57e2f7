package negotiation

import (
	"parley/models"
	"parley/services/matching"
)

// Result is what a single engine step did.
type Result string

const (
	ResultConfirmed        Result = "confirmed"
	ResultHeld             Result = "held"
	ResultRetryOffered     Result = "retry_offered"
	ResultEscalated        Result = "escalated"
	ResultCancelled        Result = "cancelled"
	ResultAwaitingResponse Result = "awaiting_response"
	ResultError            Result = "error"
)

// Outcome describes the effect of one reply or operator action.
type Outcome struct {
	RequestID string                `json:"requestId"`
	Result    Result                `json:"result"`
	Status    models.Status         `json:"status"`
	Slot      *models.Interval      `json:"slot,omitempty"`
	Event     *models.CalendarEvent `json:"event,omitempty"`
	Matches   []matching.Match      `json:"matches,omitempty"`
	Message   string                `json:"message,omitempty"`

	// EventErr is set when the booking was committed but the calendar event
	// could not be created.
	EventErr error `json:"-"`
	// Degraded carries a collaborator failure that left the request unchanged.
	Degraded error `json:"-"`
}

// resultForStatus names the result a terminal status stands for.
func resultForStatus(s models.Status) Result {
	switch s {
	case models.StatusConfirmed:
		return ResultConfirmed
	case models.StatusCancelled:
		return ResultCancelled
	case models.StatusNeedsHuman:
		return ResultEscalated
	}
	return ResultAwaitingResponse
}
