package models

import "time"

// EventRequest describes a calendar event to create for a confirmed interview.
type EventRequest struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees"` // first attendee owns the event
	Description string    `json:"description"`
	RequestID   string    `json:"requestId"` // negotiation token, used as a conference request key
}

// CalendarEvent is what a calendar backend returns after creating an event.
type CalendarEvent struct {
	EventID        string `json:"eventId" bson:"eventId"`
	Owner          string `json:"owner" bson:"owner"`
	Link           string `json:"link,omitempty" bson:"link,omitempty"`
	ConferenceLink string `json:"conferenceLink,omitempty" bson:"conferenceLink,omitempty"`
}
