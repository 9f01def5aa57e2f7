package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a negotiation.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusConfirmed        Status = "confirmed"
	StatusCancelled        Status = "cancelled"
	StatusNeedsHuman       Status = "needs_human"
)

// transitions lists every legal move. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:          {StatusAwaitingResponse, StatusCancelled, StatusNeedsHuman},
	StatusAwaitingResponse: {StatusAwaitingResponse, StatusConfirmed, StatusCancelled, StatusNeedsHuman},
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusAwaitingResponse, StatusConfirmed, StatusCancelled, StatusNeedsHuman:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransitionTo reports whether the table allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError is returned for a move the transition table rejects.
type TransitionError struct {
	RequestID string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: illegal transition %s -> %s", e.RequestID, e.From, e.To)
}

// HistoryEntry is one raw message in a negotiation's audit trail.
type HistoryEntry struct {
	Sender     string    `json:"sender" bson:"sender"`
	Text       string    `json:"text" bson:"text"`
	ReceivedAt time.Time `json:"receivedAt" bson:"receivedAt"`
}

// Request is one scheduling negotiation between a requester and a respondent.
type Request struct {
	ID                string           `json:"id" bson:"_id"` // correlation token
	RequesterContact  string           `json:"requester" bson:"requester"`
	RespondentContact string           `json:"respondent" bson:"respondent"`
	SubjectLabel      string           `json:"subject" bson:"subject"` // e.g. role title
	Duration          time.Duration    `json:"duration" bson:"duration"`
	OfferedSlots      []Interval       `json:"offeredSlots" bson:"offeredSlots"`
	RespondentSlots   []RespondentSlot `json:"respondentSlots,omitempty" bson:"respondentSlots,omitempty"`
	ConfirmedSlot     *Interval        `json:"confirmedSlot,omitempty" bson:"confirmedSlot,omitempty"`
	HeldSlot          *Interval        `json:"heldSlot,omitempty" bson:"heldSlot,omitempty"` // tentative, awaiting respondent confirmation
	Event             *CalendarEvent   `json:"event,omitempty" bson:"event,omitempty"`
	History           []HistoryEntry   `json:"history" bson:"history"`
	Status            Status           `json:"status" bson:"status"`
	RetryCount        int              `json:"retryCount" bson:"retryCount"`
	CreatedAt         time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// NewRequest builds a pending request.
func NewRequest(id, requester, respondent, subject string, duration time.Duration, now time.Time) *Request {
	return &Request{
		ID:                id,
		RequesterContact:  requester,
		RespondentContact: respondent,
		SubjectLabel:      subject,
		Duration:          duration,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// TransitionTo moves the request to next if the table allows it.
func (r *Request) TransitionTo(next Status, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return &TransitionError{RequestID: r.ID, From: r.Status, To: next}
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Confirm books slot and moves to confirmed in one step, so ConfirmedSlot is
// set exactly when Status is confirmed.
func (r *Request) Confirm(slot Interval, now time.Time) error {
	if err := r.TransitionTo(StatusConfirmed, now); err != nil {
		return err
	}
	r.ConfirmedSlot = &slot
	r.HeldSlot = nil
	return nil
}

// AppendOffered extends OfferedSlots; it never removes entries.
func (r *Request) AppendOffered(slots ...Interval) {
	r.OfferedSlots = append(r.OfferedSlots, slots...)
}

// AppendHistory records a raw message.
func (r *Request) AppendHistory(sender, text string, at time.Time) {
	r.History = append(r.History, HistoryEntry{Sender: sender, Text: text, ReceivedAt: at})
	r.UpdatedAt = at
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (r *Request) Clone() *Request {
	c := *r
	c.OfferedSlots = append([]Interval(nil), r.OfferedSlots...)
	c.RespondentSlots = append([]RespondentSlot(nil), r.RespondentSlots...)
	c.History = append([]HistoryEntry(nil), r.History...)
	if r.ConfirmedSlot != nil {
		s := *r.ConfirmedSlot
		c.ConfirmedSlot = &s
	}
	if r.HeldSlot != nil {
		s := *r.HeldSlot
		c.HeldSlot = &s
	}
	if r.Event != nil {
		e := *r.Event
		c.Event = &e
	}
	return &c
}

// RequestSummary is the one-line view used by the run summary.
type RequestSummary struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Respondent string    `json:"respondent"`
	Status     Status    `json:"status"`
	Confirmed  *Interval `json:"confirmedSlot,omitempty"`
	Retries    int       `json:"retries"`
}

func (r *Request) Summary() RequestSummary {
	return RequestSummary{
		ID:         r.ID,
		Subject:    r.SubjectLabel,
		Respondent: r.RespondentContact,
		Status:     r.Status,
		Confirmed:  r.ConfirmedSlot,
		Retries:    r.RetryCount,
	}
}
