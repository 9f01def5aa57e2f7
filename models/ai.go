package models

import "time"

// Intent is what a respondent's reply asks for.
type Intent string

const (
	IntentProvideAvailability Intent = "provide_availability"
	IntentConfirm             Intent = "confirm"
	IntentDecline             Intent = "decline"
	IntentRequestOtherTimes   Intent = "request_other_times"
	IntentUnclear             Intent = "unclear"
)

// NormalizeIntent maps unknown values to IntentUnclear.
func NormalizeIntent(raw string) Intent {
	switch i := Intent(raw); i {
	case IntentProvideAvailability, IntentConfirm, IntentDecline, IntentRequestOtherTimes, IntentUnclear:
		return i
	}
	return IntentUnclear
}

// Extraction is the structured reading of one reply.
type Extraction struct {
	Intent Intent           `json:"intent"`
	Slots  []RespondentSlot `json:"slots"`
	Note   string           `json:"note,omitempty"`
}

// Unclear is the fallback used whenever a reply cannot be read.
func Unclear(note string) *Extraction {
	return &Extraction{Intent: IntentUnclear, Note: note}
}

// ExtractionContext is what an extractor needs besides the raw text.
type ExtractionContext struct {
	Today        time.Time      `json:"today"`
	Location     *time.Location `json:"-"`
	OfferedSlots []Interval     `json:"offeredSlots"`
	Duration     time.Duration  `json:"duration"`
	Subject      string         `json:"subject"`
}
