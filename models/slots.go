package models

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// legacyTimeLayout is still produced by some model backends.
	legacyTimeLayout = "15:04:05"
)

// Interval is a concrete time range drawn from a calendar.
type Interval struct {
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"`
}

// RespondentSlot is one structured time proposal extracted from a reply.
type RespondentSlot struct {
	Date      string `json:"date" bson:"date"`                             // YYYY-MM-DD
	StartTime string `json:"start_time,omitempty" bson:"startTime"`        // HH:MM, empty means no time of day
	EndTime   string `json:"end_time,omitempty" bson:"endTime,omitempty"` // HH:MM, optional
}

// SlotParseError reports a respondent slot field that does not match the wire format.
type SlotParseError struct {
	Field string
	Value string
	Err   error
}

func (e *SlotParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *SlotParseError) Unwrap() error { return e.Err }

// Start resolves the slot's start instant in loc. A missing start time
// resolves to midnight.
func (s RespondentSlot) Start(loc *time.Location) (time.Time, error) {
	if s.Date == "" {
		return time.Time{}, &SlotParseError{Field: "date", Value: s.Date, Err: fmt.Errorf("date is required")}
	}
	day, err := time.ParseInLocation(DateLayout, s.Date, loc)
	if err != nil {
		return time.Time{}, &SlotParseError{Field: "date", Value: s.Date, Err: err}
	}
	if s.StartTime == "" {
		return day, nil
	}
	hour, minute, err := parseClock(s.StartTime)
	if err != nil {
		return time.Time{}, &SlotParseError{Field: "start_time", Value: s.StartTime, Err: err}
	}
	return atClock(day, hour, minute, loc), nil
}

// End resolves the slot's end instant. When EndTime is absent, unparsable, or
// not after the start, the end is start + duration.
func (s RespondentSlot) End(loc *time.Location, duration time.Duration) (time.Time, error) {
	start, err := s.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	if s.EndTime != "" {
		if hour, minute, err := parseClock(s.EndTime); err == nil {
			if end := atClock(start, hour, minute, loc); end.After(start) {
				return end, nil
			}
		}
	}
	return start.Add(duration), nil
}

// parseClock reads HH:MM, with HH:MM:SS accepted for older payloads.
func parseClock(raw string) (hour, minute int, err error) {
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		var legacyErr error
		if t, legacyErr = time.Parse(legacyTimeLayout, raw); legacyErr != nil {
			return 0, 0, err
		}
	}
	return t.Hour(), t.Minute(), nil
}

// atClock is the wall-clock time hour:minute on day's calendar date in loc.
// Adding a duration to midnight would drift by an hour on DST change days.
func atClock(day time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// SlotLabel renders an offered slot the way offers list it.
func SlotLabel(t time.Time) string {
	return t.Format("Monday, January 02 at 03:04 PM")
}

// LongSlotLabel renders a slot with its year, used in confirmations.
func LongSlotLabel(t time.Time) string {
	return t.Format("Monday, January 02, 2006 at 03:04 PM")
}
