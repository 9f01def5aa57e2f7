package matching

import (
	"errors"
	"fmt"
	"time"

	"parley/models"
)

// Tier names the rule that paired an offered slot with a respondent slot.
// Lower tiers are stronger evidence.
type Tier int

const (
	TierExact       Tier = iota + 1 // same date, same start hour
	TierWeekdayHour                 // same weekday, same start hour
	TierDateOnly                    // same date, respondent gave no time of day
	TierOverlap                     // shared range at least as long as the interview
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierWeekdayHour:
		return "weekday_hour"
	case TierDateOnly:
		return "date_only"
	case TierOverlap:
		return "overlap"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Match is an offered slot that works for the respondent.
type Match struct {
	Slot models.Interval `json:"slot"`
	Tier Tier            `json:"tier"`
}

type respondentWindow struct {
	start, end time.Time
}

// FindOverlap returns the offered slots that satisfy at least one respondent
// slot, in offered order, deduplicated by start instant. The first element is
// the preferred booking.
//
// Respondent slots that cannot be parsed are skipped; their errors are joined
// into the returned error, which does not invalidate the matches.
func FindOverlap(offered []models.Interval, respondent []models.RespondentSlot, duration time.Duration, loc *time.Location) ([]Match, error) {
	if loc == nil {
		loc = time.UTC
	}

	windows := make([]respondentWindow, 0, len(respondent))
	var parseErrs []error
	for _, rs := range respondent {
		start, err := rs.Start(loc)
		if err != nil {
			parseErrs = append(parseErrs, err)
			continue
		}
		end, err := rs.End(loc, duration)
		if err != nil {
			parseErrs = append(parseErrs, err)
			continue
		}
		windows = append(windows, respondentWindow{start: start, end: end})
	}

	var matches []Match
	seen := make(map[int64]bool)
	for _, slot := range offered {
		start := slot.Start.In(loc)
		end := slot.End.In(loc)
		for _, w := range windows {
			tier, ok := classify(start, end, w, duration)
			if !ok {
				continue
			}
			key := slot.Start.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			matches = append(matches, Match{Slot: slot, Tier: tier})
		}
	}

	return matches, errors.Join(parseErrs...)
}

// classify applies the tiers in order; the first one that fires wins.
func classify(start, end time.Time, w respondentWindow, duration time.Duration) (Tier, bool) {
	sameDate := sameDay(start, w.start)
	sameHour := start.Hour() == w.start.Hour()

	switch {
	case sameDate && sameHour:
		return TierExact, true
	case start.Weekday() == w.start.Weekday() && sameHour:
		return TierWeekdayHour, true
	case sameDate && w.start.Hour() == 0:
		return TierDateOnly, true
	}

	overlapStart := latest(start, w.start)
	overlapEnd := earliest(end, w.end)
	if overlapEnd.Sub(overlapStart) >= duration {
		return TierOverlap, true
	}
	return 0, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
