package intelligence

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"parley/models"
)

// LocalExtractor reads replies with keyword and pattern rules. It needs no
// network and always answers the same way for the same input.
type LocalExtractor struct{}

var (
	weekdayRe  = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b`)
	isoDateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	relativeRe = regexp.MustCompile(`\b(today|tomorrow)\b`)
	clockRe    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)|\b([01]?\d|2[0-3]):([0-5]\d)\b|\b(noon|midday)\b`)
	yesRe      = regexp.MustCompile(`\b(yes|yep|ok|okay)\b`)

	// A clause holding one of these rules out the days and times it names.
	negationRe = regexp.MustCompile(`\b(can['’]?t|cannot|can not|won['’]?t|not available|unavailable|not free|busy|(?:doesn['’]?t|does not|don['’]?t|do not) work|out of (?:office|town))\b`)
	clauseRe   = regexp.MustCompile(`[,;!?\n]|\.\s|\bbut\b|\bhowever\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

var (
	withdrawPhrases   = []string{"withdraw", "not interested", "no longer interested", "decline", "accepted another offer", "accepted an offer"}
	otherTimesPhrases = []string{"other times", "other time", "different time", "another time", "none of these", "none of those", "none of them", "don't work", "doesn't work", "do not work", "does not work", "other options", "later date"}
	cannotPhrases     = []string{"can't make it", "cannot make it", "can not make it", "won't be able", "unable to attend"}
	confirmPhrases    = []string{"confirm", "works", "fine by me", "sounds good", "perfect", "great", "see you then", "looking forward"}
)

// Extract never returns an error.
func (LocalExtractor) Extract(_ context.Context, raw string, ectx models.ExtractionContext) (*models.Extraction, error) {
	text := strings.ToLower(raw)

	if containsAny(text, withdrawPhrases) {
		return &models.Extraction{Intent: models.IntentDecline, Note: "withdrawal keywords"}, nil
	}

	slots, ruledOut := extractSlots(text, ectx)
	if len(slots) > 0 {
		return &models.Extraction{Intent: models.IntentProvideAvailability, Slots: slots}, nil
	}

	switch {
	case containsAny(text, otherTimesPhrases) || ruledOut:
		return &models.Extraction{Intent: models.IntentRequestOtherTimes}, nil
	case containsAny(text, cannotPhrases):
		return &models.Extraction{Intent: models.IntentDecline, Note: "cannot attend"}, nil
	case containsAny(text, confirmPhrases) || yesRe.MatchString(text):
		return &models.Extraction{Intent: models.IntentConfirm}, nil
	}
	return models.Unclear("no scheduling keywords"), nil
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// dayMention is a reference to a calendar day found in the text.
type dayMention struct {
	start, end int
	date       time.Time
}

type clockMention struct {
	start, end int
	value      string // HH:MM
}

// extractSlots pairs each clock time with the nearest day mention. A day with
// no time becomes a date-only slot. Times with no day at all are resolved
// against the offered slots that start at that time. Mentions inside a
// negated clause are dropped; ruledOut reports that some were.
func extractSlots(text string, ectx models.ExtractionContext) (slots []models.RespondentSlot, ruledOut bool) {
	loc := ectx.Location
	if loc == nil {
		loc = time.UTC
	}
	today := ectx.Today.In(loc)
	negated := negatedClauses(text)

	var days []dayMention
	for _, d := range findDays(text, today, ectx.OfferedSlots, loc) {
		if inSpans(d.start, negated) {
			ruledOut = true
			continue
		}
		days = append(days, d)
	}
	var clocks []clockMention
	for _, c := range findClocks(text) {
		if inSpans(c.start, negated) {
			ruledOut = true
			continue
		}
		clocks = append(clocks, c)
	}

	if len(days) == 0 {
		return slotsFromOffered(clocks, ectx.OfferedSlots, loc), ruledOut
	}

	times := make([][]string, len(days))
	for _, c := range clocks {
		i := nearestDay(days, c)
		times[i] = append(times[i], c.value)
	}

	seen := make(map[models.RespondentSlot]bool)
	add := func(s models.RespondentSlot) {
		if !seen[s] {
			seen[s] = true
			slots = append(slots, s)
		}
	}
	for i, d := range days {
		date := d.date.Format(models.DateLayout)
		if len(times[i]) == 0 {
			add(models.RespondentSlot{Date: date})
			continue
		}
		for _, t := range times[i] {
			add(models.RespondentSlot{Date: date, StartTime: t})
		}
	}
	return slots, ruledOut
}

// negatedClauses returns the [start, end) byte ranges of clauses that
// contain a negation, so "I can't do Monday, but Tuesday at 2pm works"
// rules out Monday only.
func negatedClauses(text string) [][2]int {
	var spans [][2]int
	start := 0
	bounds := append(clauseRe.FindAllStringIndex(text, -1), []int{len(text), len(text)})
	for _, b := range bounds {
		if negationRe.MatchString(text[start:b[0]]) {
			spans = append(spans, [2]int{start, b[0]})
		}
		start = b[1]
	}
	return spans
}

func inSpans(pos int, spans [][2]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func findDays(text string, today time.Time, offered []models.Interval, loc *time.Location) []dayMention {
	var days []dayMention

	for _, m := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		wd := weekdays[text[m[2]:m[3]]]
		days = append(days, dayMention{start: m[0], end: m[1], date: resolveWeekday(wd, today, offered, loc)})
	}
	for _, m := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		d, err := time.ParseInLocation(models.DateLayout, text[m[2]:m[3]], loc)
		if err != nil {
			continue
		}
		days = append(days, dayMention{start: m[0], end: m[1], date: d})
	}
	for _, m := range relativeRe.FindAllStringSubmatchIndex(text, -1) {
		d := midnight(today)
		if text[m[2]:m[3]] == "tomorrow" {
			d = d.AddDate(0, 0, 1)
		}
		days = append(days, dayMention{start: m[0], end: m[1], date: d})
	}

	sort.Slice(days, func(i, j int) bool { return days[i].start < days[j].start })
	return days
}

// resolveWeekday prefers the first offered slot on that weekday, then the
// next such day after today.
func resolveWeekday(wd time.Weekday, today time.Time, offered []models.Interval, loc *time.Location) time.Time {
	for _, s := range offered {
		start := s.Start.In(loc)
		if start.Weekday() == wd {
			return midnight(start)
		}
	}
	ahead := (int(wd) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return midnight(today).AddDate(0, 0, ahead)
}

func findClocks(text string) []clockMention {
	var clocks []clockMention
	for _, m := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		var hour, minute int
		switch {
		case m[2] >= 0:
			hour, _ = strconv.Atoi(text[m[2]:m[3]])
			if m[4] >= 0 {
				minute, _ = strconv.Atoi(text[m[4]:m[5]])
			}
			if hour < 1 || hour > 12 || minute > 59 {
				continue
			}
			pm := strings.HasPrefix(text[m[6]:m[7]], "p")
			if pm && hour != 12 {
				hour += 12
			}
			if !pm && hour == 12 {
				hour = 0
			}
		case m[8] >= 0:
			hour, _ = strconv.Atoi(text[m[8]:m[9]])
			minute, _ = strconv.Atoi(text[m[10]:m[11]])
		default:
			hour = 12
		}
		clocks = append(clocks, clockMention{start: m[0], end: m[1], value: fmt.Sprintf("%02d:%02d", hour, minute)})
	}
	return clocks
}

// nearestDay returns the index of the day mention closest to c. Ties go to
// the mention before the time ("Monday at 10 or Tuesday").
func nearestDay(days []dayMention, c clockMention) int {
	best, bestDist := 0, -1
	for i, d := range days {
		var dist int
		if d.end <= c.start {
			dist = c.start - d.end
		} else {
			dist = d.start - c.end
		}
		if dist < 0 {
			dist = 0
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func slotsFromOffered(clocks []clockMention, offered []models.Interval, loc *time.Location) []models.RespondentSlot {
	var slots []models.RespondentSlot
	for _, c := range clocks {
		for _, s := range offered {
			start := s.Start.In(loc)
			if start.Format(models.TimeLayout) == c.value {
				slots = append(slots, models.RespondentSlot{
					Date:      start.Format(models.DateLayout),
					StartTime: c.value,
				})
			}
		}
	}
	return slots
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
