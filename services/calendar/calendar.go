// Package calendar looks up free time and books interview events.
package calendar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"parley/config"
	"parley/models"

	"go.uber.org/zap"
)

// Calendar is the free-busy and booking collaborator of the negotiation engine.
type Calendar interface {
	// GetAvailableIntervals returns free slots of length duration for identity
	// within the next lookaheadDays, skipping any slot whose start appears in
	// exclude.
	GetAvailableIntervals(ctx context.Context, identity string, duration time.Duration, lookaheadDays int, exclude []models.Interval) ([]models.Interval, error)
	CreateEvent(ctx context.Context, req models.EventRequest) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, owner, eventID string) error
}

// SlotRules describe which candidate slots a calendar may offer.
type SlotRules struct {
	WorkingDays map[time.Weekday]bool
	DayStart    int // minutes from midnight
	DayEnd      int // minutes from midnight
	Step        time.Duration
	MaxPerFetch int
	Location    *time.Location
}

// DefaultSlotRules are Monday to Friday, 09:00 to 18:00 UTC, every 30 minutes.
func DefaultSlotRules() SlotRules {
	return SlotRules{
		WorkingDays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true, time.Thursday: true, time.Friday: true,
		},
		DayStart:    9 * 60,
		DayEnd:      18 * 60,
		Step:        30 * time.Minute,
		MaxPerFetch: 10,
		Location:    time.UTC,
	}
}

// RulesFromConfig builds SlotRules from the working-hours settings.
func RulesFromConfig(cfg config.Config) (SlotRules, error) {
	rules := DefaultSlotRules()
	rules.Location = cfg.Location()

	if days := cfg.Weekdays(); len(days) > 0 {
		rules.WorkingDays = days
	}
	if cfg.WorkingHoursStart != "" {
		m, err := minutesFromMidnight(cfg.WorkingHoursStart)
		if err != nil {
			return rules, fmt.Errorf("WORKING_HOURS_START: %w", err)
		}
		rules.DayStart = m
	}
	if cfg.WorkingHoursEnd != "" {
		m, err := minutesFromMidnight(cfg.WorkingHoursEnd)
		if err != nil {
			return rules, fmt.Errorf("WORKING_HOURS_END: %w", err)
		}
		rules.DayEnd = m
	}
	if rules.DayEnd <= rules.DayStart {
		return rules, fmt.Errorf("working hours end %s is not after start %s", cfg.WorkingHoursEnd, cfg.WorkingHoursStart)
	}
	if cfg.SlotStepMinutes > 0 {
		rules.Step = time.Duration(cfg.SlotStepMinutes) * time.Minute
	}
	if cfg.MaxSlotsPerFetch > 0 {
		rules.MaxPerFetch = cfg.MaxSlotsPerFetch
	}
	return rules, nil
}

func minutesFromMidnight(raw string) (int, error) {
	t, err := time.Parse(models.TimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// GenerateSlots walks forward from two hours past the current hour in Step
// increments and keeps every slot that falls on a working day, lies entirely
// inside working hours, misses every busy period and is not excluded.
func GenerateSlots(now time.Time, busy []models.Interval, duration time.Duration, lookaheadDays int, exclude []models.Interval, rules SlotRules) []models.Interval {
	loc := rules.Location
	if loc == nil {
		loc = time.UTC
	}
	step := rules.Step
	if step <= 0 {
		step = 30 * time.Minute
	}

	local := now.In(loc)
	current := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc).Add(2 * time.Hour)
	horizon := now.AddDate(0, 0, lookaheadDays)

	excluded := make(map[int64]bool, len(exclude))
	for _, e := range exclude {
		excluded[e.Start.Unix()] = true
	}

	var slots []models.Interval
	for ; current.Before(horizon); current = current.Add(step) {
		if rules.MaxPerFetch > 0 && len(slots) >= rules.MaxPerFetch {
			break
		}
		if !rules.WorkingDays[current.Weekday()] {
			continue
		}
		y, m, d := current.Date()
		open := time.Date(y, m, d, 0, rules.DayStart, 0, 0, loc)
		closing := time.Date(y, m, d, 0, rules.DayEnd, 0, 0, loc)

		end := current.Add(duration)
		if current.Before(open) || end.After(closing) {
			continue
		}
		if overlapsBusy(current, end, busy) || excluded[current.Unix()] {
			continue
		}
		slots = append(slots, models.Interval{Start: current, End: end})
	}
	return slots
}

func overlapsBusy(start, end time.Time, busy []models.Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}

// NewCalendar selects the backend named by CALENDAR_BACKEND.
func NewCalendar(cfg config.Config, logger *zap.Logger) (Calendar, error) {
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.CalendarBackend) {
	case "", "memory":
		logger.Info("Using in-memory calendar")
		return NewMemoryCalendar(rules), nil
	case "google":
		credentials, err := os.ReadFile(cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read Google credentials: %w", err)
		}
		logger.Info("Using Google calendar", zap.String("credentials", cfg.GoogleCredentialsFile))
		return NewGoogleCalendar(credentials, rules, logger)
	}
	return nil, fmt.Errorf("unknown calendar backend %q", cfg.CalendarBackend)
}
