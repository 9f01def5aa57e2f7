package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/models"

	"github.com/google/uuid"
)

// MemoryCalendar keeps busy periods and events in process. Booked events
// become busy for every attendee.
type MemoryCalendar struct {
	Rules SlotRules
	Now   func() time.Time

	mu     sync.Mutex
	busy   map[string][]models.Interval
	events map[string]models.EventRequest
}

func NewMemoryCalendar(rules SlotRules) *MemoryCalendar {
	return &MemoryCalendar{
		Rules:  rules,
		Now:    time.Now,
		busy:   make(map[string][]models.Interval),
		events: make(map[string]models.EventRequest),
	}
}

// AddBusy blocks an interval on identity's calendar.
func (m *MemoryCalendar) AddBusy(identity string, iv models.Interval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy[identity] = append(m.busy[identity], iv)
}

func (m *MemoryCalendar) GetAvailableIntervals(_ context.Context, identity string, duration time.Duration, lookaheadDays int, exclude []models.Interval) ([]models.Interval, error) {
	m.mu.Lock()
	busy := append([]models.Interval(nil), m.busy[identity]...)
	m.mu.Unlock()

	return GenerateSlots(m.Now(), busy, duration, lookaheadDays, exclude, m.Rules), nil
}

func (m *MemoryCalendar) CreateEvent(_ context.Context, req models.EventRequest) (*models.CalendarEvent, error) {
	if len(req.Attendees) == 0 {
		return nil, fmt.Errorf("event %q has no attendees", req.Title)
	}

	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = req
	for _, a := range req.Attendees {
		m.busy[a] = append(m.busy[a], models.Interval{Start: req.Start, End: req.End})
	}

	return &models.CalendarEvent{
		EventID:        id,
		Owner:          req.Attendees[0],
		Link:           "https://calendar.local/event/" + id,
		ConferenceLink: "https://meet.local/" + id[:8],
	}, nil
}

func (m *MemoryCalendar) DeleteEvent(_ context.Context, _ string, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	delete(m.events, eventID)
	for _, a := range req.Attendees {
		kept := m.busy[a][:0]
		for _, b := range m.busy[a] {
			if !(b.Start.Equal(req.Start) && b.End.Equal(req.End)) {
				kept = append(kept, b)
			}
		}
		m.busy[a] = kept
	}
	return nil
}

// Events returns a copy of every booked event keyed by id.
func (m *MemoryCalendar) Events() map[string]models.EventRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.EventRequest, len(m.events))
	for k, v := range m.events {
		out[k] = v
	}
	return out
}
