package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendar talks to Google Calendar with a service account that has
// domain-wide delegation, impersonating each identity it queries.
type GoogleCalendar struct {
	credentials []byte
	rules       SlotRules
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	services map[string]*gcal.Service
}

func NewGoogleCalendar(credentials []byte, rules SlotRules, logger *zap.Logger) (*GoogleCalendar, error) {
	// Fail at startup rather than on the first request if the key is unusable.
	if _, err := google.JWTConfigFromJSON(credentials, gcal.CalendarScope); err != nil {
		return nil, fmt.Errorf("invalid service account credentials: %w", err)
	}
	return &GoogleCalendar{
		credentials: credentials,
		rules:       rules,
		logger:      logger.Named("calendar"),
		now:         time.Now,
		services:    make(map[string]*gcal.Service),
	}, nil
}

// service returns a cached client acting as identity.
func (g *GoogleCalendar) service(ctx context.Context, identity string) (*gcal.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if svc, ok := g.services[identity]; ok {
		return svc, nil
	}

	jwtCfg, err := google.JWTConfigFromJSON(g.credentials, gcal.CalendarScope, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	jwtCfg.Subject = identity

	// The HTTP client outlives this call, so it must not inherit ctx.
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("create calendar service for %s: %w", identity, err)
	}
	g.services[identity] = svc
	return svc, nil
}

func (g *GoogleCalendar) GetAvailableIntervals(ctx context.Context, identity string, duration time.Duration, lookaheadDays int, exclude []models.Interval) ([]models.Interval, error) {
	svc, err := g.service(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := g.now()
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: now.Format(time.RFC3339),
		TimeMax: now.AddDate(0, 0, lookaheadDays).Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: identity}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query for %s: %w", identity, err)
	}

	cal, ok := resp.Calendars[identity]
	if !ok {
		return nil, fmt.Errorf("freebusy response has no calendar for %s", identity)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy for %s: %s", identity, cal.Errors[0].Reason)
	}

	busy := make([]models.Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			g.logger.Warn("Skipping unparsable busy period", zap.String("start", b.Start), zap.Error(err))
			continue
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			g.logger.Warn("Skipping unparsable busy period", zap.String("end", b.End), zap.Error(err))
			continue
		}
		busy = append(busy, models.Interval{Start: start, End: end})
	}

	slots := GenerateSlots(now, busy, duration, lookaheadDays, exclude, g.rules)
	g.logger.Debug("Computed free slots",
		zap.String("identity", identity),
		zap.Int("busy", len(busy)),
		zap.Int("slots", len(slots)))
	return slots, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, req models.EventRequest) (*models.CalendarEvent, error) {
	if len(req.Attendees) == 0 {
		return nil, fmt.Errorf("event %q has no attendees", req.Title)
	}
	owner := req.Attendees[0]
	svc, err := g.service(ctx, owner)
	if err != nil {
		return nil, err
	}

	attendees := make([]*gcal.EventAttendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, &gcal.EventAttendee{Email: a})
	}

	conferenceKey := req.RequestID
	if conferenceKey == "" {
		conferenceKey = uuid.NewString()
	}

	event := &gcal.Event{
		Summary:     req.Title,
		Description: req.Description,
		Start:       &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: req.End.Format(time.RFC3339)},
		Attendees:   attendees,
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             conferenceKey,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("insert event for %s: %w", owner, err)
	}

	g.logger.Info("Event created", zap.String("eventId", created.Id), zap.String("title", req.Title))
	return &models.CalendarEvent{
		EventID:        created.Id,
		Owner:          owner,
		Link:           created.HtmlLink,
		ConferenceLink: conferenceLink(created),
	}, nil
}

func conferenceLink(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" {
			return ep.Uri
		}
	}
	return ""
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, owner, eventID string) error {
	svc, err := g.service(ctx, owner)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete("primary", eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}
