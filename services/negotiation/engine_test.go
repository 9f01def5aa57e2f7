package negotiation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"parley/models"
	"parley/services/intelligence"
	"parley/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	requester  = "hiring@example.com"
	respondent = "candidate@example.com"
)

// Friday 2026-03-06 09:00 UTC.
var fixedNow = time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)

func slot(day, hour int) models.Interval {
	start := time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
	return models.Interval{Start: start, End: start.Add(time.Hour)}
}

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) GetAvailableIntervals(ctx context.Context, identity string, duration time.Duration, lookaheadDays int, exclude []models.Interval) ([]models.Interval, error) {
	args := m.Called(ctx, identity, duration, lookaheadDays, exclude)
	slots, _ := args.Get(0).([]models.Interval)
	return slots, args.Error(1)
}

func (m *mockCalendar) CreateEvent(ctx context.Context, req models.EventRequest) (*models.CalendarEvent, error) {
	args := m.Called(ctx, req)
	ev, _ := args.Get(0).(*models.CalendarEvent)
	return ev, args.Error(1)
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, owner, eventID string) error {
	return m.Called(ctx, owner, eventID).Error(0)
}

type mockReminders struct {
	mock.Mock
}

func (m *mockReminders) ScheduleReminder(ctx context.Context, payload models.ReminderPayload, fireAt time.Time) error {
	return m.Called(ctx, payload, fireAt).Error(0)
}

type recordingArchive struct {
	saved []*models.Request
}

func (a *recordingArchive) Save(_ context.Context, req *models.Request) error {
	a.saved = append(a.saved, req)
	return nil
}

type harness struct {
	engine    *Engine
	calendar  *mockCalendar
	transport *notification.MemoryTransport
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	cal := &mockCalendar{}
	tr := notification.NewMemoryTransport()
	tr.Now = func() time.Time { return fixedNow }

	e := NewEngine(NewRegistry(), cal, tr, intelligence.LocalExtractor{}, policy, zap.NewNop())
	e.Now = func() time.Time { return fixedNow }
	return &harness{engine: e, calendar: cal, transport: tr}
}

// start opens a negotiation offering Monday 10:00 and Tuesday 14:00.
func (h *harness) start(t *testing.T) *models.Request {
	t.Helper()
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 14, mock.Anything).
		Return([]models.Interval{slot(9, 10), slot(10, 14)}, nil).Once()

	req, err := h.engine.Initiate(context.Background(), InitiateParams{
		Requester:  requester,
		Respondent: respondent,
		Subject:    "Backend Engineer",
		Duration:   time.Hour,
	})
	require.NoError(t, err)
	return req
}

func (h *harness) expectEvent() {
	h.calendar.On("CreateEvent", mock.Anything, mock.AnythingOfType("models.EventRequest")).
		Return(&models.CalendarEvent{EventID: "evt-1", Owner: requester, ConferenceLink: "https://meet.example/abc"}, nil)
}

func TestInitiate_SendsOfferAndAwaits(t *testing.T) {
	policy := DefaultPolicy()
	policy.ReplyTo = "scheduler@example.com"
	h := newHarness(t, policy)

	req := h.start(t)

	assert.Equal(t, models.StatusAwaitingResponse, req.Status)
	assert.Regexp(t, `^req_[0-9a-z]{26}$`, req.ID)
	assert.Equal(t, []models.Interval{slot(9, 10), slot(10, 14)}, req.OfferedSlots)

	sent := h.transport.SentTo(respondent)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Monday, March 09 at 10:00 AM")
	assert.Contains(t, sent[0].Body, "Tuesday, March 10 at 02:00 PM")
	assert.True(t, strings.HasSuffix(sent[0].Body, models.TokenLine(req.ID)))
	assert.Equal(t, "scheduler@example.com", sent[0].ReplyHint)
	assert.Equal(t, 1, h.engine.Registry.Len())
}

func TestInitiate_OfferListsAtMostMaxSlots(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	var many []models.Interval
	for hour := 9; hour < 17; hour++ {
		many = append(many, slot(9, hour))
	}
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 14, mock.Anything).Return(many, nil)

	req, err := h.engine.Initiate(context.Background(), InitiateParams{Requester: requester, Respondent: respondent, Subject: "SRE", Duration: time.Hour})
	require.NoError(t, err)

	assert.Len(t, req.OfferedSlots, 8)
	body := h.transport.SentTo(respondent)[0].Body
	assert.Equal(t, 6, strings.Count(body, "•"))
}

func TestInitiate_OfferListsMostImminentFirst(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	var many []models.Interval
	for hour := 16; hour >= 9; hour-- {
		many = append(many, slot(9, hour))
	}
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 14, mock.Anything).Return(many, nil)

	_, err := h.engine.Initiate(context.Background(), InitiateParams{Requester: requester, Respondent: respondent, Subject: "SRE", Duration: time.Hour})
	require.NoError(t, err)

	body := h.transport.SentTo(respondent)[0].Body
	first := strings.Index(body, "Monday, March 09 at 09:00 AM")
	require.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, strings.Index(body, "Monday, March 09 at 02:00 PM"))
	assert.NotContains(t, body, "03:00 PM")
	assert.NotContains(t, body, "04:00 PM")
}

func TestInitiate_Unavailable(t *testing.T) {
	t.Run("no free slots", func(t *testing.T) {
		h := newHarness(t, DefaultPolicy())
		h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 14, mock.Anything).Return(nil, nil)

		_, err := h.engine.Initiate(context.Background(), InitiateParams{Requester: requester, Respondent: respondent, Subject: "SRE", Duration: time.Hour})

		var uerr *UnavailableError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, requester, uerr.Identity)
		assert.Zero(t, h.engine.Registry.Len())
		assert.Empty(t, h.transport.Outbox())
	})

	t.Run("calendar failure", func(t *testing.T) {
		h := newHarness(t, DefaultPolicy())
		cause := errors.New("freebusy: 503")
		h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 14, mock.Anything).Return(nil, cause)

		_, err := h.engine.Initiate(context.Background(), InitiateParams{Requester: requester, Respondent: respondent, Subject: "SRE", Duration: time.Hour})

		var uerr *UnavailableError
		require.ErrorAs(t, err, &uerr)
		assert.ErrorIs(t, err, cause)
		assert.Zero(t, h.engine.Registry.Len())
	})
}

func TestInitiate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params InitiateParams
		field  string
	}{
		{"bad requester", InitiateParams{Requester: "nope", Respondent: respondent, Subject: "SRE", Duration: time.Hour}, "requester"},
		{"bad respondent", InitiateParams{Requester: requester, Respondent: "", Subject: "SRE", Duration: time.Hour}, "respondent"},
		{"same party", InitiateParams{Requester: requester, Respondent: requester, Subject: "SRE", Duration: time.Hour}, "respondent"},
		{"no subject", InitiateParams{Requester: requester, Respondent: respondent, Subject: "  ", Duration: time.Hour}, "subject"},
		{"zero duration", InitiateParams{Requester: requester, Respondent: respondent, Subject: "SRE"}, "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultPolicy())
			_, err := h.engine.Initiate(context.Background(), tt.params)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			h.calendar.AssertNotCalled(t, "GetAvailableIntervals", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleReply_ExactMatchBooks(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.expectEvent()

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.NoError(t, err)

	assert.Equal(t, ResultConfirmed, out.Result)
	assert.Equal(t, models.StatusConfirmed, out.Status)
	require.NotNil(t, out.Slot)
	assert.Equal(t, slot(9, 10), *out.Slot)
	require.NotEmpty(t, out.Matches)
	assert.Equal(t, "exact", out.Matches[0].Tier.String())

	h.calendar.AssertCalled(t, "CreateEvent", mock.Anything, mock.MatchedBy(func(ev models.EventRequest) bool {
		return ev.Title == "Interview: Backend Engineer" &&
			ev.Start.Equal(slot(9, 10).Start) && ev.End.Equal(slot(9, 10).End) &&
			len(ev.Attendees) == 2 && ev.RequestID == req.ID
	}))

	stored, err := h.engine.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedSlot)
	assert.Equal(t, "evt-1", stored.Event.EventID)
	assert.Len(t, stored.History, 1)

	toRespondent := h.transport.SentTo(respondent)
	toRequester := h.transport.SentTo(requester)
	require.Len(t, toRespondent, 2)
	require.Len(t, toRequester, 1)
	assert.Contains(t, toRespondent[1].Body, "Monday, March 09, 2026 at 10:00 AM")
	assert.Contains(t, toRespondent[1].Body, "https://meet.example/abc")
	assert.Contains(t, toRequester[0].Body, respondent)
}

func TestHandleReply_RepeatAfterConfirmIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.expectEvent()

	_, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.NoError(t, err)
	sentBefore := len(h.transport.Outbox())

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.ErrorIs(t, err, ErrRequestClosed)
	assert.Equal(t, ResultConfirmed, out.Result)
	assert.Equal(t, models.StatusConfirmed, out.Status)

	h.calendar.AssertNumberOfCalls(t, "CreateEvent", 1)
	assert.Len(t, h.transport.Outbox(), sentBefore)

	stored, _ := h.engine.Get(req.ID)
	assert.Len(t, stored.History, 2, "the repeat is still recorded")
}

func TestHandleReply_NoOverlapRetriesThenEscalates(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 21, mock.Anything).
		Return([]models.Interval{slot(11, 10)}, nil).Once()

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Sorry, I'm only free Saturday or Sunday.")
	require.NoError(t, err)
	assert.Equal(t, ResultRetryOffered, out.Result)
	assert.Equal(t, models.StatusAwaitingResponse, out.Status)

	stored, _ := h.engine.Get(req.ID)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, []models.Interval{slot(9, 10), slot(10, 14), slot(11, 10)}, stored.OfferedSlots)
	assert.Len(t, stored.RespondentSlots, 2)

	offers := h.transport.SentTo(respondent)
	require.Len(t, offers, 2)
	assert.Contains(t, offers[1].Body, "additional options")
	assert.Contains(t, offers[1].Body, "Wednesday, March 11 at 10:00 AM")
	assert.NotContains(t, offers[1].Body, "Monday, March 09")

	h.calendar.AssertCalled(t, "GetAvailableIntervals", mock.Anything, requester, time.Hour, 21, []models.Interval{slot(9, 10), slot(10, 14)})

	// Nothing more to offer.
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 21, mock.Anything).
		Return([]models.Interval{slot(11, 10)}, nil).Once()

	out, err = h.engine.HandleReply(context.Background(), req.ID, respondent, "Still only Saturday, sorry.")
	require.NoError(t, err)
	assert.Equal(t, ResultEscalated, out.Result)
	assert.Equal(t, models.StatusNeedsHuman, out.Status)

	notices := h.transport.SentTo(requester)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Subject, "Manual Scheduling Required")
	h.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
}

func TestHandleReply_DeclineCancels(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "I'd like to withdraw my application")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, out.Result)
	assert.Equal(t, models.StatusCancelled, out.Status)

	notices := h.transport.SentTo(requester)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Body, "declined")
	assert.Len(t, h.transport.SentTo(respondent), 1, "only the original offer")
	h.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
	h.calendar.AssertNumberOfCalls(t, "GetAvailableIntervals", 1)
}

func TestHandleReply_UnclearChangesNothing(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Thanks for reaching out!")
	require.NoError(t, err)
	assert.Equal(t, ResultAwaitingResponse, out.Result)
	assert.Len(t, h.transport.Outbox(), 1)

	stored, _ := h.engine.Get(req.ID)
	assert.Equal(t, models.StatusAwaitingResponse, stored.Status)
	assert.Zero(t, stored.RetryCount)
}

func TestHandleReply_LatestExtractionReplacesSlots(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 21, mock.Anything).
		Return([]models.Interval{slot(11, 10)}, nil).Once()

	_, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Sorry, I'm only free Saturday or Sunday.")
	require.NoError(t, err)
	stored, _ := h.engine.Get(req.ID)
	require.Len(t, stored.RespondentSlots, 2)

	_, err = h.engine.HandleReply(context.Background(), req.ID, respondent, "Thanks for reaching out!")
	require.NoError(t, err)
	stored, _ = h.engine.Get(req.ID)
	assert.Empty(t, stored.RespondentSlots)
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, models.ExtractionContext) (*models.Extraction, error) {
	return nil, errors.New("model timeout")
}

func TestHandleReply_ExtractorFailureIsUnclear(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.engine.Extractor = failingExtractor{}

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am")
	require.NoError(t, err)
	assert.Equal(t, ResultAwaitingResponse, out.Result)
	h.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
}

func TestHandleReply_UnknownRequest(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	_, err := h.engine.HandleReply(context.Background(), "req_missing", respondent, "hi")
	var uerr *UnknownRequestError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "req_missing", uerr.ID)
}

func TestHandleReply_ConfirmWithoutHold(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Yes, that works. See you then.")
	require.ErrorIs(t, err, ErrNothingToConfirm)
	assert.Equal(t, ResultError, out.Result)
	assert.Equal(t, models.StatusAwaitingResponse, out.Status)
}

func TestHandleReply_HoldThenConfirm(t *testing.T) {
	policy := DefaultPolicy()
	policy.RequireConfirmation = true
	h := newHarness(t, policy)
	req := h.start(t)

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Tuesday at 2pm is good for me")
	require.NoError(t, err)
	assert.Equal(t, ResultHeld, out.Result)
	assert.Equal(t, models.StatusAwaitingResponse, out.Status)
	h.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)

	stored, _ := h.engine.Get(req.ID)
	require.NotNil(t, stored.HeldSlot)
	assert.Equal(t, slot(10, 14), *stored.HeldSlot)
	assert.Contains(t, h.transport.SentTo(respondent)[1].Body, "tentatively held")

	h.expectEvent()
	out, err = h.engine.HandleReply(context.Background(), req.ID, respondent, "Yes, that works. See you then.")
	require.NoError(t, err)
	assert.Equal(t, ResultConfirmed, out.Result)

	stored, _ = h.engine.Get(req.ID)
	assert.Nil(t, stored.HeldSlot)
	require.NotNil(t, stored.ConfirmedSlot)
	assert.Equal(t, slot(10, 14), *stored.ConfirmedSlot)
}

func TestHandleReply_EventFailureStillConfirms(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return(nil, errors.New("calendar quota"))

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.NoError(t, err)
	assert.Equal(t, ResultConfirmed, out.Result)
	assert.Nil(t, out.Event)
	assert.EqualError(t, out.EventErr, "calendar quota")

	stored, _ := h.engine.Get(req.ID)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Nil(t, stored.Event)
	assert.NotContains(t, h.transport.SentTo(respondent)[1].Body, "Meet")
}

func TestHandleReply_RetryLookupFailureIsSoft(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)
	h.calendar.On("GetAvailableIntervals", mock.Anything, requester, time.Hour, 21, mock.Anything).
		Return(nil, errors.New("freebusy: 503"))

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Sorry, I'm only free Saturday or Sunday.")
	require.NoError(t, err)
	assert.Equal(t, ResultAwaitingResponse, out.Result)
	assert.Error(t, out.Degraded)

	stored, _ := h.engine.Get(req.ID)
	assert.Zero(t, stored.RetryCount)
	assert.Len(t, stored.OfferedSlots, 2)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	out, err := h.engine.Cancel(context.Background(), req.ID, "role filled")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, out.Result)

	notices := h.transport.SentTo(respondent)
	require.Len(t, notices, 2)
	assert.Contains(t, notices[1].Body, "Reason: role filled")

	_, err = h.engine.Cancel(context.Background(), req.ID, "again")
	assert.ErrorIs(t, err, ErrRequestClosed)

	_, err = h.engine.Cancel(context.Background(), "req_missing", "")
	var uerr *UnknownRequestError
	assert.ErrorAs(t, err, &uerr)
}

func TestBooking_CancelledMidwayRollsBackEvent(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	req := h.start(t)

	h.calendar.On("CreateEvent", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := h.engine.Cancel(context.Background(), req.ID, "")
			require.NoError(t, err)
		}).
		Return(&models.CalendarEvent{EventID: "evt-9", Owner: requester}, nil)
	h.calendar.On("DeleteEvent", mock.Anything, requester, "evt-9").Return(nil)

	out, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.ErrorIs(t, err, ErrRequestClosed)
	assert.Equal(t, models.StatusCancelled, out.Status)
	h.calendar.AssertCalled(t, "DeleteEvent", mock.Anything, requester, "evt-9")

	for _, msg := range h.transport.Outbox() {
		assert.NotContains(t, msg.Subject, "Confirmed")
	}
}

func TestBooking_SchedulesReminderAndArchives(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	rem := &mockReminders{}
	arc := &recordingArchive{}
	h.engine.Reminders = rem
	h.engine.Archive = arc

	req := h.start(t)
	h.expectEvent()
	rem.On("ScheduleReminder", mock.Anything, mock.MatchedBy(func(p models.ReminderPayload) bool {
		return p.RequestID == req.ID && len(p.Recipients) == 2
	}), slot(9, 9).Start).Return(nil)

	_, err := h.engine.HandleReply(context.Background(), req.ID, respondent, "Monday at 10am works for me!")
	require.NoError(t, err)

	rem.AssertExpectations(t)
	require.Len(t, arc.saved, 1)
	assert.Equal(t, models.StatusConfirmed, arc.saved[0].Status)
}

func TestSummary(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	a := h.start(t)
	h.start(t)
	h.expectEvent()

	_, err := h.engine.HandleReply(context.Background(), a.ID, respondent, "Monday at 10am works for me!")
	require.NoError(t, err)

	s := h.engine.Summary()
	require.Len(t, s.Requests, 2)
	assert.Equal(t, a.ID, s.Requests[0].ID)
	assert.Equal(t, 1, s.ByStatus[models.StatusConfirmed])
	assert.Equal(t, 1, s.ByStatus[models.StatusAwaitingResponse])
	assert.EqualValues(t, 4, s.MessagesSent)
}
