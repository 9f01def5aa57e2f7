package negotiation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"

	"parley/config"
	"parley/models"
	"parley/services/calendar"
	"parley/services/intelligence"
	"parley/services/matching"
	"parley/services/notification"

	"go.uber.org/zap"
)

// Policy holds the negotiation knobs read from configuration.
type Policy struct {
	InitialLookaheadDays int
	RetryLookaheadDays   int
	MaxOfferedSlots      int
	RequireConfirmation  bool
	Location             *time.Location
	ReminderLead         time.Duration
	ReplyTo              string
}

func DefaultPolicy() Policy {
	return Policy{
		InitialLookaheadDays: 14,
		RetryLookaheadDays:   21,
		MaxOfferedSlots:      6,
		Location:             time.UTC,
		ReminderLead:         time.Hour,
	}
}

func PolicyFromConfig(cfg config.Config) Policy {
	p := DefaultPolicy()
	if cfg.InitialLookaheadDays > 0 {
		p.InitialLookaheadDays = cfg.InitialLookaheadDays
	}
	if cfg.RetryLookaheadDays > 0 {
		p.RetryLookaheadDays = cfg.RetryLookaheadDays
	}
	if cfg.MaxOfferedSlots > 0 {
		p.MaxOfferedSlots = cfg.MaxOfferedSlots
	}
	if cfg.ReminderLeadMinutes > 0 {
		p.ReminderLead = cfg.ReminderLead()
	}
	p.RequireConfirmation = cfg.RequireConfirmation
	p.Location = cfg.Location()
	p.ReplyTo = cfg.MailFromAddress
	return p
}

// ReminderScheduler queues a reminder for a confirmed interview.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, payload models.ReminderPayload, fireAt time.Time) error
}

// Archiver stores terminal requests for audit. It is never read back.
type Archiver interface {
	Save(ctx context.Context, req *models.Request) error
}

// Engine drives every negotiation through its state machine. Reminders and
// Archive are optional.
type Engine struct {
	Registry  *Registry
	Calendar  calendar.Calendar
	Transport notification.Transport
	Extractor intelligence.Extractor
	Reminders ReminderScheduler
	Archive   Archiver
	Policy    Policy
	Logger    *zap.Logger
	Now       func() time.Time

	sent atomic.Int64
}

func NewEngine(reg *Registry, cal calendar.Calendar, tr notification.Transport, ex intelligence.Extractor, policy Policy, logger *zap.Logger) *Engine {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Engine{
		Registry:  reg,
		Calendar:  cal,
		Transport: tr,
		Extractor: ex,
		Policy:    policy,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// InitiateParams describes a new negotiation.
type InitiateParams struct {
	Requester  string        `json:"requester" binding:"required"`
	Respondent string        `json:"respondent" binding:"required"`
	Subject    string        `json:"subject" binding:"required"`
	Duration   time.Duration `json:"-"`
}

func (p InitiateParams) validate() error {
	if _, err := mail.ParseAddress(p.Requester); err != nil {
		return &ValidationError{Field: "requester", Reason: "must be an email address"}
	}
	if _, err := mail.ParseAddress(p.Respondent); err != nil {
		return &ValidationError{Field: "respondent", Reason: "must be an email address"}
	}
	if strings.EqualFold(p.Requester, p.Respondent) {
		return &ValidationError{Field: "respondent", Reason: "must differ from requester"}
	}
	if strings.TrimSpace(p.Subject) == "" {
		return &ValidationError{Field: "subject", Reason: "is required"}
	}
	if p.Duration <= 0 {
		return &ValidationError{Field: "duration", Reason: "must be positive"}
	}
	return nil
}

// Initiate registers a negotiation and sends the opening offer. A requester
// without free slots yields an UnavailableError and nothing is registered.
func (e *Engine) Initiate(ctx context.Context, p InitiateParams) (*models.Request, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	logger := e.log()

	slots, err := e.Calendar.GetAvailableIntervals(ctx, p.Requester, p.Duration, e.Policy.InitialLookaheadDays, nil)
	if err != nil {
		logger.Error("Initiate: availability lookup failed", zap.String("requester", p.Requester), zap.Error(err))
		return nil, &UnavailableError{Identity: p.Requester, Err: err}
	}
	if len(slots) == 0 {
		logger.Warn("Initiate: requester has no free slots", zap.String("requester", p.Requester))
		return nil, &UnavailableError{Identity: p.Requester}
	}

	now := e.now()
	req := models.NewRequest(models.NewToken(), p.Requester, p.Respondent, p.Subject, p.Duration, now)
	req.AppendOffered(slots...)
	if err := e.Registry.Insert(req); err != nil {
		return nil, fmt.Errorf("failed to register request: %w", err)
	}

	e.send(ctx, offerMessage(req, slots, false, e.Policy.Location, e.Policy.MaxOfferedSlots))

	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		return r.TransitionTo(models.StatusAwaitingResponse, e.now())
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Negotiation started",
		zap.String("requestID", updated.ID),
		zap.String("respondent", updated.RespondentContact),
		zap.Int("offered", len(slots)))
	return updated, nil
}

// HandleReply processes one respondent reply for request id.
func (e *Engine) HandleReply(ctx context.Context, id, sender, raw string) (*Outcome, error) {
	req, err := e.Registry.Update(id, func(r *models.Request) error {
		r.AppendHistory(sender, raw, e.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger := e.log().With(zap.String("requestID", id))

	if req.Status.IsTerminal() {
		logger.Info("Reply for closed request ignored", zap.String("status", string(req.Status)))
		return &Outcome{RequestID: id, Result: resultForStatus(req.Status), Status: req.Status, Slot: req.ConfirmedSlot}, ErrRequestClosed
	}

	ex, err := e.Extractor.Extract(ctx, raw, models.ExtractionContext{
		Today:        e.now().In(e.Policy.Location),
		Location:     e.Policy.Location,
		OfferedSlots: req.OfferedSlots,
		Duration:     req.Duration,
		Subject:      req.SubjectLabel,
	})
	if err != nil || ex == nil {
		logger.Warn("Extraction failed, treating reply as unclear", zap.Error(err))
		ex = models.Unclear("extraction failed")
	}

	// The latest extraction replaces the previous one, even when it is empty.
	req, err = e.Registry.Update(id, func(r *models.Request) error {
		r.RespondentSlots = append([]models.RespondentSlot(nil), ex.Slots...)
		r.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Reply classified", zap.String("intent", string(ex.Intent)), zap.Int("slots", len(ex.Slots)))

	switch ex.Intent {
	case models.IntentDecline:
		return e.decline(ctx, req)
	case models.IntentConfirm:
		if req.HeldSlot == nil {
			return &Outcome{RequestID: id, Result: ResultError, Status: req.Status, Message: ErrNothingToConfirm.Error()}, ErrNothingToConfirm
		}
		return e.book(ctx, req, *req.HeldSlot, nil)
	case models.IntentProvideAvailability:
		if len(ex.Slots) == 0 {
			return e.noOverlap(ctx, req)
		}
		return e.match(ctx, req, ex.Slots)
	default:
		if len(ex.Slots) > 0 {
			return e.match(ctx, req, ex.Slots)
		}
		return &Outcome{RequestID: id, Result: ResultAwaitingResponse, Status: req.Status, Message: ex.Note}, nil
	}
}

func (e *Engine) match(ctx context.Context, req *models.Request, slots []models.RespondentSlot) (*Outcome, error) {
	matches, perr := matching.FindOverlap(req.OfferedSlots, slots, req.Duration, e.Policy.Location)
	if perr != nil {
		e.log().Warn("Some respondent slots could not be parsed", zap.String("requestID", req.ID), zap.Error(perr))
	}
	if len(matches) == 0 {
		return e.noOverlap(ctx, req)
	}

	best := models.Interval{Start: matches[0].Slot.Start, End: matches[0].Slot.Start.Add(req.Duration)}
	if e.Policy.RequireConfirmation {
		return e.hold(ctx, req, best, matches)
	}
	return e.book(ctx, req, best, matches)
}

func (e *Engine) hold(ctx context.Context, req *models.Request, slot models.Interval, matches []matching.Match) (*Outcome, error) {
	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		if err := r.TransitionTo(models.StatusAwaitingResponse, e.now()); err != nil {
			return err
		}
		s := slot
		r.HeldSlot = &s
		return nil
	})
	if err != nil {
		return e.closedOutcome(req.ID, err)
	}
	e.send(ctx, holdMessage(updated, slot, e.Policy.Location))
	return &Outcome{RequestID: req.ID, Result: ResultHeld, Status: updated.Status, Slot: &slot, Matches: matches}, nil
}

// book creates the event, then commits. A failed event still confirms; a
// failed commit rolls the event back.
func (e *Engine) book(ctx context.Context, req *models.Request, slot models.Interval, matches []matching.Match) (*Outcome, error) {
	logger := e.log().With(zap.String("requestID", req.ID))

	ev, evErr := e.Calendar.CreateEvent(ctx, models.EventRequest{
		Title:       "Interview: " + req.SubjectLabel,
		Start:       slot.Start,
		End:         slot.End,
		Attendees:   []string{req.RequesterContact, req.RespondentContact},
		Description: fmt.Sprintf("Interview for %s with %s.", req.SubjectLabel, req.RespondentContact),
		RequestID:   req.ID,
	})
	if evErr != nil {
		logger.Error("Calendar event creation failed; confirming without event", zap.Error(evErr))
		ev = nil
	}

	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		if err := r.Confirm(slot, e.now()); err != nil {
			return err
		}
		r.Event = ev
		return nil
	})
	if err != nil {
		if ev != nil {
			if derr := e.Calendar.DeleteEvent(ctx, ev.Owner, ev.EventID); derr != nil {
				logger.Error("Failed to roll back calendar event", zap.String("eventID", ev.EventID), zap.Error(derr))
			}
		}
		var terr *models.TransitionError
		if errors.As(err, &terr) {
			logger.Warn("Request closed while booking", zap.String("status", string(terr.From)))
			return &Outcome{RequestID: req.ID, Result: resultForStatus(terr.From), Status: terr.From}, ErrRequestClosed
		}
		return nil, err
	}

	for _, msg := range confirmationMessages(updated, slot, ev, e.Policy.Location) {
		e.send(ctx, msg)
	}
	e.scheduleReminder(ctx, updated)
	e.archive(ctx, updated)

	logger.Info("Interview confirmed", zap.Time("start", slot.Start), zap.Bool("event", ev != nil))
	return &Outcome{
		RequestID: req.ID,
		Result:    ResultConfirmed,
		Status:    updated.Status,
		Slot:      updated.ConfirmedSlot,
		Event:     ev,
		Matches:   matches,
		EventErr:  evErr,
	}, nil
}

// noOverlap widens the search once per reply. A calendar failure leaves the
// request as it was.
func (e *Engine) noOverlap(ctx context.Context, req *models.Request) (*Outcome, error) {
	logger := e.log().With(zap.String("requestID", req.ID))

	fresh, err := e.Calendar.GetAvailableIntervals(ctx, req.RequesterContact, req.Duration, e.Policy.RetryLookaheadDays, req.OfferedSlots)
	if err != nil {
		logger.Error("Widened availability lookup failed", zap.Error(err))
		return &Outcome{RequestID: req.ID, Result: ResultAwaitingResponse, Status: req.Status, Degraded: err}, nil
	}
	fresh = notYetOffered(fresh, req.OfferedSlots)
	if len(fresh) == 0 {
		return e.escalate(ctx, req)
	}

	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		if err := r.TransitionTo(models.StatusAwaitingResponse, e.now()); err != nil {
			return err
		}
		r.AppendOffered(fresh...)
		r.RetryCount++
		return nil
	})
	if err != nil {
		return e.closedOutcome(req.ID, err)
	}
	e.send(ctx, offerMessage(updated, fresh, true, e.Policy.Location, e.Policy.MaxOfferedSlots))

	logger.Info("Offered additional slots", zap.Int("retry", updated.RetryCount), zap.Int("offered", len(fresh)))
	return &Outcome{RequestID: req.ID, Result: ResultRetryOffered, Status: updated.Status}, nil
}

func (e *Engine) escalate(ctx context.Context, req *models.Request) (*Outcome, error) {
	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		return r.TransitionTo(models.StatusNeedsHuman, e.now())
	})
	if err != nil {
		return e.closedOutcome(req.ID, err)
	}
	e.send(ctx, escalationNotice(updated))
	e.archive(ctx, updated)

	e.log().Warn("Negotiation escalated to a human", zap.String("requestID", req.ID), zap.Int("retries", updated.RetryCount))
	return &Outcome{RequestID: req.ID, Result: ResultEscalated, Status: updated.Status}, nil
}

func (e *Engine) decline(ctx context.Context, req *models.Request) (*Outcome, error) {
	updated, err := e.Registry.Update(req.ID, func(r *models.Request) error {
		return r.TransitionTo(models.StatusCancelled, e.now())
	})
	if err != nil {
		return e.closedOutcome(req.ID, err)
	}
	e.send(ctx, declineNotice(updated))
	e.archive(ctx, updated)

	e.log().Info("Respondent declined", zap.String("requestID", req.ID))
	return &Outcome{RequestID: req.ID, Result: ResultCancelled, Status: updated.Status}, nil
}

// Cancel is the operator's way out of a live negotiation.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*Outcome, error) {
	updated, err := e.Registry.Update(id, func(r *models.Request) error {
		if r.Status.IsTerminal() {
			return ErrRequestClosed
		}
		r.HeldSlot = nil
		return r.TransitionTo(models.StatusCancelled, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.send(ctx, cancellationNotice(updated, reason))
	e.archive(ctx, updated)

	e.log().Info("Negotiation cancelled by operator", zap.String("requestID", id), zap.String("reason", reason))
	return &Outcome{RequestID: id, Result: ResultCancelled, Status: updated.Status, Message: reason}, nil
}

// closedOutcome turns a rejected transition into the closed-request result.
func (e *Engine) closedOutcome(id string, err error) (*Outcome, error) {
	var terr *models.TransitionError
	if errors.As(err, &terr) {
		return &Outcome{RequestID: id, Result: resultForStatus(terr.From), Status: terr.From}, ErrRequestClosed
	}
	return nil, err
}

func (e *Engine) Get(id string) (*models.Request, error) {
	return e.Registry.Get(id)
}

func (e *Engine) List() []*models.Request {
	return e.Registry.List()
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	Requests     []models.RequestSummary `json:"requests"`
	ByStatus     map[models.Status]int   `json:"byStatus"`
	MessagesSent int64                   `json:"messagesSent"`
}

func (e *Engine) Summary() RunSummary {
	all := e.Registry.List()
	s := RunSummary{
		Requests:     make([]models.RequestSummary, 0, len(all)),
		ByStatus:     make(map[models.Status]int),
		MessagesSent: e.sent.Load(),
	}
	for _, r := range all {
		s.Requests = append(s.Requests, r.Summary())
		s.ByStatus[r.Status]++
	}
	return s
}

// send never fails the caller; transport errors are logged.
func (e *Engine) send(ctx context.Context, msg models.OutboundMessage) {
	if msg.ReplyHint == "" {
		msg.ReplyHint = e.Policy.ReplyTo
	}
	if err := e.Transport.Send(ctx, msg); err != nil {
		e.log().Error("Failed to send message",
			zap.String("requestID", msg.RequestID),
			zap.String("to", msg.To),
			zap.Error(err))
		return
	}
	e.sent.Add(1)
}

func (e *Engine) scheduleReminder(ctx context.Context, req *models.Request) {
	if e.Reminders == nil || req.ConfirmedSlot == nil {
		return
	}
	fireAt := req.ConfirmedSlot.Start.Add(-e.Policy.ReminderLead)
	if !fireAt.After(e.now()) {
		return
	}
	if err := e.Reminders.ScheduleReminder(ctx, reminderPayload(req, e.Policy.Location), fireAt); err != nil {
		e.log().Warn("Failed to schedule reminder", zap.String("requestID", req.ID), zap.Error(err))
	}
}

func (e *Engine) archive(ctx context.Context, req *models.Request) {
	if e.Archive == nil {
		return
	}
	if err := e.Archive.Save(ctx, req); err != nil {
		e.log().Warn("Failed to archive request", zap.String("requestID", req.ID), zap.Error(err))
	}
}

func notYetOffered(fresh, offered []models.Interval) []models.Interval {
	seen := make(map[int64]bool, len(offered))
	for _, o := range offered {
		seen[o.Start.UnixNano()] = true
	}
	out := fresh[:0:0]
	for _, f := range fresh {
		if !seen[f.Start.UnixNano()] {
			out = append(out, f)
		}
	}
	return out
}
