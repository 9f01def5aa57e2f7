package negotiation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"parley/models"
)

const (
	signature = "Best regards,\nInterview Scheduling Assistant"
	rule      = "──────────────────────────────"
)

// withToken closes every outbound body with the correlation line, so a reply
// quoting any of our messages can be routed back.
func withToken(body, token string) string {
	return strings.TrimRight(body, "\n") + "\n\n" + rule + "\n" + models.TokenLine(token)
}

func minutes(d time.Duration) int {
	return int(d.Minutes())
}

// slotLines lists the most imminent slots first, capped at max.
func slotLines(slots []models.Interval, duration time.Duration, loc *time.Location, max int) string {
	slots = append([]models.Interval(nil), slots...)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	if max > 0 && len(slots) > max {
		slots = slots[:max]
	}
	lines := make([]string, 0, len(slots))
	for _, s := range slots {
		lines = append(lines, fmt.Sprintf("  • %s (%d mins)", models.SlotLabel(s.Start.In(loc)), minutes(duration)))
	}
	return strings.Join(lines, "\n")
}

func offerMessage(req *models.Request, slots []models.Interval, retry bool, loc *time.Location, max int) models.OutboundMessage {
	intro := fmt.Sprintf("We'd love to schedule your interview for the %s position.", req.SubjectLabel)
	if retry {
		intro = "Thank you for your response! Unfortunately those times don't work on our side. Here are some additional options:"
	}

	body := fmt.Sprintf(`Hi,

%s

Please reply with the time that works best for you, or suggest an alternative:

%s

Simply reply to this email with your preferred time and our scheduling assistant will take care of the rest.

%s`, intro, slotLines(slots, req.Duration, loc, max), signature)

	return models.OutboundMessage{
		To:        req.RespondentContact,
		Subject:   "Interview Scheduling – " + req.SubjectLabel,
		Body:      withToken(body, req.ID),
		RequestID: req.ID,
	}
}

func holdMessage(req *models.Request, slot models.Interval, loc *time.Location) models.OutboundMessage {
	body := fmt.Sprintf(`Hi,

Thanks! We have tentatively held the following time for your %s interview:

  • %s (%d mins)

Please reply "confirm" to lock it in, or suggest another time.

%s`, req.SubjectLabel, models.LongSlotLabel(slot.Start.In(loc)), minutes(req.Duration), signature)

	return models.OutboundMessage{
		To:        req.RespondentContact,
		Subject:   "Please confirm your interview time – " + req.SubjectLabel,
		Body:      withToken(body, req.ID),
		RequestID: req.ID,
	}
}

func confirmationMessages(req *models.Request, slot models.Interval, ev *models.CalendarEvent, loc *time.Location) []models.OutboundMessage {
	when := models.LongSlotLabel(slot.Start.In(loc))
	meet := ""
	if ev != nil && ev.ConferenceLink != "" {
		meet = "\n  Meet     : " + ev.ConferenceLink
	}

	respondent := fmt.Sprintf(`Hi,

Great news! Your interview has been scheduled.

  Role     : %s
  Date     : %s
  Duration : %d minutes%s

A calendar invite has been sent to your email. Please accept it to confirm attendance.

%s`, req.SubjectLabel, when, minutes(req.Duration), meet, signature)

	requester := fmt.Sprintf(`Hi,

The interview has been scheduled with the candidate.

  Role      : %s
  Candidate : %s
  Date      : %s
  Duration  : %d minutes%s

The event has been added to your calendar.

%s`, req.SubjectLabel, req.RespondentContact, when, minutes(req.Duration), meet, signature)

	return []models.OutboundMessage{
		{
			To:        req.RespondentContact,
			Subject:   "Interview Confirmed – " + req.SubjectLabel,
			Body:      withToken(respondent, req.ID),
			RequestID: req.ID,
		},
		{
			To:        req.RequesterContact,
			Subject:   fmt.Sprintf("Interview Booked – %s | %s", req.SubjectLabel, when),
			Body:      withToken(requester, req.ID),
			RequestID: req.ID,
		},
	}
}

func declineNotice(req *models.Request) models.OutboundMessage {
	body := fmt.Sprintf(`Hi,

The candidate has declined the interview request.

  Candidate : %s
  Position  : %s

Please reach out directly if you'd like to follow up.

%s`, req.RespondentContact, req.SubjectLabel, signature)

	return models.OutboundMessage{
		To:        req.RequesterContact,
		Subject:   "Interview Declined – " + req.SubjectLabel,
		Body:      withToken(body, req.ID),
		RequestID: req.ID,
	}
}

func escalationNotice(req *models.Request) models.OutboundMessage {
	body := fmt.Sprintf(`Hi,

The scheduling assistant was unable to find a mutually available time after %d additional round(s) of options.

  Candidate : %s
  Position  : %s

Please reach out to the candidate directly to schedule the interview.

%s`, req.RetryCount, req.RespondentContact, req.SubjectLabel, signature)

	return models.OutboundMessage{
		To:        req.RequesterContact,
		Subject:   "Manual Scheduling Required – " + req.SubjectLabel,
		Body:      withToken(body, req.ID),
		RequestID: req.ID,
	}
}

func cancellationNotice(req *models.Request, reason string) models.OutboundMessage {
	detail := ""
	if reason != "" {
		detail = "\n\nReason: " + reason
	}
	body := fmt.Sprintf(`Hi,

The interview scheduling for the %s position has been cancelled.%s

We apologise for any inconvenience.

%s`, req.SubjectLabel, detail, signature)

	return models.OutboundMessage{
		To:        req.RespondentContact,
		Subject:   "Interview Scheduling Cancelled – " + req.SubjectLabel,
		Body:      withToken(body, req.ID),
		RequestID: req.ID,
	}
}

func reminderPayload(req *models.Request, loc *time.Location) models.ReminderPayload {
	slot := req.ConfirmedSlot
	body := fmt.Sprintf("Reminder: your %s interview is on %s (%d minutes).",
		req.SubjectLabel, models.LongSlotLabel(slot.Start.In(loc)), minutes(req.Duration))
	if req.Event != nil && req.Event.ConferenceLink != "" {
		body += "\nMeet: " + req.Event.ConferenceLink
	}
	return models.ReminderPayload{
		RequestID:  req.ID,
		Recipients: []string{req.RespondentContact, req.RequesterContact},
		Title:      "Interview Reminder – " + req.SubjectLabel,
		Body:       withToken(body, req.ID),
		FireDate:   slot.Start.Format(time.RFC3339),
	}
}
