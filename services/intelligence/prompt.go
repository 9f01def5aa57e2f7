package intelligence

import (
	"fmt"
	"strings"

	"parley/models"
)

// SystemPrompt frames every model call.
const SystemPrompt = "You extract interview scheduling information from email replies. Answer with a single JSON object and nothing else."

// BuildPrompt renders the extraction request for one reply. The offered slots
// are listed in the scheduling zone so the model can map "Monday at 10am"
// back to an exact date.
func BuildPrompt(raw string, ectx models.ExtractionContext) string {
	loc := ectx.Location
	if loc == nil {
		loc = ectx.Today.Location()
	}

	var offered strings.Builder
	if len(ectx.OfferedSlots) > 0 {
		offered.WriteString("Slots that were offered to the candidate:\n")
		for _, s := range ectx.OfferedSlots {
			start := s.Start.In(loc)
			fmt.Fprintf(&offered, "  - %s | date: %s | start_time: %s\n",
				models.LongSlotLabel(start), start.Format(models.DateLayout), start.Format(models.TimeLayout))
		}
	}

	minutes := int(ectx.Duration.Minutes())

	return fmt.Sprintf(`Today's date: %s

%s
Interview: %s (%d minutes)

Candidate's reply:
"""
%s
"""

Return a JSON object:
{
  "intent": "provide_availability" | "confirm" | "decline" | "request_other_times" | "unclear",
  "slots": [
    {"date": "YYYY-MM-DD", "start_time": "HH:MM", "end_time": "HH:MM"}
  ],
  "note": "anything worth passing on to the recruiter"
}

Rules:
- If the candidate names a weekday or a time, find the matching offered slot above and return its exact date and start_time.
- If the candidate picks a specific slot, intent is "provide_availability" with that slot.
- If the candidate only names a day without a time, return the date and leave start_time empty.
- If end_time is not mentioned, add %d minutes to start_time.
- If the candidate agrees to a time that was already proposed to them without naming it, intent is "confirm".
- If the candidate cannot attend at all or withdraws, intent is "decline".
- If the candidate asks for different times, intent is "request_other_times".
- Dates are always YYYY-MM-DD and times are 24-hour HH:MM.
- Only return valid JSON.`,
		ectx.Today.In(loc).Format("Monday, January 02, 2006"),
		offered.String(),
		ectx.Subject, minutes,
		raw,
		minutes)
}
