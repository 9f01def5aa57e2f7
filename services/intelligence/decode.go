package intelligence

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"parley/models"
)

// ErrMalformedPayload is returned when a model answer holds no usable JSON.
var ErrMalformedPayload = errors.New("malformed extraction payload")

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// wireExtraction accepts both the current field names and the older
// action/message spelling.
type wireExtraction struct {
	Intent  string                  `json:"intent"`
	Action  string                  `json:"action"`
	Slots   []models.RespondentSlot `json:"slots"`
	Note    string                  `json:"note"`
	Message string                  `json:"message"`
}

// DecodeExtraction parses a model answer. Markdown code fences are stripped;
// if the answer still is not JSON, the outermost {...} span is tried.
func DecodeExtraction(answer string) (*models.Extraction, error) {
	clean := strings.TrimSpace(answer)
	clean = strings.ReplaceAll(clean, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var w wireExtraction
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		span := jsonObjectRe.FindString(answer)
		if span == "" {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if err := json.Unmarshal([]byte(span), &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	intent := w.Intent
	if intent == "" {
		intent = w.Action
	}
	note := w.Note
	if note == "" {
		note = w.Message
	}

	slots := make([]models.RespondentSlot, 0, len(w.Slots))
	for _, s := range w.Slots {
		if s.Date == "" {
			continue
		}
		slots = append(slots, s)
	}

	return &models.Extraction{
		Intent: models.NormalizeIntent(strings.ToLower(strings.TrimSpace(intent))),
		Slots:  slots,
		Note:   note,
	}, nil
}
