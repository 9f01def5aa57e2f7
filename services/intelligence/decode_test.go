package intelligence

import (
	"errors"
	"testing"

	"parley/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExtraction(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		intent models.Intent
		slots  int
		note   string
	}{
		{
			name:   "plain json",
			answer: `{"intent":"provide_availability","slots":[{"date":"2026-03-09","start_time":"10:00"}]}`,
			intent: models.IntentProvideAvailability,
			slots:  1,
		},
		{
			name:   "fenced json",
			answer: "```json\n{\"intent\":\"decline\",\"slots\":[],\"note\":\"withdrew\"}\n```",
			intent: models.IntentDecline,
			note:   "withdrew",
		},
		{
			name:   "older action spelling",
			answer: `{"action":"confirm","slots":[],"message":"ok"}`,
			intent: models.IntentConfirm,
			note:   "ok",
		},
		{
			name:   "json inside prose",
			answer: `Sure! Here it is: {"intent":"request_other_times","slots":[]} Let me know.`,
			intent: models.IntentRequestOtherTimes,
		},
		{
			name:   "unknown intent",
			answer: `{"intent":"reschedule","slots":[]}`,
			intent: models.IntentUnclear,
		},
		{
			name:   "slots without a date are dropped",
			answer: `{"intent":"provide_availability","slots":[{"start_time":"10:00"},{"date":"2026-03-10"}]}`,
			intent: models.IntentProvideAvailability,
			slots:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeExtraction(tt.answer)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, got.Intent)
			assert.Len(t, got.Slots, tt.slots)
			assert.Equal(t, tt.note, got.Note)
		})
	}
}

func TestDecodeExtraction_Malformed(t *testing.T) {
	for _, answer := range []string{"", "I could not read that", "{not json}"} {
		_, err := DecodeExtraction(answer)
		assert.True(t, errors.Is(err, ErrMalformedPayload), "answer %q", answer)
	}
}
