package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DoseboT/internal/models"
)

func firedTrigger() models.FiredTrigger {
	return models.FiredTrigger{
		TriggerID: "t1",
		Request: models.TriggerRequest{
			Time: models.ClockTime{Hour: 7, Minute: 55},
			Payload: models.TriggerPayload{
				PlanID:         "p1",
				MedicationName: "Vitamin_D",
				Dosage:         "1000 IU",
				Instructions:   "with *food*",
				DoseTime:       models.ClockTime{Hour: 8},
			},
		},
	}
}

func TestFormatReminder(t *testing.T) {
	text := FormatReminder(firedTrigger())

	assert.Contains(t, text, "💊 *Medication reminder*")
	assert.Contains(t, text, `*Vitamin\_D* 1000 IU`)
	assert.Contains(t, text, "⏰ Dose time: 08:00 (reminder at 07:55)")
	assert.Contains(t, text, `📝 with \*food\*`)
}

func TestFormatReminder_Repeat(t *testing.T) {
	fired := firedTrigger()
	fired.Repeat = 2
	fired.Request.Time = fired.Request.Payload.DoseTime

	text := FormatReminder(fired)
	assert.Contains(t, text, "🔁 *Reminder (repeat 2)*")
	assert.NotContains(t, text, "reminder at")
}

func TestNewReminderMessage(t *testing.T) {
	fired := firedTrigger()
	fired.Request.Silent = true

	msg := NewReminderMessage(42, fired)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.True(t, msg.DisableNotification)

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "taken:p1", *row[0].CallbackData)
	assert.Equal(t, "skip:p1", *row[1].CallbackData)
}

func TestSplitCallbackData(t *testing.T) {
	tests := []struct {
		data, prefix, arg string
	}{
		{"taken:p1", "taken", "p1"},
		{"skip:plan:with:colons", "skip", "plan:with:colons"},
		{"noarg", "noarg", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		prefix, arg := SplitCallbackData(tt.data)
		assert.Equal(t, tt.prefix, prefix, tt.data)
		assert.Equal(t, tt.arg, arg, tt.data)
	}
}
