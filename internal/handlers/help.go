package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *DoseboT Help*

*Doses:*
• /taken <plan> [dosage] - Record a dose as taken
• /skip <plan> [reason] - Record a dose as skipped

*Statistics:*
• /stats - Adherence for all medications
• /stats <plan> - Adherence for one plan

Unanswered reminders repeat a few times. Reminders during quiet hours arrive without sound.

_Plans and preferences are managed through the HTTP API._`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithField("chat_id", message.Chat.ID).Info("Sent help message")

	return nil
}
