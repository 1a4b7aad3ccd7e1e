package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// StartHandler handles the /start command
type StartHandler struct {
	logger         *logrus.Logger
	reminderChatID int64
}

// NewStartHandler creates a new start command handler. reminderChatID is the
// chat fired reminders are delivered to.
func NewStartHandler(reminderChatID int64, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		logger:         logger,
		reminderChatID: reminderChatID,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, WelcomeText(message.Chat.ID, h.reminderChatID))
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithField("chat_id", message.Chat.ID).Info("Sent start message")

	return nil
}

// WelcomeText renders the /start reply for a message from chatID
func WelcomeText(chatID, reminderChatID int64) string {
	delivery := "Reminders are delivered to this chat."
	if chatID != reminderChatID {
		delivery = fmt.Sprintf("Reminders are delivered to chat `%d`, not this one.", reminderChatID)
	}

	return fmt.Sprintf(`💊 *Welcome to DoseboT!*

I'll remind you when a dose is due and keep track of what you took.

When a reminder arrives, tap *Taken* or *Skip* under it, or use:
• /taken <plan> [dosage]
• /skip <plan> [reason]
• /stats [plan]

%s
Use /help for details.`, delivery)
}
