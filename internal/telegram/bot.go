package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// Callback data prefixes carried by the buttons under a reminder
const (
	CallbackTaken = "taken"
	CallbackSkip  = "skip"
)

// Bot wraps the Telegram bot API
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
	router *Router
}

// NewBot creates a new Telegram bot instance that delivers reminders to chatID
func NewBot(token string, chatID int64, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:    api,
		chatID: chatID,
		logger: logger,
		router: NewRouter(logger),
	}, nil
}

// Start starts the bot with long polling
func (b *Bot) Start(ctx context.Context) error {
	// Delete webhook if exists and use polling
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started with long polling")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

// handleUpdate processes incoming updates
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Panic in update handler: %v", r)
		}
	}()

	if update.Message != nil {
		b.router.HandleMessage(b.api, update.Message)
	} else if update.CallbackQuery != nil {
		b.router.HandleCallbackQuery(b.api, update.CallbackQuery)
	}
}

// Notify delivers a fired reminder to the configured chat. Silent reminders
// are sent without a notification sound.
func (b *Bot) Notify(ctx context.Context, fired models.FiredTrigger) {
	msg := NewReminderMessage(b.chatID, fired)

	if _, err := b.api.Send(msg); err != nil {
		b.logger.WithFields(logrus.Fields{
			"plan_id":    fired.Request.Payload.PlanID,
			"trigger_id": fired.TriggerID,
			"error":      err,
		}).Error("Failed to send reminder")
	}
}

// SendMessage sends a message to a chat
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// RegisterCommand registers a command handler on the router
func (b *Bot) RegisterCommand(command string, handler CommandHandler) {
	b.router.RegisterCommand(command, handler)
}

// RegisterCallback registers an inline button handler on the router
func (b *Bot) RegisterCallback(prefix string, handler CallbackHandler) {
	b.router.RegisterCallback(prefix, handler)
}

// NewReminderMessage builds the chat message for a fired reminder
func NewReminderMessage(chatID int64, fired models.FiredTrigger) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, FormatReminder(fired))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableNotification = fired.Request.Silent

	planID := fired.Request.Payload.PlanID
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", CallbackTaken+":"+planID),
			tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", CallbackSkip+":"+planID),
		),
	)
	return msg
}

// FormatReminder renders the reminder text
func FormatReminder(fired models.FiredTrigger) string {
	p := fired.Request.Payload
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }

	var sb strings.Builder
	if fired.Repeat > 0 {
		sb.WriteString(fmt.Sprintf("🔁 *Reminder (repeat %d)*\n", fired.Repeat))
	} else {
		sb.WriteString("💊 *Medication reminder*\n")
	}

	sb.WriteString(fmt.Sprintf("\n*%s*", esc(p.MedicationName)))
	if p.Dosage != "" {
		sb.WriteString(" " + esc(p.Dosage))
	}
	sb.WriteString(fmt.Sprintf("\n⏰ Dose time: %s", p.DoseTime))
	if fired.Request.Time != p.DoseTime {
		sb.WriteString(fmt.Sprintf(" (reminder at %s)", fired.Request.Time))
	}
	if p.Instructions != "" {
		sb.WriteString("\n📝 " + esc(p.Instructions))
	}
	return sb.String()
}
