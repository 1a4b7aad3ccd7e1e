package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/service"
)

const handlerTimeout = 15 * time.Second

// TakenHandler handles the /taken command
type TakenHandler struct {
	engine *service.Engine
	logger *logrus.Logger
}

func NewTakenHandler(engine *service.Engine, logger *logrus.Logger) *TakenHandler {
	return &TakenHandler{engine: engine, logger: logger}
}

func (h *TakenHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /taken <plan> [dosage]"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	planID, dosage := args[0], strings.Join(args[1:], " ")
	event, err := h.engine.RecordTaken(ctx, planID, dosage, "")
	if err != nil {
		return fmt.Errorf("record taken: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"plan_id":  planID,
		"event_id": event.ID,
		"chat_id":  message.Chat.ID,
	}).Info("Dose recorded as taken")

	msg := tgbotapi.NewMessage(message.Chat.ID, FormatRecorded(event))
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)
	return nil
}

// SkipHandler handles the /skip command
type SkipHandler struct {
	engine *service.Engine
	logger *logrus.Logger
}

func NewSkipHandler(engine *service.Engine, logger *logrus.Logger) *SkipHandler {
	return &SkipHandler{engine: engine, logger: logger}
}

func (h *SkipHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Usage: /skip <plan> [reason]"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	planID, reason := args[0], strings.Join(args[1:], " ")
	event, err := h.engine.RecordSkipped(ctx, planID, reason)
	if err != nil {
		return fmt.Errorf("record skipped: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"plan_id":  planID,
		"event_id": event.ID,
		"chat_id":  message.Chat.ID,
	}).Info("Dose recorded as skipped")

	msg := tgbotapi.NewMessage(message.Chat.ID, FormatRecorded(event))
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)
	return nil
}

// StatsHandler handles the /stats command
type StatsHandler struct {
	engine *service.Engine
	logger *logrus.Logger
}

func NewStatsHandler(engine *service.Engine, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{engine: engine, logger: logger}
}

func (h *StatsHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	planID := ""
	if len(args) > 0 {
		planID = args[0]
	}

	stats, err := h.engine.ComplianceStats(ctx, planID)
	if err != nil {
		return fmt.Errorf("compliance stats: %w", err)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, FormatStats(stats))
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)
	return nil
}

// DoseCallbackHandler handles the Taken/Skip buttons under a reminder
type DoseCallbackHandler struct {
	engine *service.Engine
	logger *logrus.Logger
	kind   models.AdherenceKind
}

func NewDoseCallbackHandler(engine *service.Engine, kind models.AdherenceKind, logger *logrus.Logger) *DoseCallbackHandler {
	return &DoseCallbackHandler{engine: engine, kind: kind, logger: logger}
}

func (h *DoseCallbackHandler) HandleCallback(bot *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, planID string) (string, error) {
	if planID == "" {
		return "", fmt.Errorf("callback without plan id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var err error
	if h.kind == models.AdherenceTaken {
		_, err = h.engine.RecordTaken(ctx, planID, "", "")
	} else {
		_, err = h.engine.RecordSkipped(ctx, planID, "")
	}
	if err != nil {
		return "", fmt.Errorf("record %s: %w", strings.ToLower(string(h.kind)), err)
	}

	// drop the buttons so the dose cannot be recorded twice from the same message
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := bot.Request(edit); err != nil {
			h.logger.WithError(err).Warn("Failed to remove reminder buttons")
		}
	}

	if h.kind == models.AdherenceTaken {
		return "✅ Recorded as taken", nil
	}
	return "⏭ Recorded as skipped", nil
}

// FormatRecorded renders the confirmation for a recorded dose
func FormatRecorded(event *models.AdherenceEvent) string {
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }

	var sb strings.Builder
	if event.Kind == models.AdherenceTaken {
		sb.WriteString(fmt.Sprintf("✅ *%s* taken at %s", esc(event.PlanID), event.Timestamp.Format("15:04")))
		if event.Dosage != "" {
			sb.WriteString("\n💊 " + esc(event.Dosage))
		}
	} else {
		sb.WriteString(fmt.Sprintf("⏭ *%s* skipped at %s", esc(event.PlanID), event.Timestamp.Format("15:04")))
		if event.Reason != "" {
			sb.WriteString("\n📝 " + esc(event.Reason))
		}
	}
	return sb.String()
}

// FormatStats renders compliance statistics
func FormatStats(stats *models.ComplianceStats) string {
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }

	var sb strings.Builder
	title := "all medications"
	if stats.PlanID != "" {
		title = stats.MedicationName
		if title == "" {
			title = stats.PlanID
		}
	}
	sb.WriteString(fmt.Sprintf("📊 *Adherence for %s*\n", esc(title)))
	sb.WriteString(fmt.Sprintf("_%s to %s_\n\n",
		stats.WindowStart.Format("02 Jan"), stats.WindowEnd.Format("02 Jan 2006")))

	if stats.Taken+stats.Skipped == 0 {
		sb.WriteString("No doses recorded yet.")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("✅ Taken: %d\n⏭ Skipped: %d\n📈 Rate: %.0f%%\n",
		stats.Taken, stats.Skipped, stats.AdherenceRate*100))
	if stats.ConsecutiveMissed > 0 {
		sb.WriteString(fmt.Sprintf("⚠️ Missed in a row: %d\n", stats.ConsecutiveMissed))
	}

	if len(stats.PerMedication) > 0 {
		sb.WriteString("\n")
		for _, m := range stats.PerMedication {
			name := m.MedicationName
			if name == "" {
				name = m.PlanID
			}
			sb.WriteString(fmt.Sprintf("• %s: %.0f%% (%d/%d)\n",
				esc(name), m.AdherenceRate*100, m.Taken, m.Taken+m.Skipped))
		}
	}
	return sb.String()
}
