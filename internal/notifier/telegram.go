package notifier

import (
	"context"
	"fmt"
	"html"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MessageSender is the part of the bot API the notifier needs
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to an admin chat with one-click action buttons
type TelegramNotifier struct {
	sender MessageSender
	chatID int64
	links  *LinkBuilder
	logger *zap.Logger
}

func NewTelegramNotifier(botToken string, chatID int64, links *LinkBuilder, logger *zap.Logger) (*TelegramNotifier, error) {
	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return &TelegramNotifier{sender: botAPI, chatID: chatID, links: links, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(_ context.Context, alert Alert) error {
	links, err := n.links.Build(alert.Record.ID)
	if err != nil {
		return err
	}

	header := "🚨 Eco marcado por la IA"
	if alert.Kind == KindManualReview {
		header = "⚠️ Revisión manual requerida"
	}

	text := fmt.Sprintf(
		"<b>%s</b>\n\n"+
			"🆔 %s\n"+
			"🎙 %s · %s\n"+
			"📋 %s\n\n"+
			"📝 <i>%s</i>\n\n"+
			"<a href=\"%s\">Escuchar audio</a>",
		header,
		html.EscapeString(alert.Record.ID),
		html.EscapeString(alert.Record.TitleOr("Untitled")),
		html.EscapeString(alert.Record.AuthorOr("Anonymous")),
		html.EscapeString(alert.Reason),
		html.EscapeString(preview(alert.Transcript, 300)),
		html.EscapeString(alert.Record.FileURL),
	)

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("✅ Mantener", links.Keep),
			tgbotapi.NewInlineKeyboardButtonURL("🗑️ Eliminar", links.Delete),
		),
	)

	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}

	n.logger.Info("Alert posted to Telegram", zap.String("audio_id", alert.Record.ID), zap.Int64("chat_id", n.chatID))
	return nil
}

func preview(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
