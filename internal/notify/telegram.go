package notify

import (
	"fmt"

	"reswatch/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// sender is the slice of the bot API the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes user-facing alerts to a Telegram chat.
// Delivery is best effort; job processing never waits on it or fails
// because of it.
type TelegramNotifier struct {
	bot    sender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

func (n *TelegramNotifier) NotifyBookingSuccess(name, date, timeSlot, confirmationCode string) error {
	text := fmt.Sprintf("✅ *Booked!*\n%s\n%s at %s\nConfirmation: `%s`", name, date, timeSlot, confirmationCode)
	return n.send(text)
}

func (n *TelegramNotifier) NotifyBookingFailed(name, reason string) error {
	text := fmt.Sprintf("❌ *Watch failed*\n%s\n%s", name, reason)
	return n.send(text)
}

func (n *TelegramNotifier) NotifyCaptchaRequired(name string) error {
	text := fmt.Sprintf("⚠️ *Action required*\n%s\nThe platform is asking for CAPTCHA verification. Open the site, resolve it, then resume the watch.", name)
	return n.send(text)
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Msg("telegram send failed")
		return err
	}
	return nil
}

// NopNotifier is used when Telegram is disabled in config.
type NopNotifier struct{}

func (NopNotifier) NotifyBookingSuccess(string, string, string, string) error { return nil }
func (NopNotifier) NotifyBookingFailed(string, string) error                  { return nil }
func (NopNotifier) NotifyCaptchaRequired(string) error                        { return nil }
