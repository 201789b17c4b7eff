package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hallbook/schedule"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a one line summary of each event to a chat, usually
// the club admins' group.
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
	// Only, when non-empty, restricts delivery to these event types.
	Only map[schedule.EventType]bool
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, event schedule.Event) error {
	if len(t.Only) > 0 && !t.Only[event.Type] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, Summary(event))
	msg.DisableNotification = event.Type == schedule.EventBookingCompleted
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
