package cmd

import (
	"io"

	"hallbook/config"
	"hallbook/notify"
	"hallbook/schedule"

	"go.uber.org/zap"
)

// buildNotifier assembles the configured sinks. A sink that cannot start is
// logged and skipped; event delivery never blocks a command.
func buildNotifier(c config.Notify, logger *zap.Logger) (schedule.Notifier, []io.Closer) {
	sinks := notify.Multi{notify.NewLogNotifier(logger)}
	var closers []io.Closer

	if c.WebhookURL != "" {
		hook := notify.NewWebhookNotifier(c.WebhookURL)
		hook.Secret = c.WebhookSecret
		sinks = append(sinks, hook)
	}

	if c.AMQPURL != "" {
		pub, err := notify.NewAMQPPublisher(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			logger.Warn("amqp notifier disabled", zap.Error(err))
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub)
		}
	}

	if c.TelegramToken != "" && c.TelegramChatID != 0 {
		tg, err := notify.NewTelegramNotifier(c.TelegramToken, c.TelegramChatID)
		if err != nil {
			logger.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			if len(c.TelegramEvents) > 0 {
				tg.Only = map[schedule.EventType]bool{}
				for _, name := range c.TelegramEvents {
					tg.Only[schedule.EventType(name)] = true
				}
			}
			sinks = append(sinks, tg)
		}
	}
	return sinks, closers
}
