package notifier

import (
	"context"
	"errors"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
)

// Multi fans a message out to every channel. All channels are attempted; failures are joined.
type Multi []domain.Notifier

func (m Multi) Send(ctx context.Context, recipient, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, recipient, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New returns the email notifier, plus Telegram when a bot token is configured.
func New(cfg *config.NotifyConfig) domain.Notifier {
	channels := Multi{NewEmail(cfg)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		channels = append(channels, NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return channels
}
