package notifier

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// requestTimeout bounds each bot API call when the caller sets no deadline.
const requestTimeout = 30 * time.Second

// TelegramNotifier mirrors run reports into a chat. The recipient argument is ignored.
type TelegramNotifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	// guards bot, which is only kept once getMe succeeded
	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{
		token:    token,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// ctxClient binds every bot API request to the context of the current Send.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

func (t *TelegramNotifier) Send(ctx context.Context, _ string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	client := ctxClient{ctx: ctx, client: t.client}

	// the bot calls getMe on creation; a failed attempt is retried on the next Send
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, client)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		t.bot = bot
	}
	t.bot.Client = client

	msg := tgbotapi.NewMessage(t.chatID, subject+"\n\n"+body)
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}

	return nil
}
