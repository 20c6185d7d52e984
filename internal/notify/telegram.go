package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramOptions struct {
	Token      string
	ChatID     int64
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Telegram posts alerts to an ops channel.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Telegram{
		bot:    bot,
		chatID: opts.ChatID,
		logger: logger,
	}, nil
}

func (t *Telegram) Alert(ctx context.Context, subject, body string) error {
	text := truncateByBytes(subject+"\n\n"+body, 4096)
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return err
	}
	t.logger.Info("telegram alert sent", "subject", subject)
	return nil
}

func truncateByBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return text
	}

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		if buf.Len()+len(string(r)) > maxBytes {
			break
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
