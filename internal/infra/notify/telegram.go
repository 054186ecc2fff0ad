package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain/model"
)

type chattableSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a line per finished job to one chat.
type Telegram struct {
	bot    chattableSender
	chatID int64
	log    *zerolog.Logger
}

func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram notifier needs a token and a chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, logger), nil
}

func newTelegram(bot chattableSender, chatID int64, logger *zerolog.Logger) *Telegram {
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &Telegram{bot: bot, chatID: chatID, log: &l}
}

func (t *Telegram) JobFinished(ctx context.Context, job *model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, messageOf(job))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.Debug().Str("job_id", job.ID).Int64("chat_id", t.chatID).Msg("notification sent")
	return nil
}
