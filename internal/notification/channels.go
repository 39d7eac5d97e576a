package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// messageSender часть API бота, нужная каналу
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramChannel отправка в чат Telegram
type TelegramChannel struct {
	sender messageSender
	chatID int64
}

// NewTelegramChannel создает канал; токен проверяется при первой отправке
func NewTelegramChannel(token string, chatID int64) (*TelegramChannel, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramChannel{sender: b, chatID: chatID}, nil
}

// Name имя канала
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Send отправляет сообщение в чат
func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if msg.Signal == nil && msg.Title != "" {
		text = fmt.Sprintf("<b>%s</b>\n%s", msg.Title, msg.Text)
	}

	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:              t.chatID,
		Text:                text,
		ParseMode:           tgmodels.ParseModeHTML,
		DisableNotification: msg.Priority == PriorityLow,
	})
	if err != nil {
		return classifyTelegram(err)
	}
	return nil
}

// classifyTelegram переводит ошибки API в ошибки доставки
func classifyTelegram(err error) error {
	switch {
	case errors.Is(err, bot.ErrorUnauthorized), errors.Is(err, bot.ErrorForbidden):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, bot.ErrorNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, bot.ErrorBadRequest):
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	default:
		return fmt.Errorf("%w: telegram: %v", models.ErrDelivery, err)
	}
}

// LogChannel пишет уведомления в журнал
type LogChannel struct{}

// Name имя канала
func (LogChannel) Name() string {
	return "log"
}

// Send записывает сообщение в журнал
func (LogChannel) Send(_ context.Context, msg Message) error {
	fields := []zap.Field{
		zap.String("title", msg.Title),
		zap.String("priority", string(msg.Priority)),
	}
	if s := msg.Signal; s != nil {
		fields = append(fields,
			zap.String("id", s.ID),
			zap.String("pair", s.Pair),
			zap.String("direction", string(s.Direction)),
			zap.String("entry", FormatPrice(s.EntryPrice)),
			zap.String("stop_loss", FormatPrice(s.Targets.StopLoss)),
			zap.Float64s("take_profits", s.Targets.TakeProfits),
			zap.Float64("confidence", s.Confidence))
	} else {
		fields = append(fields, zap.String("text", msg.Text))
	}

	if msg.Priority == PriorityCritical || msg.Priority == PriorityHigh {
		logger.Warn("Уведомление", fields...)
	} else {
		logger.Info("Уведомление", fields...)
	}
	return nil
}
