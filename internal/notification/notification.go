// Package notification доставка сигналов и алертов по каналам
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Ошибки, после которых повтор доставки бессмысленен
var (
	ErrUnauthorized   = fmt.Errorf("%w: нет доступа", models.ErrDelivery)
	ErrInvalidMessage = fmt.Errorf("%w: некорректное сообщение", models.ErrDelivery)
	ErrNotFound       = fmt.Errorf("%w: получатель не найден", models.ErrDelivery)
)

// Priority приоритет сообщения
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Message сообщение для канала
type Message struct {
	Title    string
	Text     string
	Priority Priority
	Signal   *models.Signal
}

// Channel канал доставки
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DeliveryResult результат рассылки; частичный успех допустим
type DeliveryResult struct {
	Delivered []string
	Failed    map[string]error
	Attempts  map[string]int
}

// Success доставлено хотя бы в один канал
func (r DeliveryResult) Success() bool {
	return len(r.Delivered) > 0
}

// Err объединенная ошибка неудачных каналов или nil
func (r DeliveryResult) Err() error {
	var err error
	for name, e := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("%s: %w", name, e))
	}
	return err
}

// Service рассылает сообщения по всем каналам параллельно
type Service struct {
	channels       []Channel
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewService создает сервис уведомлений
func NewService(cfg config.NotificationConfig, channels ...Channel) *Service {
	s := &Service{
		channels:       channels,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if s.initialBackoff <= 0 {
		s.initialBackoff = time.Second
	}
	if s.maxBackoff <= 0 || s.maxBackoff > 30*time.Second {
		s.maxBackoff = 30 * time.Second
	}
	return s
}

// Channels имена подключенных каналов
func (s *Service) Channels() []string {
	names := make([]string, len(s.channels))
	for i, ch := range s.channels {
		names[i] = ch.Name()
	}
	return names
}

// SendSignalNotification отправляет сигнал во все каналы
func (s *Service) SendSignalNotification(ctx context.Context, signal *models.Signal) DeliveryResult {
	priority := PriorityNormal
	if signal.Confidence >= 8 {
		priority = PriorityHigh
	}
	return s.broadcast(ctx, Message{
		Title:    fmt.Sprintf("%s %s", signal.Direction, signal.Pair),
		Text:     FormatSignal(signal),
		Priority: priority,
		Signal:   signal,
	})
}

// SendAlert отправляет произвольный алерт
func (s *Service) SendAlert(ctx context.Context, priority Priority, title, text string) DeliveryResult {
	return s.broadcast(ctx, Message{Title: title, Text: text, Priority: priority})
}

func (s *Service) broadcast(ctx context.Context, msg Message) DeliveryResult {
	res := DeliveryResult{
		Failed:   make(map[string]error),
		Attempts: make(map[string]int),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range s.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			attempts, err := s.deliver(ctx, ch, msg)

			mu.Lock()
			defer mu.Unlock()
			res.Attempts[ch.Name()] = attempts
			if err != nil {
				res.Failed[ch.Name()] = err
				return
			}
			res.Delivered = append(res.Delivered, ch.Name())
		}(ch)
	}
	wg.Wait()

	if err := res.Err(); err != nil {
		logger.Warn("Уведомление доставлено не во все каналы",
			zap.Strings("delivered", res.Delivered),
			zap.Error(err))
	}
	return res
}

// deliver отправляет в один канал с экспоненциальными повторами
func (s *Service) deliver(ctx context.Context, ch Channel, msg Message) (int, error) {
	b := &backoff.Backoff{
		Min:    s.initialBackoff,
		Max:    s.maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	var attempts int
	for {
		attempts++
		err := ch.Send(ctx, msg)
		if err == nil {
			return attempts, nil
		}
		if Permanent(err) || attempts > s.maxRetries {
			return attempts, err
		}

		wait := b.Duration()
		logger.Debug("Повтор доставки",
			zap.String("channel", ch.Name()),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return attempts, multierr.Append(err, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Permanent ошибка не исправится повтором
func Permanent(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrNotFound)
}
