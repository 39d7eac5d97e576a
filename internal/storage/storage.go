package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/pkg/models"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = fmt.Errorf("%w: запись не найдена", models.ErrRepository)

	// ErrDuplicate запись с таким ключом уже существует
	ErrDuplicate = fmt.Errorf("%w: запись уже существует", models.ErrRepository)
)

// SignalRepository интерфейс хранилища сигналов
type SignalRepository interface {
	Save(ctx context.Context, signal *models.Signal) error
	Update(ctx context.Context, signal *models.Signal) error
	FindByID(ctx context.Context, id string) (*models.Signal, error)
	FindActive(ctx context.Context) ([]*models.Signal, error)
	FindActiveByPair(ctx context.Context, exchange, symbol string) ([]*models.Signal, error)
	FindRecentByPair(ctx context.Context, exchange, symbol string, limit int) ([]*models.Signal, error)

	// CleanupExpiredSignals переводит SENT-сигналы старше maxAge в EXECUTED
	// и возвращает переведенные сигналы
	CleanupExpiredSignals(ctx context.Context, maxAge time.Duration, now time.Time) ([]*models.Signal, error)
}

// PairRepository интерфейс хранилища торговых пар. Save и Update атомарны.
type PairRepository interface {
	Save(ctx context.Context, pair *models.TradingPair) error
	Update(ctx context.Context, pair *models.TradingPair) error
	Delete(ctx context.Context, key string) error
	FindByKey(ctx context.Context, key string) (*models.TradingPair, error)
	FindAll(ctx context.Context) ([]*models.TradingPair, error)
	FindActive(ctx context.Context) ([]*models.TradingPair, error)
	SaveAll(ctx context.Context, pairs []*models.TradingPair) error
}

// ExpireSignal переводит SENT-сигнал старше maxAge в EXECUTED. Общая логика
// для всех реализаций SignalRepository.
func ExpireSignal(s *models.Signal, maxAge time.Duration, now time.Time) bool {
	if s.Status != models.StatusSent || s.SentAt == nil {
		return false
	}
	if now.Sub(*s.SentAt) <= maxAge {
		return false
	}
	return s.MarkAsExecuted(now) == nil
}
