// Package memory хранилища в памяти процесса
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// SignalStore хранилище сигналов в памяти. Сигналы копируются на входе и выходе.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[string]*models.Signal
	// индекс "EXCHANGE:SYMBOL" -> id
	byPair map[string]map[string]struct{}
}

// NewSignalStore создает пустое хранилище сигналов
func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: make(map[string]*models.Signal),
		byPair:  make(map[string]map[string]struct{}),
	}
}

// Save сохраняет новый сигнал
func (s *SignalStore) Save(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[signal.ID]; ok {
		return fmt.Errorf("сигнал %s: %w", signal.ID, storage.ErrDuplicate)
	}
	s.signals[signal.ID] = signal.Clone()

	key := models.PairKey(signal.Exchange, signal.Pair)
	if s.byPair[key] == nil {
		s.byPair[key] = make(map[string]struct{})
	}
	s.byPair[key][signal.ID] = struct{}{}
	return nil
}

// Update заменяет существующий сигнал
func (s *SignalStore) Update(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[signal.ID]; !ok {
		return fmt.Errorf("сигнал %s: %w", signal.ID, storage.ErrNotFound)
	}
	s.signals[signal.ID] = signal.Clone()
	return nil
}

// FindByID ищет сигнал по идентификатору
func (s *SignalStore) FindByID(_ context.Context, id string) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, fmt.Errorf("сигнал %s: %w", id, storage.ErrNotFound)
	}
	return sig.Clone(), nil
}

// FindActive все сигналы в статусах PENDING и SENT
func (s *SignalStore) FindActive(_ context.Context) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Signal
	for _, sig := range s.signals {
		if sig.IsActive() {
			out = append(out, sig.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// FindActiveByPair активные сигналы пары
func (s *SignalStore) FindActiveByPair(_ context.Context, exchange, symbol string) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Signal
	for id := range s.byPair[models.PairKey(exchange, symbol)] {
		if sig := s.signals[id]; sig.IsActive() {
			out = append(out, sig.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// FindRecentByPair последние сигналы пары, новые первыми
func (s *SignalStore) FindRecentByPair(_ context.Context, exchange, symbol string, limit int) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Signal, 0, len(s.byPair[models.PairKey(exchange, symbol)]))
	for id := range s.byPair[models.PairKey(exchange, symbol)] {
		out = append(out, s.signals[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CleanupExpiredSignals переводит устаревшие SENT-сигналы в EXECUTED
func (s *SignalStore) CleanupExpiredSignals(_ context.Context, maxAge time.Duration, now time.Time) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Signal
	for _, sig := range s.signals {
		if storage.ExpireSignal(sig, maxAge, now) {
			expired = append(expired, sig.Clone())
		}
	}
	sortByCreated(expired)
	return expired, nil
}

// Len количество сигналов
func (s *SignalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals)
}

func sortByCreated(signals []*models.Signal) {
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].CreatedAt.Before(signals[j].CreatedAt)
	})
}
