package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// PairStore хранилище торговых пар в памяти
type PairStore struct {
	mu    sync.RWMutex
	pairs map[string]*models.TradingPair
}

// NewPairStore создает пустое хранилище пар
func NewPairStore() *PairStore {
	return &PairStore{pairs: make(map[string]*models.TradingPair)}
}

// Save добавляет новую пару
func (s *PairStore) Save(_ context.Context, pair *models.TradingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair.Key()
	if _, ok := s.pairs[key]; ok {
		return fmt.Errorf("пара %s: %w", key, storage.ErrDuplicate)
	}
	s.pairs[key] = pair.Clone()
	return nil
}

// Update заменяет существующую пару
func (s *PairStore) Update(_ context.Context, pair *models.TradingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair.Key()
	if _, ok := s.pairs[key]; !ok {
		return fmt.Errorf("пара %s: %w", key, storage.ErrNotFound)
	}
	s.pairs[key] = pair.Clone()
	return nil
}

// Delete удаляет пару
func (s *PairStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[key]; !ok {
		return fmt.Errorf("пара %s: %w", key, storage.ErrNotFound)
	}
	delete(s.pairs, key)
	return nil
}

// FindByKey ищет пару по ключу "EXCHANGE:SYMBOL"
func (s *PairStore) FindByKey(_ context.Context, key string) (*models.TradingPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pairs[key]
	if !ok {
		return nil, fmt.Errorf("пара %s: %w", key, storage.ErrNotFound)
	}
	return p.Clone(), nil
}

// FindAll все пары, отсортированные по ключу
func (s *PairStore) FindAll(_ context.Context) ([]*models.TradingPair, error) {
	return s.collect(func(*models.TradingPair) bool { return true }), nil
}

// FindActive активные пары
func (s *PairStore) FindActive(_ context.Context) ([]*models.TradingPair, error) {
	return s.collect(func(p *models.TradingPair) bool { return p.IsActive }), nil
}

// SaveAll сохраняет пары, заменяя существующие с теми же ключами
func (s *PairStore) SaveAll(_ context.Context, pairs []*models.TradingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pairs {
		s.pairs[p.Key()] = p.Clone()
	}
	return nil
}

func (s *PairStore) collect(keep func(*models.TradingPair) bool) []*models.TradingPair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TradingPair, 0, len(s.pairs))
	for _, p := range s.pairs {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}
