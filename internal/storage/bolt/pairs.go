// Package bolt хранилище торговых пар в bbolt
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var pairsBucket = []byte("pairs")

// PairStore реализует storage.PairRepository. Каждая запись выполняется
// в одной транзакции bbolt.
type PairStore struct {
	db *bolt.DB
}

// NewPairStore открывает файл базы и создает bucket пар
func NewPairStore(path string) (*PairStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия bbolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pairsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания bucket: %w", err)
	}

	logger.Info("Хранилище пар bbolt открыто", zap.String("path", path))
	return &PairStore{db: db}, nil
}

// Close закрывает базу
func (s *PairStore) Close() error {
	return s.db.Close()
}

// Save добавляет новую пару
func (s *PairStore) Save(_ context.Context, pair *models.TradingPair) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		key := []byte(pair.Key())
		if b.Get(key) != nil {
			return fmt.Errorf("пара %s: %w", pair.Key(), storage.ErrDuplicate)
		}
		return put(b, pair)
	})
}

// Update заменяет существующую пару
func (s *PairStore) Update(_ context.Context, pair *models.TradingPair) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		if b.Get([]byte(pair.Key())) == nil {
			return fmt.Errorf("пара %s: %w", pair.Key(), storage.ErrNotFound)
		}
		return put(b, pair)
	})
}

// Delete удаляет пару
func (s *PairStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("пара %s: %w", key, storage.ErrNotFound)
		}
		if err := b.Delete([]byte(key)); err != nil {
			return fmt.Errorf("%w: удаление пары %s: %v", models.ErrRepository, key, err)
		}
		return nil
	})
}

// FindByKey ищет пару по ключу "EXCHANGE:SYMBOL"
func (s *PairStore) FindByKey(_ context.Context, key string) (*models.TradingPair, error) {
	var pair *models.TradingPair
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(pairsBucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("пара %s: %w", key, storage.ErrNotFound)
		}
		p, err := decode(data)
		if err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// FindAll все пары в порядке ключей
func (s *PairStore) FindAll(_ context.Context) ([]*models.TradingPair, error) {
	return s.collect(func(*models.TradingPair) bool { return true })
}

// FindActive активные пары
func (s *PairStore) FindActive(_ context.Context) ([]*models.TradingPair, error) {
	return s.collect(func(p *models.TradingPair) bool { return p.IsActive })
}

// SaveAll сохраняет пары одной транзакцией, заменяя существующие
func (s *PairStore) SaveAll(_ context.Context, pairs []*models.TradingPair) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		for _, p := range pairs {
			if err := put(b, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PairStore) collect(keep func(*models.TradingPair) bool) ([]*models.TradingPair, error) {
	var out []*models.TradingPair
	err := s.db.View(func(tx *bolt.Tx) error {
		// ключи bbolt уже отсортированы
		return tx.Bucket(pairsBucket).ForEach(func(_, v []byte) error {
			p, err := decode(v)
			if err != nil {
				return err
			}
			if keep(p) {
				out = append(out, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func put(b *bolt.Bucket, pair *models.TradingPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("%w: сериализация пары %s: %v", models.ErrRepository, pair.Key(), err)
	}
	if err := b.Put([]byte(pair.Key()), data); err != nil {
		return fmt.Errorf("%w: запись пары %s: %v", models.ErrRepository, pair.Key(), err)
	}
	return nil
}

func decode(data []byte) (*models.TradingPair, error) {
	var p models.TradingPair
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: разбор пары: %v", models.ErrRepository, err)
	}
	return &p, nil
}

var _ storage.PairRepository = (*PairStore)(nil)
