// Package events шина событий мониторинга
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"go.uber.org/zap"
)

// Type тип события
type Type string

const (
	MonitoringStarted      Type = "monitoring.started"
	MonitoringStopped      Type = "monitoring.stopped"
	MonitoringError        Type = "monitoring.error"
	SignalGenerated        Type = "signal.generated"
	SignalGenerationFailed Type = "signal.generation.failed"
	SignalBatchCompleted   Type = "signal.batch.completed"
	PairDeactivated        Type = "pair.deactivated"

	// All подписка на все типы событий
	All Type = "*"
)

// Event событие ядра
type Event struct {
	ID        string
	Type      Type
	Pair      string
	Exchange  string
	Timestamp time.Time
	Data      map[string]any
}

// New создает событие с новым идентификатором
func New(t Type, exchange, pair string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Pair:      pair,
		Exchange:  exchange,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Handler обработчик события
type Handler func(ctx context.Context, e Event)

// Bus публикация событий. Доставка не более одного раза текущим подписчикам,
// Publish не ждет обработчиков.
type Bus interface {
	Publish(ctx context.Context, e Event)
	Subscribe(t Type, h Handler) (unsubscribe func())
}

type subscription struct {
	id int
	h  Handler
}

// InMemoryBus шина в памяти процесса; каждый обработчик вызывается в своей горутине
type InMemoryBus struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	nextID int
	wg     sync.WaitGroup
}

// NewInMemoryBus создает пустую шину
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[Type][]subscription)}
}

// Subscribe регистрирует обработчик для типа события или All
func (b *InMemoryBus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, h: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// Publish рассылает событие подписчикам асинхронно
func (b *InMemoryBus) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Type])+len(b.subs[All]))
	for _, s := range b.subs[e.Type] {
		handlers = append(handlers, s.h)
	}
	for _, s := range b.subs[All] {
		handlers = append(handlers, s.h)
	}
	b.mu.RUnlock()

	// обработчики не должны наследовать отмену тика
	hctx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Паника в обработчике события",
						zap.String("type", string(e.Type)),
						zap.String("panic", fmt.Sprint(r)))
				}
			}()
			h(hctx, e)
		}(h)
	}
}

// Wait ждет завершения всех запущенных обработчиков
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}
