// Package exchange адаптеры бирж
package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// ErrRateLimited биржа ограничила частоту запросов
var ErrRateLimited = errors.New("превышен лимит запросов биржи")

// UnhealthyAfter число подряд неудачных запросов, после которого адаптер нездоров
const UnhealthyAfter = 3

// RateLimitCooldown пауза после ответа о превышении лимита
const RateLimitCooldown = time.Minute

// Adapter источник свечей биржи
type Adapter interface {
	Name() string
	GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error)
	Health() Health
}

// Health состояние адаптера
type Health struct {
	Healthy             bool
	RateLimited         bool
	ConsecutiveFailures int
	LastError           string
	LastSuccess         time.Time
}

// Available можно ли сейчас опрашивать биржу
func (h Health) Available() bool {
	return h.Healthy && !h.RateLimited
}

type healthTracker struct {
	mu           sync.Mutex
	now          func() time.Time
	failures     int
	lastError    string
	lastSuccess  time.Time
	limitedUntil time.Time
}

func newHealthTracker(now func() time.Time) *healthTracker {
	return &healthTracker{now: now}
}

func (h *healthTracker) success() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastError = ""
	h.lastSuccess = h.now()
}

func (h *healthTracker) failure(err error, rateLimited bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastError = err.Error()
	if rateLimited {
		h.limitedUntil = h.now().Add(RateLimitCooldown)
	}
}

func (h *healthTracker) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		Healthy:             h.failures < UnhealthyAfter,
		RateLimited:         h.now().Before(h.limitedUntil),
		ConsecutiveFailures: h.failures,
		LastError:           h.lastError,
		LastSuccess:         h.lastSuccess,
	}
}
