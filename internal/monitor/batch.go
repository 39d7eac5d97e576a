package monitor

import (
	"context"
	"sync"

	"github.com/skalibog/cryptosignals/internal/events"
	"github.com/skalibog/cryptosignals/internal/generator"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ограничение числа одновременных оценок в пакете
const batchConcurrency = 8

// PairResult результат оценки одной пары
type PairResult struct {
	Pair   string
	Result *generator.Result
}

// BatchResult итог пакетной оценки
type BatchResult struct {
	Results          []PairResult
	Failed           map[string]error
	SignalsGenerated int
}

// ExecuteForMultiplePairs оценивает пары параллельно. Ошибка одной пары не
// прерывает пакет; по завершении публикуется одно событие с итогами.
func (o *Orchestrator) ExecuteForMultiplePairs(ctx context.Context, pairs []*models.TradingPair) *BatchResult {
	var (
		mu  sync.Mutex
		out = &BatchResult{Failed: make(map[string]error)}
		g   errgroup.Group
	)
	g.SetLimit(batchConcurrency)

	for _, p := range pairs {
		g.Go(func() error {
			res, err := o.evaluate(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failed[p.Key()] = err
				logger.Warn("Ошибка оценки пары", zap.String("pair", p.Key()), zap.Error(err))
				return nil
			}
			out.Results = append(out.Results, PairResult{Pair: p.Key(), Result: res})
			if res.Signal != nil {
				out.SignalsGenerated++
			}
			return nil
		})
	}
	_ = g.Wait()

	o.deps.Bus.Publish(ctx, events.New(events.SignalBatchCompleted, "", "", map[string]any{
		"totalPairs":       len(pairs),
		"succeeded":        len(out.Results),
		"failed":           len(out.Failed),
		"signalsGenerated": out.SignalsGenerated,
	}))
	return out
}
