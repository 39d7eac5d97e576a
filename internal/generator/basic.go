package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// Basic генератор с теми же фильтрами, но с фиксированными уровнями стратегии:
// вход по цене закрытия, без адаптивных множителей
type Basic struct {
	gates
}

// NewBasic создает упрощенный генератор
func NewBasic(analyzer Analyzer, signals storage.SignalRepository, cfg config.GeneratorConfig, opts ...Option) *Basic {
	return &Basic{gates: newGates(analyzer, signals, cfg, opts)}
}

// Generate прогоняет фильтры и строит сигнал
func (b *Basic) Generate(ctx context.Context, pair *models.TradingPair, md *models.MarketData) (*Result, error) {
	return b.run(ctx, pair, md, b.build)
}

func (b *Basic) build(pair *models.TradingPair, md *models.MarketData, a *models.MarketAnalysis, now time.Time) (*models.Signal, string) {
	dir := a.Score.Direction
	entry := md.CurrentPrice()
	sl, tps := TargetFractions(pair.Strategy.Risk, Multipliers{StopLoss: 1, TakeProfit: 1})

	signal, err := models.NewSignal(b.newID(), pair.Symbol, dir, entry, LevelsFor(entry, dir, sl, tps),
		clamp(a.Score.Confidence, 1, 10), reasoning(a), pair.Exchange, md.Timeframe, pair.Strategy.Name, now)
	if err != nil {
		return nil, fmt.Sprintf("не удалось построить сигнал: %v", err)
	}
	return signal, ""
}
