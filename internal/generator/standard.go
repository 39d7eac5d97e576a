package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// Standard генератор с адаптивным входом, уровнями и уверенностью
type Standard struct {
	gates
}

// NewStandard создает стандартный генератор
func NewStandard(analyzer Analyzer, signals storage.SignalRepository, cfg config.GeneratorConfig, opts ...Option) *Standard {
	return &Standard{gates: newGates(analyzer, signals, cfg, opts)}
}

// Generate прогоняет фильтры и строит сигнал
func (s *Standard) Generate(ctx context.Context, pair *models.TradingPair, md *models.MarketData) (*Result, error) {
	return s.run(ctx, pair, md, s.build)
}

func (s *Standard) build(pair *models.TradingPair, md *models.MarketData, a *models.MarketAnalysis, now time.Time) (*models.Signal, string) {
	dir := a.Score.Direction
	spread := EntrySpread(md.Statistics().Volatility, a.Volume.Level, a.Risk.Level)
	entry := EntryPrice(md.CurrentPrice(), spread, dir)

	confidence := SignalConfidence(a, pair.Category)
	m := TargetMultipliers(a.Score.TotalScore, confidence, a.Volume.Level, pair.Category)
	sl, tps := TargetFractions(pair.Strategy.Risk, m)

	signal, err := models.NewSignal(s.newID(), pair.Symbol, dir, entry, LevelsFor(entry, dir, sl, tps),
		confidence, reasoning(a), pair.Exchange, md.Timeframe, pair.Strategy.Name, now)
	if err != nil {
		return nil, fmt.Sprintf("не удалось построить сигнал: %v", err)
	}
	return signal, ""
}
