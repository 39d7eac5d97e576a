package config

import (
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// DefaultStrategyName стратегия, используемая парами без явной стратегии
const DefaultStrategyName = "default"

// BuildStrategies создает стратегии из конфигурации. Стратегия "default"
// с таймфреймом 1h добавляется, если не объявлена явно.
func (c *Config) BuildStrategies() (map[string]*models.Strategy, error) {
	out := make(map[string]*models.Strategy, len(c.Strategies)+1)
	for _, sc := range c.Strategies {
		s, err := sc.Build()
		if err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	if _, ok := out[DefaultStrategyName]; !ok {
		out[DefaultStrategyName] = models.DefaultStrategy(DefaultStrategyName, "1h")
	}
	return out, nil
}

// Build создает стратегию, заполняя нулевые поля стандартными значениями
func (sc StrategyConfig) Build() (*models.Strategy, error) {
	ind := models.DefaultIndicatorSettings()
	ic := sc.Indicators
	setInt(&ind.EMA.Short, ic.EMAShort)
	setInt(&ind.EMA.Medium, ic.EMAMedium)
	setInt(&ind.EMA.Long, ic.EMALong)
	setInt(&ind.RSI.Period, ic.RSIPeriod)
	setFloat(&ind.RSI.Overbought, ic.RSIOverbought)
	setFloat(&ind.RSI.Oversold, ic.RSIOversold)
	setInt(&ind.MACD.Fast, ic.MACDFast)
	setInt(&ind.MACD.Slow, ic.MACDSlow)
	setInt(&ind.MACD.Signal, ic.MACDSignal)
	setInt(&ind.Bollinger.Period, ic.BBPeriod)
	setFloat(&ind.Bollinger.StdDev, ic.BBStdDev)
	setInt(&ind.Stochastic.KPeriod, ic.StochK)
	setInt(&ind.Stochastic.DPeriod, ic.StochD)
	setInt(&ind.ATRPeriod, ic.ATRPeriod)
	setInt(&ind.ADXPeriod, ic.ADXPeriod)
	setInt(&ind.VolumePeriod, ic.VolumePeriod)

	risk := models.DefaultRiskConfig()
	rc := sc.Risk
	setFloat(&risk.StopLoss, rc.StopLoss)
	if len(rc.TakeProfits) > 0 {
		risk.TakeProfits = rc.TakeProfits
	}
	setFloat(&risk.MinSignalStrength, rc.MinSignalStrength)
	setInt(&risk.MaxSimultaneousSignals, rc.MaxSimultaneousSignals)
	setFloat(&risk.MinRiskReward, rc.MinRiskReward)

	tf := models.Timeframe(sc.Timeframe)
	if tf == "" {
		tf = "1h"
	}

	s, err := models.NewStrategy(sc.Name, tf, ind, risk)
	if err != nil {
		return nil, fmt.Errorf("стратегия %s: %w", sc.Name, err)
	}
	return s, nil
}

// BuildPairs создает торговые пары; стратегии берутся из strategies по имени
func (c *Config) BuildPairs(strategies map[string]*models.Strategy, now time.Time) ([]*models.TradingPair, error) {
	pairs := make([]*models.TradingPair, 0, len(c.Pairs))
	for _, pc := range c.Pairs {
		name := pc.Strategy
		if name == "" {
			name = DefaultStrategyName
		}
		strategy, ok := strategies[name]
		if !ok {
			return nil, fmt.Errorf("пара %s: стратегия %q не найдена", pc.Symbol, name)
		}

		p, err := models.NewTradingPair(pc.Symbol, pc.BaseAsset, pc.QuoteAsset, pc.Exchange,
			models.Category(pc.Category),
			models.PairSettings{SignalCooldown: pc.Cooldown, SpecialRules: pc.SpecialRules},
			strategy.Clone(), now)
		if err != nil {
			return nil, fmt.Errorf("пара %s: %w", pc.Symbol, err)
		}
		if pc.Disabled {
			p.Deactivate("отключена в конфигурации")
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
