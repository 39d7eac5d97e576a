package generator

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// MarketConditions изменения рынка с момента генерации сигнала
type MarketConditions struct {
	VolatilityChange    float64 // относительное изменение волатильности, %
	VolumeChange        float64 // относительное изменение объема, %
	TrendStrengthChange float64 // изменение силы тренда, пункты шкалы 0..10
}

// Optimize возвращает новый сигнал с пересчитанными уровнями и уверенностью.
// Исходный сигнал не изменяется; результат зависит только от аргументов.
func Optimize(signal *models.Signal, mc MarketConditions) *models.Signal {
	out := signal.Clone()

	// волатильность раздвигает стоп и цели одинаково, риск/прибыль сохраняется
	volFactor := clamp(1+mc.VolatilityChange/100, 0.5, 2)
	tpFactor := volFactor
	if mc.TrendStrengthChange > 0 {
		tpFactor *= clamp(1+mc.TrendStrengthChange*0.05, 1, 1.5)
	}

	entry := signal.EntryPrice
	sign := 1.0
	if signal.Direction == models.DirectionShort {
		sign = -1
		// SHORT-цели должны остаться положительными
		if n := len(signal.Targets.TakeProfits); n > 0 {
			far := entry - signal.Targets.TakeProfits[n-1]
			if far > 0 && far*tpFactor >= entry*0.99 {
				tpFactor = entry * 0.99 / far
			}
		}
		// риск/прибыль не ниже исходного: стоп раздвигается не сильнее целей
		volFactor = math.Min(volFactor, tpFactor)
	}

	out.Targets.StopLoss = entry - sign*math.Abs(entry-signal.Targets.StopLoss)*volFactor
	for i, tp := range signal.Targets.TakeProfits {
		out.Targets.TakeProfits[i] = entry + sign*math.Abs(tp-entry)*tpFactor
	}

	confidence := signal.Confidence
	if mc.VolatilityChange > 20 {
		confidence -= 0.5
	}
	switch {
	case mc.VolumeChange > 20:
		confidence += 0.3
	case mc.VolumeChange < -20:
		confidence -= 0.3
	}
	confidence += clamp(mc.TrendStrengthChange*0.2, -1, 1)
	out.Confidence = clamp(confidence, 1, 10)

	if len(out.Reasoning) < models.MaxReasoning {
		out.Reasoning = append(out.Reasoning, fmt.Sprintf("Оптимизация: волатильность %+.0f%%, объем %+.0f%%, тренд %+.1f",
			mc.VolatilityChange, mc.VolumeChange, mc.TrendStrengthChange))
	}
	return out
}
