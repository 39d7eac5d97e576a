package trend

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// CascadeAnalyzer строгий классификатор: изменение цены за окно должно превысить
// порог, а направление подтверждается минимум двумя индикаторами из четырех
type CascadeAnalyzer struct {
	config config.TrendConfig
}

// NewCascadeAnalyzer создает каскадный классификатор
func NewCascadeAnalyzer(cfg config.TrendConfig) *CascadeAnalyzer {
	return &CascadeAnalyzer{config: cfg}
}

// Name имя модели
func (a *CascadeAnalyzer) Name() string {
	return "cascade"
}

// Analyze классифицирует тренд
func (a *CascadeAnalyzer) Analyze(md *models.MarketData, ind models.IndicatorValues, rsi models.RSISettings) models.TrendSignal {
	change := md.Statistics().PriceChange

	bull, bullReasons := a.confluence(ind, rsi, true)
	bear, bearReasons := a.confluence(ind, rsi, false)

	signal := models.TrendSignal{
		Direction: models.TrendSideways,
		BullVotes: float64(bull),
		BearVotes: float64(bear),
	}

	switch {
	case change >= a.config.ChangeThreshold && bull >= 2:
		signal.Direction = models.TrendBullish
		signal.Reasons = append([]string{fmt.Sprintf("рост %.2f%% выше порога %.2f%%", change, a.config.ChangeThreshold)}, bullReasons...)
		signal.Strength = clamp(float64(bull)*2+math.Abs(change)/a.config.ChangeThreshold, 1, 10)
		signal.Confidence = clamp(float64(bull)/4*10, 0, 10)
	case change <= -a.config.ChangeThreshold && bear >= 2:
		signal.Direction = models.TrendBearish
		signal.Reasons = append([]string{fmt.Sprintf("падение %.2f%% ниже порога -%.2f%%", change, a.config.ChangeThreshold)}, bearReasons...)
		signal.Strength = clamp(float64(bear)*2+math.Abs(change)/a.config.ChangeThreshold, 1, 10)
		signal.Confidence = clamp(float64(bear)/4*10, 0, 10)
	default:
		signal.Reasons = []string{fmt.Sprintf("изменение %.2f%% без подтверждения индикаторами", change)}
		signal.Strength = clamp(1+math.Abs(change)/a.config.ChangeThreshold, 1, 3)
		signal.Confidence = 5
	}
	return signal
}

// confluence считает подтверждения направления: выстроенные EMA, гистограмма MACD,
// положение RSI и сила тренда по ADX
func (a *CascadeAnalyzer) confluence(ind models.IndicatorValues, rsi models.RSISettings, bullish bool) (int, []string) {
	var n int
	var reasons []string

	if bullish {
		if ind.EMA.Short > ind.EMA.Medium && ind.EMA.Medium > ind.EMA.Long {
			n++
			reasons = append(reasons, "EMA выстроены вверх")
		}
		if ind.MACD.Histogram > 0 {
			n++
			reasons = append(reasons, "гистограмма MACD положительная")
		}
		if ind.RSI > 50 && ind.RSI <= rsi.Overbought {
			n++
			reasons = append(reasons, fmt.Sprintf("RSI %.1f в бычьей зоне", ind.RSI))
		}
	} else {
		if ind.EMA.Short < ind.EMA.Medium && ind.EMA.Medium < ind.EMA.Long {
			n++
			reasons = append(reasons, "EMA выстроены вниз")
		}
		if ind.MACD.Histogram < 0 {
			n++
			reasons = append(reasons, "гистограмма MACD отрицательная")
		}
		if ind.RSI < 50 && ind.RSI >= rsi.Oversold {
			n++
			reasons = append(reasons, fmt.Sprintf("RSI %.1f в медвежьей зоне", ind.RSI))
		}
	}

	if ind.ADX >= a.config.ADXMin {
		n++
		reasons = append(reasons, fmt.Sprintf("ADX %.1f подтверждает тренд", ind.ADX))
	}
	return n, reasons
}
