package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/skalibog/cryptosignals/internal/analysis/technical"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Ограничения компонентов оценки
const (
	MaxTrend    = 4.0
	MaxMomentum = 3.0
	MaxVolume   = 2.0
	MaxTiming   = 1.0

	// MinActionableScore ниже этой оценки направление HOLD
	MinActionableScore = 4.0

	// maxPenalties сумма всех штрафов по модулю
	maxPenalties = 2.8
)

// Input данные для расчета оценки
type Input struct {
	Trend      models.TrendSignal
	Indicators models.IndicatorValues
	Market     *models.MarketData
	Volume     models.VolumeLevel
	RSI        models.RSISettings
	Now        time.Time
}

// Scorer объединяет результаты анализаторов в итоговую оценку 0..10
type Scorer struct{}

// NewScorer создает новый калькулятор оценки
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score рассчитывает оценку. Не возвращает ошибок: при сбое расчета
// результатом будет безопасная оценка HOLD с высоким риском.
func (s *Scorer) Score(in Input) (out models.SignalScore) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника при расчете оценки", zap.Any("panic", r))
			out = SafeScore(fmt.Sprintf("ошибка расчета оценки: %v", r))
		}
	}()

	if in.Market == nil {
		return SafeScore("нет рыночных данных")
	}

	var b models.ScoreBreakdown
	var details []string

	b.Trend = trendComponent(in.Trend)
	details = append(details, fmt.Sprintf("тренд %s (сила %.1f): %.2f", in.Trend.Direction, in.Trend.Strength, b.Trend))

	b.Momentum = momentumComponent(in.Trend.Direction, in.Indicators.RSI, in.Market.Statistics().PriceChange)
	details = append(details, fmt.Sprintf("моментум (RSI %.1f): %.2f", in.Indicators.RSI, b.Momentum))

	b.Volume = volumeComponent(in.Volume)
	details = append(details, fmt.Sprintf("объем %s: %.2f", in.Volume, b.Volume))

	b.Timing = timingComponent(in.Trend.Direction, in.Indicators.RSI)
	details = append(details, fmt.Sprintf("тайминг входа: %.2f", b.Timing))

	var penaltyReasons []string
	b.Penalties, penaltyReasons = penalties(in)
	details = append(details, penaltyReasons...)

	total := clamp(b.Trend+b.Momentum+b.Volume+b.Timing+b.Penalties, 0, 10)

	out = models.SignalScore{
		TotalScore: total,
		Direction:  direction(total, in.Trend.Direction),
		Strength:   strength(total),
		Breakdown:  b,
		Details:    details,
	}

	bonus := 10 * (1 - math.Abs(b.Penalties)/maxPenalties)
	out.Confidence = clamp(0.5*total+0.3*in.Trend.Confidence+0.2*bonus, 0, 10)
	out.Recommendation = recommend(out, in.Volume)

	if !finiteScore(out) {
		return SafeScore("нечисловой результат оценки")
	}
	return out
}

// SafeScore безопасная оценка для деградации при ошибках
func SafeScore(reason string) models.SignalScore {
	return models.SignalScore{
		TotalScore: 0,
		Direction:  models.DirectionHold,
		Strength:   models.StrengthWeak,
		Confidence: 0,
		Recommendation: models.Recommendation{
			Action:    models.ActionHold,
			RiskLevel: models.RiskHigh,
		},
		Details: []string{reason},
	}
}

func trendComponent(t models.TrendSignal) float64 {
	v := clamp(t.Strength/10*MaxTrend, 0, MaxTrend)
	if t.Direction == models.TrendSideways {
		return math.Min(v, 1)
	}
	return v
}

func momentumComponent(dir models.TrendDirection, rsi, change float64) float64 {
	var positioning float64
	switch dir {
	case models.TrendBearish:
		switch {
		case rsi >= 30 && rsi <= 50:
			positioning = 2
		case rsi > 50 && rsi <= 60:
			positioning = 1
		default:
			positioning = 0.5
		}
	default:
		switch {
		case rsi >= 50 && rsi <= 70:
			positioning = 2
		case rsi >= 40 && rsi < 50:
			positioning = 1
		default:
			positioning = 0.5
		}
	}
	return clamp(positioning+math.Min(1, math.Abs(change)/5), 0, MaxMomentum)
}

func volumeComponent(level models.VolumeLevel) float64 {
	switch level {
	case models.VolumeHigh:
		return 2
	case models.VolumeNormal:
		return 1
	default:
		return 0.3
	}
}

// timingComponent вход лучше до перекупленности (для лонга) или перепроданности (для шорта)
func timingComponent(dir models.TrendDirection, rsi float64) float64 {
	switch dir {
	case models.TrendBullish:
		switch {
		case rsi < 60:
			return 1
		case rsi < 70:
			return 0.5
		}
	case models.TrendBearish:
		switch {
		case rsi > 40:
			return 1
		case rsi > 30:
			return 0.5
		}
	}
	return 0
}

func penalties(in Input) (float64, []string) {
	var p float64
	var reasons []string

	if technical.CountSignals(in.Indicators, in.Market.CurrentPrice(), in.RSI).Divergent() {
		p -= 1
		reasons = append(reasons, "штраф: дивергенция индикаторов -1")
	}

	tf := in.Market.Timeframe.Duration()
	switch age := in.Market.Age(in.Now); {
	case age > 5*tf:
		p -= 1
		reasons = append(reasons, "штраф: сильно устаревшие данные -1")
	case age > 2*tf:
		p -= 0.5
		reasons = append(reasons, "штраф: устаревшие данные -0.5")
	}

	if in.Indicators.RSI > 80 || in.Indicators.RSI < 20 {
		p -= 0.5
		reasons = append(reasons, fmt.Sprintf("штраф: экстремальный RSI %.1f -0.5", in.Indicators.RSI))
	}

	if in.Indicators.VolumeProfile.Ratio < 0.5 {
		p -= 0.3
		reasons = append(reasons, "штраф: низкая активность -0.3")
	}

	return p, reasons
}

func direction(total float64, trend models.TrendDirection) models.Direction {
	if total < MinActionableScore {
		return models.DirectionHold
	}
	switch trend {
	case models.TrendBullish:
		return models.DirectionLong
	case models.TrendBearish:
		return models.DirectionShort
	default:
		return models.DirectionHold
	}
}

func strength(total float64) models.SignalStrength {
	switch {
	case total >= 8:
		return models.StrengthStrong
	case total >= 6:
		return models.StrengthModerate
	default:
		return models.StrengthWeak
	}
}

func recommend(s models.SignalScore, volume models.VolumeLevel) models.Recommendation {
	rec := models.Recommendation{Action: models.ActionHold}

	strong := s.TotalScore >= 8 && s.Confidence >= 7
	actionable := s.TotalScore >= MinActionableScore && s.Confidence >= 5

	switch s.Direction {
	case models.DirectionLong:
		if strong {
			rec.Action = models.ActionStrongBuy
		} else if actionable {
			rec.Action = models.ActionBuy
		}
	case models.DirectionShort:
		if strong {
			rec.Action = models.ActionStrongSell
		} else if actionable {
			rec.Action = models.ActionSell
		}
	}

	switch rec.Action {
	case models.ActionStrongBuy, models.ActionStrongSell:
		rec.PositionSize = 1.0
	case models.ActionBuy, models.ActionSell:
		rec.PositionSize = 0.7
	}
	if volume == models.VolumeLow || s.Breakdown.Penalties < -1 {
		rec.PositionSize *= 0.5
	}

	switch {
	case s.Breakdown.Penalties <= -1.5 || s.Confidence < 5:
		rec.RiskLevel = models.RiskHigh
	case strong:
		rec.RiskLevel = models.RiskLow
	default:
		rec.RiskLevel = models.RiskMedium
	}
	return rec
}

func finiteScore(s models.SignalScore) bool {
	values := []float64{
		s.TotalScore, s.Confidence, s.Recommendation.PositionSize,
		s.Breakdown.Trend, s.Breakdown.Momentum, s.Breakdown.Volume, s.Breakdown.Timing, s.Breakdown.Penalties,
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}
