package generator

import (
	"github.com/skalibog/cryptosignals/pkg/models"
)

// BaseSpread базовый спред входа, доля от цены
const BaseSpread = 0.0005

// HighVolatility порог волатильности (%), выше которого спред удваивается
const HighVolatility = 3.0

// EntrySpread адаптивный спред входа
func EntrySpread(volatility float64, volume models.VolumeLevel, risk models.RiskLevel) float64 {
	spread := BaseSpread
	if volatility > HighVolatility {
		spread *= 2
	}
	switch volume {
	case models.VolumeLow:
		spread *= 1.5
	case models.VolumeHigh:
		spread *= 0.7
	}
	switch risk {
	case models.RiskHigh:
		spread *= 1.5
	case models.RiskVeryHigh:
		spread *= 2
	}
	return spread
}

// EntryPrice цена входа со спредом: LONG покупает выше, SHORT продает ниже,
// чтобы исполнение было гарантированным
func EntryPrice(price, spread float64, dir models.Direction) float64 {
	if dir == models.DirectionShort {
		return price * (1 - spread)
	}
	return price * (1 + spread)
}

// Multipliers множители дистанций стопа и тейк-профитов
type Multipliers struct {
	StopLoss   float64
	TakeProfit float64
}

// Множители категории применяются и к стопу, и к тейк-профитам
var categoryMultiplier = map[models.Category]float64{
	models.CategoryMajor: 1.0,
	models.CategoryAlt:   1.2,
	models.CategoryDeFi:  1.3,
	models.CategoryMeme:  1.6,
}

// TargetMultipliers множители по качеству сигнала, уверенности, объему и категории
func TargetMultipliers(score, confidence float64, volume models.VolumeLevel, category models.Category) Multipliers {
	m := Multipliers{StopLoss: 1, TakeProfit: 1}

	switch {
	case score >= 8:
		m.TakeProfit *= 1.2
	case score < 6:
		m.TakeProfit *= 0.9
		m.StopLoss *= 0.9
	}

	switch {
	case confidence >= 8:
		m.TakeProfit *= 1.1
	case confidence < 6:
		m.StopLoss *= 0.9
	}

	switch volume {
	case models.VolumeHigh:
		m.TakeProfit *= 1.1
	case models.VolumeLow:
		m.TakeProfit *= 0.9
		m.StopLoss *= 0.9
	}

	if c, ok := categoryMultiplier[category]; ok {
		m.StopLoss *= c
		m.TakeProfit *= c
	}
	return m
}

// TargetFractions дистанции стопа и тейк-профитов в долях от входа.
// Тейк-профиты растягиваются до минимального риск/прибыль, не более трех.
func TargetFractions(risk models.RiskConfig, m Multipliers) (float64, []float64) {
	sl := risk.StopLoss * m.StopLoss

	tps := make([]float64, 0, models.MaxTakeProfits)
	for _, tp := range risk.TakeProfits {
		if len(tps) == models.MaxTakeProfits {
			break
		}
		tps = append(tps, tp*m.TakeProfit)
	}
	if len(tps) == 0 || sl <= 0 {
		return sl, tps
	}

	if rr := tps[0] / sl; rr+rrTolerance < risk.MinRiskReward {
		stretch := risk.MinRiskReward / rr
		for i := range tps {
			tps[i] *= stretch
		}
	}
	return sl, tps
}

// LevelsFor абсолютные уровни по дистанциям
func LevelsFor(entry float64, dir models.Direction, sl float64, tps []float64) models.Targets {
	t := models.Targets{TakeProfits: make([]float64, len(tps))}
	if dir == models.DirectionShort {
		t.StopLoss = entry * (1 + sl)
		for i, tp := range tps {
			t.TakeProfits[i] = entry * (1 - tp)
		}
		return t
	}
	t.StopLoss = entry * (1 - sl)
	for i, tp := range tps {
		t.TakeProfits[i] = entry * (1 + tp)
	}
	return t
}

// Поправки уверенности по уровню риска и категории
var (
	riskConfidenceAdj = map[models.RiskLevel]float64{
		models.RiskLow:      0.5,
		models.RiskMedium:   0,
		models.RiskHigh:     -1,
		models.RiskVeryHigh: -2,
	}
	categoryConfidenceAdj = map[models.Category]float64{
		models.CategoryMajor: 0.3,
		models.CategoryAlt:   0,
		models.CategoryDeFi:  -0.3,
		models.CategoryMeme:  -0.7,
	}
)

// SignalConfidence уверенность сигнала: 60% уверенности анализа и 40% оценки
// с поправками на риск и категорию, в пределах [1, 10]
func SignalConfidence(a *models.MarketAnalysis, category models.Category) float64 {
	c := 0.6*a.Score.Confidence + 0.4*a.Score.TotalScore
	c += riskConfidenceAdj[a.Risk.Level]
	c += categoryConfidenceAdj[category]
	return clamp(c, 1, 10)
}
