package risk

import (
	"fmt"
	"time"

	"github.com/skalibog/cryptosignals/internal/analysis/technical"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// Input данные для оценки риска
type Input struct {
	Market     *models.MarketData
	Indicators models.IndicatorValues
	Trend      models.TrendSignal
	Volume     models.VolumeAnalysis
	RSI        models.RSISettings
	Now        time.Time
}

// Analyzer реализует оценку риска
type Analyzer struct {
	config config.RiskConfig
}

// NewAnalyzer создает новый анализатор риска
func NewAnalyzer(cfg config.RiskConfig) *Analyzer {
	if cfg.StaleFactor <= 0 {
		cfg.StaleFactor = 2
	}
	return &Analyzer{config: cfg}
}

// Assess суммирует факторы риска и определяет уровень
func (a *Analyzer) Assess(in Input) models.RiskAssessment {
	var res models.RiskAssessment
	add := func(points float64, factor string) {
		res.Score += points
		res.Factors = append(res.Factors, factor)
	}

	stats := in.Market.Statistics()

	// Волатильность
	switch v := stats.Volatility; {
	case v > 5:
		add(3, fmt.Sprintf("экстремальная волатильность %.2f%%", v))
	case v > 3:
		add(2, fmt.Sprintf("высокая волатильность %.2f%%", v))
	case v > 1.5:
		add(1, fmt.Sprintf("повышенная волатильность %.2f%%", v))
	}

	// Объем
	if in.Volume.Level == models.VolumeLow {
		add(2, "низкий объем")
	}

	// Тренд
	if in.Trend.Direction == models.TrendSideways {
		add(2, "нет выраженного тренда")
	}
	if in.Trend.Strength < 4 {
		add(1, fmt.Sprintf("слабый тренд %.1f", in.Trend.Strength))
	}

	// Структура рынка
	if stats.PriceRange > 20 {
		add(1, fmt.Sprintf("широкий диапазон цены %.1f%%", stats.PriceRange))
	}
	if in.Market.IsStale(in.Now, a.config.StaleFactor) {
		add(2, fmt.Sprintf("устаревшие данные: %s", in.Market.Age(in.Now).Round(time.Second)))
	}

	// Дивергенция индикаторов
	count := technical.CountSignals(in.Indicators, in.Market.CurrentPrice(), in.RSI)
	if count.Divergent() {
		res.Divergence = true
		add(2, fmt.Sprintf("дивергенция индикаторов: %d бычьих, %d медвежьих", count.Bullish, count.Bearish))
	}

	res.Level = LevelFor(res.Score)
	res.Mitigation = Mitigation(res.Level)
	return res
}

// LevelFor уровень риска по баллам
func LevelFor(score float64) models.RiskLevel {
	switch {
	case score >= 8:
		return models.RiskVeryHigh
	case score >= 5:
		return models.RiskHigh
	case score >= 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Mitigation рекомендация по снижению риска
func Mitigation(level models.RiskLevel) string {
	switch level {
	case models.RiskVeryHigh:
		return "воздержаться от входа или минимальный размер позиции"
	case models.RiskHigh:
		return "уменьшить размер позиции вдвое и сузить стоп"
	case models.RiskMedium:
		return "стандартный размер позиции, строгий стоп-лосс"
	default:
		return "стандартное управление риском"
	}
}
