package volume

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Пороги уровней объема
const (
	HighThreshold   = 8.0
	NormalThreshold = 4.0
)

// Analyzer реализует анализатор объемов
type Analyzer struct {
	config config.VolumeConfig
}

// NewAnalyzer создает новый анализатор объемов
func NewAnalyzer(cfg config.VolumeConfig) *Analyzer {
	if cfg.Lookback < 3 {
		cfg.Lookback = 20
	}
	return &Analyzer{config: cfg}
}

// Analyze оценивает активность объема от 0 до 10 и уровень LOW/NORMAL/HIGH
func (a *Analyzer) Analyze(md *models.MarketData, ind models.IndicatorValues) models.VolumeAnalysis {
	ratio := ind.VolumeProfile.Ratio
	res := models.VolumeAnalysis{Ratio: ratio}

	score := baseScore(ratio)
	res.Reasons = append(res.Reasons, fmt.Sprintf("объем %.2fx от среднего", ratio))

	score += a.priceVolumeCoherence(md, ratio, &res)
	score += a.sessionAdjustment(md, &res)
	score += a.multiPeriod(md, &res)
	score += a.volatilityCoherence(md, ratio, &res)

	res.Score = math.Max(0, math.Min(10, score))
	switch {
	case res.Score >= HighThreshold:
		res.Level = models.VolumeHigh
	case res.Score >= NormalThreshold:
		res.Level = models.VolumeNormal
	default:
		res.Level = models.VolumeLow
	}

	logger.Debug("Анализ объемов завершен",
		zap.String("symbol", md.Symbol),
		zap.Float64("ratio", ratio),
		zap.Float64("score", res.Score),
		zap.String("level", string(res.Level)))

	return res
}

// baseScore базовая оценка по отношению объема к среднему
func baseScore(ratio float64) float64 {
	switch {
	case ratio >= 3:
		return 8
	case ratio >= 2:
		return 7
	case ratio >= 1.5:
		return 6
	case ratio >= 1:
		return 5
	case ratio >= 0.7:
		return 4
	case ratio >= 0.5:
		return 3
	default:
		return 2
	}
}

// priceVolumeCoherence движение свечи в любую сторону на повышенном объеме
// подтверждается, сильное движение на низком объеме ослабляется
func (a *Analyzer) priceVolumeCoherence(md *models.MarketData, ratio float64, res *models.VolumeAnalysis) float64 {
	last, ok := md.Last()
	if !ok || last.Open <= 0 {
		return 0
	}
	move := (last.Close - last.Open) / last.Open * 100

	if ratio > 1.2 && move != 0 {
		if move > 0 {
			res.Reasons = append(res.Reasons, "рост подтвержден объемом")
		} else {
			res.Reasons = append(res.Reasons, "падение подтверждено объемом")
		}
		return 1
	}
	if ratio < 0.8 && math.Abs(move) > 1 {
		res.Reasons = append(res.Reasons, fmt.Sprintf("движение %.2f%% на низком объеме", move))
		return -1
	}
	return 0
}

// sessionAdjustment поправка на торговую сессию по времени последней свечи (UTC)
func (a *Analyzer) sessionAdjustment(md *models.MarketData, res *models.VolumeAnalysis) float64 {
	last, ok := md.Last()
	if !ok {
		return 0
	}
	hour := last.Timestamp.UTC().Hour()
	switch {
	case hour >= 12 && hour < 16:
		res.Reasons = append(res.Reasons, "пересечение европейской и американской сессий")
		return 0.5
	case hour >= 22 || hour < 1:
		res.Reasons = append(res.Reasons, "низколиквидные часы")
		return -0.5
	}
	return 0
}

// multiPeriod z-score последнего объема, корреляция цены и объема и наклон объема
// на скользящем окне
func (a *Analyzer) multiPeriod(md *models.MarketData, res *models.VolumeAnalysis) float64 {
	candles := md.Candles()
	n := a.config.Lookback
	if len(candles) < n+1 {
		n = len(candles) - 1
	}
	if n < 3 {
		return 0
	}
	window := candles[len(candles)-n-1:]

	volumes := make([]float64, 0, n)
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		volumes = append(volumes, window[i].Volume)
		prev := window[i-1].Close
		var r float64
		if prev > 0 {
			r = (window[i].Close - prev) / prev * 100
		}
		returns = append(returns, r)
	}

	var adj float64

	history := volumes[:len(volumes)-1]
	mean, std := meanStd(history)
	if !negligible(std, mean) {
		res.ZScore = (volumes[len(volumes)-1] - mean) / std
	}
	switch {
	case res.ZScore >= 2:
		adj += 1
		res.Reasons = append(res.Reasons, fmt.Sprintf("всплеск объема, z=%.2f", res.ZScore))
	case res.ZScore <= -1.5:
		adj -= 0.5
		res.Reasons = append(res.Reasons, fmt.Sprintf("провал объема, z=%.2f", res.ZScore))
	}

	res.Correlation = pearson(returns, volumes)
	switch {
	case res.Correlation > 0.5:
		adj += 0.5
		res.Reasons = append(res.Reasons, "объем растет вместе с ценой")
	case res.Correlation < -0.5:
		adj -= 0.5
		res.Reasons = append(res.Reasons, "объем растет против цены")
	}

	if m, _ := meanStd(volumes); m > 0 {
		res.Slope = calculateSlope(volumes) / m
	}
	return adj
}

// volatilityCoherence высокая волатильность должна сопровождаться объемом
func (a *Analyzer) volatilityCoherence(md *models.MarketData, ratio float64, res *models.VolumeAnalysis) float64 {
	vol := md.Statistics().Volatility
	if vol <= 3 {
		return 0
	}
	if ratio < 0.8 {
		res.Reasons = append(res.Reasons, fmt.Sprintf("волатильность %.2f%% без объема", vol))
		return -1
	}
	if ratio > 1.5 {
		res.Reasons = append(res.Reasons, fmt.Sprintf("волатильность %.2f%% подтверждена объемом", vol))
		return 0.5
	}
	return 0
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// pearson коэффициент корреляции; 0 при нулевой дисперсии
func pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	mx, sx := meanStd(x)
	my, sy := meanStd(y)
	if negligible(sx, mx) || negligible(sy, my) {
		return 0
	}
	var cov float64
	for i := range x {
		cov += (x[i] - mx) * (y[i] - my)
	}
	cov /= float64(len(x))
	r := cov / (sx * sy)
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// negligible дисперсия на уровне ошибки округления
func negligible(std, mean float64) bool {
	return std <= 1e-9*math.Max(1, math.Abs(mean))
}

// calculateSlope вычисляет наклон линейной регрессии
func calculateSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}
