package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/cryptosignals/internal/analysis/risk"
	"github.com/skalibog/cryptosignals/internal/analysis/scoring"
	"github.com/skalibog/cryptosignals/internal/analysis/technical"
	"github.com/skalibog/cryptosignals/internal/analysis/trend"
	"github.com/skalibog/cryptosignals/internal/analysis/volume"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Analyzer объединяет все аналитические компоненты для одного снимка рынка
type Analyzer struct {
	engine     *technical.Engine
	trendAnal  trend.MarketAnalyzer
	volumeAnal *volume.Analyzer
	riskAnal   *risk.Analyzer
	scorer     *scoring.Scorer
	now        func() time.Time
}

// Option настройка анализатора
type Option func(*Analyzer)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(cfg config.AnalysisConfig, opts ...Option) (*Analyzer, error) {
	trendAnal, err := trend.NewAnalyzer(cfg.TrendModel, cfg.Trend)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		engine:     technical.NewEngine(),
		trendAnal:  trendAnal,
		volumeAnal: volume.NewAnalyzer(cfg.Volume),
		riskAnal:   risk.NewAnalyzer(cfg.Risk),
		scorer:     scoring.NewScorer(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TrendModel имя используемой модели тренда
func (a *Analyzer) TrendModel() string {
	return a.trendAnal.Name()
}

// Analyze выполняет полный анализ: индикаторы, затем тренд и объем параллельно,
// затем риск и итоговая оценка
func (a *Analyzer) Analyze(ctx context.Context, md *models.MarketData, strategy *models.Strategy) (*models.MarketAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings := strategy.Indicators
	ind, err := a.engine.Calculate(md, settings)
	if err != nil {
		return nil, fmt.Errorf("ошибка расчета индикаторов: %w", err)
	}

	var wg sync.WaitGroup
	var trendSignal models.TrendSignal
	var volumeAnalysis models.VolumeAnalysis

	wg.Add(2)

	// Анализ тренда
	go func() {
		defer wg.Done()
		trendSignal = a.trendAnal.Analyze(md, ind, settings.RSI)
		logger.Debug("AGGREGATOR: Анализ тренда завершен",
			zap.String("symbol", md.Symbol),
			zap.String("direction", string(trendSignal.Direction)),
			zap.Float64("strength", trendSignal.Strength))
	}()

	// Анализ объемов
	go func() {
		defer wg.Done()
		volumeAnalysis = a.volumeAnal.Analyze(md, ind)
		logger.Debug("AGGREGATOR: Анализ объемов завершен",
			zap.String("symbol", md.Symbol),
			zap.String("level", string(volumeAnalysis.Level)))
	}()

	wg.Wait()

	now := a.now()
	riskAssessment := a.riskAnal.Assess(risk.Input{
		Market:     md,
		Indicators: ind,
		Trend:      trendSignal,
		Volume:     volumeAnalysis,
		RSI:        settings.RSI,
		Now:        now,
	})

	score := a.scorer.Score(scoring.Input{
		Trend:      trendSignal,
		Indicators: ind,
		Market:     md,
		Volume:     volumeAnalysis.Level,
		RSI:        settings.RSI,
		Now:        now,
	})

	logger.Debug("AGGREGATOR: Анализ завершен",
		zap.String("symbol", md.Symbol),
		zap.Float64("score", score.TotalScore),
		zap.String("direction", string(score.Direction)),
		zap.Float64("confidence", score.Confidence),
		zap.String("risk", string(riskAssessment.Level)))

	return &models.MarketAnalysis{
		Indicators: ind,
		Trend:      trendSignal,
		Volume:     volumeAnalysis,
		Risk:       riskAssessment,
		Score:      score,
	}, nil
}
