// Package generator принимает решение о генерации сигнала и рассчитывает его уровни
package generator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Generator решает, нужно ли генерировать сигнал для пары
type Generator interface {
	Generate(ctx context.Context, pair *models.TradingPair, md *models.MarketData) (*Result, error)
}

// Analyzer полный анализ снимка рынка
type Analyzer interface {
	Analyze(ctx context.Context, md *models.MarketData, strategy *models.Strategy) (*models.MarketAnalysis, error)
}

// Result результат генерации. При ShouldGenerate=false Reason объясняет отказ.
type Result struct {
	ShouldGenerate bool
	Signal         *models.Signal
	Reason         string
	Analysis       *models.MarketAnalysis
}

// Минимальная композитная оценка по категории пары
var categoryMinScore = map[models.Category]float64{
	models.CategoryMajor: 5.0,
	models.CategoryAlt:   5.5,
	models.CategoryDeFi:  6.0,
	models.CategoryMeme:  6.5,
}

// Минимальная уверенность по уровню риска
var riskMinConfidence = map[models.RiskLevel]float64{
	models.RiskLow:      5.0,
	models.RiskMedium:   5.5,
	models.RiskHigh:     6.5,
	models.RiskVeryHigh: 8.0,
}

// MinScore минимальная оценка для пары; не ниже MinSignalStrength стратегии
func MinScore(pair *models.TradingPair) float64 {
	threshold, ok := categoryMinScore[pair.Category]
	if !ok {
		threshold = categoryMinScore[models.CategoryAlt]
	}
	if pair.Strategy != nil {
		threshold = math.Max(threshold, pair.Strategy.Risk.MinSignalStrength)
	}
	return threshold
}

// MinConfidence минимальная уверенность для уровня риска
func MinConfidence(level models.RiskLevel) float64 {
	if v, ok := riskMinConfidence[level]; ok {
		return v
	}
	return riskMinConfidence[models.RiskVeryHigh]
}

// builder строит сигнал по прошедшему фильтры анализу; при отказе возвращает причину
type builder func(pair *models.TradingPair, md *models.MarketData, a *models.MarketAnalysis, now time.Time) (*models.Signal, string)

// Option настройка генератора
type Option func(*gates)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(g *gates) {
		g.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов сигналов
func WithIDGenerator(newID func() string) Option {
	return func(g *gates) {
		g.newID = newID
	}
}

// gates общая последовательность фильтров для всех реализаций
type gates struct {
	analyzer Analyzer
	signals  storage.SignalRepository
	cfg      config.GeneratorConfig
	now      func() time.Time
	newID    func() string
}

func newGates(analyzer Analyzer, signals storage.SignalRepository, cfg config.GeneratorConfig, opts []Option) gates {
	if cfg.MaxDataAge <= 0 {
		cfg.MaxDataAge = config.DefaultGeneratorConfig().MaxDataAge
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = config.DefaultGeneratorConfig().MinConfidence
	}
	g := gates{
		analyzer: analyzer,
		signals:  signals,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// New создает генератор по режиму из конфигурации
func New(analyzer Analyzer, signals storage.SignalRepository, cfg config.GeneratorConfig, opts ...Option) (Generator, error) {
	switch cfg.Mode {
	case config.GeneratorStandard, "":
		return NewStandard(analyzer, signals, cfg, opts...), nil
	case config.GeneratorBasic:
		return NewBasic(analyzer, signals, cfg, opts...), nil
	default:
		return nil, fmt.Errorf("неизвестный режим генератора: %s", cfg.Mode)
	}
}

func reject(reason string, analysis *models.MarketAnalysis) *Result {
	return &Result{Reason: reason, Analysis: analysis}
}

// run выполняет фильтры по порядку, останавливаясь на первом отказе
func (g *gates) run(ctx context.Context, pair *models.TradingPair, md *models.MarketData, build builder) (*Result, error) {
	if err := checkIdentity(pair, md); err != nil {
		return nil, err
	}
	now := g.now()
	strategy := pair.Strategy

	if !pair.IsActive {
		return reject("пара неактивна", nil), nil
	}
	if !pair.CooldownElapsed(now) {
		return reject(fmt.Sprintf("cooldown: осталось %s", pair.CooldownRemaining(now).Round(time.Second)), nil), nil
	}

	if need := strategy.RequiredCandles(); md.Len() < need {
		return reject(fmt.Sprintf("недостаточно данных: %d свечей из %d", md.Len(), need), nil), nil
	}
	if md.IsStale(now, g.cfg.MaxDataAge) {
		return reject(fmt.Sprintf("устаревшие данные: последняя свеча %s назад", md.Age(now).Round(time.Second)), nil), nil
	}

	analysis, err := g.analyzer.Analyze(ctx, md, strategy)
	if err != nil {
		return nil, err
	}
	score := analysis.Score

	if threshold := MinScore(pair); score.TotalScore < threshold {
		return reject(fmt.Sprintf("оценка %.2f ниже минимума %.1f для категории %s",
			score.TotalScore, threshold, pair.Category), analysis), nil
	}
	if threshold := MinConfidence(analysis.Risk.Level); score.Confidence < threshold {
		return reject(fmt.Sprintf("уверенность %.2f ниже минимума %.1f при риске %s",
			score.Confidence, threshold, analysis.Risk.Level), analysis), nil
	}
	if score.Recommendation.Action == models.ActionHold || score.Direction == models.DirectionHold {
		return reject("рекомендация HOLD", analysis), nil
	}

	// чтение без блокировки: небольшое превышение лимита при гонке допустимо
	active, err := g.signals.FindActiveByPair(ctx, pair.Exchange, pair.Symbol)
	if err != nil {
		return nil, fmt.Errorf("проверка активных сигналов %s: %w", pair.Key(), err)
	}
	if len(active) >= strategy.Risk.MaxSimultaneousSignals {
		return reject(fmt.Sprintf("достигнут лимит активных сигналов: %d из %d",
			len(active), strategy.Risk.MaxSimultaneousSignals), analysis), nil
	}

	signal, reason := build(pair, md, analysis, now)
	if signal == nil {
		return reject(reason, analysis), nil
	}
	if reason := g.validate(signal, strategy, analysis.Risk.Level); reason != "" {
		logger.Debug("Сигнал отклонен проверкой",
			zap.String("pair", pair.Key()),
			zap.String("reason", reason))
		return reject(reason, analysis), nil
	}

	logger.Info("Сгенерирован сигнал",
		zap.String("pair", pair.Key()),
		zap.String("direction", string(signal.Direction)),
		zap.Float64("entry", signal.EntryPrice),
		zap.Float64("confidence", signal.Confidence))

	return &Result{ShouldGenerate: true, Signal: signal, Analysis: analysis}, nil
}

func checkIdentity(pair *models.TradingPair, md *models.MarketData) error {
	if pair == nil || md == nil {
		return fmt.Errorf("%w: пустая пара или рыночные данные", models.ErrValidation)
	}
	if pair.Strategy == nil {
		return fmt.Errorf("%w: у пары %s нет стратегии", models.ErrValidation, pair.Key())
	}
	if pair.Symbol != md.Symbol || pair.Exchange != md.Exchange {
		return fmt.Errorf("%w: данные %s:%s не соответствуют паре %s",
			models.ErrValidation, md.Exchange, md.Symbol, pair.Key())
	}
	if md.Timeframe != pair.Strategy.Timeframe {
		return fmt.Errorf("%w: таймфрейм данных %s не совпадает со стратегией %s",
			models.ErrValidation, md.Timeframe, pair.Strategy.Timeframe)
	}
	return nil
}

// reasoning пункты обоснования сигнала, не более models.MaxReasoning
func reasoning(a *models.MarketAnalysis) []string {
	out := []string{
		fmt.Sprintf("Композитная оценка %.1f/10 (%s)", a.Score.TotalScore, a.Score.Strength),
		fmt.Sprintf("Тренд %s: сила %.1f, уверенность %.1f", a.Trend.Direction, a.Trend.Strength, a.Trend.Confidence),
		fmt.Sprintf("Объем %s (оценка %.1f)", a.Volume.Level, a.Volume.Score),
		fmt.Sprintf("Риск %s: %s", a.Risk.Level, a.Risk.Mitigation),
	}
	for _, r := range a.Trend.Reasons {
		if len(out) >= models.MaxReasoning {
			break
		}
		out = append(out, r)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
