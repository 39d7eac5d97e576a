package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/cryptosignals/internal/analysis/aggregator"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/storage/memory"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeAnalyzer struct {
	analysis *models.MarketAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(context.Context, *models.MarketData, *models.Strategy) (*models.MarketAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.analysis
	return &cp, nil
}

func bullishAnalysis() *models.MarketAnalysis {
	return &models.MarketAnalysis{
		Trend:  models.TrendSignal{Direction: models.TrendBullish, Strength: 8, Confidence: 8, Reasons: []string{"цена выше EMA"}},
		Volume: models.VolumeAnalysis{Level: models.VolumeNormal, Score: 5},
		Risk:   models.RiskAssessment{Level: models.RiskLow, Mitigation: "стандартный размер позиции"},
		Score: models.SignalScore{
			TotalScore: 7,
			Direction:  models.DirectionLong,
			Strength:   models.StrengthModerate,
			Confidence: 7,
			Recommendation: models.Recommendation{
				Action:       models.ActionBuy,
				PositionSize: 0.7,
				RiskLevel:    models.RiskMedium,
			},
		},
	}
}

func bearishAnalysis() *models.MarketAnalysis {
	a := bullishAnalysis()
	a.Trend.Direction = models.TrendBearish
	a.Score.Direction = models.DirectionShort
	a.Score.Recommendation.Action = models.ActionSell
	return a
}

func risingData(n int) *models.MarketData {
	return testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(n, 100, 0.005, "1h", now), now)
}

type fixture struct {
	analyzer *fakeAnalyzer
	signals  *memory.SignalStore
	gen      *Standard
	pair     *models.TradingPair
}

func newFixture(t *testing.T, a *models.MarketAnalysis) *fixture {
	t.Helper()
	f := &fixture{
		analyzer: &fakeAnalyzer{analysis: a},
		signals:  memory.NewSignalStore(),
		pair:     testutil.Pair("BTCUSDT", models.CategoryMajor, now.Add(-24*time.Hour)),
	}
	f.gen = NewStandard(f.analyzer, f.signals, config.DefaultGeneratorConfig(),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "sig-1" }))
	return f
}

func TestGenerate_RisingMarketScenario(t *testing.T) {
	analyzer, err := aggregator.NewAnalyzer(config.AnalysisConfig{
		TrendModel: config.TrendVoting,
		Trend:      config.DefaultTrendConfig(),
	}, aggregator.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	signals := memory.NewSignalStore()
	gen := NewStandard(analyzer, signals, config.DefaultGeneratorConfig(), WithClock(func() time.Time { return now }))

	pair := testutil.Pair("BTCUSDT", models.CategoryMajor, now)
	pair.Settings.SignalCooldown = 0

	res, err := gen.Generate(context.Background(), pair, risingData(60))
	require.NoError(t, err)
	require.True(t, res.ShouldGenerate, res.Reason)

	sig := res.Signal
	assert.Equal(t, models.DirectionLong, sig.Direction)
	assert.Equal(t, models.StatusPending, sig.Status)
	assert.NotEmpty(t, sig.ID)
	assert.GreaterOrEqual(t, sig.Confidence, 1.0)
	assert.LessOrEqual(t, sig.Confidence, 10.0)
	assert.Less(t, sig.Targets.StopLoss, sig.EntryPrice)
	assert.Less(t, sig.EntryPrice, sig.Targets.TakeProfits[0])
	assert.GreaterOrEqual(t, sig.RiskReward()+1e-9, pair.Strategy.Risk.MinRiskReward)
	assert.LessOrEqual(t, len(sig.Targets.TakeProfits), models.MaxTakeProfits)
	assert.NotEmpty(t, sig.Reasoning)

	// генератор не сохраняет сигналы
	assert.Equal(t, 0, signals.Len())
}

func TestGenerate_InsufficientData(t *testing.T) {
	f := newFixture(t, bullishAnalysis())

	res, err := f.gen.Generate(context.Background(), f.pair, risingData(10))
	require.NoError(t, err)
	assert.False(t, res.ShouldGenerate)
	assert.Contains(t, res.Reason, "недостаточно данных")
	assert.Nil(t, res.Signal)
	assert.Equal(t, 0, f.analyzer.calls)
	assert.Equal(t, 0, f.signals.Len())
}

func TestGenerate_Accepted(t *testing.T) {
	f := newFixture(t, bullishAnalysis())
	md := risingData(60)

	res, err := f.gen.Generate(context.Background(), f.pair, md)
	require.NoError(t, err)
	require.True(t, res.ShouldGenerate, res.Reason)

	sig := res.Signal
	closeP := md.CurrentPrice()
	entry := closeP * (1 + BaseSpread)
	assert.Equal(t, "sig-1", sig.ID)
	assert.InDelta(t, entry, sig.EntryPrice, 1e-9)
	assert.InDelta(t, entry*0.98, sig.Targets.StopLoss, 1e-9)
	require.Len(t, sig.Targets.TakeProfits, 3)
	assert.InDelta(t, entry*1.03, sig.Targets.TakeProfits[0], 1e-9)
	assert.InDelta(t, entry*1.08, sig.Targets.TakeProfits[2], 1e-9)
	// 0.6*7 + 0.4*7 + 0.5 (LOW) + 0.3 (major)
	assert.InDelta(t, 7.8, sig.Confidence, 1e-9)
	assert.Equal(t, "binance", sig.Exchange)
	assert.Equal(t, models.Timeframe("1h"), sig.Timeframe)
	assert.Equal(t, "default", sig.Strategy)
	assert.True(t, sig.CreatedAt.Equal(now))
	assert.Contains(t, sig.Reasoning, "цена выше EMA")
}

func TestGenerate_Short(t *testing.T) {
	f := newFixture(t, bearishAnalysis())
	md := risingData(60)

	res, err := f.gen.Generate(context.Background(), f.pair, md)
	require.NoError(t, err)
	require.True(t, res.ShouldGenerate, res.Reason)

	sig := res.Signal
	assert.Equal(t, models.DirectionShort, sig.Direction)
	assert.Less(t, sig.EntryPrice, md.CurrentPrice())
	assert.Greater(t, sig.Targets.StopLoss, sig.EntryPrice)
	prev := sig.EntryPrice
	for _, tp := range sig.Targets.TakeProfits {
		assert.Less(t, tp, prev)
		prev = tp
	}
}

func TestGenerate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		reason string
	}{
		{
			name:   "inactive pair",
			setup:  func(f *fixture) { f.pair.Deactivate("тест") },
			reason: "неактивна",
		},
		{
			name:   "cooldown",
			setup:  func(f *fixture) { f.pair.RecordSignal(now.Add(-30 * time.Minute)) },
			reason: "cooldown",
		},
		{
			name: "category score",
			setup: func(f *fixture) {
				f.pair.Category = models.CategoryMeme
				f.analyzer.analysis.Score.TotalScore = 6
			},
			reason: "ниже минимума 6.5",
		},
		{
			name: "strategy min strength",
			setup: func(f *fixture) {
				f.pair.Strategy.Risk.MinSignalStrength = 7.5
			},
			reason: "ниже минимума 7.5",
		},
		{
			name: "risk confidence",
			setup: func(f *fixture) {
				f.analyzer.analysis.Risk.Level = models.RiskVeryHigh
			},
			reason: "при риске VERY_HIGH",
		},
		{
			name: "hold",
			setup: func(f *fixture) {
				f.analyzer.analysis.Score.Recommendation.Action = models.ActionHold
			},
			reason: "HOLD",
		},
		{
			name: "active limit",
			setup: func(f *fixture) {
				for _, id := range []string{"a", "b", "c"} {
					require.NoError(t, f.signals.Save(context.Background(), testutil.LongSignal(id, "binance", "BTCUSDT", now)))
				}
			},
			reason: "лимит активных сигналов",
		},
		{
			name: "max loss",
			setup: func(f *fixture) {
				f.analyzer.analysis.Risk.Level = models.RiskHigh
				f.pair.Strategy.Risk.StopLoss = 0.07
				f.pair.Strategy.Risk.TakeProfits = []float64{0.08, 0.1, 0.12}
				f.pair.Strategy.Risk.MinRiskReward = 1
			},
			reason: "убыток",
		},
		{
			name: "confidence floor",
			setup: func(f *fixture) {
				f.gen.cfg.MinConfidence = 9
			},
			reason: "уверенность сигнала",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, bullishAnalysis())
			tt.setup(f)

			res, err := f.gen.Generate(context.Background(), f.pair, risingData(60))
			require.NoError(t, err)
			assert.False(t, res.ShouldGenerate)
			assert.Nil(t, res.Signal)
			assert.Contains(t, res.Reason, tt.reason)
		})
	}
}

func TestGenerate_StaleData(t *testing.T) {
	f := newFixture(t, bullishAnalysis())
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(60, 100, 0.005, "1h", now.Add(-4*time.Hour)), now)

	res, err := f.gen.Generate(context.Background(), f.pair, md)
	require.NoError(t, err)
	assert.False(t, res.ShouldGenerate)
	assert.Contains(t, res.Reason, "устаревшие данные")
	assert.Equal(t, 0, f.analyzer.calls)
}

func TestGenerate_IdentityMismatch(t *testing.T) {
	f := newFixture(t, bullishAnalysis())
	md := testutil.MarketData("ETHUSDT", "1h", testutil.TrendCandles(60, 100, 0.005, "1h", now), now)

	_, err := f.gen.Generate(context.Background(), f.pair, md)
	assert.ErrorIs(t, err, models.ErrValidation)

	md = testutil.MarketData("BTCUSDT", "4h", testutil.TrendCandles(60, 100, 0.005, "4h", now), now)
	_, err = f.gen.Generate(context.Background(), f.pair, md)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGenerate_AnalyzerError(t *testing.T) {
	f := newFixture(t, bullishAnalysis())
	f.analyzer.err = errors.Join(models.ErrComputation, errors.New("деление на ноль"))

	_, err := f.gen.Generate(context.Background(), f.pair, risingData(60))
	assert.ErrorIs(t, err, models.ErrComputation)
}

func TestGenerate_RiskRewardStretch(t *testing.T) {
	f := newFixture(t, bullishAnalysis())
	f.pair.Strategy.Risk.MinRiskReward = 3

	res, err := f.gen.Generate(context.Background(), f.pair, risingData(60))
	require.NoError(t, err)
	require.True(t, res.ShouldGenerate, res.Reason)
	assert.InDelta(t, 3.0, res.Signal.RiskReward(), 1e-6)
}

func TestBasic_FixedTargets(t *testing.T) {
	signals := memory.NewSignalStore()
	gen, err := New(&fakeAnalyzer{analysis: bullishAnalysis()}, signals,
		config.GeneratorConfig{Mode: config.GeneratorBasic}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.IsType(t, &Basic{}, gen)

	md := risingData(60)
	pair := testutil.Pair("BTCUSDT", models.CategoryMeme, now)
	res, err := gen.Generate(context.Background(), pair, md)
	require.NoError(t, err)
	require.True(t, res.ShouldGenerate, res.Reason)

	closeP := md.CurrentPrice()
	assert.InDelta(t, closeP, res.Signal.EntryPrice, 1e-9)
	assert.InDelta(t, closeP*0.98, res.Signal.Targets.StopLoss, 1e-9)
	assert.InDelta(t, 7.0, res.Signal.Confidence, 1e-9)
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(&fakeAnalyzer{}, memory.NewSignalStore(), config.GeneratorConfig{Mode: "magic"})
	assert.Error(t, err)

	gen, err := New(&fakeAnalyzer{}, memory.NewSignalStore(), config.GeneratorConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Standard{}, gen)
}
