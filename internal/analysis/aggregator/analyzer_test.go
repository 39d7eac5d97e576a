package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newAnalyzer(t *testing.T, model string) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(config.AnalysisConfig{
		TrendModel: model,
		Trend:      config.DefaultTrendConfig(),
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return a
}

func TestAnalyze_RisingSeries(t *testing.T) {
	a := newAnalyzer(t, config.TrendVoting)
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(60, 100, 0.005, "1h", now), now)

	res, err := a.Analyze(context.Background(), md, models.DefaultStrategy("default", "1h"))
	require.NoError(t, err)

	assert.Equal(t, models.TrendBullish, res.Trend.Direction)
	assert.Equal(t, models.VolumeNormal, res.Volume.Level)
	assert.Equal(t, models.RiskLow, res.Risk.Level)
	assert.Equal(t, models.DirectionLong, res.Score.Direction)
	assert.Equal(t, models.ActionBuy, res.Score.Recommendation.Action)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	a := newAnalyzer(t, config.TrendVoting)
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(10, 100, 0.005, "1h", now), now)

	_, err := a.Analyze(context.Background(), md, models.DefaultStrategy("default", "1h"))
	assert.ErrorIs(t, err, models.ErrInsufficientData)
	assert.ErrorIs(t, err, models.ErrComputation)
}

func TestAnalyze_Cancelled(t *testing.T) {
	a := newAnalyzer(t, config.TrendCascade)
	assert.Equal(t, "cascade", a.TrendModel())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(60, 100, 0.005, "1h", now), now)

	_, err := a.Analyze(ctx, md, models.DefaultStrategy("default", "1h"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAnalyzer_UnknownModel(t *testing.T) {
	_, err := NewAnalyzer(config.AnalysisConfig{TrendModel: "magic"})
	assert.Error(t, err)
}
