package volume

import (
	"testing"
	"time"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
)

var morning = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func indicators(ratio float64) models.IndicatorValues {
	var v models.IndicatorValues
	v.VolumeProfile.Ratio = ratio
	return v
}

func TestAnalyze_NormalVolume(t *testing.T) {
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(60, 100, 0.005, "1h", morning), morning)

	res := NewAnalyzer(config.VolumeConfig{Lookback: 20}).Analyze(md, indicators(1))
	assert.Equal(t, 5.0, res.Score)
	assert.Equal(t, models.VolumeNormal, res.Level)
	assert.Equal(t, 0.0, res.ZScore)
	assert.Equal(t, 0.0, res.Correlation)
}

func TestAnalyze_Breakout(t *testing.T) {
	candles := testutil.TrendCandles(60, 100, 0.005, "1h", morning)
	for i := range candles {
		if i%2 == 0 {
			candles[i].Volume = 900
		} else {
			candles[i].Volume = 1100
		}
	}
	candles[len(candles)-1].Volume = 5000
	md := testutil.MarketData("BTCUSDT", "1h", candles, morning)

	res := NewAnalyzer(config.VolumeConfig{Lookback: 20}).Analyze(md, indicators(3.5))
	assert.Greater(t, res.ZScore, 2.0)
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, models.VolumeHigh, res.Level)
}

func TestAnalyze_LowVolumeMove(t *testing.T) {
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(60, 100, -0.02, "1h", morning), morning)

	res := NewAnalyzer(config.VolumeConfig{Lookback: 20}).Analyze(md, indicators(0.4))
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, models.VolumeLow, res.Level)
}

func TestPriceVolumeCoherence_Symmetric(t *testing.T) {
	a := NewAnalyzer(config.VolumeConfig{Lookback: 20})
	up := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(30, 100, 0.01, "1h", morning), morning)
	down := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(30, 100, -0.01, "1h", morning), morning)

	var upRes, downRes models.VolumeAnalysis
	assert.Equal(t, 1.0, a.priceVolumeCoherence(up, 1.5, &upRes))
	assert.Equal(t, 1.0, a.priceVolumeCoherence(down, 1.5, &downRes))
	assert.Contains(t, upRes.Reasons, "рост подтвержден объемом")
	assert.Contains(t, downRes.Reasons, "падение подтверждено объемом")

	flat := testutil.MarketData("BTCUSDT", "1h", testutil.FlatCandles(30, 100, "1h", morning), morning)
	var flatRes models.VolumeAnalysis
	assert.Zero(t, a.priceVolumeCoherence(flat, 1.5, &flatRes))
}

func TestAnalyze_Session(t *testing.T) {
	a := NewAnalyzer(config.VolumeConfig{})

	overlap := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	md := testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(30, 100, 0.001, "1h", overlap), overlap)
	assert.Equal(t, 5.5, a.Analyze(md, indicators(1)).Score)

	night := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	md = testutil.MarketData("BTCUSDT", "1h", testutil.TrendCandles(30, 100, 0.001, "1h", night), night)
	assert.Equal(t, 4.5, a.Analyze(md, indicators(1)).Score)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1, pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1, pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	assert.Equal(t, 0.0, pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))
}

func TestCalculateSlope(t *testing.T) {
	assert.InDelta(t, 2, calculateSlope([]float64{1, 3, 5, 7}), 1e-12)
	assert.Equal(t, 0.0, calculateSlope([]float64{1}))
}
