package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy("default", "1h")
	require.NoError(t, s.Validate())
	// MACD slow + signal
	assert.Equal(t, 50, s.RequiredCandles())
}

func TestNewStrategy_DefaultsMinRiskReward(t *testing.T) {
	risk := DefaultRiskConfig()
	risk.MinRiskReward = 0
	s, err := NewStrategy("s", "4h", DefaultIndicatorSettings(), risk)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Risk.MinRiskReward)
}

func TestStrategy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Strategy)
	}{
		{"empty name", func(s *Strategy) { s.Name = "" }},
		{"unknown timeframe", func(s *Strategy) { s.Timeframe = "7m" }},
		{"ema order", func(s *Strategy) { s.Indicators.EMA.Medium = 60 }},
		{"rsi bounds", func(s *Strategy) { s.Indicators.RSI.Oversold = 80 }},
		{"macd fast >= slow", func(s *Strategy) { s.Indicators.MACD.Fast = 26 }},
		{"bollinger period", func(s *Strategy) { s.Indicators.Bollinger.Period = 1 }},
		{"stochastic", func(s *Strategy) { s.Indicators.Stochastic.DPeriod = 0 }},
		{"atr period", func(s *Strategy) { s.Indicators.ATRPeriod = 0 }},
		{"stop loss", func(s *Strategy) { s.Risk.StopLoss = 1 }},
		{"no take profits", func(s *Strategy) { s.Risk.TakeProfits = nil }},
		{"take profits not ascending", func(s *Strategy) { s.Risk.TakeProfits = []float64{0.05, 0.03} }},
		{"risk reward below 1", func(s *Strategy) { s.Risk.TakeProfits = []float64{0.01} }},
		{"signal strength", func(s *Strategy) { s.Risk.MinSignalStrength = 11 }},
		{"max simultaneous", func(s *Strategy) { s.Risk.MaxSimultaneousSignals = 0 }},
		{"min risk reward", func(s *Strategy) { s.Risk.MinRiskReward = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultStrategy("default", "1h")
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), ErrValidation)
		})
	}
}

func TestStrategy_Optimize(t *testing.T) {
	s := DefaultStrategy("default", "1h")

	out, err := s.Optimize(StrategyAdjustment{
		Name:                 "wide",
		StopLossMultiplier:   1.5,
		TakeProfitMultiplier: 2,
		MinSignalStrength:    6,
	})
	require.NoError(t, err)

	assert.Equal(t, "wide", out.Name)
	assert.Equal(t, 0.03, out.Risk.StopLoss)
	assert.Equal(t, []float64{0.06, 0.1, 0.16}, out.Risk.TakeProfits)
	assert.Equal(t, 6.0, out.Risk.MinSignalStrength)

	assert.Equal(t, "default", s.Name)
	assert.Equal(t, 0.02, s.Risk.StopLoss)
	assert.Equal(t, []float64{0.03, 0.05, 0.08}, s.Risk.TakeProfits)
}

func TestStrategy_OptimizeRejectsInvalid(t *testing.T) {
	s := DefaultStrategy("default", "1h")
	_, err := s.Optimize(StrategyAdjustment{StopLossMultiplier: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
