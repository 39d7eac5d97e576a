package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, cooldown time.Duration, createdAt time.Time) *TradingPair {
	t.Helper()
	p, err := NewTradingPair("BTCUSDT", "BTC", "USDT", "binance", CategoryMajor,
		PairSettings{SignalCooldown: cooldown}, DefaultStrategy("default", "1h"), createdAt)
	require.NoError(t, err)
	return p
}

func TestNewTradingPair_Validation(t *testing.T) {
	s := DefaultStrategy("default", "1h")

	_, err := NewTradingPair("", "BTC", "USDT", "binance", CategoryMajor, PairSettings{}, s, created)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTradingPair("BTCUSDT", "BTC", "USDT", "binance", Category("stocks"), PairSettings{}, s, created)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTradingPair("BTCUSDT", "BTC", "USDT", "binance", CategoryMajor, PairSettings{SignalCooldown: -time.Second}, s, created)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTradingPair("BTCUSDT", "BTC", "USDT", "binance", CategoryMajor, PairSettings{}, nil, created)
	assert.ErrorIs(t, err, ErrValidation)

	p, err := NewTradingPair("BTCUSDT", "BTC", "USDT", "binance", CategoryMajor, PairSettings{}, s, created)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, "binance:BTCUSDT", p.Key())
}

func TestTradingPair_Cooldown(t *testing.T) {
	p := newPair(t, time.Hour, created)
	assert.True(t, p.CooldownElapsed(created))
	assert.Zero(t, p.CooldownRemaining(created))

	p.RecordSignal(created)
	assert.Equal(t, 1, p.TotalSignalsGenerated)
	assert.False(t, p.CooldownElapsed(created.Add(59*time.Minute)))
	assert.Equal(t, 20*time.Minute, p.CooldownRemaining(created.Add(40*time.Minute)))
	assert.True(t, p.CooldownElapsed(created.Add(time.Hour)))
}

func TestTradingPair_ZeroCooldown(t *testing.T) {
	p := newPair(t, 0, created)
	p.RecordSignal(created)
	assert.True(t, p.CooldownElapsed(created))
}

func TestTradingPair_ShouldAutoDisable(t *testing.T) {
	t.Run("healthy new pair", func(t *testing.T) {
		p := newPair(t, 0, created)
		disable, _ := p.ShouldAutoDisable(created.Add(24 * time.Hour))
		assert.False(t, disable)
	})

	t.Run("low success rate", func(t *testing.T) {
		p := newPair(t, 0, created)
		for i := 0; i < 10; i++ {
			p.RecordSignal(created)
		}
		p.RecordSuccesses(2)
		assert.InDelta(t, 0.2, p.SuccessRate(), 1e-9)

		disable, reason := p.ShouldAutoDisable(created.Add(time.Hour))
		assert.True(t, disable)
		assert.Contains(t, reason, "низкая успешность")
	})

	t.Run("enough successes", func(t *testing.T) {
		p := newPair(t, 0, created)
		for i := 0; i < 10; i++ {
			p.RecordSignal(created)
		}
		p.RecordSuccesses(3)
		disable, _ := p.ShouldAutoDisable(created.Add(time.Hour))
		assert.False(t, disable)
	})

	t.Run("inactive old pair", func(t *testing.T) {
		p := newPair(t, 0, created)
		p.RecordSignal(created)
		disable, reason := p.ShouldAutoDisable(created.Add(31 * 24 * time.Hour))
		assert.True(t, disable)
		assert.Contains(t, reason, "низкая активность")
	})

	t.Run("active old pair", func(t *testing.T) {
		p := newPair(t, 0, created)
		for i := 0; i < 5; i++ {
			p.RecordSignal(created)
			p.RecordSuccesses(1)
		}
		disable, _ := p.ShouldAutoDisable(created.Add(31 * 24 * time.Hour))
		assert.False(t, disable)
	})
}

func TestTradingPair_RecordSuccesses(t *testing.T) {
	p := newPair(t, 0, created)
	p.RecordSignal(created)
	p.RecordSignal(created)

	p.RecordSuccesses(0)
	p.RecordSuccesses(-1)
	assert.Zero(t, p.SuccessfulSignals)

	p.RecordSuccesses(5)
	assert.Equal(t, 2, p.SuccessfulSignals)
	assert.InDelta(t, 1.0, p.SuccessRate(), 1e-9)
}

func TestTradingPair_DeactivateAndClone(t *testing.T) {
	p := newPair(t, time.Hour, created)
	p.Settings.SpecialRules = []string{"только лонг"}

	cp := p.Clone()
	cp.Deactivate("вручную")
	cp.Settings.SpecialRules[0] = "изменено"
	cp.Strategy.Risk.TakeProfits[0] = 0.5

	assert.True(t, p.IsActive)
	assert.False(t, cp.IsActive)
	assert.Equal(t, "вручную", cp.DeactivatedReason)
	assert.Equal(t, "только лонг", p.Settings.SpecialRules[0])
	assert.Equal(t, 0.03, p.Strategy.Risk.TakeProfits[0])
}
