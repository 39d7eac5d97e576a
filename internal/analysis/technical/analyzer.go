package technical

import (
	"fmt"

	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Engine рассчитывает полный набор индикаторов для снимка рынка
type Engine struct{}

// NewEngine создает движок индикаторов
func NewEngine() *Engine {
	return &Engine{}
}

// Calculate рассчитывает индикаторы на последней свече окна
func (e *Engine) Calculate(md *models.MarketData, s models.IndicatorSettings) (models.IndicatorValues, error) {
	var v models.IndicatorValues

	candles := md.Candles()
	closes := md.Closes()

	var err error
	if v.EMA.Short, err = EMA(closes, s.EMA.Short); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	if v.EMA.Medium, err = EMA(closes, s.EMA.Medium); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	if v.EMA.Long, err = EMA(closes, s.EMA.Long); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}

	if v.RSI, err = RSI(closes, s.RSI.Period); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}

	macd, err := MACD(closes, s.MACD.Fast, s.MACD.Slow, s.MACD.Signal)
	if err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	v.MACD.Line, v.MACD.Signal, v.MACD.Histogram = macd.Line, macd.Signal, macd.Histogram

	bb, err := BollingerBands(closes, s.Bollinger.Period, s.Bollinger.StdDev)
	if err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	v.Bollinger.Lower, v.Bollinger.Middle, v.Bollinger.Upper = bb.Lower, bb.Middle, bb.Upper

	st, err := Stochastic(candles, s.Stochastic.KPeriod, s.Stochastic.DPeriod)
	if err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	v.Stochastic.K, v.Stochastic.D = st.K, st.D

	if v.ATR, err = ATR(candles, s.ATRPeriod); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	if v.ADX, err = ADX(candles, s.ADXPeriod); err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}

	vp, err := VolumeProfile(md.Volumes(), s.VolumePeriod)
	if err != nil {
		return v, fmt.Errorf("%s: %w", md.Symbol, err)
	}
	v.VolumeProfile.SMA, v.VolumeProfile.Ratio = vp.SMA, vp.Ratio

	logger.Debug("Индикаторы рассчитаны",
		zap.String("symbol", md.Symbol),
		zap.Float64("rsi", v.RSI),
		zap.Float64("ema_medium", v.EMA.Medium),
		zap.Float64("macd", v.MACD.Line),
		zap.Float64("adx", v.ADX),
		zap.Float64("volume_ratio", v.VolumeProfile.Ratio))

	return v, nil
}

// SignalCount число бычьих и медвежьих показаний индикаторов
type SignalCount struct {
	Bullish int
	Bearish int
}

// Divergent одновременно не менее двух бычьих и двух медвежьих показаний
func (c SignalCount) Divergent() bool {
	return c.Bullish >= 2 && c.Bearish >= 2
}

// CountSignals подсчитывает показания RSI, гистограммы MACD, полос Боллинджера и стохастика
func CountSignals(v models.IndicatorValues, price float64, rsi models.RSISettings) SignalCount {
	var c SignalCount

	// RSI
	if v.RSI < rsi.Oversold {
		c.Bullish++
	} else if v.RSI > rsi.Overbought {
		c.Bearish++
	}

	// MACD
	if v.MACD.Histogram > 0 {
		c.Bullish++
	} else if v.MACD.Histogram < 0 {
		c.Bearish++
	}

	// Боллинджер
	if price < v.Bollinger.Lower {
		c.Bullish++
	} else if price > v.Bollinger.Upper {
		c.Bearish++
	}

	// Стохастик
	if v.Stochastic.K < 20 {
		c.Bullish++
	} else if v.Stochastic.K > 80 {
		c.Bearish++
	}

	return c
}
