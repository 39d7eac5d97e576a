// Package testutil генераторы рыночных данных для тестов
package testutil

import (
	"time"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// TrendCandles строит n свечей, каждая закрывается на step (доля) от предыдущей.
// Последняя свеча имеет время end.
func TrendCandles(n int, start, step float64, tf models.Timeframe, end time.Time) []models.Candle {
	candles := make([]models.Candle, n)
	d := tf.Duration()
	price := start
	for i := 0; i < n; i++ {
		open := price
		closeP := open * (1 + step)
		high := open
		low := open
		if closeP > high {
			high = closeP
		}
		if closeP < low {
			low = closeP
		}
		candles[i] = models.Candle{
			Timestamp: end.Add(-time.Duration(n-1-i) * d),
			Open:      open,
			High:      high * 1.001,
			Low:       low * 0.999,
			Close:     closeP,
			Volume:    1000,
		}
		price = closeP
	}
	return candles
}

// FlatCandles строит n одинаковых свечей
func FlatCandles(n int, price float64, tf models.Timeframe, end time.Time) []models.Candle {
	candles := make([]models.Candle, n)
	d := tf.Duration()
	for i := 0; i < n; i++ {
		candles[i] = models.Candle{
			Timestamp: end.Add(-time.Duration(n-1-i) * d),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

// MarketData снимок рынка из свечей; паникует на невалидных свечах
func MarketData(symbol string, tf models.Timeframe, candles []models.Candle, ts time.Time) *models.MarketData {
	md, err := models.NewMarketData(symbol, tf, "binance", candles, ts)
	if err != nil {
		panic(err)
	}
	return md
}

// Closes цены закрытия свечей
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
