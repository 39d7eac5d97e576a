package testutil

import (
	"time"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// LongSignal валидный LONG-сигнал PENDING с входом 100
func LongSignal(id, exchange, symbol string, createdAt time.Time) *models.Signal {
	s, err := models.NewSignal(id, symbol, models.DirectionLong, 100,
		models.Targets{StopLoss: 97, TakeProfits: []float64{106, 109}},
		7, []string{"тестовый сигнал"}, exchange, "1h", "default", createdAt)
	if err != nil {
		panic(err)
	}
	return s
}

// Pair активная пара binance со стратегией по умолчанию на 1h
func Pair(symbol string, category models.Category, createdAt time.Time) *models.TradingPair {
	p, err := models.NewTradingPair(symbol, symbol[:len(symbol)-4], "USDT", "binance", category,
		models.PairSettings{SignalCooldown: time.Hour}, models.DefaultStrategy("default", "1h"), createdAt)
	if err != nil {
		panic(err)
	}
	return p
}
