package models

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Statistics производная статистика по окну свечей
type Statistics struct {
	AvgVolume   float64
	TotalVolume float64
	Volatility  float64 // стандартное отклонение доходностей close-to-close, %
	PriceChange float64 // изменение цены от первой до последней свечи, %
	High        float64
	Low         float64
	PriceRange  float64 // (High-Low)/Low, %
}

// PriceAction геометрия последней свечи и свечные паттерны
type PriceAction struct {
	Body               float64
	UpperWick          float64
	LowerWick          float64
	Range              float64
	BodyRatio          float64
	IsBullish          bool
	IsDoji             bool
	IsHammer           bool
	IsBullishEngulfing bool
	IsBearishEngulfing bool
}

// MarketData неизменяемый снимок рынка за один цикл опроса.
// Статистика и price action вычисляются лениво один раз.
type MarketData struct {
	Symbol    string
	Timeframe Timeframe
	Exchange  string
	Timestamp time.Time

	candles []Candle

	statsOnce sync.Once
	stats     Statistics
	paOnce    sync.Once
	pa        PriceAction
}

// NewMarketData создает снимок рынка; свечи копируются и валидируются
func NewMarketData(symbol string, timeframe Timeframe, exchange string, candles []Candle, timestamp time.Time) (*MarketData, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: пустой символ", ErrValidation)
	}
	if err := ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("рыночные данные %s: %w", symbol, err)
	}

	cp := make([]Candle, len(candles))
	copy(cp, candles)

	return &MarketData{
		Symbol:    symbol,
		Timeframe: timeframe,
		Exchange:  exchange,
		Timestamp: timestamp,
		candles:   cp,
	}, nil
}

// Candles возвращает копию свечей
func (m *MarketData) Candles() []Candle {
	cp := make([]Candle, len(m.candles))
	copy(cp, m.candles)
	return cp
}

// Len количество свечей
func (m *MarketData) Len() int {
	return len(m.candles)
}

// Last последняя свеча; ok=false для пустого окна
func (m *MarketData) Last() (Candle, bool) {
	if len(m.candles) == 0 {
		return Candle{}, false
	}
	return m.candles[len(m.candles)-1], true
}

// CurrentPrice цена закрытия последней свечи
func (m *MarketData) CurrentPrice() float64 {
	last, ok := m.Last()
	if !ok {
		return 0
	}
	return last.Close
}

// Closes цены закрытия
func (m *MarketData) Closes() []float64 {
	out := make([]float64, len(m.candles))
	for i, c := range m.candles {
		out[i] = c.Close
	}
	return out
}

// Volumes объемы
func (m *MarketData) Volumes() []float64 {
	out := make([]float64, len(m.candles))
	for i, c := range m.candles {
		out[i] = c.Volume
	}
	return out
}

// Age возраст последней свечи относительно now
func (m *MarketData) Age(now time.Time) time.Duration {
	last, ok := m.Last()
	if !ok {
		return math.MaxInt64
	}
	age := now.Sub(last.Timestamp)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale данные старше factor таймфреймов
func (m *MarketData) IsStale(now time.Time, factor float64) bool {
	return m.Age(now) > time.Duration(factor*float64(m.Timeframe.Duration()))
}

// Statistics возвращает статистику окна, вычисляя ее при первом обращении
func (m *MarketData) Statistics() Statistics {
	m.statsOnce.Do(func() {
		m.stats = computeStatistics(m.candles)
	})
	return m.stats
}

// PriceAction возвращает геометрию последней свечи, вычисляя ее при первом обращении
func (m *MarketData) PriceAction() PriceAction {
	m.paOnce.Do(func() {
		m.pa = computePriceAction(m.candles)
	})
	return m.pa
}

func computeStatistics(candles []Candle) Statistics {
	var s Statistics
	if len(candles) == 0 {
		return s
	}

	s.High = candles[0].High
	s.Low = candles[0].Low
	for _, c := range candles {
		s.TotalVolume += c.Volume
		if c.High > s.High {
			s.High = c.High
		}
		if c.Low < s.Low {
			s.Low = c.Low
		}
	}
	s.AvgVolume = s.TotalVolume / float64(len(candles))

	if s.Low > 0 {
		s.PriceRange = (s.High - s.Low) / s.Low * 100
	}

	first := candles[0].Close
	last := candles[len(candles)-1].Close
	if first > 0 {
		s.PriceChange = (last - first) / first * 100
	}

	// Волатильность как стандартное отклонение процентных доходностей
	if len(candles) > 2 {
		returns := make([]float64, 0, len(candles)-1)
		for i := 1; i < len(candles); i++ {
			prev := candles[i-1].Close
			if prev <= 0 {
				continue
			}
			returns = append(returns, (candles[i].Close-prev)/prev*100)
		}
		s.Volatility = stdDev(returns)
	}

	return s
}

func computePriceAction(candles []Candle) PriceAction {
	var pa PriceAction
	if len(candles) == 0 {
		return pa
	}
	c := candles[len(candles)-1]

	pa.Body = math.Abs(c.Close - c.Open)
	pa.UpperWick = c.High - math.Max(c.Open, c.Close)
	pa.LowerWick = math.Min(c.Open, c.Close) - c.Low
	pa.Range = c.High - c.Low
	pa.IsBullish = c.Close > c.Open
	if pa.Range > 0 {
		pa.BodyRatio = pa.Body / pa.Range
	}

	pa.IsDoji = pa.Range > 0 && pa.Body <= 0.1*pa.Range
	pa.IsHammer = pa.Body > 0 && pa.LowerWick >= 2*pa.Body && pa.UpperWick <= pa.Body

	if len(candles) > 1 {
		p := candles[len(candles)-2]
		prevBearish := p.Close < p.Open
		prevBullish := p.Close > p.Open
		pa.IsBullishEngulfing = prevBearish && pa.IsBullish && c.Open <= p.Close && c.Close >= p.Open
		pa.IsBearishEngulfing = prevBullish && c.Close < c.Open && c.Open >= p.Close && c.Close <= p.Open
	}

	return pa
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}
