package models

import (
	"fmt"
	"time"
)

// Candle представляет свечу
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate проверяет геометрию свечи
func (c Candle) Validate() error {
	if c.High < c.Low {
		return fmt.Errorf("%w: high %.8f < low %.8f", ErrValidation, c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("%w: open %.8f вне диапазона [%.8f, %.8f]", ErrValidation, c.Open, c.Low, c.High)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: close %.8f вне диапазона [%.8f, %.8f]", ErrValidation, c.Close, c.Low, c.High)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: отрицательный объем %.8f", ErrValidation, c.Volume)
	}
	return nil
}

// ValidateSeries проверяет каждую свечу и строгое возрастание времени
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("свеча %d: %w", i, err)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("%w: свеча %d не позже предыдущей (%s <= %s)",
				ErrValidation, i, c.Timestamp.Format(time.RFC3339), candles[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Timeframe таймфрейм свечей в нотации биржи ("1m", "1h", "1d", ...)
type Timeframe string

// Duration конвертирует таймфрейм в duration
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// Valid сообщает, известен ли таймфрейм
func (tf Timeframe) Valid() bool {
	switch tf {
	case "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w":
		return true
	}
	return false
}

// PollInterval интервал опроса биржи для таймфрейма: чем крупнее таймфрейм, тем реже опрос
func (tf Timeframe) PollInterval() time.Duration {
	d := tf.Duration()
	switch {
	case d <= time.Minute:
		return 30 * time.Second
	case d <= 5*time.Minute:
		return time.Minute
	case d <= 30*time.Minute:
		return 2 * time.Minute
	case d <= 2*time.Hour:
		return 5 * time.Minute
	case d <= 12*time.Hour:
		return 15 * time.Minute
	default:
		return time.Hour
	}
}

func (tf Timeframe) String() string {
	return string(tf)
}
