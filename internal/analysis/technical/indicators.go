package technical

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// MACDResult значения MACD на последней точке
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// BollingerResult полосы Боллинджера на последней точке
type BollingerResult struct {
	Lower  float64
	Middle float64
	Upper  float64
}

// StochasticResult стохастик на последней свече
type StochasticResult struct {
	K float64
	D float64
}

// VolumeProfileResult отношение последнего объема к среднему
type VolumeProfileResult struct {
	SMA   float64
	Ratio float64
}

func requireLen(name string, have, need int) error {
	if have < need {
		return fmt.Errorf("%w: %s требует %d значений, получено %d", models.ErrInsufficientData, name, need, have)
	}
	return nil
}

func requirePeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%w: %s: период должен быть положительным, получено %d", models.ErrComputation, name, period)
	}
	return nil
}

func finite(name string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: нечисловой результат", models.ErrComputation, name)
		}
	}
	return nil
}

// EMA экспоненциальная средняя. Затравка первым значением ряда, не SMA.
func EMA(series []float64, period int) (float64, error) {
	if err := requirePeriod("EMA", period); err != nil {
		return 0, err
	}
	if err := requireLen(fmt.Sprintf("EMA(%d)", period), len(series), period); err != nil {
		return 0, err
	}
	v := ema(series, period)
	if err := finite("EMA", v); err != nil {
		return 0, err
	}
	return v, nil
}

func ema(series []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	v := series[0]
	for _, x := range series[1:] {
		v = x*k + v*(1-k)
	}
	return v
}

// RSI индекс относительной силы: SMA-затравка по первым period приращениям,
// далее сглаживание Уайлдера. 100 при отсутствии убытков.
func RSI(series []float64, period int) (float64, error) {
	if err := requirePeriod("RSI", period); err != nil {
		return 0, err
	}
	if err := requireLen(fmt.Sprintf("RSI(%d)", period), len(series), period+1); err != nil {
		return 0, err
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	if err := finite("RSI", rsi); err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(100, rsi)), nil
}

// MACD линия = EMA(fast) - EMA(slow); сигнальная линия считается как EMA
// по истории линии, пересчитанной для каждого префикса ряда (O(n²)).
func MACD(series []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{}, fmt.Errorf("%w: MACD: некорректные периоды %d/%d/%d", models.ErrComputation, fast, slow, signal)
	}
	if err := requireLen(fmt.Sprintf("MACD(%d,%d,%d)", fast, slow, signal), len(series), slow+signal); err != nil {
		return MACDResult{}, err
	}

	history := make([]float64, 0, len(series)-slow+1)
	for end := slow; end <= len(series); end++ {
		prefix := series[:end]
		history = append(history, ema(prefix, fast)-ema(prefix, slow))
	}

	line := history[len(history)-1]
	sig := ema(history, signal)
	res := MACDResult{Line: line, Signal: sig, Histogram: line - sig}
	if err := finite("MACD", res.Line, res.Signal, res.Histogram); err != nil {
		return MACDResult{}, err
	}
	return res, nil
}

// BollingerBands SMA ± mult·σ по последним period значениям
func BollingerBands(series []float64, period int, mult float64) (BollingerResult, error) {
	if period < 2 || mult <= 0 {
		return BollingerResult{}, fmt.Errorf("%w: Bollinger: некорректные параметры %d/%.2f", models.ErrComputation, period, mult)
	}
	if err := requireLen(fmt.Sprintf("Bollinger(%d)", period), len(series), period); err != nil {
		return BollingerResult{}, err
	}

	window := series[len(series)-period:]
	upper, middle, lower := talib.BBands(window, period, mult, mult, talib.SMA)
	last := len(window) - 1
	res := BollingerResult{Lower: lower[last], Middle: middle[last], Upper: upper[last]}
	if err := finite("Bollinger", res.Lower, res.Middle, res.Upper); err != nil {
		return BollingerResult{}, err
	}
	return res, nil
}

// Stochastic %K по экстремумам последних kPeriod свечей; %D как SMA
// по пересчитанной истории %K. Плоский диапазон дает 50.
func Stochastic(candles []models.Candle, kPeriod, dPeriod int) (StochasticResult, error) {
	if kPeriod <= 0 || dPeriod <= 0 {
		return StochasticResult{}, fmt.Errorf("%w: Stochastic: некорректные периоды %d/%d", models.ErrComputation, kPeriod, dPeriod)
	}
	if err := requireLen(fmt.Sprintf("Stochastic(%d,%d)", kPeriod, dPeriod), len(candles), kPeriod+dPeriod-1); err != nil {
		return StochasticResult{}, err
	}

	ks := make([]float64, 0, dPeriod)
	for end := len(candles) - dPeriod + 1; end <= len(candles); end++ {
		ks = append(ks, percentK(candles[end-kPeriod:end]))
	}

	var sum float64
	for _, k := range ks {
		sum += k
	}
	res := StochasticResult{K: ks[len(ks)-1], D: sum / float64(len(ks))}
	if err := finite("Stochastic", res.K, res.D); err != nil {
		return StochasticResult{}, err
	}
	return res, nil
}

func percentK(window []models.Candle) float64 {
	high, low := window[0].High, window[0].Low
	for _, c := range window[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	if high == low {
		return 50
	}
	k := (window[len(window)-1].Close - low) / (high - low) * 100
	return math.Max(0, math.Min(100, k))
}

func trueRange(c, prev models.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// ATR простая средняя истинного диапазона за period свечей
func ATR(candles []models.Candle, period int) (float64, error) {
	if err := requirePeriod("ATR", period); err != nil {
		return 0, err
	}
	if err := requireLen(fmt.Sprintf("ATR(%d)", period), len(candles), period+1); err != nil {
		return 0, err
	}

	trs := make([]float64, 0, period)
	for i := len(candles) - period; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}
	atr := lastSMA(trs, period)
	if err := finite("ATR", atr); err != nil {
		return 0, err
	}
	return math.Max(0, atr), nil
}

// ADX сглаженные по Уайлдеру DM+/DM-/TR, результат |DI+ - DI-| / (DI+ + DI-) · 100.
// Это DX без дополнительного сглаживания.
func ADX(candles []models.Candle, period int) (float64, error) {
	if err := requirePeriod("ADX", period); err != nil {
		return 0, err
	}
	if err := requireLen(fmt.Sprintf("ADX(%d)", period), len(candles), period+1); err != nil {
		return 0, err
	}

	var sPlus, sMinus, sTR float64
	p := float64(period)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]
		up := c.High - prev.High
		down := prev.Low - c.Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(c, prev)

		if i <= period {
			sPlus += plusDM
			sMinus += minusDM
			sTR += tr
			continue
		}
		sPlus = sPlus - sPlus/p + plusDM
		sMinus = sMinus - sMinus/p + minusDM
		sTR = sTR - sTR/p + tr
	}

	if sTR == 0 {
		return 0, nil
	}
	diPlus := sPlus / sTR * 100
	diMinus := sMinus / sTR * 100
	if diPlus+diMinus == 0 {
		return 0, nil
	}
	dx := math.Abs(diPlus-diMinus) / (diPlus + diMinus) * 100
	if err := finite("ADX", dx); err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(100, dx)), nil
}

// VolumeProfile отношение последнего объема к SMA последних period объемов.
// Нулевая средняя дает отношение 1.
func VolumeProfile(volumes []float64, period int) (VolumeProfileResult, error) {
	if err := requirePeriod("VolumeProfile", period); err != nil {
		return VolumeProfileResult{}, err
	}
	if err := requireLen(fmt.Sprintf("VolumeProfile(%d)", period), len(volumes), period); err != nil {
		return VolumeProfileResult{}, err
	}

	sma := lastSMA(volumes[len(volumes)-period:], period)
	res := VolumeProfileResult{SMA: sma, Ratio: 1}
	if sma > 0 {
		res.Ratio = volumes[len(volumes)-1] / sma
	}
	if err := finite("VolumeProfile", res.SMA, res.Ratio); err != nil {
		return VolumeProfileResult{}, err
	}
	return res, nil
}

// lastSMA последнее значение SMA; period=1 talib не поддерживает
func lastSMA(values []float64, period int) float64 {
	if period == 1 {
		return values[len(values)-1]
	}
	sma := talib.Sma(values, period)
	return sma[len(sma)-1]
}
