package models

import (
	"fmt"
	"math"
)

// EMASettings периоды скользящих средних
type EMASettings struct {
	Short  int `json:"short"`
	Medium int `json:"medium"`
	Long   int `json:"long"`
}

// RSISettings настройки RSI
type RSISettings struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

// MACDSettings настройки MACD
type MACDSettings struct {
	Fast   int `json:"fast"`
	Slow   int `json:"slow"`
	Signal int `json:"signal"`
}

// BollingerSettings настройки полос Боллинджера
type BollingerSettings struct {
	Period int     `json:"period"`
	StdDev float64 `json:"std_dev"`
}

// StochasticSettings настройки стохастика
type StochasticSettings struct {
	KPeriod int `json:"k_period"`
	DPeriod int `json:"d_period"`
}

// IndicatorSettings настройки всех семейств индикаторов
type IndicatorSettings struct {
	EMA          EMASettings        `json:"ema"`
	RSI          RSISettings        `json:"rsi"`
	MACD         MACDSettings       `json:"macd"`
	Bollinger    BollingerSettings  `json:"bollinger"`
	Stochastic   StochasticSettings `json:"stochastic"`
	ATRPeriod    int                `json:"atr_period"`
	ADXPeriod    int                `json:"adx_period"`
	VolumePeriod int                `json:"volume_period"`
}

// RiskConfig риск-параметры стратегии; доли от цены входа
type RiskConfig struct {
	StopLoss               float64   `json:"stop_loss"`
	TakeProfits            []float64 `json:"take_profits"`
	MinSignalStrength      float64   `json:"min_signal_strength"`
	MaxSimultaneousSignals int       `json:"max_simultaneous_signals"`
	MinRiskReward          float64   `json:"min_risk_reward"`
}

// Strategy стратегия генерации сигналов. Не изменяется после создания:
// Clone и Optimize возвращают новые экземпляры.
type Strategy struct {
	Name       string            `json:"name"`
	Timeframe  Timeframe         `json:"timeframe"`
	Indicators IndicatorSettings `json:"indicators"`
	Risk       RiskConfig        `json:"risk"`
}

// DefaultIndicatorSettings стандартные периоды индикаторов
func DefaultIndicatorSettings() IndicatorSettings {
	return IndicatorSettings{
		EMA:          EMASettings{Short: 9, Medium: 21, Long: 50},
		RSI:          RSISettings{Period: 14, Overbought: 70, Oversold: 30},
		MACD:         MACDSettings{Fast: 12, Slow: 26, Signal: 9},
		Bollinger:    BollingerSettings{Period: 20, StdDev: 2},
		Stochastic:   StochasticSettings{KPeriod: 14, DPeriod: 3},
		ATRPeriod:    14,
		ADXPeriod:    14,
		VolumePeriod: 20,
	}
}

// DefaultRiskConfig стандартные риск-параметры
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopLoss:               0.02,
		TakeProfits:            []float64{0.03, 0.05, 0.08},
		MinSignalStrength:      5,
		MaxSimultaneousSignals: 3,
		MinRiskReward:          1.5,
	}
}

// DefaultStrategy стратегия со стандартными настройками
func DefaultStrategy(name string, timeframe Timeframe) *Strategy {
	s, err := NewStrategy(name, timeframe, DefaultIndicatorSettings(), DefaultRiskConfig())
	if err != nil {
		// стандартные настройки валидны
		panic(err)
	}
	return s
}

// NewStrategy создает стратегию и валидирует настройки
func NewStrategy(name string, timeframe Timeframe, indicators IndicatorSettings, risk RiskConfig) (*Strategy, error) {
	s := &Strategy{
		Name:       name,
		Timeframe:  timeframe,
		Indicators: indicators,
		Risk:       risk,
	}
	s.Risk.TakeProfits = append([]float64(nil), risk.TakeProfits...)
	if s.Risk.MinRiskReward == 0 {
		s.Risk.MinRiskReward = 1
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate проверяет согласованность настроек стратегии
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: пустое имя стратегии", ErrValidation)
	}
	if !s.Timeframe.Valid() {
		return fmt.Errorf("%w: стратегия %s: неизвестный таймфрейм %q", ErrValidation, s.Name, s.Timeframe)
	}

	ind := s.Indicators
	if ind.EMA.Short <= 0 || !(ind.EMA.Short < ind.EMA.Medium && ind.EMA.Medium < ind.EMA.Long) {
		return fmt.Errorf("%w: стратегия %s: требуется 0 < EMA short < medium < long (%d, %d, %d)",
			ErrValidation, s.Name, ind.EMA.Short, ind.EMA.Medium, ind.EMA.Long)
	}
	if ind.RSI.Period <= 0 {
		return fmt.Errorf("%w: стратегия %s: период RSI должен быть положительным", ErrValidation, s.Name)
	}
	if !(0 < ind.RSI.Oversold && ind.RSI.Oversold < ind.RSI.Overbought && ind.RSI.Overbought < 100) {
		return fmt.Errorf("%w: стратегия %s: требуется 0 < oversold < overbought < 100 (%.1f, %.1f)",
			ErrValidation, s.Name, ind.RSI.Oversold, ind.RSI.Overbought)
	}
	if ind.MACD.Fast <= 0 || ind.MACD.Fast >= ind.MACD.Slow || ind.MACD.Signal <= 0 {
		return fmt.Errorf("%w: стратегия %s: требуется 0 < MACD fast < slow и signal > 0", ErrValidation, s.Name)
	}
	if ind.Bollinger.Period <= 1 || ind.Bollinger.StdDev <= 0 {
		return fmt.Errorf("%w: стратегия %s: некорректные настройки Боллинджера", ErrValidation, s.Name)
	}
	if ind.Stochastic.KPeriod <= 0 || ind.Stochastic.DPeriod <= 0 {
		return fmt.Errorf("%w: стратегия %s: некорректные периоды стохастика", ErrValidation, s.Name)
	}
	if ind.ATRPeriod <= 0 || ind.ADXPeriod <= 0 || ind.VolumePeriod <= 0 {
		return fmt.Errorf("%w: стратегия %s: периоды ATR/ADX/объема должны быть положительными", ErrValidation, s.Name)
	}

	r := s.Risk
	if r.StopLoss <= 0 || r.StopLoss >= 1 {
		return fmt.Errorf("%w: стратегия %s: стоп-лосс должен быть в (0, 1), получено %.4f", ErrValidation, s.Name, r.StopLoss)
	}
	if len(r.TakeProfits) == 0 || len(r.TakeProfits) > MaxTakeProfits {
		return fmt.Errorf("%w: стратегия %s: требуется от 1 до %d тейк-профитов", ErrValidation, s.Name, MaxTakeProfits)
	}
	for i, tp := range r.TakeProfits {
		if tp <= 0 {
			return fmt.Errorf("%w: стратегия %s: тейк-профит %d должен быть положительным", ErrValidation, s.Name, i+1)
		}
		if i > 0 && tp <= r.TakeProfits[i-1] {
			return fmt.Errorf("%w: стратегия %s: тейк-профиты должны возрастать", ErrValidation, s.Name)
		}
	}
	if r.TakeProfits[0]/r.StopLoss < 1 {
		return fmt.Errorf("%w: стратегия %s: риск/прибыль %.2f < 1", ErrValidation, s.Name, r.TakeProfits[0]/r.StopLoss)
	}
	if r.MinSignalStrength < 0 || r.MinSignalStrength > 10 {
		return fmt.Errorf("%w: стратегия %s: минимальная сила сигнала вне [0, 10]", ErrValidation, s.Name)
	}
	if r.MaxSimultaneousSignals <= 0 {
		return fmt.Errorf("%w: стратегия %s: лимит одновременных сигналов должен быть положительным", ErrValidation, s.Name)
	}
	if r.MinRiskReward < 1 {
		return fmt.Errorf("%w: стратегия %s: минимальный риск/прибыль должен быть >= 1", ErrValidation, s.Name)
	}
	return nil
}

// RequiredCandles минимальное число свечей для расчета всех индикаторов
func (s *Strategy) RequiredCandles() int {
	ind := s.Indicators
	need := ind.EMA.Long
	candidates := []int{
		ind.MACD.Slow + ind.MACD.Signal,
		ind.RSI.Period + 1,
		ind.Bollinger.Period,
		ind.Stochastic.KPeriod + ind.Stochastic.DPeriod - 1,
		ind.ATRPeriod + 1,
		ind.ADXPeriod + 1,
		ind.VolumePeriod,
	}
	for _, c := range candidates {
		if c > need {
			need = c
		}
	}
	return need
}

// Clone глубокая копия стратегии
func (s *Strategy) Clone() *Strategy {
	cp := *s
	cp.Risk.TakeProfits = append([]float64(nil), s.Risk.TakeProfits...)
	return &cp
}

// StrategyAdjustment корректировки для Optimize; множители 0 означают "без изменений"
type StrategyAdjustment struct {
	Name                 string
	StopLossMultiplier   float64
	TakeProfitMultiplier float64
	MinSignalStrength    float64
}

// Optimize возвращает новую стратегию с примененными корректировками
func (s *Strategy) Optimize(adj StrategyAdjustment) (*Strategy, error) {
	out := s.Clone()
	if adj.Name != "" {
		out.Name = adj.Name
	}
	if adj.StopLossMultiplier > 0 {
		out.Risk.StopLoss = round(out.Risk.StopLoss*adj.StopLossMultiplier, 6)
	}
	if adj.TakeProfitMultiplier > 0 {
		for i := range out.Risk.TakeProfits {
			out.Risk.TakeProfits[i] = round(out.Risk.TakeProfits[i]*adj.TakeProfitMultiplier, 6)
		}
	}
	if adj.MinSignalStrength > 0 {
		out.Risk.MinSignalStrength = adj.MinSignalStrength
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("оптимизация стратегии %s: %w", s.Name, err)
	}
	return out, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
