package models

// IndicatorValues значения индикаторов на последней свече окна
type IndicatorValues struct {
	RSI float64

	EMA struct {
		Short  float64
		Medium float64
		Long   float64
	}

	MACD struct {
		Line      float64
		Signal    float64
		Histogram float64
	}

	Bollinger struct {
		Lower  float64
		Middle float64
		Upper  float64
	}

	Stochastic struct {
		K float64
		D float64
	}

	ATR float64
	ADX float64

	VolumeProfile struct {
		SMA   float64
		Ratio float64
	}
}

// TrendDirection направление тренда
type TrendDirection string

const (
	TrendBullish  TrendDirection = "BULLISH"
	TrendBearish  TrendDirection = "BEARISH"
	TrendSideways TrendDirection = "SIDEWAYS"
)

// TrendSignal результат анализа тренда
type TrendSignal struct {
	Direction  TrendDirection
	Strength   float64 // 1..10
	Confidence float64 // 0..10
	BullVotes  float64
	BearVotes  float64
	Reasons    []string
}

// VolumeLevel уровень объема
type VolumeLevel string

const (
	VolumeLow    VolumeLevel = "LOW"
	VolumeNormal VolumeLevel = "NORMAL"
	VolumeHigh   VolumeLevel = "HIGH"
)

// VolumeAnalysis результат анализа объема
type VolumeAnalysis struct {
	Level       VolumeLevel
	Score       float64 // 0..10
	Ratio       float64
	ZScore      float64
	Correlation float64
	Slope       float64
	Reasons     []string
}

// RiskLevel уровень риска
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// RiskAssessment оценка риска
type RiskAssessment struct {
	Level      RiskLevel
	Score      float64
	Factors    []string
	Mitigation string
	Divergence bool
}

// Direction направление сделки
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

// SignalStrength градация силы сигнала
type SignalStrength string

const (
	StrengthStrong   SignalStrength = "STRONG"
	StrengthModerate SignalStrength = "MODERATE"
	StrengthWeak     SignalStrength = "WEAK"
)

// Action рекомендуемое действие
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// ScoreBreakdown вклад компонентов в итоговую оценку
type ScoreBreakdown struct {
	Trend     float64 // 0..4
	Momentum  float64 // 0..3
	Volume    float64 // 0..2
	Timing    float64 // 0..1
	Penalties float64 // <= 0
}

// Recommendation рекомендация по позиции
type Recommendation struct {
	Action       Action
	PositionSize float64 // доля от стандартной позиции, 0..1
	RiskLevel    RiskLevel
}

// SignalScore композитная оценка 0..10
type SignalScore struct {
	TotalScore     float64
	Direction      Direction
	Strength       SignalStrength
	Confidence     float64
	Breakdown      ScoreBreakdown
	Recommendation Recommendation
	Details        []string
}

// MarketAnalysis полный результат анализа одного снимка рынка
type MarketAnalysis struct {
	Indicators IndicatorValues
	Trend      TrendSignal
	Volume     VolumeAnalysis
	Risk       RiskAssessment
	Score      SignalScore
}
