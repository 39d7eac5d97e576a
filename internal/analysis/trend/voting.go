package trend

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// Голоса модели
const (
	emaVotes          = 2.0
	macdVotes         = 2.0
	strongChangeVotes = 2.0
	weakChangeVotes   = 1.0

	strongChangePct = 2.0
	weakChangePct   = 0.5

	maxMomentumBonus = 4.0
)

// VotingAnalyzer основной классификатор: голоса за цену относительно EMA(medium),
// знак линии MACD и величину изменения цены за окно
type VotingAnalyzer struct{}

// NewVotingAnalyzer создает голосующий классификатор
func NewVotingAnalyzer() *VotingAnalyzer {
	return &VotingAnalyzer{}
}

// Name имя модели
func (a *VotingAnalyzer) Name() string {
	return "voting"
}

// Analyze классифицирует тренд
func (a *VotingAnalyzer) Analyze(md *models.MarketData, ind models.IndicatorValues, _ models.RSISettings) models.TrendSignal {
	var bull, bear float64
	var reasons []string

	price := md.CurrentPrice()
	switch {
	case price > ind.EMA.Medium:
		bull += emaVotes
		reasons = append(reasons, fmt.Sprintf("цена %.4f выше EMA %.4f", price, ind.EMA.Medium))
	case price < ind.EMA.Medium:
		bear += emaVotes
		reasons = append(reasons, fmt.Sprintf("цена %.4f ниже EMA %.4f", price, ind.EMA.Medium))
	}

	switch {
	case ind.MACD.Line > 0:
		bull += macdVotes
		reasons = append(reasons, "MACD выше нуля")
	case ind.MACD.Line < 0:
		bear += macdVotes
		reasons = append(reasons, "MACD ниже нуля")
	}

	change := md.Statistics().PriceChange
	switch {
	case change >= strongChangePct:
		bull += strongChangeVotes
	case change >= weakChangePct:
		bull += weakChangeVotes
	case change <= -strongChangePct:
		bear += strongChangeVotes
	case change <= -weakChangePct:
		bear += weakChangeVotes
	}
	if math.Abs(change) >= weakChangePct {
		reasons = append(reasons, fmt.Sprintf("изменение цены %.2f%%", change))
	}

	signal := models.TrendSignal{
		Direction: models.TrendSideways,
		BullVotes: bull,
		BearVotes: bear,
	}
	switch margin := bull - bear; {
	case margin >= 1:
		signal.Direction = models.TrendBullish
	case margin <= -1:
		signal.Direction = models.TrendBearish
	}

	dominant := math.Max(bull, bear)
	bonus := math.Min(maxMomentumBonus, math.Abs(change)/2.5)
	signal.Strength = clamp(dominant+bonus, 1, 10)

	var agreement float64
	if total := bull + bear; total > 0 {
		agreement = dominant / total
	}
	signal.Confidence = clamp(0.7*agreement*10+0.3*signal.Strength, 0, 10)

	if len(reasons) == 0 {
		reasons = append(reasons, "нет выраженного направления")
	}
	signal.Reasons = reasons
	return signal
}
