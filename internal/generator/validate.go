package generator

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/pkg/models"
)

// Допуск сравнения риск/прибыль на ошибки округления
const rrTolerance = 1e-9

// Максимальный убыток до стопа по уровню риска, доля от входа
var maxLoss = map[models.RiskLevel]float64{
	models.RiskLow:      0.08,
	models.RiskMedium:   0.06,
	models.RiskHigh:     0.05,
	models.RiskVeryHigh: 0.04,
}

// MaxLoss предельная дистанция стопа для уровня риска
func MaxLoss(level models.RiskLevel) float64 {
	if v, ok := maxLoss[level]; ok {
		return v
	}
	return maxLoss[models.RiskVeryHigh]
}

// validate проверка построенного сигнала; возвращает причину отказа или ""
func (g *gates) validate(s *models.Signal, strategy *models.Strategy, risk models.RiskLevel) string {
	if err := s.ValidateOrdering(); err != nil {
		return fmt.Sprintf("некорректный порядок уровней: %v", err)
	}
	if rr := s.RiskReward(); rr+rrTolerance < strategy.Risk.MinRiskReward {
		return fmt.Sprintf("риск/прибыль %.2f ниже минимума %.2f", rr, strategy.Risk.MinRiskReward)
	}
	if s.Confidence < g.cfg.MinConfidence {
		return fmt.Sprintf("уверенность сигнала %.2f ниже минимума %.1f", s.Confidence, g.cfg.MinConfidence)
	}
	loss := math.Abs(s.EntryPrice-s.Targets.StopLoss) / s.EntryPrice
	if limit := MaxLoss(risk); loss > limit+rrTolerance {
		return fmt.Sprintf("потенциальный убыток %.2f%% превышает %.0f%% для риска %s", loss*100, limit*100, risk)
	}
	return ""
}
