package trend

import (
	"fmt"
	"math"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// MarketAnalyzer классификатор направления рынка
type MarketAnalyzer interface {
	Name() string
	Analyze(md *models.MarketData, ind models.IndicatorValues, rsi models.RSISettings) models.TrendSignal
}

// NewAnalyzer создает классификатор по имени модели из конфигурации
func NewAnalyzer(model string, cfg config.TrendConfig) (MarketAnalyzer, error) {
	switch model {
	case config.TrendVoting, "":
		return NewVotingAnalyzer(), nil
	case config.TrendCascade:
		return NewCascadeAnalyzer(cfg), nil
	default:
		return nil, fmt.Errorf("неизвестная модель тренда %q", model)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
