package models

import (
	"fmt"
	"time"
)

// Category категория риска торговой пары
type Category string

const (
	CategoryMajor Category = "major"
	CategoryAlt   Category = "alt"
	CategoryDeFi  Category = "defi"
	CategoryMeme  Category = "meme"
)

// Valid сообщает, известна ли категория
func (c Category) Valid() bool {
	switch c {
	case CategoryMajor, CategoryAlt, CategoryDeFi, CategoryMeme:
		return true
	}
	return false
}

// Пороги автоматического отключения пары
const (
	AutoDisableMinSignals     = 10
	AutoDisableMinSuccessRate = 0.3
	AutoDisableMinAge         = 30 * 24 * time.Hour
	AutoDisableMinDailyRate   = 0.1
)

// PairSettings настройки пары
type PairSettings struct {
	SignalCooldown time.Duration `json:"signal_cooldown"`
	SpecialRules   []string      `json:"special_rules,omitempty"`
}

// TradingPair торговая пара на конкретной бирже. Счетчики изменяются
// только задачей мониторинга, которая владеет парой.
type TradingPair struct {
	Symbol     string       `json:"symbol"`
	BaseAsset  string       `json:"base_asset"`
	QuoteAsset string       `json:"quote_asset"`
	Exchange   string       `json:"exchange"`
	Category   Category     `json:"category"`
	Settings   PairSettings `json:"settings"`
	Strategy   *Strategy    `json:"strategy"`

	IsActive              bool      `json:"is_active"`
	LastSignalTime        time.Time `json:"last_signal_time"`
	TotalSignalsGenerated int       `json:"total_signals_generated"`
	SuccessfulSignals     int       `json:"successful_signals"`
	CreatedAt             time.Time `json:"created_at"`
	DeactivatedReason     string    `json:"deactivated_reason,omitempty"`
}

// NewTradingPair создает активную пару
func NewTradingPair(symbol, base, quote, exchange string, category Category, settings PairSettings, strategy *Strategy, createdAt time.Time) (*TradingPair, error) {
	p := &TradingPair{
		Symbol:     symbol,
		BaseAsset:  base,
		QuoteAsset: quote,
		Exchange:   exchange,
		Category:   category,
		Settings:   settings,
		Strategy:   strategy,
		IsActive:   true,
		CreatedAt:  createdAt,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate проверяет конфигурацию пары
func (p *TradingPair) Validate() error {
	if p.Symbol == "" || p.Exchange == "" {
		return fmt.Errorf("%w: пара требует символ и биржу", ErrValidation)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: пара %s: неизвестная категория %q", ErrValidation, p.Symbol, p.Category)
	}
	if p.Settings.SignalCooldown < 0 {
		return fmt.Errorf("%w: пара %s: отрицательный cooldown", ErrValidation, p.Symbol)
	}
	if p.Strategy == nil {
		return fmt.Errorf("%w: пара %s: не задана стратегия", ErrValidation, p.Symbol)
	}
	return p.Strategy.Validate()
}

// Key уникальный ключ пары "EXCHANGE:SYMBOL"
func (p *TradingPair) Key() string {
	return PairKey(p.Exchange, p.Symbol)
}

// PairKey ключ пары по бирже и символу
func PairKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// CooldownElapsed прошел ли cooldown с последнего сигнала
func (p *TradingPair) CooldownElapsed(now time.Time) bool {
	if p.LastSignalTime.IsZero() {
		return true
	}
	return now.Sub(p.LastSignalTime) >= p.Settings.SignalCooldown
}

// CooldownRemaining сколько осталось до конца cooldown
func (p *TradingPair) CooldownRemaining(now time.Time) time.Duration {
	if p.CooldownElapsed(now) {
		return 0
	}
	return p.Settings.SignalCooldown - now.Sub(p.LastSignalTime)
}

// RecordSignal фиксирует сгенерированный сигнал
func (p *TradingPair) RecordSignal(now time.Time) {
	p.LastSignalTime = now
	p.TotalSignalsGenerated++
}

// RecordSuccesses фиксирует n успешных сигналов; успешных не больше сгенерированных
func (p *TradingPair) RecordSuccesses(n int) {
	if n <= 0 {
		return
	}
	p.SuccessfulSignals = min(p.SuccessfulSignals+n, p.TotalSignalsGenerated)
}

// SuccessRate доля успешных сигналов
func (p *TradingPair) SuccessRate() float64 {
	if p.TotalSignalsGenerated == 0 {
		return 0
	}
	return float64(p.SuccessfulSignals) / float64(p.TotalSignalsGenerated)
}

// ShouldAutoDisable проверяет условия автоматического отключения
func (p *TradingPair) ShouldAutoDisable(now time.Time) (bool, string) {
	if p.TotalSignalsGenerated >= AutoDisableMinSignals && p.SuccessRate() < AutoDisableMinSuccessRate {
		return true, fmt.Sprintf("низкая успешность: %.0f%% при %d сигналах",
			p.SuccessRate()*100, p.TotalSignalsGenerated)
	}

	age := now.Sub(p.CreatedAt)
	if !p.CreatedAt.IsZero() && age > AutoDisableMinAge {
		days := age.Hours() / 24
		rate := float64(p.TotalSignalsGenerated) / days
		if rate < AutoDisableMinDailyRate {
			return true, fmt.Sprintf("низкая активность: %.2f сигналов в день за %.0f дней", rate, days)
		}
	}
	return false, ""
}

// Deactivate отключает пару
func (p *TradingPair) Deactivate(reason string) {
	p.IsActive = false
	p.DeactivatedReason = reason
}

// Clone копия пары вместе со стратегией
func (p *TradingPair) Clone() *TradingPair {
	cp := *p
	cp.Settings.SpecialRules = append([]string(nil), p.Settings.SpecialRules...)
	if p.Strategy != nil {
		cp.Strategy = p.Strategy.Clone()
	}
	return &cp
}
