package models

import (
	"fmt"
	"math"
	"time"
)

// MaxTakeProfits максимальное число тейк-профитов в сигнале
const MaxTakeProfits = 3

// MaxReasoning максимальное число пунктов обоснования
const MaxReasoning = 10

// SignalStatus статус сигнала
type SignalStatus string

const (
	StatusPending   SignalStatus = "PENDING"
	StatusSent      SignalStatus = "SENT"
	StatusExecuted  SignalStatus = "EXECUTED"
	StatusFailed    SignalStatus = "FAILED"
	StatusCancelled SignalStatus = "CANCELLED"
)

// Targets уровни выхода
type Targets struct {
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`
}

// Signal торговая рекомендация
type Signal struct {
	ID            string       `json:"id"`
	Pair          string       `json:"pair"`
	Direction     Direction    `json:"direction"`
	EntryPrice    float64      `json:"entry_price"`
	Targets       Targets      `json:"targets"`
	Confidence    float64      `json:"confidence"`
	Reasoning     []string     `json:"reasoning"`
	Exchange      string       `json:"exchange"`
	Timeframe     Timeframe    `json:"timeframe"`
	Strategy      string       `json:"strategy"`
	Status        SignalStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// NewSignal создает сигнал в статусе PENDING
func NewSignal(id, pair string, direction Direction, entry float64, targets Targets, confidence float64,
	reasoning []string, exchange string, timeframe Timeframe, strategy string, createdAt time.Time) (*Signal, error) {
	s := &Signal{
		ID:         id,
		Pair:       pair,
		Direction:  direction,
		EntryPrice: entry,
		Targets: Targets{
			StopLoss:    targets.StopLoss,
			TakeProfits: append([]float64(nil), targets.TakeProfits...),
		},
		Confidence: confidence,
		Reasoning:  append([]string(nil), reasoning...),
		Exchange:   exchange,
		Timeframe:  timeframe,
		Strategy:   strategy,
		Status:     StatusPending,
		CreatedAt:  createdAt,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate проверяет инварианты сигнала
func (s *Signal) Validate() error {
	if s.ID == "" || s.Pair == "" {
		return fmt.Errorf("%w: сигнал требует id и пару", ErrValidation)
	}
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return fmt.Errorf("%w: сигнал %s: направление %q", ErrValidation, s.ID, s.Direction)
	}
	if !finitePositive(s.EntryPrice) || !finitePositive(s.Targets.StopLoss) {
		return fmt.Errorf("%w: сигнал %s: некорректные цены", ErrValidation, s.ID)
	}
	if n := len(s.Targets.TakeProfits); n == 0 || n > MaxTakeProfits {
		return fmt.Errorf("%w: сигнал %s: требуется от 1 до %d тейк-профитов", ErrValidation, s.ID, MaxTakeProfits)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 10 {
		return fmt.Errorf("%w: сигнал %s: уверенность %.2f вне [0, 10]", ErrValidation, s.ID, s.Confidence)
	}
	if n := len(s.Reasoning); n == 0 || n > MaxReasoning {
		return fmt.Errorf("%w: сигнал %s: требуется от 1 до %d пунктов обоснования", ErrValidation, s.ID, MaxReasoning)
	}
	return s.ValidateOrdering()
}

// ValidateOrdering проверяет порядок уровней относительно направления:
// LONG: stop < entry < tp1 < tp2 < ...; SHORT: ... < tp2 < tp1 < entry < stop
func (s *Signal) ValidateOrdering() error {
	tps := s.Targets.TakeProfits
	for i, tp := range tps {
		if !finitePositive(tp) {
			return fmt.Errorf("%w: сигнал %s: некорректный тейк-профит %d", ErrValidation, s.ID, i+1)
		}
	}

	switch s.Direction {
	case DirectionLong:
		if !(s.Targets.StopLoss < s.EntryPrice) {
			return fmt.Errorf("%w: LONG: стоп %.8f не ниже входа %.8f", ErrValidation, s.Targets.StopLoss, s.EntryPrice)
		}
		prev := s.EntryPrice
		for i, tp := range tps {
			if !(tp > prev) {
				return fmt.Errorf("%w: LONG: тейк-профит %d (%.8f) не выше %.8f", ErrValidation, i+1, tp, prev)
			}
			prev = tp
		}
	case DirectionShort:
		if !(s.Targets.StopLoss > s.EntryPrice) {
			return fmt.Errorf("%w: SHORT: стоп %.8f не выше входа %.8f", ErrValidation, s.Targets.StopLoss, s.EntryPrice)
		}
		prev := s.EntryPrice
		for i, tp := range tps {
			if !(tp < prev) {
				return fmt.Errorf("%w: SHORT: тейк-профит %d (%.8f) не ниже %.8f", ErrValidation, i+1, tp, prev)
			}
			prev = tp
		}
	default:
		return fmt.Errorf("%w: направление %q", ErrValidation, s.Direction)
	}
	return nil
}

// RiskReward отношение прибыли до первого тейк-профита к риску до стопа
func (s *Signal) RiskReward() float64 {
	if len(s.Targets.TakeProfits) == 0 {
		return 0
	}
	risk := math.Abs(s.EntryPrice - s.Targets.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.Targets.TakeProfits[0]-s.EntryPrice) / risk
}

// MarkAsSent PENDING -> SENT
func (s *Signal) MarkAsSent(at time.Time) error {
	if s.Status != StatusPending {
		return s.transitionError(StatusSent)
	}
	s.Status = StatusSent
	s.SentAt = &at
	return nil
}

// MarkAsExecuted SENT -> EXECUTED
func (s *Signal) MarkAsExecuted(at time.Time) error {
	if s.Status != StatusSent {
		return s.transitionError(StatusExecuted)
	}
	s.Status = StatusExecuted
	s.ExecutedAt = &at
	return nil
}

// Cancel PENDING -> CANCELLED
func (s *Signal) Cancel() error {
	if s.Status != StatusPending {
		return s.transitionError(StatusCancelled)
	}
	s.Status = StatusCancelled
	return nil
}

// MarkAsFailed PENDING|SENT -> FAILED
func (s *Signal) MarkAsFailed(reason string) error {
	if s.Status != StatusPending && s.Status != StatusSent {
		return s.transitionError(StatusFailed)
	}
	s.Status = StatusFailed
	s.FailureReason = reason
	return nil
}

// IsActive сигнал еще не в терминальном статусе
func (s *Signal) IsActive() bool {
	return s.Status == StatusPending || s.Status == StatusSent
}

// IsTerminal сигнал в терминальном статусе
func (s *Signal) IsTerminal() bool {
	return !s.IsActive()
}

// Clone глубокая копия сигнала
func (s *Signal) Clone() *Signal {
	cp := *s
	cp.Targets.TakeProfits = append([]float64(nil), s.Targets.TakeProfits...)
	cp.Reasoning = append([]string(nil), s.Reasoning...)
	if s.SentAt != nil {
		t := *s.SentAt
		cp.SentAt = &t
	}
	if s.ExecutedAt != nil {
		t := *s.ExecutedAt
		cp.ExecutedAt = &t
	}
	return &cp
}

func (s *Signal) transitionError(to SignalStatus) error {
	return fmt.Errorf("%w: сигнал %s: %s -> %s", ErrInvalidTransition, s.ID, s.Status, to)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
