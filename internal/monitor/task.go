package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/skalibog/cryptosignals/internal/events"
	"github.com/skalibog/cryptosignals/internal/exchange"
	"github.com/skalibog/cryptosignals/internal/generator"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// Этапы тика, на которых может произойти ошибка
const (
	stageFetch    = "fetch"
	stageGenerate = "generate"
	stagePersist  = "persist"
)

// task мониторинг одной пары. Пара и счетчик ошибок принадлежат задаче;
// successes пополняется обслуживанием и применяется к паре на тике.
type task struct {
	pair      *models.TradingPair
	adapter   exchange.Adapter
	interval  time.Duration
	errors    int
	successes atomic.Int64
}

func (o *Orchestrator) newTask(p *models.TradingPair, adapter exchange.Adapter) *task {
	interval := o.pollInterval
	if interval <= 0 {
		interval = p.Strategy.Timeframe.PollInterval()
	}
	return &task{pair: p, adapter: adapter, interval: interval}
}

// run выполняет тики пары последовательно; следующий тик планируется
// после завершения предыдущего
func (o *Orchestrator) run(ctx context.Context, t *task) {
	defer o.tasks.Done()
	defer o.release(ctx, t)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !o.tick(ctx, t) {
			return
		}
		timer.Reset(t.interval)
	}
}

// tick один цикл мониторинга пары. Возвращает false, если задачу пора завершить.
func (o *Orchestrator) tick(ctx context.Context, t *task) bool {
	pair := t.pair
	key := pair.Key()
	start := o.now()
	outcome := "error"
	defer func() {
		elapsed := o.now().Sub(start)
		o.recordTick(elapsed)
		o.deps.Metrics.RecordTick(key, outcome, elapsed.Seconds())
	}()

	o.applySuccesses(ctx, t)

	if disable, reason := pair.ShouldAutoDisable(start); disable {
		outcome = "disabled"
		o.deactivate(ctx, t, reason)
		return false
	}

	if h := t.adapter.Health(); h.RateLimited {
		outcome = "skipped"
		logger.Warn("Биржа ограничила запросы, тик пропущен",
			zap.String("pair", key), zap.String("lastError", h.LastError))
		return true
	} else if !h.Healthy {
		logger.Warn("Биржа нездорова, пробный запрос",
			zap.String("pair", key), zap.Int("failures", h.ConsecutiveFailures))
	}

	md, err := o.fetch(ctx, pair, t.adapter)
	if err != nil {
		return o.fail(ctx, t, stageFetch, err)
	}

	res, err := o.deps.Generator.Generate(ctx, pair, md)
	if ctx.Err() != nil {
		// остановлено: результат тика отбрасывается
		outcome = "discarded"
		return false
	}
	if err != nil {
		return o.fail(ctx, t, stageGenerate, err)
	}

	if !res.ShouldGenerate {
		outcome = "rejected"
		o.deps.Metrics.RecordRejection(key)
		logger.Debug("Сигнал не сгенерирован", zap.String("pair", key), zap.String("reason", res.Reason))
		return true
	}

	if err := o.accept(ctx, t, res.Signal); err != nil {
		return o.fail(ctx, t, stagePersist, err)
	}
	outcome = "signal"
	return true
}

// fetch получает свечи и собирает снимок рынка
func (o *Orchestrator) fetch(ctx context.Context, pair *models.TradingPair, adapter exchange.Adapter) (*models.MarketData, error) {
	tf := pair.Strategy.Timeframe
	limit := o.cfg.CandleLimit
	if need := pair.Strategy.RequiredCandles(); limit < need {
		limit = need
	}

	candles, err := adapter.GetCandles(ctx, pair.Symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	md, err := models.NewMarketData(pair.Symbol, tf, pair.Exchange, candles, o.now())
	if err != nil {
		return nil, fmt.Errorf("снимок рынка %s: %w", pair.Key(), err)
	}

	if o.deps.History != nil {
		if err := o.deps.History.SaveCandles(ctx, md); err != nil {
			logger.Warn("Ошибка записи свечей в историю", zap.String("pair", pair.Key()), zap.Error(err))
		}
	}
	return md, nil
}

// accept сохраняет сигнал, обновляет пару и запускает доставку уведомлений
func (o *Orchestrator) accept(ctx context.Context, t *task, signal *models.Signal) error {
	pair := t.pair

	if err := o.deps.Signals.Save(ctx, signal); err != nil {
		return fmt.Errorf("сохранение сигнала %s: %w", signal.ID, err)
	}

	// сигнал уже сохранен: доставка и публикация выполняются и при ошибке записи пары
	pair.RecordSignal(signal.CreatedAt)
	if err := o.deps.Pairs.Update(ctx, pair); err != nil {
		logger.Warn("Ошибка сохранения пары после сигнала",
			zap.String("pair", pair.Key()), zap.String("id", signal.ID), zap.Error(err))
	}

	o.recordSignal()
	o.deps.Metrics.RecordSignal(pair.Key(), string(signal.Direction))
	logger.Info("Сгенерирован сигнал",
		zap.String("id", signal.ID),
		zap.String("pair", pair.Key()),
		zap.String("direction", string(signal.Direction)),
		zap.Float64("entry", signal.EntryPrice),
		zap.Float64("confidence", signal.Confidence))

	o.notify(ctx, signal.Clone())

	o.deps.Bus.Publish(ctx, events.New(events.SignalGenerated, pair.Exchange, pair.Symbol, map[string]any{
		"signalId":   signal.ID,
		"direction":  string(signal.Direction),
		"entryPrice": signal.EntryPrice,
		"confidence": signal.Confidence,
		"signal":     signal.Clone(),
	}))
	return nil
}

// applySuccesses применяет к паре засчитанные обслуживанием успешные сигналы
func (o *Orchestrator) applySuccesses(ctx context.Context, t *task) {
	n := t.successes.Swap(0)
	if n == 0 {
		return
	}
	t.pair.RecordSuccesses(int(n))
	if err := o.deps.Pairs.Update(context.WithoutCancel(ctx), t.pair); err != nil {
		logger.Warn("Ошибка сохранения успешных сигналов", zap.String("pair", t.pair.Key()), zap.Error(err))
	}
	logger.Debug("Засчитаны успешные сигналы",
		zap.String("pair", t.pair.Key()),
		zap.Int64("count", n),
		zap.Float64("successRate", t.pair.SuccessRate()))
}

// release снимает задачу с учета и сохраняет успешные сигналы,
// засчитанные после ее последнего тика
func (o *Orchestrator) release(ctx context.Context, t *task) {
	o.mu.Lock()
	if o.byKey[t.pair.Key()] == t {
		delete(o.byKey, t.pair.Key())
	}
	o.mu.Unlock()
	o.applySuccesses(ctx, t)
}

// notify доставляет уведомление в фоне и фиксирует итог в статусе сигнала
func (o *Orchestrator) notify(ctx context.Context, signal *models.Signal) {
	if o.deps.Notifier == nil {
		return
	}

	o.notifies.Add(1)
	go func() {
		defer o.notifies.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		res := o.deps.Notifier.SendSignalNotification(ctx, signal)
		for _, name := range res.Delivered {
			o.deps.Metrics.RecordNotification(name, true)
		}
		for name := range res.Failed {
			o.deps.Metrics.RecordNotification(name, false)
		}

		var err error
		if res.Success() {
			err = signal.MarkAsSent(o.now())
		} else {
			reason := "нет каналов доставки"
			if e := res.Err(); e != nil {
				reason = e.Error()
			}
			err = signal.MarkAsFailed(reason)
		}
		if err != nil {
			logger.Error("Недопустимая смена статуса сигнала", zap.String("id", signal.ID), zap.Error(err))
			return
		}
		if err := o.deps.Signals.Update(ctx, signal); err != nil {
			logger.Error("Ошибка обновления статуса сигнала", zap.String("id", signal.ID), zap.Error(err))
		}
	}()
}

// fail учитывает ошибку тика; после превышения лимита пара отключается навсегда
func (o *Orchestrator) fail(ctx context.Context, t *task, stage string, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	pair := t.pair
	t.errors++
	o.recordError()
	o.deps.Metrics.RecordTickError(pair.Key(), errorKind(err))

	logger.Error("Ошибка мониторинга пары",
		zap.String("pair", pair.Key()),
		zap.String("stage", stage),
		zap.Int("errors", t.errors),
		zap.Error(err))

	data := map[string]any{
		"stage":      stage,
		"error":      err.Error(),
		"kind":       errorKind(err),
		"errorCount": t.errors,
	}
	o.deps.Bus.Publish(ctx, events.New(events.MonitoringError, pair.Exchange, pair.Symbol, data))
	if stage == stageGenerate {
		o.deps.Bus.Publish(ctx, events.New(events.SignalGenerationFailed, pair.Exchange, pair.Symbol, data))
	}

	if t.errors > o.cfg.MaxErrors {
		o.deactivate(ctx, t, fmt.Sprintf("превышен лимит ошибок: %d", t.errors))
		return false
	}
	return true
}

// deactivate отключает пару без автоматического восстановления
func (o *Orchestrator) deactivate(ctx context.Context, t *task, reason string) {
	pair := t.pair
	pair.Deactivate(reason)

	if err := o.deps.Pairs.Update(context.WithoutCancel(ctx), pair); err != nil {
		logger.Error("Ошибка сохранения отключенной пары", zap.String("pair", pair.Key()), zap.Error(err))
	}

	active := o.recordDeactivation()
	o.deps.Metrics.RecordDeactivation()
	o.deps.Metrics.SetActivePairs(active)

	logger.Warn("Пара отключена", zap.String("pair", pair.Key()), zap.String("reason", reason))
	o.deps.Bus.Publish(ctx, events.New(events.PairDeactivated, pair.Exchange, pair.Symbol, map[string]any{
		"reason":     reason,
		"errorCount": t.errors,
	}))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, exchange.ErrRateLimited):
		return "rate_limit"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrComputation):
		return "computation"
	case errors.Is(err, models.ErrRepository):
		return "repository"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "exchange"
	}
}

// evaluate разовая оценка пары без сохранения результата
func (o *Orchestrator) evaluate(ctx context.Context, pair *models.TradingPair) (*generator.Result, error) {
	adapter, ok := o.exchanges[pair.Exchange]
	if !ok {
		return nil, fmt.Errorf("%w: биржа %s не подключена", models.ErrValidation, pair.Exchange)
	}
	md, err := o.fetch(ctx, pair, adapter)
	if err != nil {
		return nil, err
	}
	return o.deps.Generator.Generate(ctx, pair, md)
}
