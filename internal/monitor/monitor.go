// Package monitor оркестратор мониторинга торговых пар
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/events"
	"github.com/skalibog/cryptosignals/internal/exchange"
	"github.com/skalibog/cryptosignals/internal/generator"
	"github.com/skalibog/cryptosignals/internal/notification"
	"github.com/skalibog/cryptosignals/internal/observability"
	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning мониторинг уже запущен
	ErrAlreadyRunning = errors.New("мониторинг уже запущен")

	// ErrNotRunning мониторинг не запущен
	ErrNotRunning = errors.New("мониторинг не запущен")

	// ErrStopping задачи предыдущего запуска еще завершаются
	ErrStopping = errors.New("мониторинг останавливается")

	// ErrNoPairs нет активных пар
	ErrNoPairs = errors.New("нет активных торговых пар")

	// ErrNoExchanges нет подключенных бирж
	ErrNoExchanges = errors.New("нет подключенных бирж")
)

// Таймаут доставки уведомления по сигналу
const notifyTimeout = 2 * time.Minute

// Notifier доставка уведомлений о сигналах
type Notifier interface {
	SendSignalNotification(ctx context.Context, signal *models.Signal) notification.DeliveryResult
}

// Deps зависимости оркестратора. Notifier, Metrics и History необязательны.
type Deps struct {
	Pairs     storage.PairRepository
	Signals   storage.SignalRepository
	Generator generator.Generator
	Exchanges []exchange.Adapter
	Notifier  Notifier
	Bus       events.Bus
	Metrics   *observability.Metrics
	History   storage.HistorySink
}

// Status сводное состояние мониторинга
type Status struct {
	Running          bool
	StartedAt        time.Time
	ActivePairs      int
	DeactivatedPairs int
	TotalTicks       int64
	SignalsGenerated int64
	Errors           int64
	AverageLatency   time.Duration
}

// Option настройка оркестратора
type Option func(*Orchestrator)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithPollInterval задает единый интервал опроса вместо интервала таймфрейма
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

// Orchestrator запускает по одной задаче мониторинга на каждую активную пару
type Orchestrator struct {
	cfg          config.MonitorConfig
	deps         Deps
	exchanges    map[string]exchange.Adapter
	now          func() time.Time
	pollInterval time.Duration

	mu        sync.Mutex
	running   bool
	stopping  bool
	startedAt time.Time
	byKey     map[string]*task
	cancel    context.CancelFunc
	cron      *cron.Cron
	stats     counters
	latency   *latencyWindow

	tasks    sync.WaitGroup
	notifies sync.WaitGroup
}

type counters struct {
	active      int
	deactivated int
	ticks       int64
	signals     int64
	errors      int64
}

// NewOrchestrator создает оркестратор
func NewOrchestrator(cfg config.MonitorConfig, deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Pairs == nil:
		return nil, fmt.Errorf("%w: не задано хранилище пар", models.ErrValidation)
	case deps.Signals == nil:
		return nil, fmt.Errorf("%w: не задано хранилище сигналов", models.ErrValidation)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: не задан генератор", models.ErrValidation)
	case deps.Bus == nil:
		return nil, fmt.Errorf("%w: не задана шина событий", models.ErrValidation)
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 10
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 100
	}

	o := &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		exchanges: make(map[string]exchange.Adapter, len(deps.Exchanges)),
		now:       time.Now,
		latency:   newLatencyWindow(cfg.LatencyWindow),
	}
	for _, ex := range deps.Exchanges {
		o.exchanges[ex.Name()] = ex
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start загружает активные пары и запускает по задаче на каждую
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopping {
		return ErrStopping
	}
	if o.running {
		return ErrAlreadyRunning
	}
	if len(o.exchanges) == 0 {
		return ErrNoExchanges
	}

	pairs, err := o.deps.Pairs.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("загрузка активных пар: %w", err)
	}

	var tasks []*task
	for _, p := range pairs {
		adapter, ok := o.exchanges[p.Exchange]
		if !ok {
			logger.Warn("Биржа пары не подключена, пара пропущена",
				zap.String("pair", p.Key()), zap.String("exchange", p.Exchange))
			continue
		}
		tasks = append(tasks, o.newTask(p, adapter))
	}
	if len(tasks) == 0 {
		return ErrNoPairs
	}

	var c *cron.Cron
	if o.cfg.CleanupSchedule != "" {
		c = cron.New()
		if _, err := c.AddFunc(o.cfg.CleanupSchedule, o.cleanupJob); err != nil {
			return fmt.Errorf("%w: расписание очистки %q: %v", models.ErrValidation, o.cfg.CleanupSchedule, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.running = true
	o.startedAt = o.now()
	o.stats = counters{active: len(tasks)}
	o.latency.reset()
	o.cron = c
	o.byKey = make(map[string]*task, len(tasks))
	o.deps.Metrics.SetActivePairs(len(tasks))

	for _, t := range tasks {
		o.byKey[t.pair.Key()] = t
		o.tasks.Add(1)
		go o.run(runCtx, t)
	}
	if c != nil {
		c.Start()
	}

	o.deps.Bus.Publish(ctx, events.New(events.MonitoringStarted, "", "", map[string]any{
		"pairs":     len(tasks),
		"exchanges": len(o.exchanges),
	}))
	logger.Info("Мониторинг запущен", zap.Int("pairs", len(tasks)), zap.Int("exchanges", len(o.exchanges)))
	return nil
}

// Stop отменяет все задачи и ждет их завершения. Если ctx истекает раньше,
// задачи завершаются в фоне; до их завершения Start возвращает ErrStopping.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.stopping:
		o.mu.Unlock()
		return ErrStopping
	case !o.running:
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.stopping = true
	o.cancel()
	c := o.cron
	o.cron = nil
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if c != nil {
			<-c.Stop().Done()
		}
		o.tasks.Wait()
		o.notifies.Wait()
		o.finishStop(context.WithoutCancel(ctx))
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ожидание завершения задач: %w", ctx.Err())
	}
}

// finishStop снимает признак работы после завершения всех задач и публикует итоги
func (o *Orchestrator) finishStop(ctx context.Context) {
	o.mu.Lock()
	o.running = false
	o.stopping = false
	o.byKey = nil
	o.mu.Unlock()

	st := o.Status()
	o.deps.Bus.Publish(ctx, events.New(events.MonitoringStopped, "", "", map[string]any{
		"uptime":           o.now().Sub(st.StartedAt).String(),
		"totalTicks":       st.TotalTicks,
		"signalsGenerated": st.SignalsGenerated,
		"errors":           st.Errors,
		"deactivatedPairs": st.DeactivatedPairs,
	}))
	logger.Info("Мониторинг остановлен",
		zap.Int64("ticks", st.TotalTicks),
		zap.Int64("signals", st.SignalsGenerated),
		zap.Int64("errors", st.Errors))
}

// Status текущее состояние мониторинга
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Running:          o.running,
		StartedAt:        o.startedAt,
		ActivePairs:      o.stats.active,
		DeactivatedPairs: o.stats.deactivated,
		TotalTicks:       o.stats.ticks,
		SignalsGenerated: o.stats.signals,
		Errors:           o.stats.errors,
		AverageLatency:   o.latency.mean(),
	}
}

// CleanupExpired переводит давно отправленные сигналы в EXECUTED и засчитывает
// их парам как успешные
func (o *Orchestrator) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := o.deps.Signals.CleanupExpiredSignals(ctx, o.cfg.SignalMaxAge, o.now())
	if err != nil {
		return 0, fmt.Errorf("очистка устаревших сигналов: %w", err)
	}
	o.deps.Metrics.RecordExpired(len(expired))
	if len(expired) == 0 {
		return 0, nil
	}

	perPair := make(map[string]int64)
	for _, sig := range expired {
		perPair[models.PairKey(sig.Exchange, sig.Pair)]++
	}
	for key, n := range perPair {
		o.creditSuccesses(ctx, key, n)
	}

	logger.Info("Устаревшие сигналы закрыты", zap.Int("count", len(expired)), zap.Int("pairs", len(perPair)))
	return len(expired), nil
}

// creditSuccesses передает успешные сигналы задаче пары, которая применит их
// на следующем тике. Если пара не отслеживается, счетчик обновляется в хранилище.
func (o *Orchestrator) creditSuccesses(ctx context.Context, key string, n int64) {
	o.mu.Lock()
	t, ok := o.byKey[key]
	if ok {
		t.successes.Add(n)
	}
	o.mu.Unlock()
	if ok {
		return
	}

	pair, err := o.deps.Pairs.FindByKey(ctx, key)
	if err != nil {
		logger.Warn("Пара успешных сигналов не найдена", zap.String("pair", key), zap.Error(err))
		return
	}
	pair.RecordSuccesses(int(n))
	if err := o.deps.Pairs.Update(ctx, pair); err != nil {
		logger.Error("Ошибка сохранения успешных сигналов", zap.String("pair", key), zap.Error(err))
	}
}

func (o *Orchestrator) cleanupJob() {
	if _, err := o.CleanupExpired(context.Background()); err != nil {
		logger.Error("Ошибка обслуживания", zap.Error(err))
	}
}

func (o *Orchestrator) recordTick(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.ticks++
	o.latency.add(d)
}

func (o *Orchestrator) recordSignal() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.signals++
}

func (o *Orchestrator) recordError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.errors++
}

func (o *Orchestrator) recordDeactivation() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.active--
	o.stats.deactivated++
	return o.stats.active
}
