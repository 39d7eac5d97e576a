package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/events"
	"github.com/skalibog/cryptosignals/internal/exchange"
	"github.com/skalibog/cryptosignals/internal/generator"
	"github.com/skalibog/cryptosignals/internal/notification"
	"github.com/skalibog/cryptosignals/internal/storage/memory"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]bool
	err    error
	health exchange.Health
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		calls:  make(map[string]int),
		fail:   make(map[string]bool),
		health: exchange.Health{Healthy: true},
	}
}

func (f *fakeExchange) Name() string { return "binance" }

func (f *fakeExchange) GetCandles(_ context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if f.err != nil {
		return nil, f.err
	}
	if f.fail[symbol] {
		return nil, fmt.Errorf("свечи %s недоступны", symbol)
	}
	return testutil.TrendCandles(limit, 100, 0.005, tf, time.Now()), nil
}

func (f *fakeExchange) Health() exchange.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeExchange) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type generatorFunc func(ctx context.Context, pair *models.TradingPair, md *models.MarketData) (*generator.Result, error)

func (f generatorFunc) Generate(ctx context.Context, pair *models.TradingPair, md *models.MarketData) (*generator.Result, error) {
	return f(ctx, pair, md)
}

func accepted(pair *models.TradingPair) *generator.Result {
	id := fmt.Sprintf("%s-%d", pair.Symbol, time.Now().UnixNano())
	return &generator.Result{
		ShouldGenerate: true,
		Signal:         testutil.LongSignal(id, pair.Exchange, pair.Symbol, time.Now()),
	}
}

func rejected() *generator.Result {
	return &generator.Result{Reason: "оценка ниже порога"}
}

type fakeNotifier struct {
	result notification.DeliveryResult
	sent   atomic.Int32
}

func (n *fakeNotifier) SendSignalNotification(context.Context, *models.Signal) notification.DeliveryResult {
	n.sent.Add(1)
	return n.result
}

type fixture struct {
	pairs   *memory.PairStore
	signals *memory.SignalStore
	ex      *fakeExchange
	bus     *events.InMemoryBus
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	f := &fixture{
		pairs:   memory.NewPairStore(),
		signals: memory.NewSignalStore(),
		ex:      newFakeExchange(),
		bus:     events.NewInMemoryBus(),
	}
	for _, s := range symbols {
		require.NoError(t, f.pairs.Save(context.Background(), testutil.Pair(s, models.CategoryMajor, time.Now())))
	}
	return f
}

func (f *fixture) orchestrator(t *testing.T, gen generator.Generator, notifier Notifier) *Orchestrator {
	t.Helper()
	deps := Deps{
		Pairs:     f.pairs,
		Signals:   f.signals,
		Generator: gen,
		Exchanges: []exchange.Adapter{f.ex},
		Bus:       f.bus,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	o, err := NewOrchestrator(config.MonitorConfig{MaxErrors: 10, CandleLimit: 100, SignalMaxAge: time.Hour}, deps,
		WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	return o
}

// await ждет первое событие типа typ
func await(t *testing.T, bus *events.InMemoryBus, typ events.Type) <-chan events.Event {
	t.Helper()
	ch := make(chan events.Event, 16)
	unsubscribe := bus.Subscribe(typ, func(_ context.Context, e events.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	t.Cleanup(unsubscribe)
	return ch
}

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("событие не получено")
		return events.Event{}
	}
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(config.MonitorConfig{}, Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestStartStop_Guards(t *testing.T) {
	ctx := context.Background()
	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		return rejected(), nil
	})

	t.Run("no exchanges", func(t *testing.T) {
		f := newFixture(t, "BTCUSDT")
		o, err := NewOrchestrator(config.MonitorConfig{}, Deps{
			Pairs: f.pairs, Signals: f.signals, Generator: gen, Bus: f.bus,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, o.Start(ctx), ErrNoExchanges)
	})

	t.Run("no pairs", func(t *testing.T) {
		f := newFixture(t)
		o := f.orchestrator(t, gen, nil)
		assert.ErrorIs(t, o.Start(ctx), ErrNoPairs)
		assert.False(t, o.Status().Running)
	})

	t.Run("double start and stop", func(t *testing.T) {
		f := newFixture(t, "BTCUSDT")
		o := f.orchestrator(t, gen, nil)
		stopped := await(t, f.bus, events.MonitoringStopped)

		assert.ErrorIs(t, o.Stop(ctx), ErrNotRunning)
		require.NoError(t, o.Start(ctx))
		assert.ErrorIs(t, o.Start(ctx), ErrAlreadyRunning)
		assert.True(t, o.Status().Running)
		assert.Equal(t, 1, o.Status().ActivePairs)

		require.NoError(t, o.Stop(ctx))
		assert.ErrorIs(t, o.Stop(ctx), ErrNotRunning)
		assert.False(t, o.Status().Running)

		e := receive(t, stopped)
		assert.Contains(t, e.Data, "totalTicks")
		f.bus.Wait()
		assert.Empty(t, stopped)
	})
}

func TestTick_ErrorsDeactivatePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")
	f.ex.err = errors.New("соединение разорвано")

	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		t.Error("генератор не должен вызываться")
		return rejected(), nil
	})
	o := f.orchestrator(t, gen, nil)
	deactivated := await(t, f.bus, events.PairDeactivated)

	require.NoError(t, o.Start(ctx))
	e := receive(t, deactivated)
	assert.Equal(t, "BTCUSDT", e.Pair)

	// задача пары завершена, новых тиков нет
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.Stop(ctx))

	assert.Equal(t, 11, f.ex.Calls("BTCUSDT"))

	st := o.Status()
	assert.Equal(t, int64(11), st.Errors)
	assert.Equal(t, 1, st.DeactivatedPairs)
	assert.Equal(t, 0, st.ActivePairs)

	pair, err := f.pairs.FindByKey(ctx, models.PairKey("binance", "BTCUSDT"))
	require.NoError(t, err)
	assert.False(t, pair.IsActive)
	assert.Contains(t, pair.DeactivatedReason, "лимит ошибок")
}

func TestTick_GenerationFailurePublishesEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")
	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		return nil, fmt.Errorf("%w: вырожденные данные", models.ErrComputation)
	})
	o := f.orchestrator(t, gen, nil)
	failed := await(t, f.bus, events.SignalGenerationFailed)
	monitoringErr := await(t, f.bus, events.MonitoringError)

	require.NoError(t, o.Start(ctx))
	e := receive(t, failed)
	assert.Equal(t, "computation", e.Data["kind"])
	receive(t, monitoringErr)
	require.NoError(t, o.Stop(ctx))
}

func TestTick_AcceptedSignal(t *testing.T) {
	tests := []struct {
		name   string
		result notification.DeliveryResult
		want   models.SignalStatus
	}{
		{"delivered", notification.DeliveryResult{Delivered: []string{"log"}}, models.StatusSent},
		{"failed", notification.DeliveryResult{Failed: map[string]error{"telegram": errors.New("нет сети")}}, models.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, "BTCUSDT")

			var calls atomic.Int32
			gen := generatorFunc(func(_ context.Context, pair *models.TradingPair, md *models.MarketData) (*generator.Result, error) {
				assert.Equal(t, pair.Symbol, md.Symbol)
				if calls.Add(1) == 1 {
					return accepted(pair), nil
				}
				return rejected(), nil
			})
			notifier := &fakeNotifier{result: tt.result}
			o := f.orchestrator(t, gen, notifier)
			generated := await(t, f.bus, events.SignalGenerated)

			require.NoError(t, o.Start(ctx))
			e := receive(t, generated)
			require.NoError(t, o.Stop(ctx))

			id, _ := e.Data["signalId"].(string)
			require.NotEmpty(t, id)
			_, ok := e.Data["signal"].(*models.Signal)
			assert.True(t, ok)

			sig, err := f.signals.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Status)
			assert.Equal(t, int32(1), notifier.sent.Load())

			pair, err := f.pairs.FindByKey(ctx, models.PairKey("binance", "BTCUSDT"))
			require.NoError(t, err)
			assert.Equal(t, 1, pair.TotalSignalsGenerated)
			assert.Equal(t, sig.CreatedAt, pair.LastSignalTime)

			st := o.Status()
			assert.Equal(t, int64(1), st.SignalsGenerated)
			assert.Zero(t, st.Errors)
			assert.GreaterOrEqual(t, st.TotalTicks, int64(1))
		})
	}
}

func TestStop_DiscardsInFlightTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")

	entered := make(chan struct{})
	var once sync.Once
	gen := generatorFunc(func(ctx context.Context, pair *models.TradingPair, _ *models.MarketData) (*generator.Result, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return accepted(pair), nil
	})
	o := f.orchestrator(t, gen, nil)

	require.NoError(t, o.Start(ctx))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("тик не начался")
	}
	require.NoError(t, o.Stop(ctx))

	assert.Zero(t, f.signals.Len())
	assert.Zero(t, o.Status().SignalsGenerated)
	assert.Zero(t, o.Status().Errors)
}

func TestTick_AutoDisable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := testutil.Pair("BTCUSDT", models.CategoryMajor, time.Now().Add(-40*24*time.Hour))
	require.NoError(t, f.pairs.Save(ctx, old))

	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		return rejected(), nil
	})
	o := f.orchestrator(t, gen, nil)
	deactivated := await(t, f.bus, events.PairDeactivated)

	require.NoError(t, o.Start(ctx))
	e := receive(t, deactivated)
	require.NoError(t, o.Stop(ctx))

	assert.Contains(t, e.Data["reason"], "низкая активность")
	assert.Zero(t, f.ex.Calls("BTCUSDT"))
}

func TestTick_RateLimitedSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")
	f.ex.health = exchange.Health{Healthy: true, RateLimited: true}

	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		return rejected(), nil
	})
	o := f.orchestrator(t, gen, nil)

	require.NoError(t, o.Start(ctx))
	require.Eventually(t, func() bool { return o.Status().TotalTicks >= 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, o.Stop(ctx))

	assert.Zero(t, f.ex.Calls("BTCUSDT"))
	assert.Zero(t, o.Status().Errors)
}

func TestExecuteForMultiplePairs(t *testing.T) {
	ctx := context.Background()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"}
	f := newFixture(t)
	f.ex.fail["SOLUSDT"] = true

	gen := generatorFunc(func(_ context.Context, pair *models.TradingPair, _ *models.MarketData) (*generator.Result, error) {
		if pair.Symbol == "BTCUSDT" || pair.Symbol == "ETHUSDT" {
			return accepted(pair), nil
		}
		return rejected(), nil
	})
	o := f.orchestrator(t, gen, nil)

	var batches atomic.Int32
	var last atomic.Value
	f.bus.Subscribe(events.SignalBatchCompleted, func(_ context.Context, e events.Event) {
		batches.Add(1)
		last.Store(e)
	})

	pairs := make([]*models.TradingPair, 0, len(symbols))
	for _, s := range symbols {
		pairs = append(pairs, testutil.Pair(s, models.CategoryMajor, time.Now()))
	}

	res := o.ExecuteForMultiplePairs(ctx, pairs)
	f.bus.Wait()

	assert.Len(t, res.Results, 4)
	assert.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed, models.PairKey("binance", "SOLUSDT"))
	assert.Equal(t, 2, res.SignalsGenerated)

	assert.Equal(t, int32(1), batches.Load())
	e := last.Load().(events.Event)
	assert.Equal(t, 2, e.Data["signalsGenerated"])
	assert.Equal(t, 5, e.Data["totalPairs"])
	assert.Equal(t, 1, e.Data["failed"])

	// пакетная оценка не сохраняет сигналы
	assert.Zero(t, f.signals.Len())
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")
	o := f.orchestrator(t, generatorFunc(nil), nil)

	key := models.PairKey("binance", "BTCUSDT")
	pair, err := f.pairs.FindByKey(ctx, key)
	require.NoError(t, err)
	pair.RecordSignal(time.Now().Add(-3 * time.Hour))
	require.NoError(t, f.pairs.Update(ctx, pair))

	sig := testutil.LongSignal("s1", "binance", "BTCUSDT", time.Now().Add(-3*time.Hour))
	require.NoError(t, sig.MarkAsSent(time.Now().Add(-2*time.Hour)))
	require.NoError(t, f.signals.Save(ctx, sig))

	n, err := o.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.signals.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, got.Status)

	// мониторинг не запущен: успех записывается прямо в хранилище
	pair, err = f.pairs.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, pair.SuccessfulSignals)
}

func TestCleanupExpired_KeepsSuccessfulPairActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")

	gate := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, pair *models.TradingPair, _ *models.MarketData) (*generator.Result, error) {
		select {
		case <-gate:
			return accepted(pair), nil
		case <-ctx.Done():
			return rejected(), nil
		}
	})
	notifier := &fakeNotifier{result: notification.DeliveryResult{Delivered: []string{"log"}}}
	o, err := NewOrchestrator(config.MonitorConfig{MaxErrors: 10, CandleLimit: 100, SignalMaxAge: time.Nanosecond},
		Deps{
			Pairs:     f.pairs,
			Signals:   f.signals,
			Generator: gen,
			Exchanges: []exchange.Adapter{f.ex},
			Notifier:  notifier,
			Bus:       f.bus,
		},
		WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	deactivated := await(t, f.bus, events.PairDeactivated)

	require.NoError(t, o.Start(ctx))

	executed := 0
	for i := 1; i <= models.AutoDisableMinSignals; i++ {
		select {
		case gate <- struct{}{}:
		case e := <-deactivated:
			t.Fatalf("пара отключена: %v", e.Data["reason"])
		case <-time.After(5 * time.Second):
			t.Fatal("тик не выполнен")
		}
		require.Eventually(t, func() bool {
			n, err := o.CleanupExpired(ctx)
			if err != nil {
				return false
			}
			executed += n
			return executed == i
		}, 5*time.Second, time.Millisecond)
	}

	// следующий тик проходит проверку автоотключения
	select {
	case gate <- struct{}{}:
	case e := <-deactivated:
		t.Fatalf("пара отключена: %v", e.Data["reason"])
	case <-time.After(5 * time.Second):
		t.Fatal("тик не выполнен")
	}
	require.NoError(t, o.Stop(ctx))

	assert.Zero(t, o.Status().DeactivatedPairs)
	pair, err := f.pairs.FindByKey(ctx, models.PairKey("binance", "BTCUSDT"))
	require.NoError(t, err)
	assert.True(t, pair.IsActive)
	assert.Equal(t, models.AutoDisableMinSignals, pair.SuccessfulSignals)
	assert.GreaterOrEqual(t, pair.TotalSignalsGenerated, models.AutoDisableMinSignals)
}

type failingPairUpdates struct {
	*memory.PairStore
}

func (failingPairUpdates) Update(context.Context, *models.TradingPair) error {
	return fmt.Errorf("%w: диск переполнен", models.ErrRepository)
}

func TestTick_PairUpdateFailureStillDelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")

	var calls atomic.Int32
	gen := generatorFunc(func(_ context.Context, pair *models.TradingPair, _ *models.MarketData) (*generator.Result, error) {
		if calls.Add(1) == 1 {
			return accepted(pair), nil
		}
		return rejected(), nil
	})
	notifier := &fakeNotifier{result: notification.DeliveryResult{Delivered: []string{"log"}}}
	o, err := NewOrchestrator(config.MonitorConfig{MaxErrors: 10, CandleLimit: 100, SignalMaxAge: time.Hour},
		Deps{
			Pairs:     failingPairUpdates{f.pairs},
			Signals:   f.signals,
			Generator: gen,
			Exchanges: []exchange.Adapter{f.ex},
			Notifier:  notifier,
			Bus:       f.bus,
		},
		WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	generated := await(t, f.bus, events.SignalGenerated)

	require.NoError(t, o.Start(ctx))
	e := receive(t, generated)
	require.NoError(t, o.Stop(ctx))

	id, _ := e.Data["signalId"].(string)
	sig, err := f.signals.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, sig.Status)
	assert.Equal(t, int32(1), notifier.sent.Load())

	active, err := f.signals.FindActiveByPair(ctx, "binance", "BTCUSDT")
	require.NoError(t, err)
	for _, s := range active {
		assert.NotEqual(t, models.StatusPending, s.Status)
	}

	st := o.Status()
	assert.Equal(t, int64(1), st.SignalsGenerated)
	assert.Zero(t, st.Errors)
}

func TestStop_TimeoutBlocksRestartUntilDrained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "BTCUSDT")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gen := generatorFunc(func(context.Context, *models.TradingPair, *models.MarketData) (*generator.Result, error) {
		once.Do(func() { close(entered) })
		<-release
		return rejected(), nil
	})
	o := f.orchestrator(t, gen, nil)
	stopped := await(t, f.bus, events.MonitoringStopped)

	require.NoError(t, o.Start(ctx))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("тик не начался")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Stop(stopCtx), context.DeadlineExceeded)

	// задача еще выполняется
	assert.ErrorIs(t, o.Start(ctx), ErrStopping)
	assert.ErrorIs(t, o.Stop(ctx), ErrStopping)
	assert.True(t, o.Status().Running)

	close(release)
	receive(t, stopped)
	require.Eventually(t, func() bool { return !o.Status().Running }, 5*time.Second, time.Millisecond)

	require.NoError(t, o.Start(ctx))
	require.NoError(t, o.Stop(ctx))
}

func TestLatencyWindow(t *testing.T) {
	w := newLatencyWindow(100)
	assert.Zero(t, w.mean())

	w.add(10 * time.Millisecond)
	w.add(20 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, w.mean())

	w.reset()
	for i := 1; i <= 150; i++ {
		w.add(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 100, w.len())
	assert.Equal(t, 100500*time.Microsecond, w.mean())
}
