package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skalibog/cryptosignals/internal/analysis/aggregator"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/events"
	"github.com/skalibog/cryptosignals/internal/exchange"
	"github.com/skalibog/cryptosignals/internal/generator"
	"github.com/skalibog/cryptosignals/internal/monitor"
	"github.com/skalibog/cryptosignals/internal/notification"
	"github.com/skalibog/cryptosignals/internal/observability"
	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/internal/storage/bolt"
	"github.com/skalibog/cryptosignals/internal/storage/memory"
	"github.com/skalibog/cryptosignals/internal/storage/sqlite"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// app собранное приложение
type app struct {
	orchestrator *monitor.Orchestrator
	bus          *events.InMemoryBus
	server       *http.Server
	closers      []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{bus: events.NewInMemoryBus()}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg, "cryptosignals")
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler(reg))
		a.server = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	signals, err := a.signalRepository(cfg.Storage.Signals)
	if err != nil {
		a.Close()
		return nil, err
	}
	pairs, err := a.pairRepository(cfg.Storage.Pairs)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		history storage.HistorySink
		journal signalHistory
	)
	if cfg.Storage.InfluxDB.Enabled {
		store, err := storage.NewInfluxDBStorage(ctx, cfg.Storage.InfluxDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("инициализация InfluxDB: %w", err)
		}
		history = store
		journal = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.bus.Subscribe(events.SignalGenerated, func(ctx context.Context, e events.Event) {
			if sig, ok := e.Data["signal"].(*models.Signal); ok {
				if err := store.SaveSignal(ctx, sig); err != nil {
					logger.Warn("Ошибка записи сигнала в историю", zap.String("id", sig.ID), zap.Error(err))
				}
			}
		})
	}

	if err := seedPairs(ctx, cfg, pairs, journal); err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(cfg.Notification)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bus.Subscribe(events.PairDeactivated, func(ctx context.Context, e events.Event) {
		reason, _ := e.Data["reason"].(string)
		notifier.SendAlert(ctx, notification.PriorityHigh, "Пара отключена",
			fmt.Sprintf("<b>%s</b> на %s отключена: %s", e.Pair, e.Exchange, html.EscapeString(reason)))
	})

	analyzer, err := aggregator.NewAnalyzer(cfg.Analysis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("инициализация анализатора: %w", err)
	}
	gen, err := generator.New(analyzer, signals, cfg.Generator)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orchestrator, err = monitor.NewOrchestrator(cfg.Monitor, monitor.Deps{
		Pairs:     pairs,
		Signals:   signals,
		Generator: gen,
		Exchanges: []exchange.Adapter{exchange.NewBinanceClient(cfg.Binance, metrics)},
		Notifier:  notifier,
		Bus:       a.bus,
		Metrics:   metrics,
		History:   history,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) signalRepository(cfg config.BackendConfig) (storage.SignalRepository, error) {
	if cfg.Type != "sqlite" {
		return memory.NewSignalStore(), nil
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}
	store, err := sqlite.NewSignalStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("хранилище сигналов: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) pairRepository(cfg config.BackendConfig) (storage.PairRepository, error) {
	if cfg.Type != "bolt" {
		return memory.NewPairStore(), nil
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}
	store, err := bolt.NewPairStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("хранилище пар: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("создание каталога для %s: %w", path, err)
	}
	return nil
}

// signalHistory журнал ранее сгенерированных сигналов
type signalHistory interface {
	GetSignalHistory(ctx context.Context, exchange, symbol string, limit int) ([]storage.SignalRecord, error)
}

// seedPairs добавляет пары из конфигурации, которых еще нет в хранилище.
// Сохраненное состояние существующих пар не перезаписывается. Для новых пар
// время последнего сигнала берется из журнала, чтобы cooldown пережил
// потерю хранилища пар.
func seedPairs(ctx context.Context, cfg *config.Config, repo storage.PairRepository, journal signalHistory) error {
	strategies, err := cfg.BuildStrategies()
	if err != nil {
		return err
	}
	pairs, err := cfg.BuildPairs(strategies, time.Now())
	if err != nil {
		return err
	}

	var fresh []*models.TradingPair
	for _, p := range pairs {
		_, err := repo.FindByKey(ctx, p.Key())
		switch {
		case err == nil:
			continue
		case errors.Is(err, storage.ErrNotFound):
			warmFromHistory(ctx, p, journal)
			fresh = append(fresh, p)
		default:
			return fmt.Errorf("загрузка пары %s: %w", p.Key(), err)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := repo.SaveAll(ctx, fresh); err != nil {
		return fmt.Errorf("сохранение пар: %w", err)
	}
	logger.Info("Добавлены пары из конфигурации", zap.Int("count", len(fresh)))
	return nil
}

// warmFromHistory восстанавливает время последнего сигнала пары. Счетчики
// сигналов не восстанавливаются: журнал не хранит исход сигнала.
func warmFromHistory(ctx context.Context, p *models.TradingPair, journal signalHistory) {
	if journal == nil {
		return
	}
	records, err := journal.GetSignalHistory(ctx, p.Exchange, p.Symbol, 1)
	if err != nil {
		logger.Warn("Ошибка чтения истории сигналов", zap.String("pair", p.Key()), zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	p.LastSignalTime = records[0].Timestamp
	logger.Info("Восстановлено время последнего сигнала",
		zap.String("pair", p.Key()), zap.Time("lastSignal", p.LastSignalTime))
}

func newNotifier(cfg config.NotificationConfig) (*notification.Service, error) {
	var channels []notification.Channel
	if cfg.Telegram.Enabled {
		tg, err := notification.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("инициализация Telegram: %w", err)
		}
		channels = append(channels, tg)
	}
	if cfg.LogChannel || len(channels) == 0 {
		channels = append(channels, notification.LogChannel{})
	}
	svc := notification.NewService(cfg, channels...)
	logger.Info("Каналы уведомлений", zap.Strings("channels", svc.Channels()))
	return svc, nil
}

// Start запускает HTTP-сервер метрик и мониторинг
func (a *app) Start(ctx context.Context) error {
	if a.server != nil {
		go func() {
			logger.Info("Сервер метрик запущен", zap.String("addr", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Ошибка сервера метрик", zap.Error(err))
			}
		}()
	}
	return a.orchestrator.Start(ctx)
}

// Stop останавливает мониторинг и дожидается обработчиков событий
func (a *app) Stop(ctx context.Context) error {
	err := a.orchestrator.Stop(ctx)
	a.bus.Wait()
	if a.server != nil {
		if serr := a.server.Shutdown(ctx); serr != nil {
			logger.Warn("Ошибка остановки сервера метрик", zap.Error(serr))
		}
	}
	return err
}

// Close освобождает хранилища в обратном порядке
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Ошибка закрытия ресурса", zap.Error(err))
		}
	}
	a.closers = nil
}
