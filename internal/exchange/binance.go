package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/observability"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Коды ошибок Binance о превышении лимита запросов
const (
	codeTooManyRequests int64 = -1003
	codeTooManyOrders   int64 = -1015
)

// klineFetcher источник свечей фьючерсного рынка
type klineFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
}

type futuresKlines struct {
	client *futures.Client
}

func (f futuresKlines) Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
}

// BinanceClient адаптер фьючерсов Binance
type BinanceClient struct {
	klines  klineFetcher
	limiter *rate.Limiter
	timeout time.Duration
	health  *healthTracker
	metrics *observability.Metrics
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig, metrics *observability.Metrics) *BinanceClient {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	return newBinanceClient(futuresKlines{client: client}, cfg, metrics)
}

func newBinanceClient(fetcher klineFetcher, cfg config.BinanceConfig, metrics *observability.Metrics) *BinanceClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceClient{
		klines:  fetcher,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
		health:  newHealthTracker(time.Now),
		metrics: metrics,
	}
}

// Name имя биржи
func (c *BinanceClient) Name() string {
	return "binance"
}

// Health состояние адаптера
func (c *BinanceClient) Health() Health {
	return c.health.snapshot()
}

// GetCandles получает последние свечи, старые первыми
func (c *BinanceClient) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ожидание лимита запросов: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	klines, err := c.klines.Klines(ctx, symbol, string(tf), limit)
	if err != nil {
		limited := isRateLimit(err)
		c.health.failure(err, limited)
		c.metrics.RecordExchangeRequest(c.Name(), "error")
		if limited {
			logger.Warn("Превышен лимит запросов Binance", zap.String("symbol", symbol), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("ошибка получения свечей %s: %w", symbol, err)
	}

	candles, err := convertKlines(klines)
	if err != nil {
		c.health.failure(err, false)
		c.metrics.RecordExchangeRequest(c.Name(), "invalid")
		return nil, fmt.Errorf("свечи %s: %w", symbol, err)
	}

	c.health.success()
	c.metrics.RecordExchangeRequest(c.Name(), "ok")
	return candles, nil
}

func convertKlines(klines []*futures.Kline) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		var (
			c   = models.Candle{Timestamp: time.UnixMilli(k.OpenTime).UTC()}
			err error
		)
		fields := []struct {
			dst *float64
			src string
		}{
			{&c.Open, k.Open},
			{&c.High, k.High},
			{&c.Low, k.Low},
			{&c.Close, k.Close},
			{&c.Volume, k.Volume},
		}
		for _, f := range fields {
			if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
				return nil, fmt.Errorf("%w: некорректное значение %q", models.ErrValidation, f.src)
			}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func isRateLimit(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeTooManyRequests || apiErr.Code == codeTooManyOrders
	}
	return false
}
