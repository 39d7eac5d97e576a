// Package storage хранилища сигналов, торговых пар и истории
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
)

// HistorySink журнал сгенерированных сигналов и полученных свечей
type HistorySink interface {
	SaveSignal(ctx context.Context, signal *models.Signal) error
	SaveCandles(ctx context.Context, md *models.MarketData) error
	Close()
}

// SignalRecord запись истории сигналов
type SignalRecord struct {
	ID         string
	Exchange   string
	Pair       string
	Direction  models.Direction
	EntryPrice float64
	StopLoss   float64
	Confidence float64
	Strategy   string
	Timestamp  time.Time
}

// InfluxDBStorage история сигналов и свечей в InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает хранилище истории InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.InfluxDBConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("Ошибка записи в InfluxDB", zap.Error(err))
		}
	}()

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close сбрасывает буфер записи и закрывает соединение
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveSignal записывает сгенерированный сигнал
func (s *InfluxDBStorage) SaveSignal(_ context.Context, signal *models.Signal) error {
	s.writeAPI.WritePoint(signalPoint(signal))
	s.writeAPI.Flush()
	return nil
}

// SaveCandles записывает свечи снимка рынка
func (s *InfluxDBStorage) SaveCandles(_ context.Context, md *models.MarketData) error {
	for _, p := range candlePoints(md) {
		s.writeAPI.WritePoint(p)
	}
	s.writeAPI.Flush()
	return nil
}

// GetSignalHistory получает историю сигналов пары, новые первыми
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, exchange, symbol string, limit int) ([]SignalRecord, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.exchange == "%s" and r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, exchange, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос истории сигналов: %v", models.ErrRepository, err)
	}

	var records []SignalRecord
	for result.Next() {
		record := result.Record()
		id, _ := record.ValueByKey("id").(string)
		direction, _ := record.ValueByKey("direction").(string)
		strategy, _ := record.ValueByKey("strategy").(string)
		entry, _ := record.ValueByKey("entry_price").(float64)
		stop, _ := record.ValueByKey("stop_loss").(float64)
		confidence, _ := record.ValueByKey("confidence").(float64)

		records = append(records, SignalRecord{
			ID:         id,
			Exchange:   exchange,
			Pair:       symbol,
			Direction:  models.Direction(direction),
			EntryPrice: entry,
			StopLoss:   stop,
			Confidence: confidence,
			Strategy:   strategy,
			Timestamp:  record.Time(),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("%w: обработка результатов: %v", models.ErrRepository, result.Err())
	}
	return records, nil
}

func signalPoint(signal *models.Signal) *write.Point {
	tps := make([]string, len(signal.Targets.TakeProfits))
	for i, tp := range signal.Targets.TakeProfits {
		tps[i] = fmt.Sprintf("%g", tp)
	}

	return influxdb2.NewPoint(
		"signals",
		map[string]string{
			"exchange":  signal.Exchange,
			"symbol":    signal.Pair,
			"timeframe": string(signal.Timeframe),
		},
		map[string]interface{}{
			"id":           signal.ID,
			"direction":    string(signal.Direction),
			"entry_price":  signal.EntryPrice,
			"stop_loss":    signal.Targets.StopLoss,
			"take_profits": strings.Join(tps, ","),
			"confidence":   signal.Confidence,
			"risk_reward":  signal.RiskReward(),
			"strategy":     signal.Strategy,
		},
		signal.CreatedAt,
	)
}

func candlePoints(md *models.MarketData) []*write.Point {
	candles := md.Candles()
	points := make([]*write.Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, influxdb2.NewPoint(
			"candles",
			map[string]string{
				"exchange": md.Exchange,
				"symbol":   md.Symbol,
				"interval": string(md.Timeframe),
			},
			map[string]interface{}{
				"open":   c.Open,
				"high":   c.High,
				"low":    c.Low,
				"close":  c.Close,
				"volume": c.Volume,
			},
			c.Timestamp,
		))
	}
	return points
}
