package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/skalibog/cryptosignals/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance      BinanceConfig      `yaml:"binance"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Analysis     AnalysisConfig     `yaml:"analysis"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Strategies   []StrategyConfig   `yaml:"strategies"`
	Pairs        []PairConfig       `yaml:"pairs"`
	Storage      StorageConfig      `yaml:"storage"`
	Notification NotificationConfig `yaml:"notification"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	Testnet           bool          `yaml:"testnet"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// MonitorConfig настройки оркестратора мониторинга
type MonitorConfig struct {
	CandleLimit     int           `yaml:"candle_limit"`
	MaxErrors       int           `yaml:"max_errors"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
	SignalMaxAge    time.Duration `yaml:"signal_max_age"`
	LatencyWindow   int           `yaml:"latency_window"`
}

// AnalysisConfig содержит настройки аналитических модулей
type AnalysisConfig struct {
	TrendModel string       `yaml:"trend_model"`
	Trend      TrendConfig  `yaml:"trend"`
	Volume     VolumeConfig `yaml:"volume"`
	Risk       RiskConfig   `yaml:"risk"`
}

// TrendConfig настройки анализа тренда
type TrendConfig struct {
	// Порог изменения цены за окно, % (каскадная модель)
	ChangeThreshold float64 `yaml:"change_threshold"`
	// Минимальный ADX для подтверждения тренда (каскадная модель)
	ADXMin float64 `yaml:"adx_min"`
}

// VolumeConfig настройки анализа объемов
type VolumeConfig struct {
	Lookback int `yaml:"lookback"`
}

// RiskConfig настройки оценки риска
type RiskConfig struct {
	// Данные старше StaleFactor таймфреймов считаются устаревшими
	StaleFactor float64 `yaml:"stale_factor"`
}

// Режимы генератора
const (
	GeneratorStandard = "standard"
	GeneratorBasic    = "basic"
)

// Модели тренда
const (
	TrendVoting  = "voting"
	TrendCascade = "cascade"
)

// GeneratorConfig настройки генератора сигналов
type GeneratorConfig struct {
	Mode string `yaml:"mode"`
	// Последняя свеча не старше MaxDataAge таймфреймов
	MaxDataAge    float64 `yaml:"max_data_age"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// StrategyConfig описание стратегии; нулевые поля заполняются стандартными значениями
type StrategyConfig struct {
	Name       string           `yaml:"name"`
	Timeframe  string           `yaml:"timeframe"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Risk       RiskParams       `yaml:"risk"`
}

// IndicatorsConfig периоды индикаторов
type IndicatorsConfig struct {
	EMAShort      int     `yaml:"ema_short"`
	EMAMedium     int     `yaml:"ema_medium"`
	EMALong       int     `yaml:"ema_long"`
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	MACDFast      int     `yaml:"macd_fast"`
	MACDSlow      int     `yaml:"macd_slow"`
	MACDSignal    int     `yaml:"macd_signal"`
	BBPeriod      int     `yaml:"bb_period"`
	BBStdDev      float64 `yaml:"bb_std_dev"`
	StochK        int     `yaml:"stoch_k"`
	StochD        int     `yaml:"stoch_d"`
	ATRPeriod     int     `yaml:"atr_period"`
	ADXPeriod     int     `yaml:"adx_period"`
	VolumePeriod  int     `yaml:"volume_period"`
}

// RiskParams риск-параметры стратегии
type RiskParams struct {
	StopLoss               float64   `yaml:"stop_loss"`
	TakeProfits            []float64 `yaml:"take_profits"`
	MinSignalStrength      float64   `yaml:"min_signal_strength"`
	MaxSimultaneousSignals int       `yaml:"max_simultaneous_signals"`
	MinRiskReward          float64   `yaml:"min_risk_reward"`
}

// PairConfig описание торговой пары
type PairConfig struct {
	Symbol       string        `yaml:"symbol"`
	BaseAsset    string        `yaml:"base_asset"`
	QuoteAsset   string        `yaml:"quote_asset"`
	Exchange     string        `yaml:"exchange"`
	Category     string        `yaml:"category"`
	Strategy     string        `yaml:"strategy"`
	Cooldown     time.Duration `yaml:"cooldown"`
	SpecialRules []string      `yaml:"special_rules"`
	Disabled     bool          `yaml:"disabled"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Signals  BackendConfig  `yaml:"signals"`
	Pairs    BackendConfig  `yaml:"pairs"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// BackendConfig тип хранилища и путь к файлу
type BackendConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// InfluxDBConfig настройки истории в InfluxDB
type InfluxDBConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// NotificationConfig настройки уведомлений
type NotificationConfig struct {
	Telegram       TelegramConfig `yaml:"telegram"`
	LogChannel     bool           `yaml:"log_channel"`
	MaxRetries     int            `yaml:"max_retries"`
	InitialBackoff time.Duration  `yaml:"initial_backoff"`
	MaxBackoff     time.Duration  `yaml:"max_backoff"`
}

// TelegramConfig настройки Telegram-канала
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// MetricsConfig настройки Prometheus
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSONFile   string `yaml:"json_file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path))
	logger.Info("Загружена конфигурация",
		zap.Int("pairs", len(cfg.Pairs)),
		zap.Int("strategies", len(cfg.Strategies)),
		zap.String("generator", cfg.Generator.Mode))
	return cfg, nil
}

// Parse разбирает YAML, применяет значения по умолчанию и переменные окружения
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Binance.RequestsPerSecond == 0 {
		c.Binance.RequestsPerSecond = 10
	}
	if c.Binance.Burst == 0 {
		c.Binance.Burst = 5
	}
	if c.Binance.Timeout == 0 {
		c.Binance.Timeout = 10 * time.Second
	}

	if c.Monitor.CandleLimit == 0 {
		c.Monitor.CandleLimit = 100
	}
	if c.Monitor.MaxErrors == 0 {
		c.Monitor.MaxErrors = 10
	}
	if c.Monitor.CleanupSchedule == "" {
		c.Monitor.CleanupSchedule = "@every 10m"
	}
	if c.Monitor.SignalMaxAge == 0 {
		c.Monitor.SignalMaxAge = 24 * time.Hour
	}
	if c.Monitor.LatencyWindow == 0 {
		c.Monitor.LatencyWindow = 100
	}

	if c.Analysis.TrendModel == "" {
		c.Analysis.TrendModel = TrendVoting
	}
	c.Analysis.Trend = c.Analysis.Trend.withDefaults()
	if c.Analysis.Volume.Lookback == 0 {
		c.Analysis.Volume.Lookback = 20
	}
	if c.Analysis.Risk.StaleFactor == 0 {
		c.Analysis.Risk.StaleFactor = 2
	}

	if c.Generator.Mode == "" {
		c.Generator.Mode = GeneratorStandard
	}
	if c.Generator.MaxDataAge == 0 {
		c.Generator.MaxDataAge = 3
	}
	if c.Generator.MinConfidence == 0 {
		c.Generator.MinConfidence = 3
	}

	for i := range c.Pairs {
		if c.Pairs[i].Exchange == "" {
			c.Pairs[i].Exchange = "binance"
		}
		if c.Pairs[i].Category == "" {
			c.Pairs[i].Category = "alt"
		}
	}

	if c.Storage.Signals.Type == "" {
		c.Storage.Signals.Type = "memory"
	}
	if c.Storage.Pairs.Type == "" {
		c.Storage.Pairs.Type = "memory"
	}

	if c.Notification.MaxRetries == 0 {
		c.Notification.MaxRetries = 3
	}
	if c.Notification.InitialBackoff == 0 {
		c.Notification.InitialBackoff = time.Second
	}
	if c.Notification.MaxBackoff == 0 {
		c.Notification.MaxBackoff = 30 * time.Second
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (t TrendConfig) withDefaults() TrendConfig {
	if t.ChangeThreshold == 0 {
		t.ChangeThreshold = 3
	}
	if t.ADXMin == 0 {
		t.ADXMin = 20
	}
	return t
}

// DefaultTrendConfig настройки тренда по умолчанию
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{}.withDefaults()
}

// DefaultGeneratorConfig настройки генератора по умолчанию
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{Mode: GeneratorStandard, MaxDataAge: 3, MinConfidence: 3}
}

// applyEnv секреты из переменных окружения имеют приоритет над файлом
func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notification.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notification.Telegram.ChatID = id
		} else {
			logger.Warn("Некорректный TELEGRAM_CHAT_ID", zap.String("value", v), zap.Error(err))
		}
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		c.Storage.InfluxDB.Token = v
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	switch c.Analysis.TrendModel {
	case TrendVoting, TrendCascade:
	default:
		return fmt.Errorf("неизвестная модель тренда %q", c.Analysis.TrendModel)
	}
	switch c.Generator.Mode {
	case GeneratorStandard, GeneratorBasic:
	default:
		return fmt.Errorf("неизвестный режим генератора %q", c.Generator.Mode)
	}
	switch c.Storage.Signals.Type {
	case "memory":
	case "sqlite":
		if c.Storage.Signals.Path == "" {
			return fmt.Errorf("storage.signals: для sqlite требуется path")
		}
	default:
		return fmt.Errorf("неизвестное хранилище сигналов %q", c.Storage.Signals.Type)
	}
	switch c.Storage.Pairs.Type {
	case "memory":
	case "bolt":
		if c.Storage.Pairs.Path == "" {
			return fmt.Errorf("storage.pairs: для bolt требуется path")
		}
	default:
		return fmt.Errorf("неизвестное хранилище пар %q", c.Storage.Pairs.Type)
	}
	if c.Storage.InfluxDB.Enabled && (c.Storage.InfluxDB.URL == "" || c.Storage.InfluxDB.Bucket == "") {
		return fmt.Errorf("storage.influxdb: требуются url и bucket")
	}
	if c.Notification.Telegram.Enabled && (c.Notification.Telegram.Token == "" || c.Notification.Telegram.ChatID == 0) {
		return fmt.Errorf("notification.telegram: требуются token и chat_id")
	}
	if c.Monitor.MaxErrors < 1 {
		return fmt.Errorf("monitor.max_errors должен быть положительным")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("не задано ни одной торговой пары")
	}

	names := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("стратегия без имени")
		}
		if names[s.Name] {
			return fmt.Errorf("стратегия %s объявлена дважды", s.Name)
		}
		names[s.Name] = true
	}

	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Symbol == "" {
			return fmt.Errorf("пара без символа")
		}
		key := p.Exchange + ":" + p.Symbol
		if seen[key] {
			return fmt.Errorf("пара %s объявлена дважды", key)
		}
		seen[key] = true
		if p.Strategy != "" && !names[p.Strategy] {
			return fmt.Errorf("пара %s: неизвестная стратегия %q", key, p.Strategy)
		}
		if p.Cooldown < 0 {
			return fmt.Errorf("пара %s: отрицательный cooldown", key)
		}
	}
	return nil
}
