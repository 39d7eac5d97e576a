// Package observability метрики Prometheus
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics метрики мониторинга. Методы безопасны для nil-получателя.
type Metrics struct {
	TicksTotal       *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec
	TickErrors       *prometheus.CounterVec
	SignalsGenerated *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec
	PairsActive      prometheus.Gauge
	PairsDeactivated prometheus.Counter
	Notifications    *prometheus.CounterVec
	SignalsExpired   prometheus.Counter
	ExchangeRequests *prometheus.CounterVec
}

// NewMetrics создает и регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "cryptosignals"
	}
	f := promauto.With(reg)

	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Количество тиков мониторинга по результату",
		}, []string{"pair", "outcome"}),
		TickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика мониторинга",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pair"}),
		TickErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_errors_total",
			Help:      "Ошибки тиков по виду",
		}, []string{"pair", "kind"}),
		SignalsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "generated_total",
			Help:      "Сгенерированные сигналы",
		}, []string{"pair", "direction"}),
		SignalsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Отклоненные кандидаты в сигналы",
		}, []string{"pair"}),
		PairsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "pairs_active",
			Help:      "Количество отслеживаемых пар",
		}),
		PairsDeactivated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "pairs_deactivated_total",
			Help:      "Отключенные пары",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Доставки уведомлений по каналу и статусу",
		}, []string{"channel", "status"}),
		SignalsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "expired_total",
			Help:      "Сигналы, переведенные из SENT в EXECUTED по таймауту",
		}),
		ExchangeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "requests_total",
			Help:      "Запросы к бирже по результату",
		}, []string{"exchange", "status"}),
	}
}

// Handler HTTP-обработчик /metrics для gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick учитывает завершенный тик
func (m *Metrics) RecordTick(pair, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(pair, outcome).Inc()
	m.TickDuration.WithLabelValues(pair).Observe(seconds)
}

// RecordTickError учитывает ошибку тика
func (m *Metrics) RecordTickError(pair, kind string) {
	if m == nil {
		return
	}
	m.TickErrors.WithLabelValues(pair, kind).Inc()
}

// RecordSignal учитывает сгенерированный сигнал
func (m *Metrics) RecordSignal(pair, direction string) {
	if m == nil {
		return
	}
	m.SignalsGenerated.WithLabelValues(pair, direction).Inc()
}

// RecordRejection учитывает отказ в генерации
func (m *Metrics) RecordRejection(pair string) {
	if m == nil {
		return
	}
	m.SignalsRejected.WithLabelValues(pair).Inc()
}

// SetActivePairs текущее число отслеживаемых пар
func (m *Metrics) SetActivePairs(n int) {
	if m == nil {
		return
	}
	m.PairsActive.Set(float64(n))
}

// RecordDeactivation учитывает отключение пары
func (m *Metrics) RecordDeactivation() {
	if m == nil {
		return
	}
	m.PairsDeactivated.Inc()
}

// RecordNotification учитывает доставку в канал
func (m *Metrics) RecordNotification(channel string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.Notifications.WithLabelValues(channel, status).Inc()
}

// RecordExpired учитывает сигналы, закрытые очисткой
func (m *Metrics) RecordExpired(n int) {
	if m == nil {
		return
	}
	m.SignalsExpired.Add(float64(n))
}

// RecordExchangeRequest учитывает запрос к бирже
func (m *Metrics) RecordExchangeRequest(exchange, status string) {
	if m == nil {
		return
	}
	m.ExchangeRequests.WithLabelValues(exchange, status).Inc()
}
