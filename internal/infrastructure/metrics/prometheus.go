// Package metrics exporta los contadores del ledger en formato Prometheus.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/jhoicas/stockledger-api/internal/application/inventory"
)

const namespace = "stockledger"

var _ inventory.Metrics = (*LedgerMetrics)(nil)

// LedgerMetrics implementación Prometheus del puerto inventory.Metrics, con registro propio.
type LedgerMetrics struct {
	registry      *prometheus.Registry
	transactions  *prometheus.CounterVec
	shortfalls    *prometheus.CounterVec
	expired       prometheus.Counter
	notifications *prometheus.CounterVec
	retries       *prometheus.CounterVec
}

// NewLedgerMetrics crea y registra los colectores. withRuntime agrega los de Go y proceso.
func NewLedgerMetrics(withRuntime bool) *LedgerMetrics {
	m := &LedgerMetrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Movimientos de inventario procesados por tipo y resultado.",
		}, []string{"type", "result"}),
		shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_shortfalls_total",
			Help:      "Asignaciones rechazadas por stock insuficiente.",
		}, []string{"type"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_expired_total",
			Help:      "Lotes marcados como vencidos por el barrido.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notificaciones emitidas por tipo.",
		}, []string{"type"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followup_retries_total",
			Help:      "Reintentos de efectos posteriores al commit por operación.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.transactions, m.shortfalls, m.expired, m.notifications, m.retries)
	if withRuntime {
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func (m *LedgerMetrics) ObserveTransaction(txType, result string) {
	m.transactions.WithLabelValues(txType, result).Inc()
}

func (m *LedgerMetrics) ObserveShortfall(txType string) {
	m.shortfalls.WithLabelValues(txType).Inc()
}

func (m *LedgerMetrics) ObserveExpired(n int) {
	if n > 0 {
		m.expired.Add(float64(n))
	}
}

func (m *LedgerMetrics) ObserveNotification(notificationType string) {
	m.notifications.WithLabelValues(notificationType).Inc()
}

func (m *LedgerMetrics) ObserveRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// Registry registro subyacente (pruebas y colectores adicionales).
func (m *LedgerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler endpoint HTTP de scraping.
func (m *LedgerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Snapshot totales de los contadores propios del ledger, para el log de apagado.
func (m *LedgerMetrics) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		out[mf.GetName()] = total
	}
	return out
}
