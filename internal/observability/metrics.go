// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trade engine. A nil
// *Metrics is valid and records nothing, so instrumentation stays
// optional at every call site.
type Metrics struct {
	// Trade flow metrics
	TradesOpened prometheus.Counter
	ClosesFired  *prometheus.CounterVec
	ArmedCloses  prometheus.Gauge

	// Submission metrics
	ConfirmLatency *prometheus.HistogramVec

	// Price poll metrics
	PricePolls     prometheus.Counter
	PricePollFails prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_perp_engine"
	}

	return &Metrics{
		TradesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_opened_total",
			Help:      "Total number of positions opened with an armed auto-close",
		}),
		ClosesFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "closes_fired_total",
			Help:      "Total number of resolved closes by outcome",
		}, []string{"outcome"}),
		ArmedCloses: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "armed_closes",
			Help:      "Number of auto-closes currently counting down",
		}),
		ConfirmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "confirm_latency_seconds",
			Help:      "Time from submission to confirmation by operation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"operation"}),
		PricePolls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "price_polls_total",
			Help:      "Total number of price refresh polls while closes were armed",
		}),
		PricePollFails: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "price_poll_failures_total",
			Help:      "Total number of failed price refresh polls",
		}),
	}
}

// TradeOpened records one opened position.
func (m *Metrics) TradeOpened() {
	if m == nil {
		return
	}
	m.TradesOpened.Inc()
}

// CloseFired records one resolved close. An empty outcome means the
// close failed without reaching a terminal outcome code.
func (m *Metrics) CloseFired(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "FAILED"
	}
	m.ClosesFired.WithLabelValues(outcome).Inc()
}

// CloseArmed tracks a newly armed countdown.
func (m *Metrics) CloseArmed() {
	if m == nil {
		return
	}
	m.ArmedCloses.Inc()
}

// CloseDisarmed tracks a countdown leaving the armed state.
func (m *Metrics) CloseDisarmed() {
	if m == nil {
		return
	}
	m.ArmedCloses.Dec()
}

// ObserveConfirm records confirmation latency for operation.
func (m *Metrics) ObserveConfirm(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// PricePoll records one price refresh attempt.
func (m *Metrics) PricePoll(failed bool) {
	if m == nil {
		return
	}
	m.PricePolls.Inc()
	if failed {
		m.PricePollFails.Inc()
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
