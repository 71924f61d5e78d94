package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ordersPlaced *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ordersPlaced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesim_orders_placed_total",
				Help: "Total number of orders placed",
			},
			[]string{"side", "symbol"},
		),
		refreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesim_dashboard_refreshes_total",
				Help: "Dashboard refreshes by trigger source",
			},
			[]string{"source"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesim_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradesim_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradesim_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordOrderPlaced records an accepted order.
func (r *Recorder) RecordOrderPlaced(side, symbol string) {
	r.ordersPlaced.WithLabelValues(side, symbol).Inc()
}

// RecordRefresh records a dashboard refresh by its trigger source.
func (r *Recorder) RecordRefresh(source string) {
	r.refreshes.WithLabelValues(source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
