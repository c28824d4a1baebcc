package payment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records payment outcomes. A nil *Metrics is a valid no-op sink.
type Metrics struct {
	started  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	started := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_started_total",
			Help: "Payments accepted by the gateway, by source and gateway",
		},
		[]string{"source", "gateway"},
	)

	failed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_start_failures_total",
			Help: "Payments that could not be started, by source, gateway and stage",
		},
		[]string{"source", "gateway", "stage"},
	)

	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callback_results_total",
			Help: "Processed gateway callbacks by source, gateway and result",
		},
		[]string{"source", "gateway", "result"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Duration of outbound payment registration calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0},
		},
		[]string{"gateway"},
	)

	reg.MustRegister(started, failed, results, duration)

	return &Metrics{
		started:  started,
		failed:   failed,
		results:  results,
		duration: duration,
	}
}

func (m *Metrics) paymentStarted(source, gateway string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(source, gateway).Inc()
}

func (m *Metrics) paymentFailed(source, gateway, stage string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(source, gateway, stage).Inc()
}

func (m *Metrics) callbackResult(source, gateway string, code ResultCode) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(source, gateway, string(code)).Inc()
}

func (m *Metrics) observeGateway(gateway string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(gateway).Observe(d.Seconds())
}
