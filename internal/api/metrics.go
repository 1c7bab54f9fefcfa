package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for scheduling API traffic.
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calemly",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total scheduling API requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calemly",
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Total retry attempts by operation and trigger",
		}, []string{"operation", "trigger"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "calemly",
			Subsystem: "api",
			Name:      "request_latency_seconds",
			Help:      "Latency of scheduling API requests including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.retriesTotal, m.requestLatency)
	return m
}

func (m *Metrics) ObserveRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveRetry(operation, trigger string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation, trigger).Inc()
}

func (m *Metrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(operation).Observe(seconds)
}
