package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters exposed on the daemon's /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal     *prometheus.CounterVec
	collectFailures *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	lastCheckAt     *prometheus.GaugeVec
}

// NewMetrics builds and registers the daemon metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftguard_checks_total",
		Help: "Completed source checks by decision status.",
	}, []string{"source", "status"})

	m.collectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftguard_collect_failures_total",
		Help: "Collections that produced a COLLECT_FAILED snapshot.",
	}, []string{"source"})

	m.deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftguard_deliveries_total",
		Help: "Webhook dispatch outcomes per target.",
	}, []string{"target", "outcome"})

	m.lastCheckAt = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "driftguard_last_check_timestamp_seconds",
		Help: "Unix time of the most recent completed check per source.",
	}, []string{"source"})

	m.registry.MustRegister(m.checksTotal, m.collectFailures, m.deliveriesTotal, m.lastCheckAt)
	return m
}

func (m *Metrics) observeCheck(res CheckResult) {
	if m == nil || res.Skipped || res.Decision == nil {
		return
	}
	m.checksTotal.WithLabelValues(res.Source, string(res.Decision.Status)).Inc()
	m.lastCheckAt.WithLabelValues(res.Source).SetToCurrentTime()
	if res.CollectFailed {
		m.collectFailures.WithLabelValues(res.Source).Inc()
	}
	for target, ok := range res.Dispatched {
		outcome := "ok"
		if !ok {
			outcome = "failed"
		}
		m.deliveriesTotal.WithLabelValues(target, outcome).Inc()
	}
}
