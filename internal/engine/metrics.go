package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the Prometheus metrics for the engine.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsDropped     prometheus.Counter
}

// NewMetrics creates and registers the metrics for the engine.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_operations_total",
			Help: "Total number of engine commands, labeled by operation and result.",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_operation_duration_seconds",
			Help:    "Time taken to execute an engine command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amm_events_dropped_total",
			Help: "Events of committed commands that the event sink failed to store.",
		}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.eventsDropped)
	return m
}

func (m *Metrics) observe(operation string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}
