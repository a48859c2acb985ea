package execlog

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports gate outcomes to Prometheus.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the execution collectors under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_executions_total",
				Help:      "Gated service executions by device, service and status.",
			},
			[]string{"device_id", "service", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_execution_duration_seconds",
				Help:      "Duration of gated service executions.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"device_id", "service", "status"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.executions, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Write implements Sink.
func (m *Metrics) Write(_ context.Context, rec Record) error {
	status := rec.Status()
	m.executions.WithLabelValues(rec.Device, rec.Service, status).Inc()
	m.duration.WithLabelValues(rec.Device, rec.Service, status).Observe(rec.Duration.Seconds())
	return nil
}

// Collectors exposes the underlying collectors for tests and custom registries.
func (m *Metrics) Collectors() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	return m.executions, m.duration
}
