package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter mirrors finished operations into Prometheus series on a caller-owned registry.
type Exporter struct {
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	counters   *prometheus.CounterVec
}

func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raildrops_operation_duration_seconds",
				Help:    "Duration of tracked giveaway operations",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
			},
			[]string{"operation"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raildrops_operations_total",
				Help: "Finished giveaway operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		counters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raildrops_operation_items_total",
				Help: "Item counters recorded by giveaway operations",
			},
			[]string{"operation", "counter"},
		),
	}
}

func (e *Exporter) observe(op Operation) {
	if e == nil {
		return
	}
	outcome := "success"
	if !op.Completed {
		outcome = "error"
	}
	e.duration.WithLabelValues(op.Name).Observe(op.Duration.Seconds())
	e.operations.WithLabelValues(op.Name, outcome).Inc()
}

func (e *Exporter) add(op, counter string, n int64) {
	if e == nil || n < 0 {
		return
	}
	e.counters.WithLabelValues(op, counter).Add(float64(n))
}
