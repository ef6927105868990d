package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/metric"
)

// busMetrics holds Prometheus metrics for the event bus
type busMetrics struct {
	publishedTotal *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
}

// newBusMetrics creates and registers bus metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newBusMetrics(registry *metric.MetricsRegistry) *busMetrics {
	if registry == nil {
		return nil
	}

	metrics := &busMetrics{
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Notifications and events fanned out by the bus",
		}, []string{"kind"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Deliveries dropped because a subscriber queue was full",
		}, []string{"kind"}),
	}

	registry.PrometheusRegistry().MustRegister(
		metrics.publishedTotal,
		metrics.droppedTotal,
	)

	return metrics
}

func (m *busMetrics) recordPublished(kind string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(kind).Inc()
}

func (m *busMetrics) recordDropped(kind string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(kind).Inc()
}
