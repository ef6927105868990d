package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/metric"
)

// dispatchMetrics holds Prometheus metrics for the action dispatcher
type dispatchMetrics struct {
	actionsExecuted        *prometheus.CounterVec
	actionsFailed          *prometheus.CounterVec
	actionsSkipped         *prometheus.CounterVec
	notificationsPublished prometheus.Counter
	deferredPending        prometheus.Gauge
}

// newDispatchMetrics creates and registers dispatcher metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newDispatchMetrics(registry *metric.MetricsRegistry) *dispatchMetrics {
	if registry == nil {
		return nil
	}

	metrics := &dispatchMetrics{
		actionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "dispatch",
			Name:      "actions_executed_total",
			Help:      "Actions executed successfully by type",
		}, []string{"action"}),

		actionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "dispatch",
			Name:      "actions_failed_total",
			Help:      "Actions that returned an error by type",
		}, []string{"action"}),

		actionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "dispatch",
			Name:      "actions_skipped_total",
			Help:      "Actions skipped due to missing config or unknown type",
		}, []string{"action"}),

		notificationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "dispatch",
			Name:      "notifications_published_total",
			Help:      "Notifications handed to the event bus",
		}),

		deferredPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "dispatch",
			Name:      "deferred_pending",
			Help:      "Deferred actions waiting on their timer",
		}),
	}

	registry.RegisterCounterVec("dispatcher", "actions_executed", metrics.actionsExecuted)
	registry.RegisterCounterVec("dispatcher", "actions_failed", metrics.actionsFailed)
	registry.RegisterCounterVec("dispatcher", "actions_skipped", metrics.actionsSkipped)
	registry.RegisterCounter("dispatcher", "notifications_published", metrics.notificationsPublished)
	registry.RegisterGauge("dispatcher", "deferred_pending", metrics.deferredPending)

	return metrics
}

func (m *dispatchMetrics) recordExecuted(action string) {
	if m == nil {
		return
	}
	m.actionsExecuted.WithLabelValues(action).Inc()
}

func (m *dispatchMetrics) recordFailed(action string) {
	if m == nil {
		return
	}
	m.actionsFailed.WithLabelValues(action).Inc()
}

func (m *dispatchMetrics) recordSkipped(action string) {
	if m == nil {
		return
	}
	m.actionsSkipped.WithLabelValues(action).Inc()
}

func (m *dispatchMetrics) recordNotification() {
	if m == nil {
		return
	}
	m.notificationsPublished.Inc()
}

func (m *dispatchMetrics) setDeferredPending(n int) {
	if m == nil {
		return
	}
	m.deferredPending.Set(float64(n))
}
